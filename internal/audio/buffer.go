package audio

import (
	"errors"
	"io"
	"sync"
)

// ErrBufferFull is returned when a write does not fit in the remaining space.
var ErrBufferFull = errors.New("audio buffer full")

// RingBuffer is a thread-safe ring buffer for audio data. One slot is kept
// free to tell full from empty, so it holds at most size-1 bytes.
type RingBuffer struct {
	mu     sync.Mutex
	buffer []byte
	read   int
	write  int
}

// NewRingBuffer creates a new ring buffer with the specified size
func NewRingBuffer(size int) *RingBuffer {
	if size < 2 {
		size = 2
	}
	return &RingBuffer{buffer: make([]byte, size)}
}

// Write copies as much of data as fits. If not all of it fits, the written
// prefix is kept and ErrBufferFull is returned.
func (rb *RingBuffer) Write(data []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := min(len(data), rb.space())
	for written := 0; written < n; {
		end := len(rb.buffer)
		if rb.read > rb.write {
			end = rb.read - 1
		} else if rb.read == 0 {
			end = len(rb.buffer) - 1
		}
		c := copy(rb.buffer[rb.write:end], data[written:n])
		written += c
		rb.write = (rb.write + c) % len(rb.buffer)
	}

	if n < len(data) {
		return n, ErrBufferFull
	}
	return n, nil
}

// Read reads up to len(data) bytes. It never blocks and returns 0, nil when empty.
func (rb *RingBuffer) Read(data []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.readLocked(data), nil
}

func (rb *RingBuffer) readLocked(data []byte) int {
	n := min(len(data), rb.available())
	for read := 0; read < n; {
		end := rb.write
		if rb.write < rb.read {
			end = len(rb.buffer)
		}
		c := copy(data[read:n], rb.buffer[rb.read:end])
		read += c
		rb.read = (rb.read + c) % len(rb.buffer)
	}
	return n
}

// WriteTo drains everything currently buffered into w.
func (rb *RingBuffer) WriteTo(w io.Writer) (int64, error) {
	rb.mu.Lock()
	chunk := make([]byte, rb.available())
	rb.readLocked(chunk)
	rb.mu.Unlock()

	if len(chunk) == 0 {
		return 0, nil
	}
	n, err := w.Write(chunk)
	return int64(n), err
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.available()
}

// Space returns the number of bytes available to write
func (rb *RingBuffer) Space() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.space()
}

func (rb *RingBuffer) available() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return len(rb.buffer) - rb.read + rb.write
}

func (rb *RingBuffer) space() int {
	return len(rb.buffer) - rb.available() - 1
}

// Clear clears the buffer
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.read = 0
	rb.write = 0
}

// IsEmpty returns true if the buffer is empty
func (rb *RingBuffer) IsEmpty() bool {
	return rb.Available() == 0
}
