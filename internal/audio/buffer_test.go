package audio

import (
	"bytes"
	"errors"
	"testing"
)

func TestRingBuffer_Write(t *testing.T) {
	rb := NewRingBuffer(10)

	written, err := rb.Write([]byte{1, 2, 3, 4, 5})
	if err != nil || written != 5 {
		t.Errorf("Expected to write 5 bytes, got %d (%v)", written, err)
	}
	if rb.Available() != 5 {
		t.Errorf("Expected available 5, got %d", rb.Available())
	}

	written, err = rb.Write([]byte{6, 7, 8})
	if err != nil || written != 3 {
		t.Errorf("Expected to write 3 bytes, got %d (%v)", written, err)
	}
	if rb.Available() != 8 {
		t.Errorf("Expected available 8, got %d", rb.Available())
	}
}

func TestRingBuffer_WriteOverflow(t *testing.T) {
	rb := NewRingBuffer(5)

	// Capacity is size-1
	written, err := rb.Write([]byte{1, 2, 3, 4, 5, 6})
	if written != 4 {
		t.Errorf("Expected to write 4 bytes, got %d", written)
	}
	if !errors.Is(err, ErrBufferFull) {
		t.Errorf("Expected ErrBufferFull, got %v", err)
	}
	if rb.Space() != 0 {
		t.Errorf("Expected no space left, got %d", rb.Space())
	}

	written, err = rb.Write([]byte{7})
	if written != 0 || !errors.Is(err, ErrBufferFull) {
		t.Errorf("Expected full buffer to reject write, got %d (%v)", written, err)
	}
}

func TestRingBuffer_Read(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write([]byte{1, 2, 3, 4, 5})

	readBuf := make([]byte, 3)
	read, _ := rb.Read(readBuf)
	if read != 3 {
		t.Errorf("Expected to read 3 bytes, got %d", read)
	}
	if !bytes.Equal(readBuf, []byte{1, 2, 3}) {
		t.Errorf("Unexpected data: %v", readBuf)
	}
	if rb.Available() != 2 {
		t.Errorf("Expected available 2, got %d", rb.Available())
	}
}

func TestRingBuffer_ReadEmpty(t *testing.T) {
	rb := NewRingBuffer(10)

	read, err := rb.Read(make([]byte, 5))
	if read != 0 || err != nil {
		t.Errorf("Expected empty read, got %d (%v)", read, err)
	}
	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty")
	}
}

func TestRingBuffer_WrapAround(t *testing.T) {
	rb := NewRingBuffer(8)

	rb.Write([]byte{1, 2, 3, 4, 5, 6})
	rb.Read(make([]byte, 4))

	// Write wraps past the end of the backing slice
	written, err := rb.Write([]byte{7, 8, 9, 10, 11})
	if err != nil || written != 5 {
		t.Fatalf("Expected to write 5 bytes, got %d (%v)", written, err)
	}

	out := make([]byte, 10)
	read, _ := rb.Read(out)
	if !bytes.Equal(out[:read], []byte{5, 6, 7, 8, 9, 10, 11}) {
		t.Errorf("Unexpected data after wrap: %v", out[:read])
	}
}

func TestRingBuffer_WriteTo(t *testing.T) {
	rb := NewRingBuffer(8)
	rb.Write([]byte{1, 2, 3, 4, 5, 6})
	rb.Read(make([]byte, 5))
	rb.Write([]byte{7, 8, 9})

	var out bytes.Buffer
	n, err := rb.WriteTo(&out)
	if err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}
	if n != 4 || !bytes.Equal(out.Bytes(), []byte{6, 7, 8, 9}) {
		t.Errorf("Unexpected drained data: %v", out.Bytes())
	}
	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty after WriteTo")
	}
}

func TestRingBuffer_Clear(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write([]byte{1, 2, 3})

	rb.Clear()

	if !rb.IsEmpty() {
		t.Error("Expected buffer to be empty after clear")
	}
	if rb.Space() != 9 {
		t.Errorf("Expected space 9 after clear, got %d", rb.Space())
	}
}
