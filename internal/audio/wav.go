package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const wavHeaderSize = 44

// ErrNotWAV is returned for data without a RIFF/WAVE header.
var ErrNotWAV = errors.New("not a WAV file")

// EncodeWAV wraps 16-bit PCM in a WAV container.
func EncodeWAV(pcm []byte, channels, sampleRate int) ([]byte, error) {
	if channels <= 0 || channels > 2 {
		return nil, errors.New("only mono (1) or stereo (2) channels supported")
	}
	if sampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if len(pcm)%(2*channels) != 0 {
		return nil, errors.New("PCM data length doesn't match channel count")
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	buf.Write(wavHeader(len(pcm), channels, sampleRate))
	buf.Write(pcm)
	return buf.Bytes(), nil
}

func wavHeader(dataSize, channels, sampleRate int) []byte {
	const (
		bitsPerSample  = 16
		audioFormatPCM = 1
		fmtChunkSize   = 16
	)
	blockAlign := channels * bitsPerSample / 8

	h := make([]byte, wavHeaderSize)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], uint32(36+dataSize))
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(h[20:22], audioFormatPCM)
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], uint32(dataSize))
	return h
}

// IsWAV reports whether data starts with a RIFF/WAVE header.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE"))
}

// WAVData returns the PCM payload of the data chunk.
func WAVData(data []byte) ([]byte, error) {
	if !IsWAV(data) {
		return nil, ErrNotWAV
	}

	i := 12
	for i+8 <= len(data) {
		id := string(data[i : i+4])
		size := int(binary.LittleEndian.Uint32(data[i+4 : i+8]))
		next := i + 8 + size

		if id == "data" {
			if next > len(data) {
				return nil, errors.New("invalid WAV: data chunk exceeds buffer length")
			}
			return data[i+8 : next], nil
		}

		if size%2 != 0 {
			next++
		}
		i = next
	}

	return nil, errors.New("invalid WAV: data chunk not found")
}

// WAVWriter streams 16-bit PCM into a WAV file, fixing up the header sizes on Close.
type WAVWriter struct {
	f          *os.File
	channels   int
	sampleRate int
	dataSize   int
}

// CreateWAV creates path and writes a placeholder header.
func CreateWAV(path string, opts RecordingOptions) (*WAVWriter, error) {
	if opts.BitsPerSample != 0 && opts.BitsPerSample != 16 {
		return nil, fmt.Errorf("unsupported bits per sample: %d", opts.BitsPerSample)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create wav file: %w", err)
	}

	w := &WAVWriter{f: f, channels: max(opts.Channels, 1), sampleRate: opts.SampleRate}
	if _, err := f.Write(wavHeader(0, w.channels, w.sampleRate)); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}
	return w, nil
}

// Write appends PCM data.
func (w *WAVWriter) Write(pcm []byte) (int, error) {
	n, err := w.f.Write(pcm)
	w.dataSize += n
	return n, err
}

// Size returns the number of PCM bytes written.
func (w *WAVWriter) Size() int {
	return w.dataSize
}

// Close rewrites the header with the final sizes and closes the file.
func (w *WAVWriter) Close() error {
	if _, err := w.f.Seek(0, io.SeekStart); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to seek wav header: %w", err)
	}
	if _, err := w.f.Write(wavHeader(w.dataSize, w.channels, w.sampleRate)); err != nil {
		w.f.Close()
		return fmt.Errorf("failed to finalize wav header: %w", err)
	}
	return w.f.Close()
}
