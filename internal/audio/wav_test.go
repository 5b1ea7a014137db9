package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	pcm := SamplesToBytes([]int16{1, 2, 3, 4})

	wav, err := EncodeWAV(pcm, 1, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Errorf("Expected %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if !IsWAV(wav) {
		t.Error("Expected RIFF/WAVE header")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("Expected sample rate 16000, got %d", rate)
	}

	data, err := WAVData(wav)
	if err != nil {
		t.Fatalf("WAVData failed: %v", err)
	}
	if !bytes.Equal(data, pcm) {
		t.Error("Expected data chunk to equal input PCM")
	}
}

func TestEncodeWAV_Invalid(t *testing.T) {
	if _, err := EncodeWAV([]byte{1, 2}, 3, 16000); err == nil {
		t.Error("Expected error for 3 channels")
	}
	if _, err := EncodeWAV([]byte{1, 2, 3}, 1, 16000); err == nil {
		t.Error("Expected error for odd PCM length")
	}
}

func TestWAVData_NotWAV(t *testing.T) {
	if _, err := WAVData([]byte("ID3 mp3 bytes")); !errors.Is(err, ErrNotWAV) {
		t.Errorf("Expected ErrNotWAV, got %v", err)
	}
}

func TestWAVWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.wav")

	w, err := CreateWAV(path, SpeechRecordingOptions)
	if err != nil {
		t.Fatalf("CreateWAV failed: %v", err)
	}
	w.Write(SamplesToBytes([]int16{10, 20}))
	w.Write(SamplesToBytes([]int16{30}))
	if w.Size() != 6 {
		t.Errorf("Expected size 6, got %d", w.Size())
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if size := binary.LittleEndian.Uint32(raw[40:44]); size != 6 {
		t.Errorf("Expected data size 6 in header, got %d", size)
	}
	data, err := WAVData(raw)
	if err != nil {
		t.Fatalf("WAVData failed: %v", err)
	}
	if samples := BytesToSamples(data); len(samples) != 3 || samples[2] != 30 {
		t.Errorf("Unexpected samples: %v", samples)
	}
}
