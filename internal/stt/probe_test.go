package stt

import (
	"os"
	"path/filepath"
	"testing"
)

func encodeSilence(t *testing.T, sampleRate, channels, samples int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "silence.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	pcm := make([]byte, samples*2)
	if err := writePCMToWAV(file, pcm, sampleRate, channels); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	file.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	return data
}

func TestProbeWAVReadsHeader(t *testing.T) {
	data := encodeSilence(t, 16000, 1, 16000)

	info, err := ProbeWAV(data)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if info.SampleRate != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", info.SampleRate)
	}
	if info.Channels != 1 {
		t.Fatalf("expected mono, got %d channels", info.Channels)
	}
	if info.BitDepth != 16 {
		t.Fatalf("expected 16-bit, got %d", info.BitDepth)
	}
}

func TestProbeWAVRejectsGarbage(t *testing.T) {
	if _, err := ProbeWAV([]byte("definitely not a riff container")); err == nil {
		t.Fatal("expected probe error for non-wav payload")
	}
}

func TestWritePCMToWAVRejectsUnalignedPayload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.wav")
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer file.Close()
	if err := writePCMToWAV(file, []byte{0x01}, 16000, 1); err == nil {
		t.Fatal("expected alignment error")
	}
}
