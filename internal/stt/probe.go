package stt

import (
	"bytes"
	"errors"
	"time"

	"github.com/go-audio/wav"
)

// WAVInfo summarizes a WAV container header.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// ProbeWAV inspects the header of an uploaded clip. The result feeds logs
// and metrics only; uploads are never rejected on header contents, matching
// the engine's own tolerance for arbitrary input.
func ProbeWAV(data []byte) (*WAVInfo, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid wav file")
	}
	info := &WAVInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if d, err := dec.Duration(); err == nil {
		info.Duration = d
	}
	return info, nil
}
