//go:build cgo

package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/scribelabs/scribed/internal/config"
)

// voskRecognizer drives the Vosk/Kaldi engine through its cgo binding. The
// model is loaded once and shared read-only; a fresh decoder is constructed
// per request so no decoding state survives between uploads.
type voskRecognizer struct {
	model      *vosk.VoskModel
	sampleRate float64

	mu     sync.Mutex
	closed bool
}

type voskResult struct {
	Text string `json:"text"`
}

func NewVoskRecognizer(cfg config.STTConfig) (Recognizer, error) {
	model, err := vosk.NewModel(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load vosk model %q: %w", cfg.ModelPath, err)
	}
	return &voskRecognizer{
		model:      model,
		sampleRate: float64(cfg.SampleRate),
	}, nil
}

func (r *voskRecognizer) Transcribe(ctx context.Context, audio []byte) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Result{}, fmt.Errorf("vosk recognizer closed")
	}
	r.mu.Unlock()

	rec, err := vosk.NewRecognizer(r.model, r.sampleRate)
	if err != nil {
		return Result{}, fmt.Errorf("create vosk recognizer: %w", err)
	}
	defer rec.Free()

	// The whole payload goes in at once; Vosk tolerates a leading WAV
	// header, so the upload is fed as-is.
	rec.AcceptWaveform(audio)
	raw := []byte(rec.FinalResult())

	var parsed voskResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("decode vosk result: %w", err)
	}
	return Result{Text: parsed.Text, Raw: json.RawMessage(raw)}, nil
}

func (r *voskRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.model.Free()
	return nil
}
