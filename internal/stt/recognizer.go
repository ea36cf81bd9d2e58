package stt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/scribelabs/scribed/internal/config"
)

// Result captures recognizer output. Raw holds the engine's own final-result
// encoding when the backend produces one, for passthrough responses.
type Result struct {
	Text       string
	Confidence float64
	Raw        json.RawMessage
}

// Recognizer abstracts offline speech-to-text backends. Implementations
// receive the full audio payload in one call; no chunked submission.
type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte) (Result, error)
	Close() error
}

// NewRecognizer constructs the backend selected by cfg.Engine. The vosk
// backend loads its model here, once, and shares it across requests.
func NewRecognizer(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Engine {
	case "vosk":
		return NewVoskRecognizer(cfg)
	case "exec":
		return NewExecRecognizer(cfg)
	case "mock":
		return NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("unknown stt engine %q", cfg.Engine)
	}
}
