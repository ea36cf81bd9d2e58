package stt

import (
	"context"
	"encoding/json"
	"fmt"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a deterministic stand-in engine. Output depends
// only on the payload, so identical uploads yield identical transcripts.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, audio []byte) (Result, error) {
	text := ""
	if len(audio) > 0 {
		text = fmt.Sprintf("[mock transcript bytes=%d]", len(audio))
	}
	raw, _ := json.Marshal(map[string]string{"text": text})
	return Result{Text: text, Raw: raw}, nil
}

func (m *mockRecognizer) Close() error {
	return nil
}
