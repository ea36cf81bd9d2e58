//go:build !cgo

package stt

import (
	"fmt"

	"github.com/scribelabs/scribed/internal/config"
)

// NewVoskRecognizer requires the cgo Vosk binding; without cgo the engine is
// unavailable and construction fails.
func NewVoskRecognizer(cfg config.STTConfig) (Recognizer, error) {
	return nil, fmt.Errorf("vosk engine unavailable: built without cgo")
}
