package protocol

import "time"

// Transcript is the fan-out event published after a completed transcription.
type Transcript struct {
	RequestID  string    `json:"request_id"`
	Engine     string    `json:"engine"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence,omitempty"`
	AudioBytes int64     `json:"audio_bytes"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

const SubjectTranscriptFinal = "transcript.final"
