package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/scribelabs/scribed/internal/config"
	"github.com/scribelabs/scribed/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() config.STTConfig {
	return config.STTConfig{
		Engine:         "mock",
		SampleRate:     16000,
		Channels:       1,
		MaxConcurrency: 4,
	}
}

func newTestService(t *testing.T, rec Recognizer, cfg config.STTConfig) *Service {
	t.Helper()
	svc := NewService(cfg, rec, nil, nil, newLogger())
	svc.tmpDir = t.TempDir()
	return svc
}

func stagedFiles(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "scribed_upload_*.wav"))
	if err != nil {
		t.Fatalf("glob temp dir: %v", err)
	}
	return matches
}

func TestTranscribeReturnsRecognizerText(t *testing.T) {
	svc := newTestService(t, NewMockRecognizer(), testConfig())
	payload := bytes.Repeat([]byte{0x01}, 320)

	out, err := svc.Transcribe(context.Background(), Request{ID: "req-1", Audio: bytes.NewReader(payload)})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if out.Result.Text != fmt.Sprintf("[mock transcript bytes=%d]", len(payload)) {
		t.Fatalf("unexpected text: %q", out.Result.Text)
	}
	if out.AudioBytes != int64(len(payload)) {
		t.Fatalf("expected %d audio bytes, got %d", len(payload), out.AudioBytes)
	}
}

func TestTranscribeCleansUpTempFile(t *testing.T) {
	svc := newTestService(t, NewMockRecognizer(), testConfig())

	if _, err := svc.Transcribe(context.Background(), Request{ID: "req-1", Audio: strings.NewReader("audio")}); err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if leftover := stagedFiles(t, svc.tmpDir); len(leftover) != 0 {
		t.Fatalf("staged files left behind: %v", leftover)
	}
}

type failingRecognizer struct{}

func (failingRecognizer) Transcribe(context.Context, []byte) (Result, error) {
	return Result{}, errors.New("decode blew up")
}

func (failingRecognizer) Close() error { return nil }

func TestTranscribeCleansUpOnRecognizerError(t *testing.T) {
	svc := newTestService(t, failingRecognizer{}, testConfig())

	if _, err := svc.Transcribe(context.Background(), Request{ID: "req-1", Audio: strings.NewReader("audio")}); err == nil {
		t.Fatal("expected recognizer error")
	}
	if leftover := stagedFiles(t, svc.tmpDir); len(leftover) != 0 {
		t.Fatalf("staged files left behind: %v", leftover)
	}
}

func TestTranscribeIdempotent(t *testing.T) {
	svc := newTestService(t, NewMockRecognizer(), testConfig())
	payload := []byte("identical clip contents")

	first, err := svc.Transcribe(context.Background(), Request{ID: "a", Audio: bytes.NewReader(payload)})
	if err != nil {
		t.Fatalf("first transcribe: %v", err)
	}
	second, err := svc.Transcribe(context.Background(), Request{ID: "b", Audio: bytes.NewReader(payload)})
	if err != nil {
		t.Fatalf("second transcribe: %v", err)
	}
	if first.Result.Text != second.Result.Text {
		t.Fatalf("expected identical transcripts, got %q vs %q", first.Result.Text, second.Result.Text)
	}
}

type slowRecognizer struct {
	mu       sync.Mutex
	inflight int
	peak     int
}

func (r *slowRecognizer) Transcribe(_ context.Context, audio []byte) (Result, error) {
	r.mu.Lock()
	r.inflight++
	if r.inflight > r.peak {
		r.peak = r.inflight
	}
	r.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	r.mu.Lock()
	r.inflight--
	r.mu.Unlock()
	return Result{Text: fmt.Sprintf("len=%d", len(audio))}, nil
}

func (r *slowRecognizer) Close() error { return nil }

func TestTranscribeBoundsConcurrentDecodes(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConcurrency = 2
	rec := &slowRecognizer{}
	svc := newTestService(t, rec, cfg)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := bytes.Repeat([]byte{byte(i)}, (i+1)*10)
			out, err := svc.Transcribe(context.Background(), Request{
				ID:    fmt.Sprintf("req-%d", i),
				Audio: bytes.NewReader(payload),
			})
			if err != nil {
				errs <- err
				return
			}
			if out.Result.Text != fmt.Sprintf("len=%d", len(payload)) {
				errs <- fmt.Errorf("request %d got foreign result %q", i, out.Result.Text)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}

	rec.mu.Lock()
	peak := rec.peak
	rec.mu.Unlock()
	if peak > 2 {
		t.Fatalf("decode pool exceeded bound: peak %d", peak)
	}
	if leftover := stagedFiles(t, svc.tmpDir); len(leftover) != 0 {
		t.Fatalf("staged files left behind: %v", leftover)
	}
}

type capturePublisher struct {
	mu          sync.Mutex
	transcripts []protocol.Transcript
}

func (p *capturePublisher) PublishTranscript(_ context.Context, t protocol.Transcript) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transcripts = append(p.transcripts, t)
	return nil
}

func TestTranscribePublishesTranscript(t *testing.T) {
	pub := &capturePublisher{}
	svc := NewService(testConfig(), NewMockRecognizer(), nil, pub, newLogger())
	svc.tmpDir = t.TempDir()

	out, err := svc.Transcribe(context.Background(), Request{ID: "req-pub", Audio: strings.NewReader("abc")})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.transcripts) != 1 {
		t.Fatalf("expected 1 published transcript, got %d", len(pub.transcripts))
	}
	if pub.transcripts[0].RequestID != "req-pub" || pub.transcripts[0].Text != out.Result.Text {
		t.Fatalf("unexpected transcript: %+v", pub.transcripts[0])
	}
}

func TestTranscribeRespectsCancelledContext(t *testing.T) {
	svc := newTestService(t, NewMockRecognizer(), testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Transcribe(ctx, Request{ID: "req-1", Audio: strings.NewReader("audio")}); err == nil {
		t.Fatal("expected context error")
	}
	if leftover, _ := filepath.Glob(filepath.Join(svc.tmpDir, "*")); len(leftover) != 0 {
		t.Fatalf("staged files left behind: %v", leftover)
	}
}

func TestMockRecognizerEmptyInputYieldsEmptyText(t *testing.T) {
	out, err := NewMockRecognizer().Transcribe(context.Background(), nil)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if out.Text != "" {
		t.Fatalf("expected empty transcript for empty input, got %q", out.Text)
	}
}

func TestNewRecognizerRejectsUnknownEngine(t *testing.T) {
	cfg := testConfig()
	cfg.Engine = "dictaphone"
	if _, err := NewRecognizer(cfg); err == nil {
		t.Fatal("expected error for unknown engine")
	}
}
