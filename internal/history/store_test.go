package history

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/scribelabs/scribed/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	cfg := config.HistoryConfig{RetentionMode: "ephemeral"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if s.Enabled() {
		t.Fatal("ephemeral store must not persist")
	}
	if err := s.Append(context.Background(), Record{RequestID: "r1", Text: "hello"}); err != nil {
		t.Fatalf("append should be a no-op: %v", err)
	}
	records, err := s.Recent(context.Background(), 10)
	if err != nil || records != nil {
		t.Fatalf("expected no records, got %v (%v)", records, err)
	}
}

func TestAppendAndRecent(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{Path: filepath.Join(tmp, "history.db"), RetentionMode: "persistent"}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	rec := Record{
		RequestID:  "req-123",
		Engine:     "mock",
		Filename:   "clip.wav",
		AudioBytes: 32000,
		DurationMS: 45,
		Text:       "hello world",
	}
	if err := s.Append(context.Background(), rec); err != nil {
		t.Fatalf("append record: %v", err)
	}
	records, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].Text != "hello world" || records[0].RequestID != "req-123" {
		t.Fatalf("unexpected record: %+v", records[0])
	}
}

func TestPruneByDaysAndCount(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.HistoryConfig{
		Path:          filepath.Join(tmp, "history.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxRecords:    1,
	}
	s, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open history: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	s.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Record{RequestID: "old", Text: "stale"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	s.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := s.Append(context.Background(), Record{RequestID: "new", Text: "fresh"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	records, err := s.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 1 || records[0].RequestID != "new" {
		t.Fatalf("expected only the fresh record, got %+v", records)
	}
}
