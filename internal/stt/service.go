package stt

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/scribelabs/scribed/internal/config"
	"github.com/scribelabs/scribed/internal/history"
	"github.com/scribelabs/scribed/internal/protocol"
)

const instrumentationName = "github.com/scribelabs/scribed/internal/stt"

// Request is one uploaded clip awaiting transcription.
type Request struct {
	ID       string
	Filename string
	Audio    io.Reader
}

// Outcome carries the recognizer result plus request accounting.
type Outcome struct {
	Result     Result
	AudioBytes int64
	Elapsed    time.Duration
}

// TranscriptPublisher fans out completed transcripts to interested parties.
type TranscriptPublisher interface {
	PublishTranscript(ctx context.Context, t protocol.Transcript) error
}

// Service runs the transcription pipeline: stage the upload to a uniquely
// named temp file, read it back whole, hand the buffer to the recognizer
// once, and delete the staged file before the response is produced. A
// weighted semaphore bounds concurrent decodes so simultaneous uploads queue
// instead of piling onto the engine.
type Service struct {
	cfg        config.STTConfig
	recognizer Recognizer
	journal    *history.Store
	publisher  TranscriptPublisher
	log        *slog.Logger
	decodeSem  *semaphore.Weighted
	tmpDir     string
	tracer     trace.Tracer

	requests   metric.Int64Counter
	decodeTime metric.Float64Histogram
	audioBytes metric.Int64Counter
}

func NewService(cfg config.STTConfig, recognizer Recognizer, journal *history.Store, publisher TranscriptPublisher, log *slog.Logger) *Service {
	meter := otel.Meter(instrumentationName)
	requests, _ := meter.Int64Counter("scribed.transcribe.requests",
		metric.WithDescription("Transcription requests by outcome"))
	decodeTime, _ := meter.Float64Histogram("scribed.transcribe.duration",
		metric.WithDescription("End-to-end transcription duration"),
		metric.WithUnit("s"))
	audioBytes, _ := meter.Int64Counter("scribed.transcribe.audio_bytes",
		metric.WithDescription("Uploaded audio volume"),
		metric.WithUnit("By"))

	return &Service{
		cfg:        cfg,
		recognizer: recognizer,
		journal:    journal,
		publisher:  publisher,
		log:        log,
		decodeSem:  semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		tmpDir:     os.TempDir(),
		tracer:     otel.Tracer(instrumentationName),
		requests:   requests,
		decodeTime: decodeTime,
		audioBytes: audioBytes,
	}
}

// Transcribe runs one clip through the pipeline. The staged temp file is
// removed unconditionally, success or failure, before this returns.
func (s *Service) Transcribe(ctx context.Context, req Request) (Outcome, error) {
	if err := s.decodeSem.Acquire(ctx, 1); err != nil {
		return Outcome{}, fmt.Errorf("acquire decode slot: %w", err)
	}
	defer s.decodeSem.Release(1)

	ctx, span := s.tracer.Start(ctx, "stt.transcribe",
		trace.WithAttributes(attribute.String("stt.engine", s.cfg.Engine)))
	defer span.End()

	start := time.Now()

	data, err := s.stage(req.Audio)
	if err != nil {
		s.count(ctx, "stage_error")
		return Outcome{}, err
	}

	if info, err := ProbeWAV(data); err == nil {
		s.log.Debug("upload probed",
			slog.String("request_id", req.ID),
			slog.Int("sample_rate", info.SampleRate),
			slog.Int("channels", info.Channels),
			slog.Duration("audio_duration", info.Duration))
	} else {
		s.log.Debug("upload is not a parseable wav container",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()))
	}

	result, err := s.recognizer.Transcribe(ctx, data)
	if err != nil {
		s.count(ctx, "decode_error")
		return Outcome{}, fmt.Errorf("transcribe: %w", err)
	}

	elapsed := time.Since(start)
	outcome := Outcome{Result: result, AudioBytes: int64(len(data)), Elapsed: elapsed}

	s.count(ctx, "ok")
	s.decodeTime.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("engine", s.cfg.Engine)))
	s.audioBytes.Add(ctx, outcome.AudioBytes)

	s.log.Info("transcription complete",
		slog.String("request_id", req.ID),
		slog.Int64("audio_bytes", outcome.AudioBytes),
		slog.Duration("elapsed", elapsed),
		slog.Int("text_len", len(result.Text)))

	s.record(ctx, req, outcome)
	s.fanOut(ctx, req, outcome)

	return outcome, nil
}

// stage writes the upload to a unique *.wav temp file and reads the whole
// file back. At most one staged file exists per in-flight request and none
// survives the call.
func (s *Service) stage(audio io.Reader) ([]byte, error) {
	file, err := os.CreateTemp(s.tmpDir, "scribed_upload_*.wav")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	path := file.Name()
	defer os.Remove(path)

	if _, err := io.Copy(file, audio); err != nil {
		file.Close()
		return nil, fmt.Errorf("stage upload: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("close staged file: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read staged file: %w", err)
	}
	return data, nil
}

func (s *Service) record(ctx context.Context, req Request, out Outcome) {
	if !s.journal.Enabled() {
		return
	}
	err := s.journal.Append(ctx, history.Record{
		RequestID:  req.ID,
		Engine:     s.cfg.Engine,
		Filename:   req.Filename,
		AudioBytes: out.AudioBytes,
		DurationMS: out.Elapsed.Milliseconds(),
		Text:       out.Result.Text,
	})
	if err != nil {
		s.log.Warn("failed to journal transcription",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()))
	}
}

func (s *Service) fanOut(ctx context.Context, req Request, out Outcome) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.PublishTranscript(ctx, protocol.Transcript{
		RequestID:  req.ID,
		Engine:     s.cfg.Engine,
		Text:       out.Result.Text,
		Confidence: out.Result.Confidence,
		AudioBytes: out.AudioBytes,
		DurationMS: out.Elapsed.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("failed to publish transcript",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()))
	}
}

func (s *Service) count(ctx context.Context, outcome string) {
	s.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("engine", s.cfg.Engine),
		attribute.String("outcome", outcome)))
}

// Close releases the recognizer.
func (s *Service) Close() error {
	return s.recognizer.Close()
}
