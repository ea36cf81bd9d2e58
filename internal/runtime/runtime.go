package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scribelabs/scribed/internal/bus"
	"github.com/scribelabs/scribed/internal/config"
	"github.com/scribelabs/scribed/internal/history"
	"github.com/scribelabs/scribed/internal/httpapi"
	"github.com/scribelabs/scribed/internal/natsserver"
	"github.com/scribelabs/scribed/internal/stt"
)

// Runtime owns startup order and graceful shutdown of every component: the
// speech model is loaded once here and shared read-only for the process
// lifetime.
type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(busConfig(r.cfg), r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded bus: %w", err)
	}
	defer embedded.Shutdown()

	var busClient *bus.Client
	if r.cfg.Bus.Enabled {
		busClient, err = bus.Connect(ctx, r.cfg.Bus, r.logger)
		if err != nil {
			return fmt.Errorf("failed to connect to bus: %w", err)
		}
		defer busClient.Close()
	}

	journal, err := history.Open(ctx, r.cfg.History, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer journal.Close()

	recognizer, err := stt.NewRecognizer(r.cfg.STT)
	if err != nil {
		return fmt.Errorf("failed to initialize recognizer: %w", err)
	}
	r.logger.Info("speech engine ready",
		slog.String("engine", r.cfg.STT.Engine),
		slog.String("model_path", r.cfg.STT.ModelPath),
		slog.Int("sample_rate", r.cfg.STT.SampleRate))

	var publisher stt.TranscriptPublisher
	if busClient != nil {
		publisher = busClient
	}
	svc := stt.NewService(r.cfg.STT, recognizer, journal, publisher, r.logger)
	defer svc.Close()

	handler := httpapi.NewHandler(r.cfg.HTTP, svc, journal, r.ready.Load, metricsHandler, r.logger)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(),
		time.Duration(r.cfg.HTTP.ShutdownTimeoutMS)*time.Millisecond)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// busConfig gates the embedded broker on bus.enabled so a disabled bus never
// binds a port.
func busConfig(cfg config.Config) config.BusConfig {
	bc := cfg.Bus
	if !bc.Enabled {
		bc.Embedded = false
	}
	return bc
}
