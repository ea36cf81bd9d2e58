package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/scribelabs/scribed/internal/config"
	"github.com/scribelabs/scribed/internal/history"
	"github.com/scribelabs/scribed/internal/stt"
)

// Handler serves the transcription API.
type Handler struct {
	cfg     config.HTTPConfig
	svc     *stt.Service
	journal *history.Store
	log     *slog.Logger
	ready   func() bool
	metrics http.Handler
}

func NewHandler(cfg config.HTTPConfig, svc *stt.Service, journal *history.Store, ready func() bool, metrics http.Handler, log *slog.Logger) *Handler {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Handler{
		cfg:     cfg,
		svc:     svc,
		journal: journal,
		log:     log,
		ready:   ready,
		metrics: metrics,
	}
}

// Router assembles the chi router with CORS open to the configured origins.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Post("/transcribe", h.handleTranscribe)
	r.Get("/transcripts", h.handleTranscripts)
	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics)
	}

	return r
}

// handleTranscribe accepts a multipart upload in field "file", runs it
// through the pipeline, and answers {"text": ...} — or the engine's own
// final-result encoding verbatim when raw passthrough is configured.
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No audio file provided"})
		return
	}
	defer file.Close()

	req := stt.Request{
		ID:       uuid.NewString(),
		Filename: header.Filename,
		Audio:    file,
	}

	out, err := h.svc.Transcribe(r.Context(), req)
	if err != nil {
		h.log.Error("transcription failed",
			slog.String("request_id", req.ID),
			slog.String("filename", header.Filename),
			slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "transcription failed"})
		return
	}

	if h.cfg.RawResult && len(out.Result.Raw) > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(out.Result.Raw)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": out.Result.Text})
}

type transcriptEntry struct {
	RequestID  string `json:"request_id"`
	Engine     string `json:"engine"`
	Filename   string `json:"filename,omitempty"`
	AudioBytes int64  `json:"audio_bytes"`
	DurationMS int64  `json:"duration_ms"`
	Text       string `json:"text"`
	CreatedAt  string `json:"created_at"`
}

// handleTranscripts lists recent journal entries. With ephemeral history the
// list is always empty.
func (h *Handler) handleTranscripts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := h.journal.Recent(r.Context(), limit)
	if err != nil {
		h.log.Error("failed to list transcripts", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list transcripts"})
		return
	}

	entries := make([]transcriptEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, transcriptEntry{
			RequestID:  rec.RequestID,
			Engine:     rec.Engine,
			Filename:   rec.Filename,
			AudioBytes: rec.AudioBytes,
			DurationMS: rec.DurationMS,
			Text:       rec.Text,
			CreatedAt:  rec.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcripts": entries})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleReady(w http.ResponseWriter, _ *http.Request) {
	if h.ready() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
