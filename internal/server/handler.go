// Package server exposes the voice assistant over HTTP.
//
// POST /api/voice accepts either an uploaded audio clip or a typed message,
// resolves the request through the intent router and answers with the
// synthesized reply as JSON. The remaining routes serve voice listing,
// health probes and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrWong99/portalvoice/internal/health"
	"github.com/MrWong99/portalvoice/internal/intent"
	"github.com/MrWong99/portalvoice/internal/observe"
	"github.com/MrWong99/portalvoice/internal/synth"
	"github.com/MrWong99/portalvoice/pkg/provider/stt"
	"github.com/MrWong99/portalvoice/pkg/types"
)

// DefaultMaxUploadBytes caps uploaded audio at the transcription API limit.
const DefaultMaxUploadBytes = stt.MaxUploadBytes

// Public error bodies. Details stay in the logs.
const (
	msgTooLarge       = "Audio file too large"
	msgUnknownVoice   = "Unknown voice channel"
	msgNoInput        = "No input provided"
	msgBadRequest     = "Invalid request body"
	msgAudioDisabled  = "Audio input not supported"
	msgInternalServer = "Internal Server Error"
)

// Resolver turns a transcript into one intent result.
type Resolver interface {
	Resolve(ctx context.Context, transcript string) (intent.Result, error)
}

// Renderer synthesizes the spoken fields of a result.
type Renderer interface {
	Synthesize(ctx context.Context, result intent.Result, voice string) (*synth.Output, error)
}

// VoiceSet reports the voices a request may select.
type VoiceSet interface {
	Voices() []string
	Default() string
	Has(name string) bool
}

// Config wires a [Handler].
type Config struct {
	// STT transcribes uploaded audio. When nil only typed messages are
	// accepted.
	STT      stt.Provider
	Router   Resolver
	Pipeline Renderer
	Voices   VoiceSet

	// Language is passed to STT as a recognition hint.
	Language string

	// MaxUploadBytes caps the audio part. Zero selects [DefaultMaxUploadBytes].
	MaxUploadBytes int64

	// STTTimeout bounds one transcription. Zero leaves only the request
	// deadline.
	STTTimeout time.Duration

	Metrics *observe.Metrics

	// Health serves /healthz and /readyz when set.
	Health *health.Probe

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler
}

// Handler serves the HTTP API. It is stateless per request and safe for
// concurrent use.
type Handler struct {
	stt       stt.Provider
	router    Resolver
	pipeline  Renderer
	voices    VoiceSet
	language  string
	maxUpload int64
	sttTO     time.Duration
	metrics   *observe.Metrics
	health    *health.Probe
	promHTTP  http.Handler
}

// New validates cfg and creates a Handler.
func New(cfg Config) (*Handler, error) {
	var errs []error
	if cfg.Router == nil {
		errs = append(errs, errors.New("server: router must not be nil"))
	}
	if cfg.Pipeline == nil {
		errs = append(errs, errors.New("server: pipeline must not be nil"))
	}
	if cfg.Voices == nil {
		errs = append(errs, errors.New("server: voices must not be nil"))
	}
	if cfg.MaxUploadBytes < 0 {
		errs = append(errs, errors.New("server: max upload bytes must not be negative"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	h := &Handler{
		stt:       cfg.STT,
		router:    cfg.Router,
		pipeline:  cfg.Pipeline,
		voices:    cfg.Voices,
		language:  cfg.Language,
		maxUpload: cfg.MaxUploadBytes,
		sttTO:     cfg.STTTimeout,
		metrics:   cfg.Metrics,
		health:    cfg.Health,
		promHTTP:  cfg.MetricsHandler,
	}
	if h.maxUpload == 0 {
		h.maxUpload = DefaultMaxUploadBytes
	}
	if h.metrics == nil {
		h.metrics = observe.DefaultMetrics()
	}
	return h, nil
}

// Routes returns the chi router with all endpoints and middleware mounted.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer, observe.Middleware(h.metrics))

	if h.health != nil {
		h.health.Routes(r)
	}
	if h.promHTTP != nil {
		r.Method(http.MethodGet, "/metrics", h.promHTTP)
	}
	r.Route("/api", func(r chi.Router) {
		r.Get("/voices", h.ListVoices)
		r.Post("/voice", h.Voice)
	})
	return r
}

// voicesResponse is the body of GET /api/voices.
type voicesResponse struct {
	Default string   `json:"default"`
	Voices  []string `json:"voices"`
}

// ListVoices answers GET /api/voices.
func (h *Handler) ListVoices(w http.ResponseWriter, _ *http.Request) {
	voices := h.voices.Voices()
	if voices == nil {
		voices = []string{}
	}
	writeJSON(w, http.StatusOK, voicesResponse{Default: h.voices.Default(), Voices: voices})
}

// requestError carries the status and public message of a failed request.
type requestError struct {
	status int
	msg    string
	err    error
}

func (e *requestError) Error() string {
	if e.err != nil {
		return e.msg + ": " + e.err.Error()
	}
	return e.msg
}

func (e *requestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error {
	return &requestError{status: http.StatusBadRequest, msg: msg, err: err}
}

// writeError maps err to a status and a generic body. Anything that is not a
// requestError becomes a 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) int {
	ctx := r.Context()
	log := observe.Logger(ctx)

	var re *requestError
	if errors.As(err, &re) {
		log.Info("server: request rejected", "status", re.status, "err", err)
		writeJSON(w, re.status, types.ErrorResponse{Error: re.msg})
		return re.status
	}
	log.Error("server: request failed", "err", err)
	writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{Error: msgInternalServer})
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
