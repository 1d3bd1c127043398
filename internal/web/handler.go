// Package web serves the local EduFocus dashboard: a static page that uploads
// a CSV file and streams the analysis progress back as Server-Sent Events.
package web

import (
	"embed"
	"encoding/json"
	"io"
	"io/fs"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/kamilpajak/edufocus/internal/focus"
	"golang.org/x/time/rate"
)

//go:embed static
var staticFiles embed.FS

// DefaultMaxUploadBytes bounds the size of an uploaded CSV file.
const DefaultMaxUploadBytes = 32 << 20

// DefaultAnalyzeRate limits how often the dashboard forwards uploads to the
// analysis server.
const DefaultAnalyzeRate = rate.Limit(1)

// Config configures the dashboard handler.
type Config struct {
	Client           *focus.Client
	Logger           *log.Logger
	ThresholdSeconds float64
	MaxUploadBytes   int64
	AnalyzeRate      rate.Limit // analyses per second; zero means DefaultAnalyzeRate
	AnalyzeBurst     int
}

// Handler serves the web dashboard and API endpoints.
type Handler struct {
	mux       *http.ServeMux
	client    *focus.Client
	logger    *log.Logger
	threshold float64
	maxUpload int64
	limiter   *rate.Limiter
}

// NewHandler creates a new web handler with all routes registered.
func NewHandler(cfg Config) *Handler {
	h := &Handler{
		mux:       http.NewServeMux(),
		client:    cfg.Client,
		logger:    cfg.Logger,
		threshold: cfg.ThresholdSeconds,
		maxUpload: cfg.MaxUploadBytes,
	}
	if h.logger == nil {
		h.logger = log.New(io.Discard)
	}
	if h.maxUpload <= 0 {
		h.maxUpload = DefaultMaxUploadBytes
	}
	limit, burst := cfg.AnalyzeRate, cfg.AnalyzeBurst
	if limit == 0 {
		limit = DefaultAnalyzeRate
	}
	if burst <= 0 {
		burst = 2
	}
	h.limiter = rate.NewLimiter(limit, burst)

	staticFS, _ := fs.Sub(staticFiles, "static")
	h.mux.Handle("GET /", http.FileServer(http.FS(staticFS)))
	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /api/config", h.handleConfig)
	h.mux.HandleFunc("POST /api/analyze", h.handleAnalyze)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"threshold_seconds": h.threshold,
		"server":            h.client.BaseURL(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
