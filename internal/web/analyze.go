package web

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kamilpajak/edufocus/internal/focus"
)

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, focus.UserMessage(focus.ErrNoFileSelected))
		return
	}
	defer part.Close()

	name := filepath.Base(header.Filename)
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		writeError(w, http.StatusUnsupportedMediaType, "only CSV files are supported")
		return
	}

	// Only uploads that would reach the analysis server spend a token.
	if !h.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusTooManyRequests, "too many analysis requests, try again shortly")
		return
	}

	dir, err := os.MkdirTemp("", "edufocus-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, name)
	if err := stage(path, part); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stage upload")
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emitter := NewSSEEmitter(w)
	if emitter == nil {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	file := &focus.SelectedFile{Path: path, Name: name, ContentType: focus.ContentTypeCSV}
	if _, err := h.client.WithEmitter(emitter).Analyze(r.Context(), file); err != nil {
		h.logger.Warn("dashboard analysis failed", "file", name, "err", err)
	}
	if err := emitter.Err(); err != nil {
		h.logger.Debug("progress stream interrupted", "file", name, "err", err)
	}
}

func stage(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, src); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
