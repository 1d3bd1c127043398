// Package focustest provides an in-process fake of the EduFocus analysis
// server for tests.
package focustest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// DefaultPeriods is the inattentive_periods payload served when no process
// response has been configured.
var DefaultPeriods = []string{
	"From 12.50 sec to 18.00 sec",
	"From 30 sec to 41.5 sec",
}

// PNG is a minimal image body served from /plot.png.
var PNG = []byte("\x89PNG\r\n\x1a\nfake-attention-graph")

// Upload records one multipart upload received on /predict.
type Upload struct {
	Filename    string
	ContentType string
	Content     []byte
	RequestID   string
}

// Server is a fake analysis server exposing /predict, /process and /plot.png.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	uploadStatus  int
	processStatus int
	processBody   string
	processHook   func(filename string)
	uploads       []Upload
	processed     []string
	requestIDs    []string
	plotRequests  int
}

// NewServer starts a fake server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{uploadStatus: http.StatusOK, processStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.HandleFunc("POST /process", s.handleProcess)
	mux.HandleFunc("GET /plot.png", s.handlePlot)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// PlotURL returns the URL of the fake attention graph.
func (s *Server) PlotURL() string {
	return s.URL + "/plot.png"
}

// SetUploadStatus makes /predict answer with the given status code.
func (s *Server) SetUploadStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadStatus = status
}

// SetProcessResponse makes /process answer with the given status and raw body.
func (s *Server) SetProcessResponse(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processStatus = status
	s.processBody = body
}

// SetProcessHook registers a function called at the start of every /process
// request, before the response is written. Tests use it to block or reorder
// responses.
func (s *Server) SetProcessHook(fn func(filename string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processHook = fn
}

// Uploads returns the uploads received so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Processed returns the filenames named in /process requests so far.
func (s *Server) Processed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.processed...)
}

// RequestIDs returns the X-Request-ID headers seen, in arrival order.
func (s *Server) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requestIDs...)
}

// Requests returns the total number of analysis requests received.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads) + len(s.processed)
}

// PlotRequests returns how many times the plot image was fetched.
func (s *Server) PlotRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plotRequests
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No file part in the request"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	s.mu.Lock()
	s.uploads = append(s.uploads, Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
		RequestID:   r.Header.Get("X-Request-ID"),
	})
	s.requestIDs = append(s.requestIDs, r.Header.Get("X-Request-ID"))
	status := s.uploadStatus
	s.mu.Unlock()

	if status != http.StatusOK {
		writeJSON(w, status, map[string]string{"error": "upload rejected"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "File uploaded", "filename": header.Filename})
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Filename string `json:"filename"`
	}
	if r.Header.Get("Content-Type") != "application/json" {
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{"error": "expected application/json"})
		return
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Filename not provided"})
		return
	}

	s.mu.Lock()
	s.processed = append(s.processed, req.Filename)
	s.requestIDs = append(s.requestIDs, r.Header.Get("X-Request-ID"))
	status, body, hook := s.processStatus, s.processBody, s.processHook
	s.mu.Unlock()

	if hook != nil {
		hook(req.Filename)
	}

	if body == "" {
		writeJSON(w, status, map[string]any{
			"inattentive_periods": DefaultPeriods,
			"plot_url":            s.PlotURL(),
		})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.plotRequests++
	s.mu.Unlock()

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(PNG)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
