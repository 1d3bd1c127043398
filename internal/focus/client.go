// Package focus implements the EduFocus upload/process exchange: a CSV file is
// uploaded to the analysis server, processed by name, and the returned
// inattentive periods are parsed into structured time ranges.
package focus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/kamilpajak/edufocus/pkg/periods"
)

// ContentTypeCSV is the only content kind the client uploads.
const ContentTypeCSV = "text/csv"

// Defaults for the server endpoints.
const (
	DefaultUploadPath  = "/predict"
	DefaultProcessPath = "/process"
	DefaultTimeout     = 60 * time.Second
)

// SelectedFile is a locally chosen CSV document.
type SelectedFile struct {
	Path        string // location handle
	Name        string // display name, also sent as the upload filename
	ContentType string
}

// Result is a successful analysis: parsed periods in response order and an
// optional attention graph URL.
type Result struct {
	Periods   []periods.Period `json:"periods"`
	PlotURL   string           `json:"plot_url,omitempty"`
	RequestID string           `json:"request_id"`
}

// HasPlot reports whether the server returned an attention graph.
func (r *Result) HasPlot() bool {
	return r != nil && r.PlotURL != ""
}

// Config configures a Client.
type Config struct {
	BaseURL     string
	UploadPath  string
	ProcessPath string
	Timeout     time.Duration
	HTTPClient  *http.Client // overrides Timeout when set
	Logger      *log.Logger
	Emitter     ProgressEmitter
}

// Client performs the two-call upload/process exchange.
type Client struct {
	baseURL     string
	uploadPath  string
	processPath string
	httpClient  *http.Client
	logger      *log.Logger
	emitter     ProgressEmitter
}

// NewClient creates a client for the analysis server at cfg.BaseURL.
func NewClient(cfg Config) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		uploadPath:  cfg.UploadPath,
		processPath: cfg.ProcessPath,
		httpClient:  cfg.HTTPClient,
		logger:      cfg.Logger,
		emitter:     cfg.Emitter,
	}
	if c.uploadPath == "" {
		c.uploadPath = DefaultUploadPath
	}
	if c.processPath == "" {
		c.processPath = DefaultProcessPath
	}
	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	if c.logger == nil {
		c.logger = log.New(io.Discard)
	}
	return c
}

// WithEmitter returns a shallow copy of the client reporting progress to e.
func (c *Client) WithEmitter(e ProgressEmitter) *Client {
	cp := *c
	cp.emitter = e
	return &cp
}

// BaseURL returns the analysis server base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// processResponse is the body of a successful /process call.
type processResponse struct {
	InattentivePeriods   []string    `json:"inattentive_periods"`
	InattentiveDurations [][]float64 `json:"inattentive_durations"`
	PlotURL              string      `json:"plot_url"`
}

// Analyze uploads file, asks the server to process it and parses the result.
// It makes exactly one upload and one process attempt; the process call is
// only made after a successful upload.
func (c *Client) Analyze(ctx context.Context, file *SelectedFile) (*Result, error) {
	if !isSelected(file) {
		return nil, ErrNoFileSelected
	}

	requestID := uuid.NewString()
	logger := c.logger.With("request_id", requestID, "file", file.Name)

	c.emit(ProgressEvent{Type: EventUpload, RequestID: requestID, Message: fmt.Sprintf("Uploading %s...", file.Name)})
	logger.Debug("uploading file", "url", c.baseURL+c.uploadPath)
	if err := c.upload(ctx, requestID, file); err != nil {
		logger.Warn("upload failed", "err", err)
		c.emitError(requestID, err)
		return nil, err
	}

	c.emit(ProgressEvent{Type: EventProcess, RequestID: requestID, Message: "Processing..."})
	logger.Debug("requesting processing", "url", c.baseURL+c.processPath)
	body, err := c.process(ctx, requestID, file.Name)
	if err != nil {
		logger.Warn("processing failed", "err", err)
		c.emitError(requestID, err)
		return nil, err
	}

	result, dropped, err := parseProcessResponse(body)
	if err != nil {
		logger.Warn("unreadable processing response", "err", err)
		c.emitError(requestID, err)
		return nil, err
	}
	result.RequestID = requestID
	if dropped > 0 {
		logger.Debug("skipped unrecognised period lines", "dropped", dropped)
	}

	c.emit(ProgressEvent{Type: EventParse, RequestID: requestID, Message: fmt.Sprintf("Found %d inattentive periods", len(result.Periods))})
	logger.Info("analysis complete", "periods", len(result.Periods), "plot", result.PlotURL != "")
	c.emit(ProgressEvent{Type: EventDone, RequestID: requestID, Result: result})
	return result, nil
}

func (c *Client) emitError(requestID string, err error) {
	c.emit(ProgressEvent{Type: EventError, RequestID: requestID, Kind: KindOf(err), Message: UserMessage(err)})
}

func isSelected(file *SelectedFile) bool {
	if file == nil || file.Path == "" || file.Name == "" {
		return false
	}
	return file.ContentType == "" || file.ContentType == ContentTypeCSV
}

func (c *Client) upload(ctx context.Context, requestID string, file *SelectedFile) error {
	body, contentType, err := multipartBody(file)
	if err != nil {
		return &Error{Kind: KindUpload, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+c.uploadPath, body)
	if err != nil {
		return &Error{Kind: KindUpload, Err: err}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindUpload, Err: err}
	}
	defer resp.Body.Close()

	// The upload response body is not interpreted beyond its error message.
	respBody, _ := io.ReadAll(resp.Body)
	if !isSuccess(resp.StatusCode) {
		return &Error{Kind: KindUpload, StatusCode: resp.StatusCode, Message: serverMessage(respBody)}
	}
	return nil
}

// multipartBody builds a form with a single "file" part carrying the CSV bytes.
func multipartBody(file *SelectedFile) (*bytes.Buffer, string, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(file.Name)))
	h.Set("Content-Type", ContentTypeCSV)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("failed to read %s: %w", file.Name, err)
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func (c *Client) process(ctx context.Context, requestID, filename string) ([]byte, error) {
	jsonBody, err := json.Marshal(map[string]string{"filename": filename})
	if err != nil {
		return nil, &Error{Kind: KindProcessing, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+c.processPath, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, &Error{Kind: KindProcessing, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindProcessing, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindProcessing, StatusCode: resp.StatusCode, Err: err}
	}
	if !isSuccess(resp.StatusCode) {
		return nil, &Error{Kind: KindProcessing, StatusCode: resp.StatusCode, Message: serverMessage(body)}
	}
	return body, nil
}

// parseProcessResponse decodes the processing body. The textual
// inattentive_periods field wins; inattentive_durations pairs are used only
// when it is absent.
func parseProcessResponse(body []byte) (*Result, int, error) {
	var resp *processResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, 0, &Error{Kind: KindMalformedResponse, Err: err}
	}
	if resp == nil {
		return nil, 0, &Error{Kind: KindMalformedResponse, Message: "empty body"}
	}

	var (
		parsed  []periods.Period
		dropped int
	)
	if resp.InattentivePeriods != nil || resp.InattentiveDurations == nil {
		parsed, dropped = periods.ParseAll(resp.InattentivePeriods)
	} else {
		parsed, dropped = periods.FromPairs(resp.InattentiveDurations)
	}

	return &Result{Periods: parsed, PlotURL: resp.PlotURL}, dropped, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// serverMessage extracts the "error" field the server sends on failure.
func serverMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil {
		return e.Error
	}
	return ""
}
