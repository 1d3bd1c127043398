package focus

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kamilpajak/edufocus/internal/focustest"
	"github.com/kamilpajak/edufocus/pkg/periods"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = "Fp1,Fp2,F3\n0.1,0.2,0.3\n0.4,0.5,0.6\n"

func writeCSV(t *testing.T, name string) *SelectedFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0644))
	return &SelectedFile{Path: path, Name: name, ContentType: ContentTypeCSV}
}

type recordingEmitter struct {
	events []ProgressEvent
}

func (r *recordingEmitter) Emit(ev ProgressEvent) {
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) types() []string {
	var out []string
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

func TestAnalyze_Success(t *testing.T) {
	srv := focustest.NewServer(t)
	emitter := &recordingEmitter{}
	c := NewClient(Config{BaseURL: srv.URL, Emitter: emitter})
	file := writeCSV(t, "class-3b.csv")

	result, err := c.Analyze(context.Background(), file)
	require.NoError(t, err)

	assert.Equal(t, []periods.Period{{Start: 12.5, End: 18}, {Start: 30, End: 41.5}}, result.Periods)
	assert.Equal(t, srv.PlotURL(), result.PlotURL)
	assert.True(t, result.HasPlot())
	assert.NotEmpty(t, result.RequestID)

	uploads := srv.Uploads()
	require.Len(t, uploads, 1)
	assert.Equal(t, "class-3b.csv", uploads[0].Filename)
	assert.Equal(t, "text/csv", uploads[0].ContentType)
	assert.Equal(t, sampleCSV, string(uploads[0].Content))
	assert.Equal(t, []string{"class-3b.csv"}, srv.Processed())

	ids := srv.RequestIDs()
	require.Len(t, ids, 2)
	assert.Equal(t, result.RequestID, ids[0])
	assert.Equal(t, ids[0], ids[1])

	assert.Equal(t, []string{EventUpload, EventProcess, EventParse, EventDone}, emitter.types())
}

func TestAnalyze_NoFileSelected(t *testing.T) {
	srv := focustest.NewServer(t)
	c := NewClient(Config{BaseURL: srv.URL})

	for _, file := range []*SelectedFile{
		nil,
		{},
		{Path: "/tmp/x.csv"},
		{Path: "/tmp/x.json", Name: "x.json", ContentType: "application/json"},
	} {
		result, err := c.Analyze(context.Background(), file)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, ErrNoFileSelected)
	}
	assert.Zero(t, srv.Requests())
}

func TestAnalyze_UploadFailureSkipsProcessing(t *testing.T) {
	srv := focustest.NewServer(t)
	srv.SetUploadStatus(http.StatusInternalServerError)
	emitter := &recordingEmitter{}
	c := NewClient(Config{BaseURL: srv.URL, Emitter: emitter})

	_, err := c.Analyze(context.Background(), writeCSV(t, "a.csv"))
	require.Error(t, err)

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindUpload, fe.Kind)
	assert.Equal(t, http.StatusInternalServerError, fe.StatusCode)
	assert.Equal(t, "upload rejected", fe.Message)
	assert.Len(t, srv.Uploads(), 1)
	assert.Empty(t, srv.Processed())
	assert.Equal(t, []string{EventUpload, EventError}, emitter.types())
}

func TestAnalyze_UploadTransportError(t *testing.T) {
	srv := focustest.NewServer(t)
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url, Timeout: time.Second})
	_, err := c.Analyze(context.Background(), writeCSV(t, "a.csv"))
	assert.Equal(t, KindUpload, KindOf(err))
}

func TestAnalyze_UploadTimeout(t *testing.T) {
	var mu sync.Mutex
	processCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("POST /predict", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	mux.HandleFunc("POST /process", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		processCalls++
		mu.Unlock()
	})
	url := newTestServer(t, mux)

	c := NewClient(Config{BaseURL: url, Timeout: 50 * time.Millisecond})
	_, err := c.Analyze(context.Background(), writeCSV(t, "a.csv"))

	require.Error(t, err)
	assert.Equal(t, KindUpload, KindOf(err))
	assert.Equal(t, "Failed to upload file.", UserMessage(err))
	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, processCalls)
}

func TestAnalyze_UnreadableFile(t *testing.T) {
	srv := focustest.NewServer(t)
	c := NewClient(Config{BaseURL: srv.URL})

	file := &SelectedFile{Path: filepath.Join(t.TempDir(), "missing.csv"), Name: "missing.csv"}
	_, err := c.Analyze(context.Background(), file)
	assert.Equal(t, KindUpload, KindOf(err))
	assert.Zero(t, srv.Requests())
}

func TestAnalyze_ProcessingFailure(t *testing.T) {
	srv := focustest.NewServer(t)
	srv.SetProcessResponse(http.StatusNotFound, `{"error": "File not found"}`)
	c := NewClient(Config{BaseURL: srv.URL})

	_, err := c.Analyze(context.Background(), writeCSV(t, "a.csv"))

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindProcessing, fe.Kind)
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	assert.Equal(t, "File not found", fe.Message)
	assert.Equal(t, "Failed to process file.", UserMessage(err))
}

func TestAnalyze_ProcessingTransportError(t *testing.T) {
	srv := focustest.NewServer(t)
	srv.SetProcessHook(func(string) {
		panic(http.ErrAbortHandler)
	})
	emitter := &recordingEmitter{}
	c := NewClient(Config{BaseURL: srv.URL, Emitter: emitter})

	_, err := c.Analyze(context.Background(), writeCSV(t, "a.csv"))

	var fe *Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, KindProcessing, fe.Kind)
	assert.Zero(t, fe.StatusCode)
	assert.Equal(t, "Failed to process file.", UserMessage(err))
	assert.Len(t, srv.Uploads(), 1)
	assert.Equal(t, []string{"a.csv"}, srv.Processed())
	assert.Equal(t, []string{EventUpload, EventProcess, EventError}, emitter.types())
}

func TestAnalyze_DropsUnmatchedLines(t *testing.T) {
	srv := focustest.NewServer(t)
	srv.SetProcessResponse(http.StatusOK, `{"inattentive_periods": ["From 1 sec to 2 sec", "garbage", "From 3 sec to 4 sec"]}`)
	c := NewClient(Config{BaseURL: srv.URL})

	result, err := c.Analyze(context.Background(), writeCSV(t, "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, []periods.Period{{Start: 1, End: 2}, {Start: 3, End: 4}}, result.Periods)
	assert.Empty(t, result.PlotURL)
	assert.False(t, result.HasPlot())
}

func TestAnalyze_EmptyOrAbsentPeriods(t *testing.T) {
	for _, body := range []string{`{}`, `{"inattentive_periods": []}`, `{"inattentive_periods": null}`, `{"plot_url": ""}`} {
		t.Run(body, func(t *testing.T) {
			srv := focustest.NewServer(t)
			srv.SetProcessResponse(http.StatusOK, body)
			c := NewClient(Config{BaseURL: srv.URL})

			result, err := c.Analyze(context.Background(), writeCSV(t, "a.csv"))
			require.NoError(t, err)
			assert.Empty(t, result.Periods)
			assert.Empty(t, result.PlotURL)
		})
	}
}

func TestAnalyze_StructuredDurations(t *testing.T) {
	srv := focustest.NewServer(t)
	srv.SetProcessResponse(http.StatusOK, `{"inattentive_durations": [[0, 2.5], [6, 9]]}`)
	c := NewClient(Config{BaseURL: srv.URL})

	result, err := c.Analyze(context.Background(), writeCSV(t, "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, []periods.Period{{Start: 0, End: 2.5}, {Start: 6, End: 9}}, result.Periods)
}

func TestAnalyze_TextualPeriodsWinOverDurations(t *testing.T) {
	srv := focustest.NewServer(t)
	srv.SetProcessResponse(http.StatusOK, `{"inattentive_periods": ["From 1 sec to 2 sec"], "inattentive_durations": [[6, 9]]}`)
	c := NewClient(Config{BaseURL: srv.URL})

	result, err := c.Analyze(context.Background(), writeCSV(t, "a.csv"))
	require.NoError(t, err)
	assert.Equal(t, []periods.Period{{Start: 1, End: 2}}, result.Periods)
}

func TestAnalyze_MalformedResponse(t *testing.T) {
	for _, body := range []string{`not json`, `null`, `[]`, `{"inattentive_periods": "From 1 sec to 2 sec"}`} {
		t.Run(body, func(t *testing.T) {
			srv := focustest.NewServer(t)
			srv.SetProcessResponse(http.StatusOK, body)
			c := NewClient(Config{BaseURL: srv.URL})

			result, err := c.Analyze(context.Background(), writeCSV(t, "a.csv"))
			assert.Nil(t, result)
			assert.Equal(t, KindMalformedResponse, KindOf(err))
		})
	}
}

func TestAnalyze_Idempotent(t *testing.T) {
	srv := focustest.NewServer(t)
	c := NewClient(Config{BaseURL: srv.URL})
	file := writeCSV(t, "a.csv")

	first, err := c.Analyze(context.Background(), file)
	require.NoError(t, err)
	second, err := c.Analyze(context.Background(), file)
	require.NoError(t, err)

	assert.Equal(t, first.Periods, second.Periods)
	assert.Equal(t, first.PlotURL, second.PlotURL)
	assert.NotEqual(t, first.RequestID, second.RequestID)
}

func TestAnalyze_CustomPaths(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		_, _ = w.Write([]byte(`{}`))
	})
	ts := newTestServer(t, mux)

	c := NewClient(Config{BaseURL: ts + "/", UploadPath: "/v2/upload", ProcessPath: "/v2/process"})
	_, err := c.Analyze(context.Background(), writeCSV(t, "a.csv"))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/v2/upload", "/v2/process"}, paths)
}

func TestAnalyze_ContextCanceled(t *testing.T) {
	srv := focustest.NewServer(t)
	c := NewClient(Config{BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Analyze(ctx, writeCSV(t, "a.csv"))
	assert.Equal(t, KindUpload, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}
