package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"call-insights-go/internal/app"
	"call-insights-go/internal/config"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/transcription"
	"call-insights-go/internal/types"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv, _ := newTestServerConfig(t)
	return srv
}

func newTestServerConfig(t *testing.T) (*httptest.Server, config.Config) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		DatabaseType:      "sqlite",
		DatabaseDSN:       fmt.Sprintf("file:api_%d?mode=memory&cache=shared", time.Now().UnixNano()),
		RecordTTL:         30 * 24 * time.Hour,
		TTLSweepInterval:  time.Minute,
		TranscriptDir:     filepath.Join(dir, "transcripts"),
		ResultsDir:        filepath.Join(dir, "results"),
		UploadDir:         filepath.Join(dir, "uploads"),
		WorkerCount:       2,
		QueueSize:         4,
		SummarizerBackend: config.BackendNone,
		TranscribeBackend: config.BackendMock,
	}
	reg := prometheus.NewRegistry()
	a, err := app.New(cfg, logger.Discard(), reg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(newServer(a, reg).routes())
	t.Cleanup(srv.Close)
	return srv, cfg
}

func upload(t *testing.T, srv *httptest.Server, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "meeting.wav")
	require.NoError(t, err)
	_, _ = part.Write([]byte("RIFF-fake-audio"))
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())

	resp, err := http.Post(srv.URL+"/process-audio", w.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	return resp
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)
	resp := get(t, srv.URL+"/healthz")
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(b))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestProcessAudioNamesTranscriptAfterCall(t *testing.T) {
	srv, cfg := newTestServerConfig(t)

	var out struct {
		CallID string `json:"call_id"`
	}
	resp := upload(t, srv, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &out)

	saved, err := os.ReadFile(filepath.Join(cfg.TranscriptDir, out.CallID+".txt"))
	require.NoError(t, err)
	assert.Equal(t, transcription.MockTranscript, string(saved))

	entries, err := os.ReadDir(cfg.TranscriptDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	resp = upload(t, srv, map[string]string{"call_id": "call_777"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.FileExists(t, filepath.Join(cfg.TranscriptDir, "call_777.txt"))
}

func TestProcessAudioThenQuery(t *testing.T) {
	srv := newTestServer(t)

	resp := upload(t, srv, map[string]string{"customer_id": "cust-9"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out struct {
		Status    string   `json:"status"`
		CallID    string   `json:"call_id"`
		Sentiment string   `json:"sentiment"`
		Intents   []string `json:"intents"`
	}
	decode(t, resp, &out)
	assert.Equal(t, "ok", out.Status)
	assert.True(t, strings.HasPrefix(out.CallID, "call_"))
	assert.Equal(t, "negative", out.Sentiment)
	assert.Equal(t, []string{types.GeneralCall}, out.Intents)

	var rec types.CallRecord
	resp = get(t, srv.URL+"/calls/"+out.CallID)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &rec)
	assert.Equal(t, "cust-9", rec.CustomerID)
	assert.Contains(t, rec.Summary, "Call Purpose:")
	assert.True(t, rec.ExpiresAt.Equal(rec.CreatedAt.Add(30*24*time.Hour)))

	var calls []types.CallRecord
	resp = get(t, srv.URL+"/calls?limit=10&skip=0")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, resp, &calls)
	require.Len(t, calls, 1)

	var byTopic struct {
		Topic string             `json:"topic"`
		Count int                `json:"count"`
		Calls []types.CallRecord `json:"calls"`
	}
	decode(t, get(t, srv.URL+"/calls/topic/"+types.GeneralCall), &byTopic)
	assert.Equal(t, types.GeneralCall, byTopic.Topic)
	assert.Equal(t, 1, byTopic.Count)

	decode(t, get(t, srv.URL+"/calls/topic/billing"), &byTopic)
	assert.Zero(t, byTopic.Count)
	assert.Empty(t, byTopic.Calls)

	var weekly struct {
		Period         string             `json:"period"`
		TotalCalls     int64              `json:"total_calls"`
		PositiveCalls  int64              `json:"positive_calls"`
		ConversionRate float64            `json:"conversion_rate"`
		Topics         []types.TopicCount `json:"topics"`
		WeekStart      time.Time          `json:"week_start"`
		ActionCard     map[string]string  `json:"action_card"`
	}
	decode(t, get(t, srv.URL+"/stats/weekly"), &weekly)
	assert.Equal(t, "current_week", weekly.Period)
	assert.EqualValues(t, 1, weekly.TotalCalls)
	assert.Zero(t, weekly.ConversionRate)
	assert.Equal(t, []types.TopicCount{{Topic: types.GeneralCall, Count: 1}}, weekly.Topics)
	assert.Equal(t, time.Monday, weekly.WeekStart.Weekday())
	assert.NotEmpty(t, weekly.ActionCard["insight"])

	var summary types.Stats
	decode(t, get(t, srv.URL+"/stats/summary"), &summary)
	assert.EqualValues(t, 1, summary.TotalCalls)

	resp = get(t, srv.URL+"/download/overall")
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, xlsxType, resp.Header.Get("Content-Type"))

	resp = get(t, srv.URL+"/download/weekly-sales")
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = get(t, srv.URL+"/metrics")
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(b), `callinsights_uploads_total{status="ok"} 1`)
}

func TestProcessAudioReprocessSameID(t *testing.T) {
	srv := newTestServer(t)
	for i := 0; i < 2; i++ {
		resp := upload(t, srv, map[string]string{"call_id": "call_fixed"})
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}
	var calls []types.CallRecord
	decode(t, get(t, srv.URL+"/calls"), &calls)
	assert.Len(t, calls, 1)
}

func TestProcessAudioRequiresFile(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/process-audio", "text/plain", strings.NewReader("nope"))
	require.NoError(t, err)
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NotEmpty(t, body["detail"])
}

func TestGetCallNotFound(t *testing.T) {
	srv := newTestServer(t)
	resp := get(t, srv.URL+"/calls/call_missing")
	var body map[string]string
	decode(t, resp, &body)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Call not found", body["detail"])
}

func TestListCallsRejectsBadPaging(t *testing.T) {
	srv := newTestServer(t)
	for _, q := range []string{"limit=abc", "skip=-1"} {
		resp := get(t, srv.URL+"/calls?"+q)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestPreflight(t *testing.T) {
	srv := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/process-audio", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
