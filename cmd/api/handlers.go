package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"call-insights-go/internal/actionable"
	"call-insights-go/internal/aggregator"
	"call-insights-go/internal/app"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/pipeline"
	"call-insights-go/internal/store"
	"call-insights-go/internal/types"
)

const (
	maxUploadBytes = 200 << 20
	defaultLimit   = 50
	maxLimit       = 500
	xlsxType       = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type server struct {
	app      *app.App
	log      *logger.Logger
	gatherer prometheus.Gatherer
	now      func() time.Time
}

func newServer(a *app.App, gatherer prometheus.Gatherer) *server {
	return &server{app: a, log: a.Log.Component("http"), gatherer: gatherer, now: time.Now}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("POST /process-audio", s.processAudio)
	mux.HandleFunc("GET /stats/summary", s.statsSummary)
	mux.HandleFunc("GET /stats/weekly", s.statsWeekly)
	mux.HandleFunc("GET /calls", s.listCalls)
	mux.HandleFunc("GET /calls/{call_id}", s.getCall)
	mux.HandleFunc("GET /calls/topic/{topic}", s.callsByTopic)

	mux.HandleFunc("GET /download/overall", s.download(func() string { return s.app.Exporter.OverallPath() }, "overall_calls.xlsx"))
	mux.HandleFunc("GET /download/weekly-calls", s.download(func() string { return s.app.Exporter.WeeklyPath(s.now()) }, "weekly_calls.xlsx"))
	mux.HandleFunc("GET /download/weekly-sales", s.download(func() string { return s.app.Exporter.WeeklySalesPath(s.now()) }, "weekly_sales.xlsx"))

	return s.withCORS(s.withLogging(mux))
}

func (s *server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithRequest(r).WithField("duration_ms", time.Since(start).Milliseconds()).Info("request served")
	})
}

func (s *server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) processAudio(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "process-audio")
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, hdr, err := r.FormFile("file")
	if err != nil {
		reqLog.WithError(err).Warn("missing upload")
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	dir := s.app.Config.UploadDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	tmp := filepath.Join(dir, uuid.NewString()+strings.ToLower(filepath.Ext(hdr.Filename)))
	if err := saveUpload(tmp, file); err != nil {
		reqLog.WithError(err).Error("saving upload failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer os.Remove(tmp)

	rec, err := s.app.Service.Process(r.Context(), pipeline.Upload{
		Path:       tmp,
		Filename:   hdr.Filename,
		CustomerID: r.FormValue("customer_id"),
		CallID:     r.FormValue("call_id"),
	})
	if err != nil {
		reqLog.WithError(err).Error("processing failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"call_id":   rec.CallID,
		"sentiment": rec.Sentiment,
		"intents":   rec.Intents,
		"summary":   rec.Summary,
		"converted": rec.Converted,
		"sales":     rec.SalesCall,
	})
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return err
	}
	return dst.Close()
}

func (s *server) statsSummary(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Engine.Overall(r.Context())
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type weeklyResponse struct {
	Period string `json:"period"`
	aggregator.Weekly
	ActionCard actionable.ActionCard `json:"action_card"`
}

func (s *server) statsWeekly(w http.ResponseWriter, r *http.Request) {
	wk, err := s.app.Engine.Weekly(r.Context(), s.now())
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, weeklyResponse{
		Period:     "current_week",
		Weekly:     wk,
		ActionCard: actionable.Generate(wk),
	})
}

func (s *server) listCalls(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLimit)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	skip, err := queryInt(r, "skip", 0)
	if err != nil || skip < 0 {
		writeError(w, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}
	if limit == 0 || limit > maxLimit {
		limit = maxLimit
	}
	calls, err := s.app.Store.List(r.Context(), store.Page{
		Since: aggregator.StartOfWeek(s.now()),
		Limit: limit,
		Skip:  skip,
	})
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calls)
}

func (s *server) getCall(w http.ResponseWriter, r *http.Request) {
	rec, err := s.app.Store.Get(r.Context(), r.PathValue("call_id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Call not found")
		return
	}
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) callsByTopic(w http.ResponseWriter, r *http.Request) {
	topic := r.PathValue("topic")
	calls, err := s.app.Store.ListByTopic(r.Context(), topic, aggregator.StartOfWeek(s.now()))
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Topic string             `json:"topic"`
		Count int                `json:"count"`
		Calls []types.CallRecord `json:"calls"`
	}{topic, len(calls), calls})
}

func (s *server) download(path func() string, name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := path()
		if _, err := os.Stat(p); err != nil {
			writeError(w, http.StatusNotFound, "report not available yet")
			return
		}
		w.Header().Set("Content-Type", xlsxType)
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		http.ServeFile(w, r, p)
	}
}

func (s *server) internal(w http.ResponseWriter, r *http.Request, err error) {
	s.log.WithRequest(r).WithError(err).Error("request failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
