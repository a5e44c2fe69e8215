// Package pipeline turns uploaded audio into stored call records on a
// bounded worker pool.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/metrics"
	"call-insights-go/internal/processor"
	"call-insights-go/internal/types"
)

var ErrStoreWrite = errors.New("store write failed")

// DefaultTTL is how long a record lives after it is written.
const DefaultTTL = 30 * 24 * time.Hour

type Builder interface {
	Build(ctx context.Context, audioPath, name string) processor.Result
	Analyze(ctx context.Context, transcript string) processor.Result
}

type Writer interface {
	Upsert(ctx context.Context, rec types.CallRecord) error
}

type Exporter interface {
	Export(row types.ReportRow) error
}

// Upload describes one call to ingest: an audio file, or a transcript
// that skips transcription. CallID is set when an existing record is
// being re-processed.
type Upload struct {
	Path       string
	Filename   string
	CustomerID string
	CallID     string
	Transcript string
}

type Options struct {
	Builder  Builder
	Store    Writer
	Exporter Exporter
	Pool     *Pool
	Metrics  *metrics.Pipeline
	TTL      time.Duration
	Log      *logger.Logger
	Now      func() time.Time
}

type Service struct {
	builder  Builder
	store    Writer
	exporter Exporter
	pool     *Pool
	metrics  *metrics.Pipeline
	ttl      time.Duration
	log      *logger.Logger
	now      func() time.Time

	idMu   sync.Mutex
	lastMs int64
}

func NewService(o Options) *Service {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Log == nil {
		o.Log = logger.Discard()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Pool == nil {
		o.Pool = NewPool(1, 1)
	}
	return &Service{
		builder:  o.Builder,
		store:    o.Store,
		exporter: o.Exporter,
		pool:     o.Pool,
		metrics:  o.Metrics,
		ttl:      o.TTL,
		log:      o.Log.Component("pipeline"),
		now:      o.Now,
	}
}

// Process runs transcription, analysis and the store write on a pool
// worker and returns once the record is stored or the write failed.
func (s *Service) Process(ctx context.Context, up Upload) (types.CallRecord, error) {
	start := time.Now()
	if up.Path == "" && strings.TrimSpace(up.Transcript) == "" {
		s.metrics.ObserveUpload(metrics.StatusRejected, time.Since(start))
		return types.CallRecord{}, errors.New("upload has no audio path or transcript")
	}

	var (
		rec      types.CallRecord
		storeErr error
	)
	err := s.pool.Submit(ctx, func(ctx context.Context) {
		rec, storeErr = s.run(ctx, up)
	})
	if err != nil {
		s.metrics.ObserveUpload(metrics.StatusRejected, time.Since(start))
		return types.CallRecord{}, err
	}
	if storeErr != nil {
		s.metrics.ObserveUpload(metrics.StatusStoreFailed, time.Since(start))
		return types.CallRecord{}, storeErr
	}
	s.metrics.ObserveUpload(metrics.StatusOK, time.Since(start))
	return rec, nil
}

func (s *Service) run(ctx context.Context, up Upload) (types.CallRecord, error) {
	callID := up.CallID
	if callID == "" {
		callID = s.nextID()
	}

	var res processor.Result
	if up.Path != "" {
		res = s.builder.Build(ctx, up.Path, callID)
	} else {
		res = s.builder.Analyze(ctx, up.Transcript)
	}
	if !res.Transcribed {
		s.metrics.TranscriptionFailed()
	}
	s.metrics.SummaryTier(string(res.Tier))

	rec := res.Record
	rec.CallID = callID
	rec.CustomerID = strings.TrimSpace(up.CustomerID)
	if rec.CustomerID == "" {
		rec.CustomerID = types.UnknownCustomer
	}
	rec.Intents = types.DedupeIntents(rec.Intents)
	if len(rec.Intents) == 0 {
		rec.Intents = []string{types.GeneralCall}
	}
	rec.SalesCall = types.IsSalesIntents(rec.Intents)
	rec.CreatedAt = s.now().UTC()
	rec.ExpiresAt = rec.CreatedAt.Add(s.ttl)

	log := s.log.WithCall(rec.CallID)
	if err := s.store.Upsert(ctx, rec); err != nil {
		log.WithError(err).Error("store write failed")
		return types.CallRecord{}, fmt.Errorf("%w: call %s: %v", ErrStoreWrite, rec.CallID, err)
	}

	if s.exporter != nil {
		filename := up.Filename
		if filename == "" && up.Path != "" {
			filename = filepath.Base(up.Path)
		}
		if err := s.exporter.Export(types.ReportRow{
			File:        filename,
			CallID:      rec.CallID,
			ProcessedAt: rec.CreatedAt,
			Summary:     rec.Summary,
			Sentiment:   rec.Sentiment,
			Intents:     rec.Intents,
			Converted:   rec.Converted,
			SalesCall:   rec.SalesCall,
		}); err != nil {
			log.WithError(err).Warn("report export incomplete")
		}
	}

	log.WithField("intents", rec.Intents).WithField("sentiment", rec.Sentiment).
		WithField("summary_tier", res.Tier).WithField("duration_ms", res.DurationMs).Info("call processed")
	return rec, nil
}

// nextID derives call_<unix-ms> from the clock, bumping by one when two
// uploads land in the same millisecond.
func (s *Service) nextID() string {
	s.idMu.Lock()
	defer s.idMu.Unlock()
	ms := s.now().UnixMilli()
	if ms <= s.lastMs {
		ms = s.lastMs + 1
	}
	s.lastMs = ms
	return fmt.Sprintf("call_%d", ms)
}

// Close stops the worker pool after queued uploads finish.
func (s *Service) Close() {
	s.pool.Close()
}
