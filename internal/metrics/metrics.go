// Package metrics exposes pipeline health counters for Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	StatusOK          = "ok"
	StatusStoreFailed = "store_failed"
	StatusRejected    = "rejected"
)

// Pipeline groups the ingestion metrics. A nil *Pipeline is a no-op so
// components can run without a registry.
type Pipeline struct {
	uploads         *prometheus.CounterVec
	duration        prometheus.Histogram
	summaryTier     *prometheus.CounterVec
	transcribeFails prometheus.Counter
	sinkFailures    *prometheus.CounterVec
	expired         prometheus.Counter
}

// New registers the pipeline metrics on reg (DefaultRegisterer when nil).
func New(reg prometheus.Registerer) *Pipeline {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	p := &Pipeline{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callinsights_uploads_total",
			Help: "Processed uploads by outcome.",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "callinsights_pipeline_duration_seconds",
			Help:    "End-to-end pipeline latency per upload.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45, 60, 120, 300},
		}),
		summaryTier: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callinsights_summary_tier_total",
			Help: "Summaries by the tier that produced them.",
		}, []string{"tier"}),
		transcribeFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callinsights_transcription_failures_total",
			Help: "Transcriptions that degraded to an empty transcript.",
		}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "callinsights_report_sink_failures_total",
			Help: "Report rows that could not be appended, by sink.",
		}, []string{"sink"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "callinsights_expired_records_total",
			Help: "Records removed by the TTL sweeper.",
		}),
	}
	reg.MustRegister(p.uploads, p.duration, p.summaryTier, p.transcribeFails, p.sinkFailures, p.expired)
	return p
}

func (p *Pipeline) ObserveUpload(status string, d time.Duration) {
	if p == nil {
		return
	}
	p.uploads.WithLabelValues(status).Inc()
	p.duration.Observe(d.Seconds())
}

func (p *Pipeline) SummaryTier(tier string) {
	if p == nil {
		return
	}
	p.summaryTier.WithLabelValues(tier).Inc()
}

func (p *Pipeline) TranscriptionFailed() {
	if p == nil {
		return
	}
	p.transcribeFails.Inc()
}

func (p *Pipeline) SinkFailed(sink string) {
	if p == nil {
		return
	}
	p.sinkFailures.WithLabelValues(sink).Inc()
}

func (p *Pipeline) Expired(n int64) {
	if p == nil || n <= 0 {
		return
	}
	p.expired.Add(float64(n))
}
