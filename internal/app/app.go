// Package app wires configuration into the running components shared by
// the api server and the callctl CLI.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"call-insights-go/internal/aggregator"
	"call-insights-go/internal/classifier"
	"call-insights-go/internal/config"
	"call-insights-go/internal/lexicon"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/metrics"
	"call-insights-go/internal/pipeline"
	"call-insights-go/internal/processor"
	"call-insights-go/internal/report"
	"call-insights-go/internal/store"
	"call-insights-go/internal/summarizer"
	"call-insights-go/internal/transcription"
)

type App struct {
	Config   config.Config
	Log      *logger.Logger
	Store    *store.Store
	Engine   *aggregator.Engine
	Exporter *report.Exporter
	Service  *pipeline.Service
	Sweeper  *store.Sweeper
	Metrics  *metrics.Pipeline
}

// New opens the process-wide store and builds the pipeline around it.
func New(cfg config.Config, log *logger.Logger, reg prometheus.Registerer) (*App, error) {
	if log == nil {
		log = logger.Discard()
	}
	tables, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		return nil, err
	}

	store.Configure(store.Options{Dialect: cfg.DatabaseType, DSN: cfg.DatabaseDSN, Log: log})
	st, err := store.Default()
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	m := metrics.New(reg)
	exporter := report.NewExporter(cfg.ResultsDir, log)
	exporter.OnFailure = func(sink string, _ error) { m.SinkFailed(sink) }

	builder := processor.NewBuilder(processor.Options{
		Transcriber:   transcription.NewSafe(NewTranscriber(cfg, log), log),
		Normalizer:    lexicon.NewNormalizer(tables.Terms),
		Classifier:    classifier.New(tables.Intents, tables.ConversionTerms),
		Summarizer:    summarizer.New(NewGenerator(cfg), cfg.SummarizerTimeout, log),
		TranscriptDir: cfg.TranscriptDir,
		Log:           log,
	})

	svc := pipeline.NewService(pipeline.Options{
		Builder:  builder,
		Store:    st,
		Exporter: exporter,
		Pool:     pipeline.NewPool(cfg.WorkerCount, cfg.QueueSize),
		Metrics:  m,
		TTL:      cfg.RecordTTL,
		Log:      log,
	})

	sweeper := store.NewSweeper(st, cfg.TTLSweepInterval, log)
	sweeper.OnSweep(func(n int64, _ error) { m.Expired(n) })

	return &App{
		Config:   cfg,
		Log:      log,
		Store:    st,
		Engine:   aggregator.New(st),
		Exporter: exporter,
		Service:  svc,
		Sweeper:  sweeper,
		Metrics:  m,
	}, nil
}

// Close drains the worker pool and closes the store.
func (a *App) Close() error {
	a.Service.Close()
	return store.Close()
}

func NewTranscriber(cfg config.Config, log *logger.Logger) transcription.Transcriber {
	switch cfg.TranscribeBackend {
	case config.BackendMock:
		return transcription.Mock{}
	case config.BackendHTTP:
		return transcription.NewHTTP(cfg.TranscribeURL, log)
	default:
		return &transcription.Command{Args: cfg.TranscribeCommand, Timeout: cfg.TranscribeTimeout}
	}
}

// NewGenerator returns nil for the none backend, leaving only the
// extractive summary.
func NewGenerator(cfg config.Config) summarizer.Generator {
	switch cfg.SummarizerBackend {
	case config.BackendNone:
		return nil
	case config.BackendGateway:
		return summarizer.NewGatewayGenerator(cfg.LLMGatewayURL, cfg.LLMAPIKey, cfg.LLMModel)
	default:
		return summarizer.NewCommandGenerator(cfg.SummarizerCommand)
	}
}
