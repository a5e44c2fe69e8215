package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"call-insights-go/internal/app"
	"call-insights-go/internal/config"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/watch"
)

func main() {
	cfg := config.Load()

	log := logger.New()
	log.WithField("service", "call-insights-go").Info("starting service")

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := app.New(cfg, log, reg)
	if err != nil {
		log.WithError(err).Fatal("failed to initialise")
	}
	log.WithField("database", cfg.DatabaseType).
		WithField("summarizer", cfg.SummarizerBackend).
		WithField("transcriber", cfg.TranscribeBackend).
		WithField("workers", cfg.WorkerCount).
		Info("pipeline ready")

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      newServer(a, reg).routes(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return a.Sweeper.Run(gctx)
	})
	if cfg.EnableWatcher && cfg.WatchDir != "" {
		w := watch.New(cfg.WatchDir, a.Service, log)
		g.Go(func() error {
			if err := w.Backfill(gctx); err != nil {
				log.WithError(err).Warn("inbox backfill failed")
			}
			return w.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server terminated")
	}
	if err := a.Close(); err != nil {
		log.WithError(err).Warn("shutdown incomplete")
	}
	log.Info("stopped")
}
