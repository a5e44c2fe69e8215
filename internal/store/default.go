package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"call-insights-go/internal/logger"
)

var (
	defaultMu   sync.Mutex
	defaultOpts *Options
	defaultInst *Store
)

// Configure sets the options used the first time Default opens the store.
func Configure(opts Options) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	o := opts
	defaultOpts = &o
}

// Default returns the process-wide store, opening it on first use.
func Default() (*Store, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultInst != nil {
		return defaultInst, nil
	}
	if defaultOpts == nil {
		return nil, errors.New("store not configured")
	}
	s, err := Open(*defaultOpts)
	if err != nil {
		return nil, err
	}
	defaultInst = s
	return s, nil
}

// SetDefault replaces the process-wide store without closing the old one.
func SetDefault(s *Store) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultInst = s
}

// Close tears down the process-wide store; the next Default reopens it.
func Close() error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultInst == nil {
		return nil
	}
	err := defaultInst.Close()
	defaultInst = nil
	return err
}

// Sweeper periodically removes expired records.
type Sweeper struct {
	store    *Store
	interval time.Duration
	log      *logger.Logger
	onSweep  func(removed int64, err error)
}

func NewSweeper(s *Store, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Sweeper{store: s, interval: interval, log: log.Component("sweeper")}
}

// OnSweep registers a callback invoked after every pass.
func (w *Sweeper) OnSweep(fn func(removed int64, err error)) { w.onSweep = fn }

// Run sweeps once immediately and then every interval until ctx ends.
func (w *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		w.SweepOnce(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
	}
}

func (w *Sweeper) SweepOnce(ctx context.Context) int64 {
	n, err := w.store.SweepExpired(ctx)
	if err != nil {
		w.log.WithError(err).Warn("ttl sweep failed")
	} else if n > 0 {
		w.log.WithField("removed", n).Info("expired calls removed")
	}
	if w.onSweep != nil {
		w.onSweep(n, err)
	}
	return n
}
