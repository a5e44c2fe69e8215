// Package watch ingests audio files dropped into an inbox directory.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"call-insights-go/internal/logger"
	"call-insights-go/internal/pipeline"
	"call-insights-go/internal/types"
)

// ProcessedDir is the inbox subdirectory that ingested files are moved to.
const ProcessedDir = "processed"

type Processor interface {
	Process(ctx context.Context, up pipeline.Upload) (types.CallRecord, error)
}

// Watcher monitors a directory and processes new audio files.
type Watcher struct {
	dir  string
	proc Processor
	log  *logger.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	wg      sync.WaitGroup
}

func New(dir string, proc Processor, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.Discard()
	}
	return &Watcher{dir: dir, proc: proc, log: log.Component("watch"), pending: map[string]struct{}{}}
}

// IsAudio reports whether path has a supported audio extension.
func IsAudio(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3", ".wav", ".m4a", ".aac", ".flac", ".ogg":
		return true
	default:
		return false
	}
}

// Run blocks until ctx ends, then waits for in-flight files.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.log.WithField("dir", w.dir).Info("watching for audio")

	defer w.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && IsAudio(evt.Name) {
				w.dispatch(ctx, evt.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.WithError(err).Warn("watcher error")
		}
	}
}

// Backfill processes audio files already present in the directory. Files
// archived by an earlier run are not revisited.
func (w *Watcher) Backfill(ctx context.Context) error {
	entries, err := filepath.Glob(filepath.Join(w.dir, "*"))
	if err != nil {
		return err
	}
	for _, e := range entries {
		if IsAudio(e) {
			w.dispatch(ctx, e)
		}
	}
	return nil
}

func (w *Watcher) dispatch(ctx context.Context, path string) {
	w.mu.Lock()
	if _, busy := w.pending[path]; busy {
		w.mu.Unlock()
		return
	}
	w.pending[path] = struct{}{}
	w.mu.Unlock()

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer func() {
			w.mu.Lock()
			delete(w.pending, path)
			w.mu.Unlock()
		}()
		// rename events also fire for files moved out
		if _, err := os.Stat(path); err != nil {
			return
		}
		rec, err := w.proc.Process(ctx, pipeline.Upload{Path: path, Filename: filepath.Base(path)})
		if err != nil {
			w.log.WithError(err).WithField("path", path).Error("inbox file failed")
			return
		}
		log := w.log.WithCall(rec.CallID).WithField("path", path)
		if err := w.archive(path); err != nil {
			log.WithError(err).Warn("archiving inbox file failed")
			return
		}
		log.Info("inbox file processed")
	}()
}

// archive moves an ingested file out of the inbox so a restart does not
// ingest it again. Failed files stay put and are retried on the next backfill.
func (w *Watcher) archive(path string) error {
	dst := filepath.Join(w.dir, ProcessedDir)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(dst, filepath.Base(path)))
}
