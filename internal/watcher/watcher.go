// Package watcher ingests documents dropped into a local directory.
//
// The input directory is scanned on a fixed interval; filesystem events
// only trigger an earlier scan, so behavior is identical on filesystems
// where events are unreliable. Every picked-up file ends in the
// processed or the error directory, never deleted, never left behind.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/config"
)

// Ingestor runs a synchronous ingestion for one document.
type Ingestor interface {
	Ingest(ctx context.Context, filename string, content []byte) error
}

// Watcher polls a directory and feeds new files to the Ingestor.
type Watcher struct {
	cfg      config.WatcherConfig
	ingestor Ingestor
	pool     *ants.Pool
	logger   *zap.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// New creates a Watcher. Per-file work runs on a pool of
// cfg.MaxConcurrent workers, independent of the orchestrator's own
// concurrency limit.
func New(cfg config.WatcherConfig, ingestor Ingestor, logger *zap.Logger) (*Watcher, error) {
	if ingestor == nil {
		return nil, errors.New("ingestor is required")
	}
	if cfg.InputDir == "" || cfg.ProcessedDir == "" || cfg.ErrorDir == "" {
		return nil, errors.New("input, processed and error directories are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := ants.NewPool(cfg.MaxConcurrent)
	if err != nil {
		return nil, fmt.Errorf("creating watcher pool: %w", err)
	}
	return &Watcher{
		cfg:      cfg,
		ingestor: ingestor,
		pool:     pool,
		logger:   logger,
		inFlight: make(map[string]struct{}),
	}, nil
}

// Run creates the watched directories and scans until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	for _, dir := range []string{w.cfg.InputDir, w.cfg.ProcessedDir, w.cfg.ErrorDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %q: %w", dir, err)
		}
	}

	events := make(chan struct{}, 1)
	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Warn("filesystem notifications unavailable, polling only", zap.Error(err))
	} else {
		defer notifier.Close()
		if err := notifier.Add(w.cfg.InputDir); err != nil {
			w.logger.Warn("watching input directory failed, polling only", zap.Error(err))
		} else {
			go forwardEvents(notifier, events)
		}
	}

	w.logger.Info("watcher started",
		zap.String("input_dir", w.cfg.InputDir),
		zap.Duration("interval", w.cfg.Interval),
		zap.Int("max_concurrent", w.cfg.MaxConcurrent))

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.scan(ctx)
	for {
		select {
		case <-ctx.Done():
			w.pool.Release()
			return ctx.Err()
		case <-ticker.C:
			w.scan(ctx)
		case <-events:
			w.scan(ctx)
		}
	}
}

// forwardEvents collapses bursts of filesystem events into scan nudges.
func forwardEvents(notifier *fsnotify.Watcher, nudge chan<- struct{}) {
	for {
		select {
		case ev, ok := <-notifier.Events:
			if !ok {
				return
			}
			if ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Rename) {
				select {
				case nudge <- struct{}{}:
				default:
				}
			}
		case _, ok := <-notifier.Errors:
			if !ok {
				return
			}
		}
	}
}

// scan picks up every acceptable file not already being processed.
func (w *Watcher) scan(ctx context.Context) {
	entries, err := os.ReadDir(w.cfg.InputDir)
	if err != nil {
		w.logger.Error("reading input directory", zap.Error(err))
		return
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !w.cfg.AcceptsExtension(name) {
			w.logger.Debug("skipping file with unaccepted extension", zap.String("filename", name))
			continue
		}
		if !w.claim(name) {
			continue
		}

		path := filepath.Join(w.cfg.InputDir, name)
		if err := w.pool.Submit(func() {
			defer w.release(name)
			w.process(ctx, path, name)
		}); err != nil {
			w.release(name)
			w.logger.Error("submitting file to pool", zap.String("filename", name), zap.Error(err))
		}
	}
}

func (w *Watcher) claim(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.inFlight[name]; busy {
		return false
	}
	w.inFlight[name] = struct{}{}
	return true
}

func (w *Watcher) release(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, name)
}

// process ingests one file and relocates it according to the outcome.
func (w *Watcher) process(ctx context.Context, path, name string) {
	content, err := os.ReadFile(path)
	if err != nil {
		w.logger.Error("reading file", zap.String("filename", name), zap.Error(err))
		w.moveTo(path, name, w.cfg.ErrorDir)
		return
	}

	if err := w.ingestor.Ingest(ctx, name, content); err != nil {
		w.logger.Warn("ingestion failed, moving to error directory",
			zap.String("filename", name), zap.Error(err))
		w.moveTo(path, name, w.cfg.ErrorDir)
		return
	}

	w.logger.Info("file ingested", zap.String("filename", name))
	w.moveTo(path, name, w.cfg.ProcessedDir)
}

// moveTo relocates the file, suffixing a timestamp when the destination
// already holds a file of the same name.
func (w *Watcher) moveTo(path, name, dir string) {
	dest := filepath.Join(dir, name)
	if _, err := os.Stat(dest); err == nil {
		ext := filepath.Ext(name)
		base := name[:len(name)-len(ext)]
		dest = filepath.Join(dir, fmt.Sprintf("%s.%d%s", base, time.Now().UnixMilli(), ext))
	}
	if err := os.Rename(path, dest); err != nil {
		w.logger.Error("moving file",
			zap.String("from", path),
			zap.String("to", dest),
			zap.Error(err))
	}
}
