// Package watch ingests documents dropped into an inbox directory.
// File events are debounced per path so partially written files settle
// before ingestion; processed files move to a done subdirectory and
// failures are marked in place.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/smartctx/sdch/internal/store"
)

// DefaultSettleWindow is how long a file must stay quiet before it is
// ingested. Editors and downloads write in bursts.
const DefaultSettleWindow = 500 * time.Millisecond

// DoneDirName is the subdirectory processed files move into.
const DoneDirName = "done"

// FailedSuffix marks files the pipeline rejected.
const FailedSuffix = ".failed"

// Ingester runs the intake pipeline on a local file.
type Ingester interface {
	IngestFile(ctx context.Context, path string) (*store.Document, error)
}

// Inbox watches one directory and feeds settled files to the ingester.
type Inbox struct {
	dir      string
	doneDir  string
	window   time.Duration
	ingester Ingester
	logger   *slog.Logger

	mu     sync.Mutex
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithSettleWindow overrides the debounce window.
func WithSettleWindow(window time.Duration) Option {
	return func(in *Inbox) {
		if window > 0 {
			in.window = window
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(in *Inbox) {
		if logger != nil {
			in.logger = logger
		}
	}
}

// New creates an Inbox over dir.
func New(dir string, ingester Ingester, opts ...Option) (*Inbox, error) {
	if dir == "" {
		return nil, fmt.Errorf("inbox directory is required")
	}
	if ingester == nil {
		return nil, fmt.Errorf("ingester is required")
	}
	in := &Inbox{
		dir:      dir,
		doneDir:  filepath.Join(dir, DoneDirName),
		window:   DefaultSettleWindow,
		ingester: ingester,
		logger:   slog.Default(),
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// Run watches the inbox until ctx is cancelled. Files already present
// at startup are processed first.
func (in *Inbox) Run(ctx context.Context) error {
	if err := os.MkdirAll(in.doneDir, 0o755); err != nil {
		return fmt.Errorf("creating inbox directories: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting inbox watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("watching %s: %w", in.dir, err)
	}

	in.sweep(ctx)
	in.logger.Info("inbox_watching", "dir", in.dir)

	for {
		select {
		case <-ctx.Done():
			in.drainTimers()
			in.wg.Wait()
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !in.eligible(event.Name) {
				continue
			}
			in.schedule(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn("inbox_watch_error", "error", err)
		}
	}
}

// sweep processes files already sitting in the inbox.
func (in *Inbox) sweep(ctx context.Context) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		in.logger.Warn("inbox_sweep_failed", "error", err)
		return
	}
	for _, entry := range entries {
		path := filepath.Join(in.dir, entry.Name())
		if entry.IsDir() || !in.eligible(path) {
			continue
		}
		in.schedule(ctx, path)
	}
}

// eligible filters out dotfiles, failure markers, and the done
// directory. Subdirectories are not watched.
func (in *Inbox) eligible(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, FailedSuffix) {
		return false
	}
	return filepath.Dir(path) == filepath.Clean(in.dir)
}

// schedule (re)starts the settle timer for a path. Each new event
// pushes ingestion back by the full window.
func (in *Inbox) schedule(ctx context.Context, path string) {
	in.mu.Lock()
	defer in.mu.Unlock()

	if timer, ok := in.timers[path]; ok {
		timer.Reset(in.window)
		return
	}
	in.timers[path] = time.AfterFunc(in.window, func() {
		in.mu.Lock()
		delete(in.timers, path)
		in.mu.Unlock()

		in.wg.Add(1)
		defer in.wg.Done()
		in.process(ctx, path)
	})
}

// drainTimers stops all pending settle timers.
func (in *Inbox) drainTimers() {
	in.mu.Lock()
	defer in.mu.Unlock()
	for path, timer := range in.timers {
		timer.Stop()
		delete(in.timers, path)
	}
}

// process ingests one settled file and files it by outcome.
func (in *Inbox) process(ctx context.Context, path string) {
	if ctx.Err() != nil {
		return
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		// Gone before the timer fired, or something unexpected.
		return
	}

	doc, err := in.ingester.IngestFile(ctx, path)
	if err != nil {
		in.logger.Warn("inbox_ingest_failed", "path", path, "error", err)
		if renameErr := os.Rename(path, path+FailedSuffix); renameErr != nil && !errors.Is(renameErr, fs.ErrNotExist) {
			in.logger.Warn("inbox_mark_failed", "path", path, "error", renameErr)
		}
		return
	}

	dest := filepath.Join(in.doneDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		in.logger.Warn("inbox_move_failed", "path", path, "error", err)
	}
	in.logger.Info("inbox_ingested", "path", path, "doc_id", doc.ID, "tier", doc.Tier)
}
