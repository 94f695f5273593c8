// Package watch cleans raw fact sheet dumps dropped into a directory.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"factsheet/internal/factsheet"
	"factsheet/internal/htmltext"
	"factsheet/internal/logging"
)

// Watcher turns every settled *.txt, *.html or *.htm file in a directory
// into a <name>.json structured mapping next to it.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	dir         string
	logger      *zap.Logger
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// Stats tracks watcher activity.
type Stats struct {
	Processed     int
	Degraded      int
	Errors        int
	LastEventPath string
	LastOutput    string
}

// New creates a watcher for dir.
func New(dir string, logger *zap.Logger) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     watcher,
		dir:         dir,
		logger:      logging.For(logger, logging.CategoryWatch),
		debounceMap: make(map[string]time.Time),
		debounceDur: 300 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// SetDebounce changes how long a file must stay quiet before it is cleaned.
// Call before Start.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDur = d
}

// Start begins watching. It is non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("create watch dir: %w", err)
	}
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	// Stop waits on doneCh only once run has been started.
	w.running = true
	w.logger.Info("watching directory", zap.String("dir", w.dir))

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("error closing watcher", zap.Error(err))
	}
	w.logger.Info("watcher stopped")
}

// Done is closed when the event loop exits.
func (w *Watcher) Done() <-chan struct{} {
	return w.doneCh
}

// Stats returns a snapshot of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-ticker.C:
			w.processSettled()
		}
	}
}

// Accepts reports whether path is a raw dump the watcher cleans.
func Accepts(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".html", ".htm":
		return true
	}
	return false
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !Accepts(event.Name) {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	w.mu.Lock()
	w.debounceMap[event.Name] = time.Now()
	w.stats.LastEventPath = event.Name
	w.mu.Unlock()
}

func (w *Watcher) processSettled() {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, at := range w.debounceMap {
		if now.Sub(at) >= w.debounceDur {
			ready = append(ready, path)
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		out, degraded, err := CleanFile(path)
		w.mu.Lock()
		switch {
		case os.IsNotExist(err):
		case err != nil:
			w.stats.Errors++
		default:
			w.stats.Processed++
			w.stats.LastOutput = out
			if degraded {
				w.stats.Degraded++
			}
		}
		w.mu.Unlock()

		switch {
		case os.IsNotExist(err):
			w.logger.Debug("file vanished before cleaning", zap.String("path", path))
		case err != nil:
			w.logger.Error("failed to clean file", zap.String("path", path), zap.Error(err))
		default:
			w.logger.Info("cleaned fact sheet",
				zap.String("path", path),
				zap.String("output", out),
				zap.Bool("degraded", degraded))
		}
	}
}

// CleanFile reconstructs the fact sheet in path and writes the structured
// mapping to the same name with a .json extension. It returns the output
// path and whether only the raw-text fallback was produced.
func CleanFile(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false, err
	}

	text, err := RawText(path, data)
	if err != nil {
		return "", false, err
	}

	records := factsheet.Reconstruct(text)
	out, err := factsheet.NewStructured(records).JSON()
	if err != nil {
		return "", false, err
	}

	outPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".json"
	if err := os.WriteFile(outPath, append(out, '\n'), 0644); err != nil {
		return "", false, fmt.Errorf("write %s: %w", outPath, err)
	}
	return outPath, factsheet.Degraded(records), nil
}

// RawText returns the reconstructable text of a dump: HTML pages are
// reduced to their report text and JSON objects are flattened.
func RawText(path string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return htmltext.ExtractString(string(data))
	}
	if flat, ok := factsheet.FlattenMapping(string(data)); ok {
		return flat, nil
	}
	return string(data), nil
}
