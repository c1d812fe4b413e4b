// Package watch re-runs validation when contract files change on disk.
package watch

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"toolcheck/internal/logging"
)

// TriggerFunc is invoked with the settled set of changed contract paths.
type TriggerFunc func(ctx context.Context, changed []string)

// ContractWatcher watches a contract tree for *.contract.yaml changes
// and triggers revalidation after edits settle.
type ContractWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	toolsDir    string
	trigger     TriggerFunc
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

// Stats tracks watcher activity.
type Stats struct {
	FilesChanged  int
	FilesDeleted  int
	TriggersFired int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// contractSuffixes are the filename patterns treated as contracts.
var contractSuffixes = []string{".contract.yaml", ".contract.yml"}

func isContractPath(path string) bool {
	for _, suffix := range contractSuffixes {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

// NewContractWatcher builds a watcher over toolsDir. The trigger fires
// once per settled batch of changes.
func NewContractWatcher(toolsDir string, trigger TriggerFunc) (*ContractWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &ContractWatcher{
		watcher:     watcher,
		toolsDir:    toolsDir,
		trigger:     trigger,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // rapid saves settle before revalidation
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in its own
// goroutine until Stop or context cancellation.
func (w *ContractWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	log := logging.Get(logging.CategoryWatch)

	// Watch the tree recursively; fsnotify does not descend on its own.
	err := filepath.WalkDir(w.toolsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := w.watcher.Add(path); err != nil {
				log.Warn("Could not watch %s: %v", path, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	log.Info("Watching %s for contract changes", w.toolsDir)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *ContractWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.Get(logging.CategoryWatch).Error("Error closing watcher: %v", err)
	}
}

// IsWatching reports whether the event loop is live.
func (w *ContractWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// GetStats returns a snapshot of watcher activity.
func (w *ContractWatcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// run is the main event loop.
func (w *ContractWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	log := logging.Get(logging.CategoryWatch)
	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

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
			log.Error("Watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.fireSettled(ctx)
		}
	}
}

// handleEvent records one filesystem event for debounced processing.
// New directories are added to the watch; non-contract files are
// ignored.
func (w *ContractWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.watcher.Add(event.Name)
			return
		}
	}

	if !isContractPath(event.Name) {
		return
	}

	switch {
	case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
		w.mu.Lock()
		w.stats.FilesChanged++
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.mu.Lock()
		w.stats.FilesDeleted++
	default:
		return // chmod etc.
	}

	logging.Get(logging.CategoryWatch).Debug("Contract changed: %s", event.Name)
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventPath = event.Name
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// fireSettled triggers revalidation for changes past the debounce
// window, batched into one trigger call.
func (w *ContractWatcher) fireSettled(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var settled []string
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			settled = append(settled, path)
			delete(w.debounceMap, path)
		}
	}
	if len(settled) > 0 {
		w.stats.TriggersFired++
	}
	w.mu.Unlock()

	if len(settled) == 0 {
		return
	}
	logging.Get(logging.CategoryWatch).Info("Revalidating after %d contract change(s)", len(settled))
	w.trigger(ctx, settled)
}
