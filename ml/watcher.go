package ml

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ArtifactWatcher observes the model artifact on disk and logs a warning
// whenever it changes after startup. The loaded handle is never replaced;
// a change takes effect only after a restart.
type ArtifactWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	path        string
	dir         string
	logger      *zap.Logger
	debounce    map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats WatcherStats
}

// WatcherStats tracks observed artifact events.
type WatcherStats struct {
	Created       int       `json:"created"`
	Modified      int       `json:"modified"`
	Removed       int       `json:"removed"`
	Errors        int       `json:"errors"`
	LastEventOp   string    `json:"last_event_op"`
	LastEventTime time.Time `json:"last_event_time"`
}

func NewArtifactWatcher(path string, logger *zap.Logger) (*ArtifactWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	clean := filepath.Clean(path)
	return &ArtifactWatcher{
		watcher:     watcher,
		path:        clean,
		dir:         filepath.Dir(clean),
		logger:      logger,
		debounce:    make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching the artifact's directory. Non-blocking.
func (w *ArtifactWatcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	w.logger.Info("watching model artifact", zap.String("path", w.path))

	go w.run()
	return nil
}

// Stop stops the watcher and waits for the event loop to drain.
func (w *ArtifactWatcher) Stop() {
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
		w.logger.Error("closing artifact watcher", zap.Error(err))
	}
}

func (w *ArtifactWatcher) run() {
	defer close(w.doneCh)

	flushTicker := time.NewTicker(100 * time.Millisecond)
	defer flushTicker.Stop()

	for {
		select {
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
			w.logger.Error("artifact watcher error", zap.Error(err))
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-flushTicker.C:
			w.flushDebounced()
		}
	}
}

func (w *ArtifactWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}

	var op string
	switch {
	case event.Op&fsnotify.Create != 0:
		op = "create"
	case event.Op&fsnotify.Write != 0:
		op = "modify"
	case event.Op&fsnotify.Remove != 0, event.Op&fsnotify.Rename != 0:
		op = "remove"
	default:
		return
	}

	w.mu.Lock()
	w.stats.LastEventOp = op
	w.stats.LastEventTime = time.Now()
	switch op {
	case "create":
		w.stats.Created++
	case "modify":
		w.stats.Modified++
	case "remove":
		w.stats.Removed++
	}
	w.debounce[op] = time.Now()
	w.mu.Unlock()
}

func (w *ArtifactWatcher) flushDebounced() {
	w.mu.Lock()
	now := time.Now()
	settled := make([]string, 0, len(w.debounce))
	for op, at := range w.debounce {
		if now.Sub(at) >= w.debounceDur {
			settled = append(settled, op)
			delete(w.debounce, op)
		}
	}
	w.mu.Unlock()

	for _, op := range settled {
		w.logger.Warn("model artifact changed on disk; the loaded model stays in effect until restart",
			zap.String("path", w.path),
			zap.String("op", op))
	}
}

func (w *ArtifactWatcher) Stats() WatcherStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *ArtifactWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}
