package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"agentdeck/pkg/logger"
)

const debounceDelay = 100 * time.Millisecond

// ReloadFunc receives the freshly reloaded configuration.
type ReloadFunc func(*Config)

// Watcher monitors the configuration file and reloads it on change,
// so service registry edits take effect without a restart.
type Watcher struct {
	watcher   *fsnotify.Watcher
	path      string
	stopCh    chan struct{}
	debounce  *time.Timer
	mu        sync.Mutex
	listeners []ReloadFunc
}

// NewWatcher creates a watcher for the given configuration file.
func NewWatcher(path string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher: w,
		path:    path,
		stopCh:  make(chan struct{}),
	}, nil
}

// OnReload registers a listener invoked after each successful reload.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.listeners = append(w.listeners, fn)
}

// Start begins watching for file changes.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.path); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error().Err(err).Msg("config watcher error")
		}
	}
}

// scheduleReload debounces rapid successive writes (editors often write twice).
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		logger.Error().Err(err).Str("path", w.path).Msg("config reload failed")
		return
	}

	logger.Info().Str("path", w.path).Msg("config reloaded")

	w.mu.Lock()
	listeners := make([]ReloadFunc, len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	close(w.stopCh)

	w.mu.Lock()
	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.mu.Unlock()

	w.watcher.Close()
}
