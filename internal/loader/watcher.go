package loader

import (
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and reloads it when its modification time
// changes. The callback receives either the new configuration or the error
// that prevented loading it; a failed reload keeps the old configuration in
// effect.
type Watcher struct {
	path     string
	interval time.Duration
	callback func(*Config, error)
	done     chan struct{}
	stopOnce sync.Once
	modTime  time.Time
}

// NewWatcher creates a new config file watcher polling every interval.
func NewWatcher(path string, interval time.Duration, callback func(*Config, error)) *Watcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Watcher{
		path:     path,
		interval: interval,
		callback: callback,
		done:     make(chan struct{}),
	}
}

// Start begins watching the config file.
func (w *Watcher) Start() {
	// Get initial mod time
	if info, err := os.Stat(w.path); err == nil {
		w.modTime = info.ModTime()
	}

	go w.watch()
}

// Stop stops watching. It is safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) watch() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			info, err := os.Stat(w.path)
			if err != nil {
				continue
			}

			if !info.ModTime().Equal(w.modTime) {
				w.modTime = info.ModTime()
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if w.callback != nil {
		w.callback(cfg, err)
	}
}
