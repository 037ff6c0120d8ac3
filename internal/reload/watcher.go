// Package reload refreshes the agent roster when catalog files change on
// disk or the process receives SIGHUP.
package reload

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

const defaultPollInterval = 5 * time.Second

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Paths are files or directories to watch. Directories are walked
	// recursively.
	Paths []string

	// PollInterval is how often to check for changes.
	// Defaults to 5 seconds if zero.
	PollInterval time.Duration
}

func (c WatcherConfig) pollIntervalOrDefault() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return defaultPollInterval
}

// EventType describes the type of change event.
type EventType string

const (
	// EventModified indicates a watched file was added, removed or modified.
	EventModified EventType = "modified"
)

// Event represents a change notification.
type Event struct {
	Type  EventType
	Paths []string
}

// fingerprint summarizes the watched tree. Any add, remove or rewrite moves
// at least one of its fields.
type fingerprint struct {
	files   int
	size    int64
	modTime time.Time
}

func (f fingerprint) equal(o fingerprint) bool {
	return f.files == o.files && f.size == o.size && f.modTime.Equal(o.modTime)
}

// Watcher polls a set of catalog paths for modifications.
type Watcher struct {
	cfg     WatcherConfig
	events  chan Event
	stop    chan struct{}
	stopped chan struct{}

	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewWatcher creates a new file watcher.
func NewWatcher(cfg WatcherConfig) *Watcher {
	return &Watcher{
		cfg:     cfg,
		events:  make(chan Event, 1),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins polling. Only the first call starts the goroutine.
func (w *Watcher) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		w.started.Store(true)
		go w.poll(ctx)
	})
}

// Events returns the channel of change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Stop stops the watcher. Safe to call multiple times and before Start.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
	})
	if w.started.Load() {
		<-w.stopped
	}
}

func (w *Watcher) poll(ctx context.Context) {
	defer close(w.stopped)

	ticker := time.NewTicker(w.cfg.pollIntervalOrDefault())
	defer ticker.Stop()

	last := w.scan()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-ticker.C:
			current := w.scan()
			if current.equal(last) {
				continue
			}
			last = current
			select {
			case w.events <- Event{Type: EventModified, Paths: w.cfg.Paths}:
			default:
				// A refresh is already pending.
			}
		}
	}
}

func (w *Watcher) scan() fingerprint {
	var fp fingerprint
	for _, root := range w.cfg.Paths {
		_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			fp.files++
			fp.size += info.Size()
			if info.ModTime().After(fp.modTime) {
				fp.modTime = info.ModTime()
			}
			return nil
		})
	}
	return fp
}

// exists reports whether any watched path is present.
func (w *Watcher) exists() bool {
	for _, p := range w.cfg.Paths {
		if _, err := os.Stat(p); err == nil {
			return true
		}
	}
	return false
}
