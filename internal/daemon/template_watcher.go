package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/PulfordJ/lastsignal/internal/logfields"
)

const defaultTemplateDebounce = 500 * time.Millisecond

// TemplateWatcher calls onChange after the message template file changes.
type TemplateWatcher struct {
	path         string
	onChange     func()
	watcher      *fsnotify.Watcher
	mu           sync.Mutex
	stopChan     chan struct{}
	stopped      bool
	reloadChan   chan struct{}
	debounceTime time.Duration
}

// NewTemplateWatcher creates a watcher for the template at path.
func NewTemplateWatcher(path string, onChange func()) (*TemplateWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to resolve template path: %w", err)
	}
	return &TemplateWatcher{
		path:         absPath,
		onChange:     onChange,
		watcher:      watcher,
		stopChan:     make(chan struct{}),
		reloadChan:   make(chan struct{}, 1),
		debounceTime: defaultTemplateDebounce,
	}, nil
}

// Start watches the directory holding the template. Editors often replace
// the file rather than write it in place, so the file itself is not watched.
func (tw *TemplateWatcher) Start(ctx context.Context) error {
	dir := filepath.Dir(tw.path)
	if err := tw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch template directory %s: %w", dir, err)
	}
	slog.Info("Watching message template", logfields.Path(tw.path))

	go tw.watchLoop(ctx)
	go tw.reloadLoop(ctx)
	return nil
}

// Stop ends both loops and closes the watcher. It is safe to call twice.
func (tw *TemplateWatcher) Stop() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	if tw.stopped {
		return nil
	}
	tw.stopped = true
	close(tw.stopChan)
	return tw.watcher.Close()
}

func (tw *TemplateWatcher) watchLoop(ctx context.Context) {
	name := filepath.Base(tw.path)
	for {
		select {
		case <-ctx.Done():
			return
		case <-tw.stopChan:
			return
		case event, ok := <-tw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			switch {
			case event.Has(fsnotify.Write), event.Has(fsnotify.Create), event.Has(fsnotify.Rename):
				slog.Debug("Message template changed", logfields.Path(event.Name), slog.String("op", event.Op.String()))
				tw.trigger()
			case event.Has(fsnotify.Remove):
				slog.Warn("Message template removed; the default will be written on next use", logfields.Path(event.Name))
				tw.trigger()
			}
		case err, ok := <-tw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Template watcher error", logfields.Error(err))
		}
	}
}

func (tw *TemplateWatcher) reloadLoop(ctx context.Context) {
	var timer *time.Timer
	stop := func() {
		if timer != nil {
			timer.Stop()
		}
	}
	for {
		select {
		case <-ctx.Done():
			stop()
			return
		case <-tw.stopChan:
			stop()
			return
		case <-tw.reloadChan:
			stop()
			timer = time.AfterFunc(tw.debounceTime, tw.onChange)
		}
	}
}

func (tw *TemplateWatcher) trigger() {
	select {
	case tw.reloadChan <- struct{}{}:
	default:
	}
}
