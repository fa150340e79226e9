package config

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a [Watcher] waits after the last file event
// before reloading. Editors often write a file in several steps.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads a config file when it changes on disk. The callback gets
// the old and new config only when the content changed and the new file
// validates; a broken edit is logged and the previous config stays current.
//
// The parent directory is watched rather than the file, so saves that
// replace the file by rename are seen too.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(old, new *Config)
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	current *Config
	digest  [sha256.Size]byte

	quit     chan struct{}
	quitOnce sync.Once
	exited   chan struct{}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithDebounce sets the quiet period before a reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher loads the config at path and starts watching it. Call
// [Watcher.Stop] when done.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w := &Watcher{
		path:     abs,
		debounce: DefaultDebounce,
		onChange: onChange,
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, digest, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current, w.digest = cfg, digest

	w.fsw, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	if err := w.fsw.Add(filepath.Dir(abs)); err != nil {
		_ = w.fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Reload re-reads the file now. It reports whether a new config was
// applied; an unchanged file is not an error.
func (w *Watcher) Reload() (bool, error) {
	cfg, digest, err := w.read()
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	if digest == w.digest {
		w.mu.Unlock()
		return false, nil
	}
	old := w.current
	w.current, w.digest = cfg, digest
	w.mu.Unlock()

	slog.Info("configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return true, nil
}

// Stop ends watching and waits for a running reload to finish. It is safe
// to call more than once.
func (w *Watcher) Stop() {
	w.quitOnce.Do(func() { close(w.quit) })
	<-w.exited
}

func (w *Watcher) loop() {
	defer close(w.exited)
	defer w.fsw.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.quit:
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			if _, err := w.Reload(); err != nil {
				if errors.Is(err, os.ErrNotExist) {
					slog.Debug("config file gone, waiting for it to return", "path", w.path)
					continue
				}
				slog.Warn("config reload rejected, keeping previous config", "path", w.path, "err", err)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "path", w.path, "err", err)
		}
	}
}

// read loads and validates the file and returns its digest.
func (w *Watcher) read() (*Config, [sha256.Size]byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, [sha256.Size]byte{}, err
	}
	return cfg, sha256.Sum256(data), nil
}
