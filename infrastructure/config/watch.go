package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/felixgeelhaar/agent-registry/domain/config"
)

// Watcher reloads a configuration file whenever it changes on disk.
//
// The parent directory is watched rather than the file itself so editors
// that replace the file through a rename are still observed.
type Watcher struct {
	path    string
	loader  *Loader
	watcher *fsnotify.Watcher
}

// NewWatcher starts watching path. The file is reloaded with loader.
func NewWatcher(path string, loader *Loader) (*Watcher, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	return &Watcher{path: abs, loader: loader, watcher: w}, nil
}

// Close stops the watcher without running it.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

// Run delivers every successfully reloaded configuration to onChange and
// every reload failure to onError until ctx is done. Invalid files never
// reach onChange.
func (w *Watcher) Run(ctx context.Context, onChange func(*config.RegistryConfig), onError func(error)) error {
	defer func() { _ = w.watcher.Close() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			cfg, err := w.loader.LoadFile(w.path)
			if err != nil {
				onError(err)
				continue
			}
			onChange(cfg)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			onError(err)
		}
	}
}
