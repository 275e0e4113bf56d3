package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls load whenever the config file at path is written or replaced
// and passes the validated result to onChange. load should rebuild the config
// with the same layering used at startup; a nil load reads path alone over the
// defaults. Reload errors are passed along too so the caller can keep its
// previous config. Watch blocks until ctx is cancelled.
func Watch(ctx context.Context, path string, load func() (*Config, error), onChange func(*Config, error)) error {
	path = filepath.Clean(path)
	if load == nil {
		load = func() (*Config, error) { return LoadFromPath(path) }
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are still seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := load()
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				onChange(nil, err)
				continue
			}
			onChange(cfg, nil)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			onChange(nil, fmt.Errorf("config watcher: %w", err))
		}
	}
}
