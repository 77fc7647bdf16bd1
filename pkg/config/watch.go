package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDuration = 100 * time.Millisecond

// Watch reloads the config at path whenever it changes and passes the result
// to onChange. Changes are debounced. A file that fails to load is reported
// through onChange with a nil config and watching continues. The directory
// is watched rather than the file so editors that replace it by rename are
// also seen. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config, error)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	defer watcher.Close()

	dir, base := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	debounce := newDebounceTimer()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				resetDebounceTimer(debounce)
			}

		case <-debounce.C:
			cfg, err := Load(path)
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

// newDebounceTimer returns a stopped timer.
func newDebounceTimer() *time.Timer {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	return timer
}

func resetDebounceTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(debounceDuration)
}
