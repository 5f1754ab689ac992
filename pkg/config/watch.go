package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchProfile reloads the profile at path whenever it is written or replaced
// and passes the new settings to onChange. A profile that fails to load is
// logged and the previous settings stay active. Runs until ctx is cancelled.
func WatchProfile(ctx context.Context, path string, base EngagementSettings, onChange func(EngagementSettings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path = filepath.Clean(path)

	// The directory watch survives editors that save by renaming a temp
	// file over the profile.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	slog.Info("config: watching engagement profile", "path", path)

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

			settings, err := LoadProfile(path, base)
			if err != nil {
				slog.Error("config: profile reload failed, keeping previous settings",
					"path", path, "err", err)
				continue
			}

			slog.Info("config: profile reloaded", "path", path, "threshold", settings.Threshold)
			onChange(settings)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
