package config

import (
	"github.com/fsnotify/fsnotify"

	"mote/pkg/logger"
)

// WatchSettings watches the settings file at path for changes and calls
// onChange whenever fsnotify reports one. The engine never live-patches a
// running session from a settings edit (§6 lists no such behavior, and
// Settings is consumed once at session.Build/LoadSession time) — the
// default onChange used by the CLI just logs a warning and tells the
// operator to restart; callers needing something else can supply their
// own onChange. The returned watcher is the caller's to Close.
func WatchSettings(path string, onChange func(fsnotify.Event)) (*fsnotify.Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					onChange(event)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error().Err(err).Msg("config: settings watch error")
			}
		}
	}()

	return watcher, nil
}

// LogAndDeferReload is the default onChange WatchSettings callers pass:
// it logs that the settings file changed on disk and that the running
// session will keep using the values it started with.
func LogAndDeferReload(path string) func(fsnotify.Event) {
	return func(event fsnotify.Event) {
		logger.Warn().Str("path", path).Str("op", event.Op.String()).
			Msg("config: settings file changed on disk; restart to apply, this session keeps its original values")
	}
}
