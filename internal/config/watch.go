package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const (
	watchDebounce       = 250 * time.Millisecond
	watchRestartBackoff = time.Second
)

// Watch reloads the config at path whenever it changes on disk and hands each
// valid new version to apply. Invalid configs are logged and skipped so a bad
// edit never takes down a running daemon. Watch blocks until ctx is done.
//
// The parent directory is watched rather than the file itself: editors and
// configuration management tools commonly replace the file via rename, which
// would silently detach a file-level watch.
func Watch(ctx context.Context, path string, log zerolog.Logger, apply func(*Config)) error {
	dir := filepath.Dir(path)
	file := filepath.Base(path)

	// Debounce so a burst of write events (partial writes, editor temp file
	// shuffles) produces a single reload of the settled file.
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	reload := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(watchDebounce, func() {
			cfg, err := Load(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("config reload rejected")
				return
			}
			log.Info().Str("path", path).Msg("config reloaded")
			apply(cfg)
		})
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(dir)
			if err != nil {
				_ = w.Close()
			}
		}
		if err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("config watch unavailable; retrying")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(watchRestartBackoff):
				continue
			}
		}

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
					reload()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err != nil {
					log.Warn().Err(err).Str("dir", dir).Msg("config watch error")
				}
			}
		}

		// Watcher channels closed underneath us; recreate it.
		_ = w.Close()
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(watchRestartBackoff):
		}
	}
}
