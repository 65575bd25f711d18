package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/banshee-data/breath.report/internal/gate"
	"github.com/banshee-data/breath.report/internal/monitoring"
)

// watchDebounce coalesces the write bursts editors produce on save.
const watchDebounce = 100 * time.Millisecond

// Watch monitors the config file and invokes onChange with the re-derived
// validity tuning after each change. A file that fails to load or
// validate is logged and ignored, keeping the previous tuning. Blocks
// until the context is cancelled.
//
// Only the validity tuning is applied live; session parameters need a
// restart to take effect and are deliberately not forwarded.
func Watch(ctx context.Context, path string, base Config, changed map[string]bool, onChange func(gate.Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors replace files on save, which drops a
	// watch on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	var mu sync.Mutex
	var debounce *time.Timer

	reload := func() {
		fc, err := LoadFileConfig(path)
		if err != nil {
			monitoring.Logger().Warn().Err(err).Str("path", path).Msg("config reload failed, keeping previous tuning")
			return
		}
		cfg := base
		if err := ApplyFileConfig(&cfg, fc, changed); err != nil {
			monitoring.Logger().Warn().Err(err).Str("path", path).Msg("config reload failed, keeping previous tuning")
			return
		}
		g := cfg.Gate()
		if err := g.Validate(); err != nil {
			monitoring.Logger().Warn().Err(err).Str("path", path).Msg("rejecting invalid tuning, keeping previous")
			return
		}
		monitoring.Logger().Info().Str("path", path).Msg("validity tuning reloaded")
		onChange(g)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			mu.Lock()
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, reload)
			mu.Unlock()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			monitoring.Logger().Warn().Err(err).Msg("config watcher error")
		}
	}
}
