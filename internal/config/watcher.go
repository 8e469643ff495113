package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file when it changes on disk
type Watcher struct {
	watcher  *fsnotify.Watcher
	loader   *Loader
	logger   zerolog.Logger
	onReload func(*Config)
	debounce time.Duration
	timer    *time.Timer
	stopCh   chan struct{}
}

// NewWatcher creates a watcher for the loader's config path. onReload
// is called with each successfully loaded and validated config.
func NewWatcher(loader *Loader, logger zerolog.Logger, onReload func(*Config)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  watcher,
		loader:   loader,
		logger:   logger,
		onReload: onReload,
		debounce: 500 * time.Millisecond,
		stopCh:   make(chan struct{}),
	}

	// Watch the directory, not the file: editors replace files on save
	if err := watcher.Add(filepath.Dir(loader.GetConfigPath())); err != nil {
		watcher.Close()
		return nil, err
	}

	go w.run()

	return w, nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	close(w.stopCh)
	return w.watcher.Close()
}

// run processes file system events
func (w *Watcher) run() {
	target := w.loader.GetConfigPath()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Clean(event.Name) != filepath.Clean(target) {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				w.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Config change detected")

				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Config watcher error")

		case <-w.stopCh:
			return
		}
	}
}

// scheduleReload debounces the reload
func (w *Watcher) scheduleReload() {
	if w.timer != nil {
		w.timer.Stop()
	}

	w.timer = time.AfterFunc(w.debounce, func() {
		cfg, err := w.loader.Load()
		if err != nil {
			w.logger.Error().Err(err).Msg("Config reload failed")
			return
		}
		if err := cfg.Validate(); err != nil {
			w.logger.Error().Err(err).Msg("Reloaded config is invalid, keeping previous")
			return
		}

		w.logger.Info().Msg("Config reloaded")
		w.onReload(cfg)
	})
}
