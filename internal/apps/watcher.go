package apps

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads a Resolver when its inventory file changes on disk.
type Watcher struct {
	resolver *Resolver
	file     string
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	started  bool
	done     chan struct{}
}

// NewWatcher creates a watcher for the resolver's inventory file.
func NewWatcher(resolver *Resolver, logger zerolog.Logger) (*Watcher, error) {
	if resolver.Path() == "" {
		return nil, fmt.Errorf("resolver has no inventory file to watch")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		resolver: resolver,
		file:     filepath.Clean(resolver.Path()),
		watcher:  fw,
		logger:   logger.With().Str("component", "apps-watcher").Logger(),
		done:     make(chan struct{}),
	}, nil
}

// Start watches the directory holding the inventory. Editors often replace
// files rather than writing in place, so the file itself is not watched.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.file)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.started = true
	go w.run()

	w.logger.Info().Str("path", w.file).Msg("Watching application inventory")
	return nil
}

// Stop ends the watch.
func (w *Watcher) Stop() error {
	err := w.watcher.Close()
	if w.started {
		<-w.done
	}
	return err
}

func (w *Watcher) run() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.file {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
				continue
			}

			w.logger.Debug().Str("op", event.Op.String()).Msg("Inventory changed")
			if err := w.resolver.Reload(); err != nil {
				w.logger.Error().Err(err).Msg("Failed to reload application inventory")
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Inventory watcher error")
		}
	}
}
