package blockdefs

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads a Registry from a catalog directory whenever its TOML
// files change. A reload that fails to parse or validate leaves the
// registry untouched.
type Watcher struct {
	Dir      string
	Debounce time.Duration

	registry *Registry
	log      zerolog.Logger
	reloaded chan struct{}
	done     chan struct{}
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher feeding registry from dir.
func NewWatcher(dir string, registry *Registry, log zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		Dir:      dir,
		Debounce: 100 * time.Millisecond,
		registry: registry,
		log:      log.With().Str("component", "catalog").Str("dir", dir).Logger(),
		reloaded: make(chan struct{}, 1),
		done:     make(chan struct{}),
		watcher:  fw,
	}, nil
}

// Reloaded signals after each successful reload. Signals are coalesced.
func (w *Watcher) Reloaded() <-chan struct{} {
	return w.reloaded
}

// Start begins watching the catalog directory.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(w.Dir); err != nil {
		return err
	}
	go w.loop()
	return nil
}

// Stop closes the watcher and waits for the loop to exit.
func (w *Watcher) Stop() {
	w.watcher.Close()
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)

	var pending time.Time
	ticker := time.NewTicker(w.Debounce)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isCatalogFile(filepath.Base(event.Name)) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				pending = time.Now()
			}

		case <-ticker.C:
			if !pending.IsZero() && time.Since(pending) >= w.Debounce {
				pending = time.Time{}
				w.reload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("catalog watch error")
		}
	}
}

func (w *Watcher) reload() {
	defs, err := LoadDir(w.Dir)
	if err != nil {
		w.log.Error().Err(err).Msg("catalog reload failed")
		return
	}
	if err := w.registry.Replace(defs); err != nil {
		w.log.Error().Err(err).Msg("catalog reload rejected")
		return
	}
	w.log.Info().Int("definitions", len(defs)).Msg("catalog reloaded")
	select {
	case w.reloaded <- struct{}{}:
	default:
	}
}
