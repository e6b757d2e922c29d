package cliconfig

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Tuning holds the knobs that may safely change while a run is in flight.
// The ingestion loop re-reads them at its poll checkpoint, so lowering the
// rollover goal or the wall-clock cap acts as a cooperative early stop.
type Tuning struct {
	TargetRollovers int
	MaxDuration     time.Duration
	PollInterval    time.Duration
	ShrinkPause     time.Duration
	SendPause       time.Duration
}

// TuningFromConfig extracts the live-tunable knobs from a full Config.
func TuningFromConfig(cfg Config) Tuning {
	return Tuning{
		TargetRollovers: cfg.TargetRollovers,
		MaxDuration:     cfg.MaxDuration,
		PollInterval:    cfg.PollInterval,
		ShrinkPause:     cfg.ShrinkPause,
		SendPause:       cfg.SendPause,
	}
}

// TuningWatcher monitors the config file via fsnotify and republishes the
// tunable subset on change. Unparseable edits are logged and skipped; the
// previous tuning stays in effect.
type TuningWatcher struct {
	path string
	base Tuning
	log  zerolog.Logger

	mu       sync.Mutex
	debounce *time.Timer
	latest   *Tuning
}

// NewTuningWatcher creates a watcher for the given config file path.
// base is the effective tuning at startup; file updates override it.
func NewTuningWatcher(path string, base Tuning, log zerolog.Logger) *TuningWatcher {
	return &TuningWatcher{path: path, base: base, log: log}
}

// Run watches the config file until the context is canceled.
func (w *TuningWatcher) Run(ctx context.Context) {
	if w.path == "" {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.log.Warn().Err(err).Msg("tuning watcher: failed to create watcher")
		return
	}
	defer watcher.Close()

	// Watch the directory: editors replace the file on save, which would
	// drop a watch on the file itself.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		w.log.Warn().Err(err).Str("dir", filepath.Dir(w.path)).Msg("tuning watcher: failed to watch")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.debounceReload(100 * time.Millisecond)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn().Err(err).Msg("tuning watcher: error")
		}
	}
}

// Latest returns the most recent unconsumed tuning update, if any.
// Consuming clears the update so callers only react once per change.
func (w *TuningWatcher) Latest() (Tuning, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.latest == nil {
		return Tuning{}, false
	}
	t := *w.latest
	w.latest = nil
	return t, true
}

func (w *TuningWatcher) debounceReload(delay time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(delay, w.reload)
}

func (w *TuningWatcher) reload() {
	fc, err := LoadFileConfig(w.path)
	if err != nil {
		w.log.Warn().Err(err).Str("path", w.path).Msg("tuning watcher: reload failed")
		return
	}

	t := w.base
	if fc.TargetRollovers > 0 {
		t.TargetRollovers = fc.TargetRollovers
	}
	if err := applyTuningDuration(fc.MaxDuration, &t.MaxDuration); err != nil {
		w.log.Warn().Err(err).Msg("tuning watcher: bad max_duration, keeping current")
	}
	if err := applyTuningDuration(fc.PollInterval, &t.PollInterval); err != nil {
		w.log.Warn().Err(err).Msg("tuning watcher: bad poll_interval, keeping current")
	}
	if err := applyTuningDuration(fc.ShrinkPause, &t.ShrinkPause); err != nil {
		w.log.Warn().Err(err).Msg("tuning watcher: bad shrink_pause, keeping current")
	}
	if err := applyTuningDuration(fc.SendPause, &t.SendPause); err != nil {
		w.log.Warn().Err(err).Msg("tuning watcher: bad send_pause, keeping current")
	}

	w.mu.Lock()
	w.latest = &t
	w.mu.Unlock()

	w.log.Info().
		Int("target_rollovers", t.TargetRollovers).
		Dur("max_duration", t.MaxDuration).
		Dur("poll_interval", t.PollInterval).
		Msg("tuning updated from config file")
}

func applyTuningDuration(value string, dst *time.Duration) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	if d > 0 {
		*dst = d
	}
	return nil
}
