package config

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/avabff/internal/observability"
)

// DefaultReloadDelay is how long the watcher waits for a burst of writes
// to settle before reloading.
const DefaultReloadDelay = 100 * time.Millisecond

// ConfigCallback receives every configuration that passed validation.
type ConfigCallback func(*Config)

// ErrorCallback receives reload failures.
type ErrorCallback func(error)

// Watcher reloads a configuration file when it changes. Only logging.level
// takes effect at runtime; other changed sections are logged as needing a
// restart.
type Watcher struct {
	path      string
	role      Role
	loader    *Loader
	fs        *fsnotify.Watcher
	onChange  ConfigCallback
	onError   ErrorCallback
	logger    observability.Logger
	delay     time.Duration
	overrides []func(*Config)

	mu      sync.RWMutex
	current *Config
	cancel  context.CancelFunc
	done    chan struct{}
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets how long writes must settle before a reload.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) { w.delay = delay }
}

// WithLogger sets the watcher's logger.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// WithErrorCallback sets the function told about rejected reloads.
func WithErrorCallback(callback ErrorCallback) WatcherOption {
	return func(w *Watcher) { w.onError = callback }
}

// WithLoader sets the loader used on reload, so reloads see the same
// environment as startup.
func WithLoader(loader *Loader) WatcherOption {
	return func(w *Watcher) { w.loader = loader }
}

// WithOverride registers a function applied to every loaded configuration
// before validation, typically command-line flags.
func WithOverride(fn func(*Config)) WatcherOption {
	return func(w *Watcher) { w.overrides = append(w.overrides, fn) }
}

// WithInitialConfig seeds the watcher with the configuration the process
// is already running with.
func WithInitialConfig(cfg *Config) WatcherOption {
	return func(w *Watcher) { w.current = cfg }
}

// NewWatcher creates a watcher for the file at path. Nothing is read
// until Start.
func NewWatcher(path string, role Role, callback ConfigCallback, opts ...WatcherOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		role:     role,
		fs:       fs,
		onChange: callback,
		delay:    DefaultReloadDelay,
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.loader == nil {
		w.loader = NewLoader(role)
	}
	return w, nil
}

// Start loads the file unless an initial configuration was given, then
// watches its directory until ctx is done or Stop is called. Starting a
// running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return nil
	}
	if w.current == nil {
		cfg, err := w.load()
		if err != nil {
			return err
		}
		w.current = cfg
	}

	// The directory, not the file: editors often replace the file.
	if err := w.fs.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	go w.run(ctx, w.done)

	w.logger.Info("watching configuration file", observability.String("path", w.path))
	return nil
}

// Stop ends watching and releases the file watcher. It is safe to call
// on a watcher that never started.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel, w.done = nil, nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return w.fs.Close()
}

// GetLastConfig returns the last configuration that passed validation.
func (w *Watcher) GetLastConfig() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// ForceReload reloads the file now, bypassing the file events.
func (w *Watcher) ForceReload() error {
	return w.apply()
}

func (w *Watcher) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	settle := time.NewTimer(w.delay)
	settle.Stop()
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("configuration watcher stopped")
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path || !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			w.logger.Debug("configuration file event",
				observability.String("path", ev.Name),
				observability.String("op", ev.Op.String()),
			)
			settle.Reset(w.delay)

		case <-settle.C:
			if err := w.apply(); err != nil {
				w.fail(err, "configuration reload rejected; keeping previous")
			}

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.fail(err, "configuration watcher error")
		}
	}
}

func (w *Watcher) fail(err error, msg string) {
	w.logger.Error(msg, observability.Error(err))
	if w.onError != nil {
		w.onError(err)
	}
}

func (w *Watcher) apply() error {
	cfg, err := w.load()
	if err != nil {
		return err
	}

	w.mu.Lock()
	previous := w.current
	w.current = cfg
	w.mu.Unlock()

	if sections := RestartSections(previous, cfg); len(sections) > 0 {
		w.logger.Warn("configuration changed outside logging.level; restart to apply",
			observability.String("sections", strings.Join(sections, ",")),
		)
	}
	w.logger.Info("configuration reloaded", observability.String("path", w.path))

	if w.onChange != nil {
		w.onChange(cfg)
	}
	return nil
}

func (w *Watcher) load() (*Config, error) {
	cfg, err := w.loader.Load(w.path)
	if err != nil {
		return nil, err
	}
	for _, fn := range w.overrides {
		fn(cfg)
	}
	if err := ValidateConfig(cfg, w.role); err != nil {
		return nil, err
	}
	return cfg, nil
}

// RestartSections lists the top-level sections, by YAML key, that differ
// between previous and next. logging.level is ignored since it applies
// live.
func RestartSections(previous, next *Config) []string {
	if previous == nil || next == nil {
		return nil
	}
	a, b := *previous, *next
	a.Logging.Level, b.Logging.Level = "", ""

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	t := va.Type()

	var changed []string
	for i := 0; i < t.NumField(); i++ {
		if reflect.DeepEqual(va.Field(i).Interface(), vb.Field(i).Interface()) {
			continue
		}
		key, _, _ := strings.Cut(t.Field(i).Tag.Get("yaml"), ",")
		changed = append(changed, key)
	}
	return changed
}

// ApplyLogLevel returns a callback that moves logger to logging.level.
func ApplyLogLevel(logger observability.Logger) ConfigCallback {
	return func(cfg *Config) {
		from := logger.Level()
		if err := logger.SetLevel(cfg.Logging.Level); err != nil {
			logger.Error("failed to apply log level", observability.Error(err))
			return
		}
		if to := logger.Level(); to != from {
			logger.Info("log level changed",
				observability.String("from", from),
				observability.String("to", to),
			)
		}
	}
}
