package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/gridstat/gridstat/logging"
)

// Watcher watches the configuration file and reloads it on change, so the
// long-running import loop picks up tariff or interval updates without a
// restart.
type Watcher struct {
	path     string
	config   *Config
	onChange func(*Config)
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex

	lastReload time.Time
}

// reloadDebounce suppresses the duplicate events editors emit on save
const reloadDebounce = 500 * time.Millisecond

// NewWatcher creates a configuration file watcher. onChange runs with the
// freshly loaded configuration after every successful reload.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Watcher{
		path:     os.ExpandEnv(path),
		onChange: onChange,
		watcher:  fsWatcher,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start loads the configuration and begins watching
func (w *Watcher) Start() error {
	cfg, err := w.load()
	if err != nil {
		return fmt.Errorf("failed to load initial configuration: %w", err)
	}

	w.mu.Lock()
	w.config = cfg
	w.mu.Unlock()

	// Watch the directory too: editors replace files on save, which drops
	// the watch on the file itself.
	if _, err := os.Stat(w.path); err == nil {
		if err := w.watcher.Add(w.path); err != nil {
			return fmt.Errorf("failed to watch config file %s: %w", w.path, err)
		}
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	go w.processEvents()
	return nil
}

// Stop ends watching
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stopCh) })
	return w.watcher.Close()
}

// Current returns the most recently loaded configuration
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

func (w *Watcher) load() (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(w.path)
	if err := v.ReadInConfig(); err != nil {
		// A missing file means defaults; a present but broken file is an error
		if _, statErr := os.Stat(w.path); statErr == nil {
			return nil, err
		}
	}
	return FromViper(v)
}

func (w *Watcher) processEvents() {
	log := logging.GetLogger()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("Config watcher error: %v", err)

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	w.mu.Lock()
	if time.Since(w.lastReload) < reloadDebounce {
		w.mu.Unlock()
		return
	}
	w.lastReload = time.Now()
	w.mu.Unlock()

	log := logging.GetLogger()
	cfg, err := w.load()
	if err != nil {
		log.Warnf("Config reload failed, keeping previous configuration: %v", err)
		return
	}

	w.mu.Lock()
	w.config = cfg
	w.mu.Unlock()

	log.Infof("Configuration reloaded from %s", w.path)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
