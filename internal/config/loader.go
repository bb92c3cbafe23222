package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Loader reads a YAML config file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)
	watcher  *fsnotify.Watcher
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string) (*Loader, error) {
	l := &Loader{path: path}
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current (latest) configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked whenever the config reloads.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch starts a background goroutine that hot-reloads the config on file
// changes. Call the returned stop function to clean up.
func (l *Loader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}
	if err := w.Add(l.path); err != nil {
		w.Close()
		return nil, fmt.Errorf("config watcher add %s: %w", l.path, err)
	}
	l.watcher = w

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					cfg, err := l.load()
					if err != nil {
						// Log and continue with old config.
						continue
					}
					l.mu.Lock()
					l.current = cfg
					callbacks := make([]func(*Config), len(l.onChange))
					copy(callbacks, l.onChange)
					l.mu.Unlock()
					for _, fn := range callbacks {
						fn(cfg)
					}
				}
			case <-w.Errors:
				// Ignore watcher errors.
			case <-done:
				return
			}
		}
	}()

	return func() { close(done) }, nil
}

// Reload forces an immediate re-read of the config file.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

func (l *Loader) load() (*Config, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", l.path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", l.path, err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns a config with every default applied, used when the service
// runs without a config file.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Engine.DetectWorkers == 0 {
		cfg.Engine.DetectWorkers = 1
	}
	if cfg.Engine.QueueDepth == 0 {
		cfg.Engine.QueueDepth = 1024
	}
	if cfg.Engine.RecordTimeoutMs == 0 {
		cfg.Engine.RecordTimeoutMs = 5000
	}

	if cfg.Stream.Host == "" {
		cfg.Stream.Host = "127.0.0.1"
	}
	if cfg.Stream.Port == 0 {
		cfg.Stream.Port = 8765
	}
	if cfg.Stream.ReconnectDelayS == 0 {
		cfg.Stream.ReconnectDelayS = 5
	}
	if cfg.Stream.MaxRetries == 0 {
		cfg.Stream.MaxRetries = 10
	}

	if cfg.Output.EventsFile == "" {
		cfg.Output.EventsFile = "output/events.jsonl"
	}

	d := &cfg.Detection
	if d.WeightToleranceG == 0 {
		d.WeightToleranceG = 50
	}
	if d.QueueLengthThreshold == 0 {
		d.QueueLengthThreshold = 6
	}
	if d.DwellTimeThresholdS == 0 {
		d.DwellTimeThresholdS = 300
	}
	if d.AccuracyThreshold == 0 {
		d.AccuracyThreshold = 0.8
	}
	if d.CacheHorizonS == 0 {
		d.CacheHorizonS = 60
	}
	if d.Correlation.WindowS == 0 {
		d.Correlation.WindowS = 30
	}
	if d.Correlation.POSMatchWindowS == 0 {
		d.Correlation.POSMatchWindowS = 10
	}
	if d.Correlation.MinBasketSize == 0 {
		d.Correlation.MinBasketSize = 3
	}
	if d.Correlation.WeightVarianceFloor == 0 {
		d.Correlation.WeightVarianceFloor = 25
	}
	if d.Correlation.SensorRatio == 0 {
		d.Correlation.SensorRatio = 0.25
	}
	if d.Correlation.MinPOSVolume == 0 {
		d.Correlation.MinPOSVolume = 4
	}
	if d.Session.TimeoutS == 0 {
		d.Session.TimeoutS = 300
	}
	if d.Session.RapidGapS == 0 {
		d.Session.RapidGapS = 5
	}
	if d.Session.ShortSessionS == 0 {
		d.Session.ShortSessionS = 30
	}
	if d.Session.ShortSessionMinScans == 0 {
		d.Session.ShortSessionMinScans = 3
	}
	if d.Session.SweepIntervalS == 0 {
		d.Session.SweepIntervalS = 30
	}
}
