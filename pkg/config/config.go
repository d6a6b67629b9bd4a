package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Request   RequestConfig   `yaml:"request"`
	Map       MapConfig       `yaml:"map"`
	Document  DocumentConfig  `yaml:"document"`
	Publish   PublishConfig   `yaml:"publish"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	History   HistoryConfig   `yaml:"history"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // DEBUG, INFO, WARN, ERROR
	Path  string `yaml:"path"`  // optional log file, empty = stdout only
}

// RequestConfig holds HTTP request settings shared by the external providers.
type RequestConfig struct {
	Timeout Duration      `yaml:"timeout"`
	Retries int           `yaml:"retries"` // attempt ceiling for transient failures
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// MapConfig holds settings for the map rendering provider.
type MapConfig struct {
	ProviderURL   string   `yaml:"provider_url"`   // static-map render endpoint
	Scale         int      `yaml:"scale"`          // scale denominator, 1:N
	RenderTimeout Duration `yaml:"render_timeout"` // wall-clock budget per attempt
}

// DocumentConfig holds settings for the composed document.
type DocumentConfig struct {
	MapLabel string `yaml:"map_label"` // fixed overlay label on page 1
}

// PublishConfig holds settings for the artifact store.
type PublishConfig struct {
	APIBase string `yaml:"api_base"`
}

// SchedulerConfig holds settings for the ambient loop.
type SchedulerConfig struct {
	Interval      Duration `yaml:"interval"`       // trigger-to-trigger, not completion-to-trigger
	ShutdownGrace Duration `yaml:"shutdown_grace"` // how long an in-flight run may finish after a stop signal
}

// HistoryConfig holds settings for the run-history ledger.
type HistoryConfig struct {
	Path string `yaml:"path"` // sqlite database file, empty = disabled
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "INFO",
		},
		Request: RequestConfig{
			Timeout: Duration(60 * time.Second),
			Retries: 3,
			Backoff: BackoffConfig{
				BaseDelay: Duration(2 * time.Second),
				MaxDelay:  Duration(2 * time.Minute),
			},
		},
		Map: MapConfig{
			ProviderURL:   "https://render.osm-static.org/staticmap",
			Scale:         375000,
			RenderTimeout: Duration(3 * time.Minute),
		},
		Document: DocumentConfig{
			MapLabel: "Map 1",
		},
		Publish: PublishConfig{
			APIBase: "https://api.netlify.com/api/v1",
		},
		Scheduler: SchedulerConfig{
			Interval:      Duration(Day),
			ShutdownGrace: Duration(5 * time.Minute),
		},
		History: HistoryConfig{
			Path: "data/runs.db",
		},
	}
}

// Load reads the config file at path, layered over the defaults.
// A missing file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants the rest of the pipeline relies on.
func (c *Config) Validate() error {
	if c.Request.Retries < 1 {
		return fmt.Errorf("request.retries must be at least 1, got %d", c.Request.Retries)
	}
	if c.Map.Scale <= 0 {
		return fmt.Errorf("map.scale must be positive, got %d", c.Map.Scale)
	}
	if c.Map.ProviderURL == "" {
		return fmt.Errorf("map.provider_url must be set")
	}
	if c.Publish.APIBase == "" {
		return fmt.Errorf("publish.api_base must be set")
	}
	if time.Duration(c.Scheduler.Interval) <= 0 {
		return fmt.Errorf("scheduler.interval must be positive, got %s", time.Duration(c.Scheduler.Interval))
	}
	return nil
}

// Save writes the config as YAML to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
