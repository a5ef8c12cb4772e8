package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when neither a path nor CONFIG is given
const DefaultPath = "adaptation.yaml"

var validate = validator.New()

// Loader handles loading the adaptation manager configuration
type Loader struct {
	configPath string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a new configuration loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		lookupEnv:  os.LookupEnv,
	}
}

// Path returns the file the loader reads
func (l *Loader) Path() string {
	if l.configPath != "" {
		return l.configPath
	}
	if p, ok := l.lookupEnv("CONFIG"); ok && p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the file (if present) over the defaults, applies environment
// overrides and validates the result. The configuration is read once at startup.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()
	path := l.Path()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		// defaults only
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromBytes parses YAML over the defaults and validates it
func LoadFromBytes(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Save writes cfg as YAML to the loader path
func (l *Loader) Save(cfg *Config) error {
	path := l.Path()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	if v, ok := l.env("ADAPTATION_PERIOD"); ok {
		period, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid ADAPTATION_PERIOD %q: %w", v, err)
		}
		cfg.AdaptationPeriod = period
	}
	if v, ok := l.env("LISTEN_ADDR"); ok {
		cfg.ListenAddr = v
	}
	if v, ok := l.env("METRICS_URL"); ok {
		cfg.Services.MetricsURL = v
	}
	if v, ok := l.env("KNOBS_URL"); ok {
		cfg.Services.KnobsURL = v
	}
	if v, ok := l.env("BLACKBOARD_URL"); ok {
		cfg.Services.BlackboardURL = v
	}
	if v, ok := l.env("RETRY_DELAY"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid RETRY_DELAY %q: %w", v, err)
		}
		cfg.Retry.Delay = d
	}
	if v, ok := l.env("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := l.env("LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	if v, ok := l.env("JAEGER_ENDPOINT"); ok {
		cfg.Tracing.Enabled = true
		cfg.Tracing.JaegerEndpoint = v
	}
	if v, ok := l.env("HISTORY_DRIVER"); ok {
		cfg.History.Driver = v
	}
	if v, ok := l.env("HISTORY_PATH"); ok {
		cfg.History.Path = v
	}
	return nil
}

func (l *Loader) env(key string) (string, bool) {
	v, ok := l.lookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
