package config

import (
	"time"

	"github.com/snow-ghost/adaptmgr/pkg/logging"
	"github.com/snow-ghost/adaptmgr/pkg/tracing"
)

// Services names the remote endpoints the controller talks to
type Services struct {
	MetricsURL    string        `json:"metrics_url" yaml:"metrics_url" validate:"required,url"`
	KnobsURL      string        `json:"knobs_url" yaml:"knobs_url" validate:"required,url"`
	BlackboardURL string        `json:"blackboard_url" yaml:"blackboard_url" validate:"required,url"`
	Timeout       time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`
}

// Retry controls how fetches wait for a service to come up
type Retry struct {
	Delay       time.Duration `json:"delay" yaml:"delay" validate:"gt=0"`
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts" validate:"gte=0"` // 0 waits forever
}

// Breaker configures the per-service circuit breaker
type Breaker struct {
	MaxRequests uint32        `json:"max_requests" yaml:"max_requests" validate:"gte=1"`
	Interval    time.Duration `json:"interval" yaml:"interval" validate:"gte=0"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout" validate:"gt=0"`
	Failures    uint32        `json:"failures" yaml:"failures" validate:"gte=1"`
}

// History selects where cycle records go
type History struct {
	Driver string `json:"driver" yaml:"driver" validate:"oneof=memory sqlite"`
	Path   string `json:"path" yaml:"path" validate:"required_if=Driver sqlite"`
	Limit  int    `json:"limit" yaml:"limit" validate:"gte=0"`
}

// Cache sizes the configuration space memo
type Cache struct {
	Size int `json:"size" yaml:"size" validate:"gte=0"`
}

// RateLimit bounds inbound HTTP requests per client
type RateLimit struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second" validate:"gt=0"`
	Burst             int     `json:"burst" yaml:"burst" validate:"gte=1"`
}

// Config is the full adaptation manager configuration
type Config struct {
	// AdaptationPeriod is the cycle period in whole seconds.
	AdaptationPeriod int            `json:"adaptation_period" yaml:"adaptation_period" validate:"gt=0"`
	ListenAddr       string         `json:"listen_addr" yaml:"listen_addr" validate:"required"`
	Services         Services       `json:"services" yaml:"services"`
	Retry            Retry          `json:"retry" yaml:"retry"`
	Breaker          Breaker        `json:"breaker" yaml:"breaker"`
	Log              logging.Config `json:"log" yaml:"log"`
	Tracing          tracing.Config `json:"tracing" yaml:"tracing"`
	History          History        `json:"history" yaml:"history"`
	Cache            Cache          `json:"cache" yaml:"cache"`
	RateLimit        RateLimit      `json:"rate_limit" yaml:"rate_limit"`
}

// Period returns the adaptation period as a duration
func (c *Config) Period() time.Duration {
	return time.Duration(c.AdaptationPeriod) * time.Second
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		AdaptationPeriod: 8,
		ListenAddr:       ":8090",
		Services: Services{
			MetricsURL:    "http://localhost:8091/get_qr",
			KnobsURL:      "http://localhost:8091/get_variable_params",
			BlackboardURL: "http://localhost:8091/set_blackboard",
			Timeout:       5 * time.Second,
		},
		Retry: Retry{
			Delay:       time.Second,
			MaxAttempts: 0,
		},
		Breaker: Breaker{
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     5 * time.Second,
			Failures:    3,
		},
		Log:     logging.DefaultConfig(),
		Tracing: tracing.Config{ServiceName: "adaptation-manager", Environment: "development"},
		History: History{Driver: "memory", Limit: 1000},
		Cache:   Cache{Size: 16},
		RateLimit: RateLimit{
			RequestsPerSecond: 20,
			Burst:             40,
		},
	}
}
