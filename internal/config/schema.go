// Package config provides typed, validated configuration for the engine.
// Configuration resolution order (highest priority first):
// 1. Environment variables (LATERAL_*)
// 2. Config file (~/.lateral/config.json or LATERAL_CONFIG_PATH)
// 3. Defaults
package config

import "time"

// Config is the top-level configuration structure.
type Config struct {
	// Session controls session registry capacity and eviction.
	Session SessionConfig `json:"session"`

	// Timeouts controls the execution/progress/dependency timers.
	Timeouts TimeoutConfig `json:"timeouts"`

	// Gatekeeper controls completion enforcement.
	Gatekeeper GatekeeperConfig `json:"gatekeeper"`

	// Telemetry controls observability.
	Telemetry TelemetryConfig `json:"telemetry"`

	// Storage controls the persistence backend.
	Storage StorageConfig `json:"storage"`
}

// SessionConfig controls the in-memory session registry.
type SessionConfig struct {
	// MaxTrackedSessions caps concurrent tracked sessions (0 falls back to the default of 1000).
	MaxTrackedSessions int `json:"max_tracked_sessions" env:"LATERAL_MAX_TRACKED_SESSIONS" default:"1000"`

	// IdleExpiry evicts sessions that haven't progressed in this long.
	IdleExpiry time.Duration `json:"idle_expiry" env:"LATERAL_SESSION_IDLE_EXPIRY" default:"30m"`

	// MaxParallelSessions caps sessions held open inside one parallel group.
	MaxParallelSessions int `json:"max_parallel_sessions" env:"LATERAL_MAX_PARALLEL_SESSIONS" default:"20"`
}

// TimeoutConfig controls the three execution-timeout presets plus the
// progress-stale and dependency-wait timers (spec §4.10).
type TimeoutConfig struct {
	// ExecutionTimeout is the default ceiling on a single technique step.
	ExecutionTimeout time.Duration `json:"execution_timeout" env:"LATERAL_EXECUTION_TIMEOUT" default:"5m"`

	// ExecutionTimeoutFast is used for lightweight techniques.
	ExecutionTimeoutFast time.Duration `json:"execution_timeout_fast" env:"LATERAL_EXECUTION_TIMEOUT_FAST" default:"30s"`

	// ExecutionTimeoutExtended is used for techniques flagged long-running.
	ExecutionTimeoutExtended time.Duration `json:"execution_timeout_extended" env:"LATERAL_EXECUTION_TIMEOUT_EXTENDED" default:"15m"`

	// StaleThreshold marks a session "progress-stale" after this much
	// wall-clock time without a step completing.
	StaleThreshold time.Duration `json:"stale_threshold" env:"LATERAL_STALE_THRESHOLD" default:"2m"`

	// DependencyWait is how long a session may sit "waiting" on a parallel
	// group dependency before the dependency-wait timer fires.
	DependencyWait time.Duration `json:"dependency_wait" env:"LATERAL_DEPENDENCY_WAIT" default:"3m"`
}

// GatekeeperConfig controls completion enforcement (spec §4.9).
type GatekeeperConfig struct {
	// Level is one of "none", "lenient", "standard", "strict".
	Level string `json:"level" env:"LATERAL_GATEKEEPER_LEVEL" default:"standard"`

	// MinimumCompletionThreshold is the overallProgress floor strict
	// enforcement requires, and lenient enforcement warns below.
	MinimumCompletionThreshold float64 `json:"minimum_completion_threshold" env:"LATERAL_GATEKEEPER_MIN_COMPLETION" default:"0.60"`

	// RequireConfirmationThreshold is the overallProgress floor below which
	// standard enforcement demands explicit confirmation to proceed.
	RequireConfirmationThreshold float64 `json:"require_confirmation_threshold" env:"LATERAL_GATEKEEPER_REQUIRE_CONFIRMATION" default:"0.80"`

	// CriticalTechniques always require explicit confirmation regardless of level.
	CriticalTechniques []string `json:"critical_techniques" env:"LATERAL_GATEKEEPER_CRITICAL_TECHNIQUES" default:"six_hats,scamper"`
}

// TelemetryConfig controls observability.
type TelemetryConfig struct {
	Enabled       bool   `json:"enabled" env:"LATERAL_TELEMETRY_ENABLED" default:"true"`
	Level         string `json:"level" env:"LATERAL_LOG_LEVEL" default:"info"`
	Storage       string `json:"storage" env:"LATERAL_TELEMETRY_STORAGE" default:"memory"`
	PrivacyMode   bool   `json:"privacy_mode" env:"LATERAL_TELEMETRY_PRIVACY_MODE" default:"true"`
	BatchSize     int    `json:"batch_size" env:"LATERAL_TELEMETRY_BATCH_SIZE" default:"50"`
	FlushInterval time.Duration `json:"flush_interval" env:"LATERAL_TELEMETRY_FLUSH_INTERVAL" default:"10s"`
}

// StorageConfig controls the persistence backend.
type StorageConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `json:"driver" env:"LATERAL_STORAGE_DRIVER" default:"sqlite"`

	// DSN is the database path/connection string.
	DSN string `json:"dsn" env:"LATERAL_STORAGE_DSN" default:"file:lateral.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			MaxTrackedSessions:  1000,
			IdleExpiry:          30 * time.Minute,
			MaxParallelSessions: 20,
		},
		Timeouts: TimeoutConfig{
			ExecutionTimeout:         5 * time.Minute,
			ExecutionTimeoutFast:     30 * time.Second,
			ExecutionTimeoutExtended: 15 * time.Minute,
			StaleThreshold:           2 * time.Minute,
			DependencyWait:           3 * time.Minute,
		},
		Gatekeeper: GatekeeperConfig{
			Level:                        "standard",
			MinimumCompletionThreshold:   0.60,
			RequireConfirmationThreshold: 0.80,
			CriticalTechniques:           []string{"six_hats", "scamper"},
		},
		Telemetry: TelemetryConfig{
			Enabled:       true,
			Level:         "info",
			Storage:       "memory",
			PrivacyMode:   true,
			BatchSize:     50,
			FlushInterval: 10 * time.Second,
		},
		Storage: StorageConfig{
			Driver: "sqlite",
			DSN:    "file:lateral.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		},
	}
}
