package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation error: %s: %s", e.Field, e.Message)
}

// ValidationResult contains validation errors.
type ValidationResult struct {
	Errors []*ValidationError
}

// Valid returns true if there are no validation errors.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// Error returns a formatted error string.
func (r *ValidationResult) Error() string {
	if r.Valid() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration.
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Errors: make([]*ValidationError, 0)}

	result.validateSession(c)
	result.validateTimeouts(c)
	result.validateGatekeeper(c)
	result.validateTelemetry(c)
	result.validateStorage(c)

	return result
}

func (r *ValidationResult) validateSession(c *Config) {
	if c.Session.MaxTrackedSessions < 0 {
		r.add("session.max_tracked_sessions", "must be >= 0 (0 = unlimited)")
	}
	if c.Session.IdleExpiry <= 0 {
		r.add("session.idle_expiry", "must be > 0")
	}
	if c.Session.MaxParallelSessions < 1 {
		r.add("session.max_parallel_sessions", "must be >= 1")
	}
}

func (r *ValidationResult) validateTimeouts(c *Config) {
	if c.Timeouts.ExecutionTimeout <= 0 {
		r.add("timeouts.execution_timeout", "must be > 0")
	}
	if c.Timeouts.ExecutionTimeoutFast <= 0 {
		r.add("timeouts.execution_timeout_fast", "must be > 0")
	}
	if c.Timeouts.ExecutionTimeoutExtended <= 0 {
		r.add("timeouts.execution_timeout_extended", "must be > 0")
	}
	if c.Timeouts.StaleThreshold <= 0 {
		r.add("timeouts.stale_threshold", "must be > 0")
	}
	if c.Timeouts.DependencyWait <= 0 {
		r.add("timeouts.dependency_wait", "must be > 0")
	}
}

func (r *ValidationResult) validateGatekeeper(c *Config) {
	switch c.Gatekeeper.Level {
	case "none", "lenient", "standard", "strict":
	default:
		r.add("gatekeeper.level", "must be one of: none, lenient, standard, strict")
	}
	if c.Gatekeeper.MinimumCompletionThreshold < 0 || c.Gatekeeper.MinimumCompletionThreshold > 1 {
		r.add("gatekeeper.minimum_completion_threshold", "must be in [0,1]")
	}
	if c.Gatekeeper.RequireConfirmationThreshold < 0 || c.Gatekeeper.RequireConfirmationThreshold > 1 {
		r.add("gatekeeper.require_confirmation_threshold", "must be in [0,1]")
	}
}

func (r *ValidationResult) validateTelemetry(c *Config) {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "fatal": true}
	if !validLevels[c.Telemetry.Level] {
		r.add("telemetry.level", "must be one of: debug, info, warn, error, fatal")
	}
	if c.Telemetry.Storage != "memory" && c.Telemetry.Storage != "sqlite" {
		r.add("telemetry.storage", "must be 'memory' or 'sqlite'")
	}
	if c.Telemetry.BatchSize < 1 {
		r.add("telemetry.batch_size", "must be >= 1")
	}
	if c.Telemetry.FlushInterval <= 0 {
		r.add("telemetry.flush_interval", "must be > 0")
	}
}

func (r *ValidationResult) validateStorage(c *Config) {
	if c.Storage.Driver != "sqlite" && c.Storage.Driver != "memory" {
		r.add("storage.driver", "must be 'sqlite' or 'memory'")
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		r.add("storage.dsn", "must not be empty when driver is sqlite")
	}
}

func (r *ValidationResult) add(field, message string) {
	r.Errors = append(r.Errors, &ValidationError{Field: field, Message: message})
}

// MustValidate validates the config and panics if invalid.
func (c *Config) MustValidate() {
	result := c.Validate()
	if !result.Valid() {
		panic(result.Error())
	}
}

// ValidateWithDefaults validates and applies defaults for missing values.
func (c *Config) ValidateWithDefaults() error {
	defaults := Default()

	if c.Session.MaxTrackedSessions == 0 {
		c.Session.MaxTrackedSessions = defaults.Session.MaxTrackedSessions
	}
	if c.Session.IdleExpiry == 0 {
		c.Session.IdleExpiry = defaults.Session.IdleExpiry
	}
	if c.Session.MaxParallelSessions == 0 {
		c.Session.MaxParallelSessions = defaults.Session.MaxParallelSessions
	}
	if c.Timeouts.ExecutionTimeout == 0 {
		c.Timeouts.ExecutionTimeout = defaults.Timeouts.ExecutionTimeout
	}
	if c.Timeouts.ExecutionTimeoutFast == 0 {
		c.Timeouts.ExecutionTimeoutFast = defaults.Timeouts.ExecutionTimeoutFast
	}
	if c.Timeouts.ExecutionTimeoutExtended == 0 {
		c.Timeouts.ExecutionTimeoutExtended = defaults.Timeouts.ExecutionTimeoutExtended
	}
	if c.Timeouts.StaleThreshold == 0 {
		c.Timeouts.StaleThreshold = defaults.Timeouts.StaleThreshold
	}
	if c.Timeouts.DependencyWait == 0 {
		c.Timeouts.DependencyWait = defaults.Timeouts.DependencyWait
	}
	if c.Gatekeeper.Level == "" {
		c.Gatekeeper.Level = defaults.Gatekeeper.Level
	}
	if c.Telemetry.Level == "" {
		c.Telemetry.Level = defaults.Telemetry.Level
	}
	if c.Telemetry.Storage == "" {
		c.Telemetry.Storage = defaults.Telemetry.Storage
	}
	if c.Telemetry.BatchSize == 0 {
		c.Telemetry.BatchSize = defaults.Telemetry.BatchSize
	}
	if c.Telemetry.FlushInterval == 0 {
		c.Telemetry.FlushInterval = defaults.Telemetry.FlushInterval
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaults.Storage.Driver
	}
	if c.Storage.DSN == "" {
		c.Storage.DSN = defaults.Storage.DSN
	}

	result := c.Validate()
	if !result.Valid() {
		return fmt.Errorf("configuration validation failed: %s", result.Error())
	}

	return nil
}
