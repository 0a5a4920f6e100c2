package config

import (
	"fmt"
	"path"
	"strings"

	"github.com/coral-mesh/mcudbg/internal/logging"
)

// Validator is the interface for validating configuration.
type Validator interface {
	Validate() error
}

// ValidationError represents a single validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// MultiValidationError represents multiple validation errors.
type MultiValidationError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *MultiValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}

	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "validation failed with %d errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&builder, "  %d. %s\n", i+1, err.Error())
	}
	return builder.String()
}

var logLevels = map[string]bool{
	"": true, "trace": true, "debug": true, "info": true,
	"warn": true, "warning": true, "error": true, "disabled": true, "off": true,
}

// Validate validates Config. Zero durations and counts are allowed where the
// consuming package substitutes its own default.
func (c *Config) Validate() error {
	var errs []ValidationError
	add := func(field, msg string) {
		errs = append(errs, ValidationError{Field: field, Message: msg})
	}

	if c.Probe.Timeout < 0 {
		add("probe.timeout", "timeout must not be negative")
	}
	if c.Probe.KillGrace < 0 {
		add("probe.kill_grace", "kill grace must not be negative")
	}

	if c.Session.LivenessInterval < 0 {
		add("session.liveness_interval", "liveness interval must not be negative")
	}
	if c.Session.DisconnectThreshold < 0 {
		add("session.disconnect_threshold", "disconnect threshold must not be negative")
	}
	if c.Session.MonitorGrace < 0 {
		add("session.monitor_grace", "monitor grace must not be negative")
	}
	if c.Session.MaxVariableReads < 0 {
		add("session.max_variable_reads", "max variable reads must not be negative")
	}

	if c.Workspace.LookaheadWindow < 0 {
		add("workspace.lookahead_window", "lookahead window must not be negative")
	}
	if c.Workspace.CacheSize < 0 {
		add("workspace.cache_size", "cache size must not be negative")
	}

	if c.Breakpoints.Slots <= 0 {
		add("breakpoints.slots", "at least one breakpoint slot is required")
	}

	if c.Board.DetectRetries <= 0 {
		add("board.detect_retries", "detect retries must be positive")
	}
	for _, g := range c.Board.Globs {
		if _, err := path.Match(g, ""); err != nil {
			add("board.globs", fmt.Sprintf("invalid pattern %q", g))
		}
	}

	if !logLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", fmt.Sprintf("unknown level %q", c.Logging.Level))
	}

	if len(errs) > 0 {
		return &MultiValidationError{Errors: errs}
	}
	return nil
}

// LoggingConfig returns the logging section with stderr as the output.
func (c *Config) LoggingConfig() logging.Config {
	cfg := c.Logging
	if cfg.Output == nil {
		cfg.Output = logging.DefaultConfig().Output
	}
	return cfg
}
