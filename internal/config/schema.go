package config

import (
	"time"

	"github.com/coral-mesh/mcudbg/internal/constants"
	"github.com/coral-mesh/mcudbg/internal/debug"
	"github.com/coral-mesh/mcudbg/internal/logging"
	"github.com/coral-mesh/mcudbg/internal/probe"
	"github.com/coral-mesh/mcudbg/internal/retry"
)

// Config is the complete mcudbg configuration.
type Config struct {
	Probe       probe.Config          `yaml:"probe"`
	Session     debug.Config          `yaml:"session"`
	Workspace   debug.WorkspaceConfig `yaml:"workspace"`
	Breakpoints BreakpointsConfig     `yaml:"breakpoints"`
	Board       BoardConfig           `yaml:"board"`
	Logging     logging.Config        `yaml:"logging"`
}

// BreakpointsConfig describes the target's breakpoint hardware.
type BreakpointsConfig struct {
	// Slots is the number of hardware comparators.
	Slots int `yaml:"slots" env:"MCUDBG_BREAKPOINT_SLOTS"`
}

// BoardConfig controls board detection.
type BoardConfig struct {
	// Globs are the device-node patterns searched for boards.
	Globs []string `yaml:"globs" env:"MCUDBG_BOARD_GLOBS"`

	// DetectRetries is the number of enumeration attempts at session start.
	DetectRetries int `yaml:"detect_retries" env:"MCUDBG_DETECT_RETRIES"`
}

// Default returns the built-in configuration.
func Default() *Config {
	log := logging.DefaultConfig()
	log.Output = nil

	return &Config{
		Probe:   probe.DefaultConfig(),
		Session: debug.DefaultConfig(),
		Workspace: debug.WorkspaceConfig{
			LookaheadWindow: constants.DefaultLookaheadWindow,
			CacheSize:       4,
		},
		Breakpoints: BreakpointsConfig{Slots: constants.DefaultBreakpointSlots},
		Board: BoardConfig{
			Globs:         append([]string(nil), constants.DefaultBoardGlobs...),
			DetectRetries: constants.DefaultDetectRetries,
		},
		Logging: log,
	}
}

// DetectRetry returns the retry policy for board detection.
func (c *Config) DetectRetry() retry.Config {
	return retry.Config{
		MaxRetries:     c.Board.DetectRetries,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     time.Second,
	}
}
