package debug

import (
	"time"

	"github.com/coral-mesh/mcudbg/internal/constants"
	"github.com/coral-mesh/mcudbg/internal/retry"
)

// Config tunes session behavior.
type Config struct {
	// PreferredPort is used as-is instead of auto-detection when set.
	PreferredPort string `yaml:"preferred_port" env:"MCUDBG_PORT"`

	// AllowOffline starts an offline session when no board is found.
	AllowOffline bool `yaml:"allow_offline" env:"MCUDBG_ALLOW_OFFLINE"`

	// AutoHalt halts the target right after the session starts.
	AutoHalt bool `yaml:"auto_halt" env:"MCUDBG_AUTO_HALT"`

	// LivenessInterval is how often attached boards are re-enumerated.
	LivenessInterval time.Duration `yaml:"liveness_interval" env:"MCUDBG_LIVENESS_INTERVAL"`

	// DisconnectThreshold is the run of consecutive disconnect-looking stderr
	// chunks that ends the session.
	DisconnectThreshold int `yaml:"disconnect_threshold" env:"MCUDBG_DISCONNECT_THRESHOLD"`

	// HaltIndicators are monitor stdout substrings meaning the target stopped.
	HaltIndicators []string `yaml:"halt_indicators"`

	// DisconnectIndicators are stderr substrings meaning the target is gone.
	DisconnectIndicators []string `yaml:"disconnect_indicators"`

	// MonitorGrace is how long the monitor gets to exit before it is killed.
	MonitorGrace time.Duration `yaml:"monitor_grace" env:"MCUDBG_MONITOR_GRACE"`

	// MaxVariableReads caps the memory reads of one variables snapshot.
	MaxVariableReads int `yaml:"max_variable_reads"`
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		LivenessInterval:     constants.DefaultLivenessInterval,
		DisconnectThreshold:  constants.DefaultDisconnectThreshold,
		HaltIndicators:       append([]string(nil), constants.DefaultHaltIndicators...),
		DisconnectIndicators: append([]string(nil), constants.DefaultDisconnectIndicators...),
		MonitorGrace:         constants.DefaultKillGrace,
		MaxVariableReads:     constants.DefaultMaxVariableReads,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = def.LivenessInterval
	}
	if c.DisconnectThreshold <= 0 {
		c.DisconnectThreshold = def.DisconnectThreshold
	}
	if len(c.HaltIndicators) == 0 {
		c.HaltIndicators = def.HaltIndicators
	}
	if len(c.DisconnectIndicators) == 0 {
		c.DisconnectIndicators = def.DisconnectIndicators
	}
	if c.MonitorGrace <= 0 {
		c.MonitorGrace = def.MonitorGrace
	}
	if c.MaxVariableReads <= 0 {
		c.MaxVariableReads = def.MaxVariableReads
	}
	return c
}

// StartOptions override configuration for one Start call.
type StartOptions struct {
	Port         string `json:"port,omitempty" jsonschema:"description=Serial port of the target; auto-detected when empty"`
	AllowOffline bool   `json:"allow_offline,omitempty" jsonschema:"description=Start an offline session when no board is found"`
	AutoHalt     bool   `json:"auto_halt,omitempty" jsonschema:"description=Halt the target as soon as the session starts"`
}

// Option configures a Controller.
type Option func(*Controller)

// WithBreakpointSlots sets the number of hardware breakpoint slots.
func WithBreakpointSlots(n int) Option {
	return func(c *Controller) { c.slots = n }
}

// WithDetectRetry sets how board detection retries.
func WithDetectRetry(cfg retry.Config) Option {
	return func(c *Controller) { c.detectRetry = cfg }
}

func defaultDetectRetry() retry.Config {
	return retry.Config{
		MaxRetries:     constants.DefaultDetectRetries,
		InitialBackoff: 250 * time.Millisecond,
		MaxBackoff:     time.Second,
	}
}
