package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Layer represents a configuration layer source.
type Layer string

const (
	// LayerDefaults represents default configuration values.
	LayerDefaults Layer = "defaults"

	// LayerFile represents configuration from a file.
	LayerFile Layer = "file"

	// LayerEnv represents configuration from environment variables.
	LayerEnv Layer = "env"

	// LayerFlags represents configuration from command-line flags.
	LayerFlags Layer = "flags"
)

// LayeredLoader loads configuration in layers, each overriding the previous:
// defaults, the YAML file, environment variables, then flags that were set
// explicitly on the command line.
type LayeredLoader struct {
	enabledLayers map[Layer]bool
	lookupEnv     func(string) (string, bool)
}

// NewLayeredLoader creates a loader with every layer enabled.
func NewLayeredLoader() *LayeredLoader {
	return &LayeredLoader{
		enabledLayers: map[Layer]bool{
			LayerDefaults: true,
			LayerFile:     true,
			LayerEnv:      true,
			LayerFlags:    true,
		},
		lookupEnv: os.LookupEnv,
	}
}

// EnableLayer enables a specific configuration layer.
func (l *LayeredLoader) EnableLayer(layer Layer) {
	l.enabledLayers[layer] = true
}

// DisableLayer disables a specific configuration layer.
func (l *LayeredLoader) DisableLayer(layer Layer) {
	l.enabledLayers[layer] = false
}

// Load builds the configuration. A missing file at path is not an error; an
// empty path skips the file layer. flags may be nil.
func (l *LayeredLoader) Load(path string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{}
	if l.enabledLayers[LayerDefaults] {
		cfg = Default()
	}

	if l.enabledLayers[LayerFile] && path != "" {
		if err := mergeFromFile(cfg, path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if l.enabledLayers[LayerEnv] {
		if err := loadFromEnv(reflect.ValueOf(cfg), l.lookupEnv); err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
	}

	if l.enabledLayers[LayerFlags] && flags != nil {
		if err := ApplyFlags(cfg, flags); err != nil {
			return nil, fmt.Errorf("failed to apply flags: %w", err)
		}
	}

	return cfg, nil
}

func mergeFromFile(cfg *Config, path string) error {
	// #nosec G304 -- path is the user's own configuration file.
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// Flag names bound to configuration fields.
const (
	FlagPort         = "port"
	FlagOffline      = "offline"
	FlagAutoHalt     = "auto-halt"
	FlagProbeTool    = "probe-tool"
	FlagProbeVerbose = "probe-verbose"
	FlagProbeTimeout = "probe-timeout"
	FlagDisassembly  = "disassembly"
	FlagImage        = "image"
	FlagSlots        = "breakpoint-slots"
	FlagLogLevel     = "log-level"
)

// RegisterFlags adds the configuration flags to fs. Their defaults are zero
// values; only flags set explicitly override the other layers.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagPort, "", "serial port of the target (auto-detected when empty)")
	fs.Bool(FlagOffline, false, "start an offline session when no board is found")
	fs.Bool(FlagAutoHalt, false, "halt the target when the session starts")
	fs.String(FlagProbeTool, "", "path to the probe tool")
	fs.Bool(FlagProbeVerbose, false, "pass --verbose to the probe tool")
	fs.Duration(FlagProbeTimeout, 0, "timeout of a single probe command")
	fs.String(FlagDisassembly, "", "disassembly listing of the firmware (objdump -d -l)")
	fs.String(FlagImage, "", "linked ELF image of the firmware")
	fs.Int(FlagSlots, 0, "number of hardware breakpoint slots")
	fs.String(FlagLogLevel, "", "log level (trace, debug, info, warn, error)")
}

// ApplyFlags copies explicitly set flags of fs into cfg. Flags that were not
// registered with RegisterFlags are ignored.
func ApplyFlags(cfg *Config, fs *pflag.FlagSet) error {
	var errs []error
	str := func(name string, dst *string) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			v, err := fs.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			v, err := fs.GetBool(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	duration := func(name string, dst *time.Duration) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			v, err := fs.GetDuration(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if f := fs.Lookup(name); f != nil && f.Changed {
			v, err := fs.GetInt(name)
			errs = append(errs, err)
			*dst = v
		}
	}

	str(FlagPort, &cfg.Session.PreferredPort)
	boolean(FlagOffline, &cfg.Session.AllowOffline)
	boolean(FlagAutoHalt, &cfg.Session.AutoHalt)
	str(FlagProbeTool, &cfg.Probe.ToolPath)
	boolean(FlagProbeVerbose, &cfg.Probe.Verbose)
	duration(FlagProbeTimeout, &cfg.Probe.Timeout)
	str(FlagDisassembly, &cfg.Workspace.DisassemblyPath)
	str(FlagImage, &cfg.Workspace.ImagePath)
	integer(FlagSlots, &cfg.Breakpoints.Slots)
	str(FlagLogLevel, &cfg.Logging.Level)

	return errors.Join(errs...)
}
