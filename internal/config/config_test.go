package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coral-mesh/mcudbg/internal/constants"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLayeredLoader_DefaultsOnly(t *testing.T) {
	l := NewLayeredLoader()
	l.lookupEnv = noEnv

	cfg, err := l.Load("", nil)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, constants.DefaultToolPath, cfg.Probe.ToolPath)
	assert.Equal(t, constants.DefaultBreakpointSlots, cfg.Breakpoints.Slots)
	assert.Equal(t, constants.DefaultDisconnectThreshold, cfg.Session.DisconnectThreshold)
	assert.Equal(t, constants.DefaultBoardGlobs, cfg.Board.Globs)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLayeredLoader_MissingFileIsNotAnError(t *testing.T) {
	l := NewLayeredLoader()
	l.lookupEnv = noEnv

	cfg, err := l.Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultBreakpointSlots, cfg.Breakpoints.Slots)
}

func TestLayeredLoader_InvalidYAML(t *testing.T) {
	l := NewLayeredLoader()
	l.lookupEnv = noEnv

	_, err := l.Load(writeConfig(t, "probe: [unterminated"), nil)
	assert.Error(t, err)
}

func TestLayeredLoader_Precedence(t *testing.T) {
	path := writeConfig(t, `
probe:
  tool_path: /opt/probe/bin/probe-cli
  timeout: 3s
session:
  preferred_port: /dev/ttyACM3
  halt_indicators: ["BKPT"]
workspace:
  disassembly: build/firmware.lst
breakpoints:
  slots: 6
`)

	l := NewLayeredLoader()
	l.lookupEnv = envMap(map[string]string{
		"MCUDBG_PORT":        "/dev/ttyUSB0",
		"MCUDBG_BOARD_GLOBS": "/dev/ttyS*, /dev/ttyAMA*",
		"MCUDBG_LOG_LEVEL":   "debug",
	})

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "COM4", "--breakpoint-slots", "8"}))

	cfg, err := l.Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, "/opt/probe/bin/probe-cli", cfg.Probe.ToolPath, "file")
	assert.Equal(t, 3*time.Second, cfg.Probe.Timeout, "file")
	assert.Equal(t, []string{"BKPT"}, cfg.Session.HaltIndicators, "file")
	assert.Equal(t, "build/firmware.lst", cfg.Workspace.DisassemblyPath, "file")
	assert.Equal(t, []string{"/dev/ttyS*", "/dev/ttyAMA*"}, cfg.Board.Globs, "env")
	assert.Equal(t, "debug", cfg.Logging.Level, "env")
	assert.Equal(t, "COM4", cfg.Session.PreferredPort, "flag over env over file")
	assert.Equal(t, 8, cfg.Breakpoints.Slots, "flag over file")
	assert.Equal(t, constants.DefaultLookaheadWindow, cfg.Workspace.LookaheadWindow, "default kept")
}

func TestLayeredLoader_UnsetFlagsDoNotOverride(t *testing.T) {
	l := NewLayeredLoader()
	l.lookupEnv = envMap(map[string]string{"MCUDBG_PROBE_TOOL": "/usr/bin/probe"})

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	cfg, err := l.Load("", fs)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/probe", cfg.Probe.ToolPath)
	assert.Equal(t, constants.DefaultBreakpointSlots, cfg.Breakpoints.Slots)
}

func TestLayeredLoader_DisabledLayers(t *testing.T) {
	l := NewLayeredLoader()
	l.DisableLayer(LayerDefaults)
	l.DisableLayer(LayerEnv)

	cfg, err := l.Load(writeConfig(t, "breakpoints:\n  slots: 2\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Breakpoints.Slots)
	assert.Empty(t, cfg.Probe.ToolPath)

	l.EnableLayer(LayerDefaults)
	cfg, err = l.Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, constants.DefaultToolPath, cfg.Probe.ToolPath)
}

func TestLoadFromEnv_Types(t *testing.T) {
	cfg := Default()
	err := loadFromEnv(reflect.ValueOf(cfg), envMap(map[string]string{
		"MCUDBG_ALLOW_OFFLINE":        "true",
		"MCUDBG_LIVENESS_INTERVAL":    "250ms",
		"MCUDBG_DISCONNECT_THRESHOLD": "7",
	}))
	require.NoError(t, err)

	assert.True(t, cfg.Session.AllowOffline)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.LivenessInterval)
	assert.Equal(t, 7, cfg.Session.DisconnectThreshold)
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	tests := map[string]string{
		"MCUDBG_ALLOW_OFFLINE":        "maybe",
		"MCUDBG_LIVENESS_INTERVAL":    "often",
		"MCUDBG_DISCONNECT_THRESHOLD": "five",
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			err := loadFromEnv(reflect.ValueOf(Default()), envMap(map[string]string{name: value}))
			require.Error(t, err)
			assert.Contains(t, err.Error(), name)
		})
	}
}

func TestLoadFromEnv_Process(t *testing.T) {
	t.Setenv("MCUDBG_AUTO_HALT", "1")

	cfg := Default()
	require.NoError(t, LoadFromEnv(cfg))
	assert.True(t, cfg.Session.AutoHalt)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Probe.Timeout = -time.Second
	cfg.Breakpoints.Slots = 0
	cfg.Board.Globs = []string{"/dev/tty[ACM*"}
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)

	var multi *MultiValidationError
	require.True(t, errors.As(err, &multi))

	fields := make([]string, len(multi.Errors))
	for i, e := range multi.Errors {
		fields[i] = e.Field
	}
	assert.Equal(t, []string{"probe.timeout", "breakpoints.slots", "board.globs", "logging.level"}, fields)
	assert.Contains(t, err.Error(), "validation failed with 4 errors")
}

func TestValidate_SingleError(t *testing.T) {
	cfg := Default()
	cfg.Board.DetectRetries = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, "board.detect_retries: detect retries must be positive", err.Error())
}

func TestSaveAndLoad(t *testing.T) {
	t.Setenv(DirEnv, t.TempDir())
	path := DefaultPath()

	cfg := Default()
	cfg.Session.PreferredPort = "/dev/ttyACM9"
	require.NoError(t, Save(path, cfg))

	loaded, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyACM9", loaded.Session.PreferredPort)
}

func TestDir(t *testing.T) {
	t.Setenv(DirEnv, "/etc/mcudbg")
	assert.Equal(t, "/etc/mcudbg", Dir())
	assert.Equal(t, filepath.Join("/etc/mcudbg", constants.ConfigFile), DefaultPath())
}
