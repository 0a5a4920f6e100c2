// Package constants defines shared configuration constants.
package constants

var (
	ConfigFile = "config.yaml"

	DefaultDir = ".mcudbg"

	// DefaultToolPath is the debug-probe executable looked up on PATH when no
	// explicit path is configured.
	DefaultToolPath = "probe-cli"

	// OfflinePort is the transport identifier of the offline board sentinel.
	OfflinePort = "offline"

	// EnvPrefix prefixes every environment variable read by the config loader.
	EnvPrefix = "MCUDBG_"

	DefaultHistoryFile = DefaultDir + "/" + "console_history"
)

// DefaultBoardGlobs lists the device nodes that serial debug probes usually show up as.
var DefaultBoardGlobs = []string{
	"/dev/ttyACM*",
	"/dev/ttyUSB*",
	"/dev/cu.usbmodem*",
	"/dev/cu.usbserial*",
}

// DefaultHaltIndicators are monitor stdout substrings meaning the target stopped.
var DefaultHaltIndicators = []string{
	"Target halted",
	"HALTED",
	"stopping monitor",
}

// DefaultDisconnectIndicators are probe stderr substrings that point at a lost transport.
var DefaultDisconnectIndicators = []string{
	"Permission denied",
	"Access is denied",
	"could not open port",
	"No such file or directory",
	"not found",
	"Connection refused",
	"Invalid handle",
	"device disconnected",
}
