package helpers

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coral-mesh/mcudbg/internal/config"
	"github.com/coral-mesh/mcudbg/internal/logging"
)

// FlagConfig names the persistent flag selecting the configuration file.
const FlagConfig = "config"

// ConfigPath returns the --config flag value, or the default path.
func ConfigPath(cmd *cobra.Command) string {
	if path, err := cmd.Flags().GetString(FlagConfig); err == nil && path != "" {
		return path
	}
	return config.DefaultPath()
}

// LoadConfig loads the configuration for cmd from the file, the environment and
// the command's flags.
func LoadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(ConfigPath(cmd), cmd.Flags())
}

// NewLogger builds the command logger from cfg.
func NewLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.LoggingConfig())
}
