// Package config implements the 'mcudbg config' command family.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/mcudbg/internal/cli/helpers"
	"github.com/coral-mesh/mcudbg/internal/config"
)

// NewConfigCmd creates the config command and its subcommands.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage mcudbg configuration",
		Long: `Manage mcudbg configuration.

Configuration Priority (highest first):
  1. Command-line flags
  2. MCUDBG_* environment variables
  3. Config file (--config, default ~/.mcudbg/config.yaml)
  4. Built-in defaults

Environment Variables:
  MCUDBG_CONFIG_DIR  Override config directory (default: ~/.mcudbg)`,
	}

	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newPathCmd())
	cmd.AddCommand(newValidateCmd())

	return cmd
}

// newShowCmd creates the 'config show' command.
func newShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after merging defaults, the config file,
environment variables and flags.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, []helpers.OutputFormat{helpers.FormatYAML, helpers.FormatJSON}); err != nil {
				return err
			}
			cfg, err := helpers.LoadConfig(cmd)
			if err != nil {
				return err
			}
			return helpers.Print(cmd.OutOrStdout(), format, cfg)
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatYAML, []helpers.OutputFormat{
		helpers.FormatYAML,
		helpers.FormatJSON,
	})

	return cmd
}

// newInitCmd creates the 'config init' command.
func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := helpers.ConfigPath(cmd)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("failed to check config file: %w", err)
			}

			if err := config.Save(path, config.Default()); err != nil {
				return err
			}
			cmd.Printf("Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

// newPathCmd creates the 'config path' command.
func newPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the path of the config file in use",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), helpers.ConfigPath(cmd))
			return err
		},
	}
}

// newValidateCmd creates the 'config validate' command.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration for errors",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := helpers.LoadConfig(cmd); err != nil {
				return err
			}
			cmd.Println("Configuration is valid")
			return nil
		},
	}
}
