package cli

import (
	"github.com/spf13/cobra"

	clicfg "github.com/coral-mesh/mcudbg/internal/cli/config"
	"github.com/coral-mesh/mcudbg/internal/cli/helpers"
	"github.com/coral-mesh/mcudbg/internal/config"
	"github.com/coral-mesh/mcudbg/internal/errors"
	"github.com/coral-mesh/mcudbg/pkg/version"
)

// NewRootCmd builds the mcudbg command tree.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mcudbg",
		Short: "mcudbg - source-level debugging for microcontrollers over a serial probe",
		Long: `Debug firmware on a microcontroller attached through a serial debug probe.

mcudbg drives the probe's command-line tool to halt, step and resume the
target, read and write registers and memory, and manage the target's hardware
breakpoints. Source locations are mapped to addresses using the firmware's
disassembly listing and ELF image.

Run it interactively with 'mcudbg console', or let an IDE drive it over the
Model Context Protocol with 'mcudbg serve'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String(helpers.FlagConfig, "", "Config file (default ~/.mcudbg/config.yaml)")
	config.RegisterFlags(rootCmd.PersistentFlags())
	for _, name := range []string{helpers.FlagConfig, config.FlagDisassembly, config.FlagImage} {
		errors.Must(rootCmd.MarkPersistentFlagFilename(name), "failed to mark --"+name+" as a file flag")
	}

	rootCmd.AddCommand(newConsoleCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSymbolsCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(clicfg.NewConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("mcudbg version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
