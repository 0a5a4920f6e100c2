package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/coral-mesh/mcudbg/internal/cli/console"
	"github.com/coral-mesh/mcudbg/internal/cli/helpers"
	"github.com/coral-mesh/mcudbg/internal/constants"
	"github.com/coral-mesh/mcudbg/internal/debug"
	"github.com/coral-mesh/mcudbg/internal/errors"
)

func newConsoleCmd() *cobra.Command {
	var (
		script string
		start  bool
	)

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Open an interactive debugger console",
		Long: `Opens an interactive console attached to one debug session.

The console supports line editing, command history and tab completion.
Session events (breakpoint hits, disconnects) are printed as they happen.
Type 'help' inside the console for the list of commands.

When standard input is not a terminal, or with --script, commands are read one
per line and execution stops at the first failing command.

Examples:
  # Interactive session, auto-detecting the board
  mcudbg console --disassembly build/firmware.lst --start

  # Scripted session
  printf 'start\nhalt\nregs\n' | mcudbg console`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := helpers.LoadConfig(cmd)
			if err != nil {
				return err
			}
			logger := helpers.NewLogger(cfg)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			ctrl := newController(cfg, logger)
			defer errors.DeferStop(logger, ctrl, 5*time.Second, "Failed to stop debug session")

			c := console.New(ctrl, debug.StartOptions{}, cmd.OutOrStdout())
			if start {
				if err := c.Execute(ctx, "start"); err != nil {
					return err
				}
			}

			if script != "" {
				f, err := os.Open(script)
				if err != nil {
					return fmt.Errorf("failed to open script: %w", err)
				}
				defer errors.DeferClose(logger, f, "failed to close script")
				return c.RunScript(ctx, f)
			}

			in := cmd.InOrStdin()
			if !isTerminal(in) {
				return c.RunScript(ctx, in)
			}
			return c.RunInteractive(ctx, historyFile())
		},
	}

	cmd.Flags().StringVar(&script, "script", "", "Read commands from a file instead of the terminal")
	cmd.Flags().BoolVar(&start, "start", false, "Start a session before reading commands")

	return cmd
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, constants.DefaultHistoryFile)
}
