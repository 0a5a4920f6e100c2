package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/mcudbg/internal/cli/helpers"
	"github.com/coral-mesh/mcudbg/internal/errors"
	"github.com/coral-mesh/mcudbg/internal/ide"
	"github.com/coral-mesh/mcudbg/pkg/version"
)

func newServeCmd() *cobra.Command {
	var tools []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the debugger to an IDE over MCP on stdio",
		Long: `Runs a Model Context Protocol server on standard input and output.

Every debugger operation is exposed as an mcudbg_* tool, and session events are
pushed to the client as notifications/mcudbg/event notifications. Logs go to
standard error since standard output carries the protocol.

Example MCP client configuration:
  {
    "mcpServers": {
      "mcudbg": {
        "command": "mcudbg",
        "args": ["serve", "--disassembly", "build/firmware.lst"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := helpers.LoadConfig(cmd)
			if err != nil {
				return err
			}
			cfg.Logging.Output = os.Stderr
			logger := helpers.NewLogger(cfg)

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			ctrl := newController(cfg, logger)
			defer errors.DeferStop(logger, ctrl, 5*time.Second, "Failed to stop debug session")

			server := ide.New(ctrl, ide.Config{
				Name:         "mcudbg",
				Version:      version.Version,
				EnabledTools: tools,
			}, logger)
			return server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVar(&tools, "tools", nil, "Tools to expose (default all); entries may end in '*'")

	return cmd
}
