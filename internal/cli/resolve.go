package cli

import (
	"github.com/spf13/cobra"

	"github.com/coral-mesh/mcudbg/internal/addrmap"
	"github.com/coral-mesh/mcudbg/internal/cli/helpers"
)

func newResolveCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "resolve <file:line|function|address>",
		Short: "Map a source location to an address or back",
		Long: `Looks a location up in the firmware's build artifacts.

A 0x-prefixed argument is an address and is mapped to the source line and
function containing it. Anything else is a file:line or a function name and is
mapped to the address of its first instruction.

Examples:
  mcudbg resolve --disassembly build/firmware.lst src/main.c:42
  mcudbg resolve --image build/firmware.elf uart_isr
  mcudbg resolve --disassembly build/firmware.lst 0x08000134 -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, helpers.AllFormats); err != nil {
				return err
			}
			cfg, err := helpers.LoadConfig(cmd)
			if err != nil {
				return err
			}

			loc, err := newWorkspace(cfg, helpers.NewLogger(cfg)).Lookup(args[0])
			if err != nil {
				return err
			}
			return helpers.Print(cmd.OutOrStdout(), format, []addrmap.Location{loc})
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, helpers.AllFormats)

	return cmd
}
