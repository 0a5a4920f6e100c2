package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/mcudbg/internal/cli/helpers"
	"github.com/coral-mesh/mcudbg/internal/elfsym"
	"github.com/coral-mesh/mcudbg/internal/errors"
	"github.com/coral-mesh/mcudbg/internal/ide"
	"github.com/coral-mesh/mcudbg/internal/safe"
)

func newSymbolsCmd() *cobra.Command {
	var (
		format string
		kind   string
		filter string
	)

	cmd := &cobra.Command{
		Use:   "symbols [image]",
		Short: "List the functions and variables of a firmware image",
		Long: `Lists the function and data symbols of an ELF image.

Without an argument the configured image is used, falling back to the symbol
table of the configured disassembly listing.

Examples:
  mcudbg symbols build/firmware.elf
  mcudbg symbols build/firmware.elf --kind variable -o csv
  mcudbg symbols --disassembly build/firmware.lst --filter uart`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := helpers.ValidateFormat(format, helpers.AllFormats); err != nil {
				return err
			}
			if kind != "" && kind != string(elfsym.KindFunction) && kind != string(elfsym.KindVariable) {
				return fmt.Errorf("invalid kind %q, must be function or variable", kind)
			}

			var syms []ide.SymbolInfo
			if len(args) == 1 {
				data, err := safe.ReadFile(args[0], nil)
				if err != nil {
					return fmt.Errorf("failed to read image: %w", err)
				}
				image, err := elfsym.Parse(data)
				if err != nil {
					return fmt.Errorf("%s: %w", args[0], err)
				}
				for _, s := range image {
					syms = append(syms, ide.SymbolInfo{
						Name:    s.Name,
						Address: s.Hex(),
						Kind:    string(s.Kind),
						Size:    s.Size,
						Scope:   string(s.Scope),
					})
				}
			} else {
				cfg, err := helpers.LoadConfig(cmd)
				if err != nil {
					return err
				}
				syms = ide.Symbols(newWorkspace(cfg, helpers.NewLogger(cfg)))
			}

			out := []ide.SymbolInfo{}
			for _, s := range syms {
				if kind != "" && s.Kind != kind {
					continue
				}
				if filter != "" && !strings.Contains(s.Name, filter) {
					continue
				}
				out = append(out, s)
			}
			return helpers.Print(cmd.OutOrStdout(), format, out)
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.FormatTable, helpers.AllFormats)
	cmd.Flags().StringVar(&kind, "kind", "", "Only list symbols of this kind (function, variable)")
	errors.Must(cmd.RegisterFlagCompletionFunc("kind", cobra.FixedCompletions(
		[]string{string(elfsym.KindFunction), string(elfsym.KindVariable)},
		cobra.ShellCompDirectiveNoFileComp,
	)), "failed to register --kind completion")
	cmd.Flags().StringVar(&filter, "filter", "", "Only list symbols whose name contains this substring")

	return cmd
}
