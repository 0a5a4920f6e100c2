package helpers

import (
	stderrors "errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/mcudbg/internal/errors"
)

// FlagFormat names the output format flag shared by listing commands.
const FlagFormat = "format"

// ErrUnsupportedFormat rejects an -o value the command cannot render.
var ErrUnsupportedFormat = stderrors.New("unsupported output format")

// AddFormatFlag registers -o/--format limited to formats, completing only
// those names.
func AddFormatFlag(cmd *cobra.Command, formatVar *string, defaultFormat OutputFormat, formats []OutputFormat) {
	names := formatNames(formats)
	cmd.Flags().StringVarP(formatVar, FlagFormat, "o", string(defaultFormat),
		fmt.Sprintf("Output format (%s)", strings.Join(names, ", ")))

	errors.Must(cmd.RegisterFlagCompletionFunc(FlagFormat,
		cobra.FixedCompletions(names, cobra.ShellCompDirectiveNoFileComp)),
		"failed to register --format completion")
}

// ValidateFormat returns ErrUnsupportedFormat unless format is one of formats.
func ValidateFormat(format string, formats []OutputFormat) error {
	if slices.Contains(formats, OutputFormat(format)) {
		return nil
	}
	return fmt.Errorf("%w %q, must be one of: %s", ErrUnsupportedFormat, format, strings.Join(formatNames(formats), ", "))
}

func formatNames(formats []OutputFormat) []string {
	names := make([]string, len(formats))
	for i, f := range formats {
		names[i] = string(f)
	}
	return names
}
