package main

import (
	"fmt"
	"os"

	"github.com/coral-mesh/mcudbg/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
