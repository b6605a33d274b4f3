// Command docindexd is the process that wires the indexing pipeline and
// document store together: index a documentation source, search what's
// been indexed, and manage libraries/versions.
package main

import (
	"fmt"
	"os"

	"github.com/docindex/docindex/cmd/docindexd/cmd"
	"github.com/docindex/docindex/internal/errors"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errors.FormatForCLI(err))
		os.Exit(1)
	}
}
