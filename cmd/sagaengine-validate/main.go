// Command sagaengine-validate loads a catalog directory and runs the
// world data validator over it, printing every error it finds. It is
// the engine's only executable: a thin ambient wrapper around the
// catalog/worldvalidate packages, not part of the core itself.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ironvale/sagaengine/catalog"
	"github.com/ironvale/sagaengine/core"
	"github.com/ironvale/sagaengine/worldvalidate"
)

func main() {
	contentDir := flag.String("content-dir", "", "Path to the directory of per-kind catalog YAML files (required)")
	flag.Parse()

	if *contentDir == "" {
		fmt.Fprintln(os.Stderr, "Error: --content-dir is required")
		printUsage()
		os.Exit(2)
	}

	if err := run(*contentDir); err != nil {
		var wvf *core.WorldValidationFailed
		if errors.As(err, &wvf) {
			fmt.Fprintf(os.Stderr, "world data validation failed with %d error(s):\n", len(wvf.Errors))
			for _, e := range wvf.Errors {
				fmt.Fprintf(os.Stderr, "  - %s\n", e)
			}
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("world data validation passed")
}

func run(contentDir string) error {
	cat, err := catalog.LoadDir(contentDir)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	return worldvalidate.Validate(cat)
}

func printUsage() {
	fmt.Println()
	fmt.Println("Usage: sagaengine-validate --content-dir <path>")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --content-dir  Path to the directory of per-kind catalog YAML files (required)")
}
