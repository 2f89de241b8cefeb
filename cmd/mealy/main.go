// Command mealy is the entry point for the Mealy recipe engine.
// It provides a CLI interface (via Cobra) and an HTTP server exposing
// recipe retrieval and generation.
package main

import (
	"fmt"
	"os"

	"github.com/mealy/mealy-go/cmd/mealy/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
