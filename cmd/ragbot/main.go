// Command ragbot is the entry point for the ragbot document QA service.
// It provides a CLI (via Cobra) for ingesting documents and asking
// questions, and an HTTP server exposing the same pipeline.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/ragbot-go/cmd/ragbot/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
