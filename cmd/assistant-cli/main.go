// Package main provides the assistant back-office CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/rtvpioli/assistant-engine/cmd/assistant-cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
