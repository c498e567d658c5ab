// Package main is the entry point for the baton CLI.
// The CLI is the operator's terminal tool for driving the baton API.
package main

import (
	"os"

	"baton/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
