// Package main provides the CLI for the LeapPrep preprocessing pipeline.
package main

import (
	"os"

	"github.com/leapstack-labs/leapprep/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
