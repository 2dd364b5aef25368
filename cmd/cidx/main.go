// Package main provides the entry point for the cidx CLI.
package main

import (
	"os"

	"github.com/cidx-dev/cidx/cmd/cidx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
