// Package main is the entry point for the tvgrid application.
package main

import (
	"os"

	"github.com/jmylchreest/tvgrid/cmd/tvgrid/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
