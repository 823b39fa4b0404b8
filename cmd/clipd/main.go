// Package main is the entry point for the clipd application.
package main

import (
	"os"

	"github.com/jmylchreest/clipd/cmd/clipd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
