// Package main provides the entry point for the ccmemory CLI.
package main

import (
	"os"

	"github.com/ccmemory/ccmemory/cmd/ccmemory/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
