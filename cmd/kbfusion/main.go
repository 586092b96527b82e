// Package main provides the entry point for the kbfusion CLI.
package main

import (
	"os"

	"github.com/kortix-ai/kb-fusion/cmd/kbfusion/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
