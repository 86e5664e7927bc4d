// Package main is the entry point for the mulooc CLI.
//
// Usage:
//
//	mulooc [flags] <command> [args]
//
// Commands:
//
//	matrices - Build contrastive target matrices from a label file
//	sample   - Sample views from one recording
//	step     - Run forward passes over a manifest and monitor the losses
//	extract  - Extract features for every recording of a manifest
package main

import (
	"fmt"
	"os"

	"github.com/Pliploop/MuLOOC/cmd/mulooc/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
