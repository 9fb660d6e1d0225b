// Package main provides the entry point for MinorSim.
// MinorSim is a cycle-level in-order pipeline simulator for ARM64
// programs.
//
// For the full CLI, use: go run ./cmd/minorsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("MinorSim - In-Order Pipeline Simulator")
	fmt.Println("")
	fmt.Println("Usage: minorsim [options] <program.elf>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config    Path to pipeline configuration JSON file")
	fmt.Println("  -cycles    Maximum number of cycles to simulate")
	fmt.Println("  -icache    Fetch through a modeled L1 instruction cache")
	fmt.Println("  -idling    Let the pipeline stop ticking when idle")
	fmt.Println("  -inject    Fault injection as channel:cycle:bit")
	fmt.Println("  -dump      Dump pipeline state after the run")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/minorsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/minorsim' instead.")
	}
}
