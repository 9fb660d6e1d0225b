// Package main provides the entry point for MinorSim.
// MinorSim is a cycle-level in-order pipeline simulator for ARM64
// programs.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/minorsim/loader"
	"github.com/sarchlab/minorsim/timing/cache"
	"github.com/sarchlab/minorsim/timing/core"
	"github.com/sarchlab/minorsim/timing/pipeline"
)

var (
	configPath = flag.String("config", "", "Path to pipeline configuration JSON file")
	maxCycles  = flag.Uint64("cycles", 10_000_000, "Maximum number of cycles to simulate")
	useICache  = flag.Bool("icache", false, "Fetch through a modeled L1 instruction cache")
	idling     = flag.Bool("idling", false, "Let the pipeline stop ticking when idle")
	inject     = flag.String("inject", "", "Fault injection as channel:cycle:bit (e.g. dToE:100:3)")
	dumpState  = flag.Bool("dump", false, "Dump pipeline state after the run")
	verbose    = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: minorsim [options] <program.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	programPath := flag.Arg(0)

	config, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	prog, err := loader.Load(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading program: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Printf("Loaded: %s\n", programPath)
		fmt.Printf("Entry point: 0x%X\n", prog.EntryPoint)
		fmt.Printf("Segments: %d\n", len(prog.Segments))
	}

	var opts []pipeline.Option
	if *useICache {
		opts = append(opts, pipeline.WithICache(cache.DefaultL1IConfig()))
	}

	c, err := core.NewCore(config, opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating core: %v\n", err)
		os.Exit(1)
	}

	c.LoadProgram(prog)
	c.Start()
	exitCode := c.Run(*maxCycles)

	report(c, programPath, exitCode)

	if !c.Halted() {
		fmt.Fprintf(os.Stderr, "Warning: program did not halt within %d cycles\n", *maxCycles)
	}

	os.Exit(int(exitCode))
}

// buildConfig assembles the pipeline configuration from the config file
// and command-line overrides.
func buildConfig() (pipeline.Config, error) {
	config := pipeline.DefaultConfig()

	if *configPath != "" {
		var err error
		config, err = pipeline.LoadConfig(*configPath)
		if err != nil {
			return config, err
		}
	}

	if *idling {
		config.EnableIdling = true
	}

	if *inject != "" {
		fault, err := parseInject(*inject)
		if err != nil {
			return config, err
		}
		config.FaultInjection = fault
		if err := config.Validate(); err != nil {
			return config, err
		}
	}

	return config, nil
}

// parseInject parses "channel:cycle:bit" into a fault config.
func parseInject(s string) (*pipeline.FaultConfig, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid -inject %q: want channel:cycle:bit", s)
	}

	cycle, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid -inject cycle %q: %w", parts[1], err)
	}
	bit, err := strconv.Atoi(parts[2])
	if err != nil {
		return nil, fmt.Errorf("invalid -inject bit %q: %w", parts[2], err)
	}

	return &pipeline.FaultConfig{
		Channel: parts[0],
		Cycle:   cycle,
		Bit:     bit,
	}, nil
}

// report prints the run summary and statistics.
func report(c *core.Core, programPath string, exitCode int64) {
	stats := c.Stats()

	fmt.Printf("\n")
	fmt.Printf("Program: %s\n", programPath)
	fmt.Printf("Exit code: %d\n", exitCode)
	fmt.Printf("Instructions retired: %d\n", stats.Retired)
	fmt.Printf("Cycles evaluated: %d\n", stats.Cycles)
	fmt.Printf("Clock ticks issued: %d\n", c.Cycle())
	fmt.Printf("IPC: %.2f\n", stats.IPC())

	if *verbose {
		fmt.Printf("\n")
		fmt.Printf("Pipeline events:\n")
		fmt.Printf("  Predictions:       %d\n", stats.Predictions)
		fmt.Printf("  Branch redirects:  %d\n", stats.Redirects)
		fmt.Printf("  Wrong-path lines:  %d\n", stats.WrongPathLines)
		fmt.Printf("  Wrong-path groups: %d\n", stats.WrongPathGroups)
		fmt.Printf("  Memory ops:        %d\n", stats.MemOps)
		fmt.Printf("\n")
		fmt.Printf("Buffer bubbles:\n")
		fmt.Printf("  f1ToF2: %6d ticks (%5.1f%%)\n",
			stats.F1ToF2BubbleTicks, 100*stats.BubbleFraction(stats.F1ToF2BubbleTicks))
		fmt.Printf("  f2ToF1: %6d ticks (%5.1f%%)\n",
			stats.F2ToF1BubbleTicks, 100*stats.BubbleFraction(stats.F2ToF1BubbleTicks))
		fmt.Printf("  f2ToD:  %6d ticks (%5.1f%%)\n",
			stats.F2ToDBubbleTicks, 100*stats.BubbleFraction(stats.F2ToDBubbleTicks))
		fmt.Printf("  dToE:   %6d ticks (%5.1f%%)\n",
			stats.DToEBubbleTicks, 100*stats.BubbleFraction(stats.DToEBubbleTicks))
		fmt.Printf("  eToF1:  %6d ticks (%5.1f%%)\n",
			stats.EToF1BubbleTicks, 100*stats.BubbleFraction(stats.EToF1BubbleTicks))

		if ic := c.Pipeline().ICache(); ic != nil {
			cs := ic.Stats()
			fmt.Printf("\n")
			fmt.Printf("I-cache:\n")
			fmt.Printf("  Reads:  %d\n", cs.Reads)
			fmt.Printf("  Hits:   %d\n", cs.Hits)
			fmt.Printf("  Misses: %d\n", cs.Misses)
		}
	}

	if *dumpState {
		fmt.Printf("\n")
		c.Dump(os.Stdout)
	}
}
