// Package core assembles architectural state and the pipeline into a
// runnable processor core and drives its clock.
package core

import (
	"fmt"
	"io"

	"github.com/sarchlab/minorsim/emu"
	"github.com/sarchlab/minorsim/loader"
	"github.com/sarchlab/minorsim/timing/pipeline"
)

// Core is one processor core: a register file, a memory, and the
// pipeline between them. The core owns the clock; the pipeline decides
// per tick whether it has work.
type Core struct {
	regFile  *emu.RegFile
	memory   *emu.Memory
	pipeline *pipeline.Pipeline

	cycle uint64
}

// NewCore creates a core with fresh architectural state.
func NewCore(config pipeline.Config, opts ...pipeline.Option) (*Core, error) {
	regFile := &emu.RegFile{}
	memory := emu.NewMemory()

	p, err := pipeline.New(regFile, memory, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	return &Core{
		regFile:  regFile,
		memory:   memory,
		pipeline: p,
	}, nil
}

// RegFile returns the architectural registers.
func (c *Core) RegFile() *emu.RegFile { return c.regFile }

// Memory returns the core's memory.
func (c *Core) Memory() *emu.Memory { return c.memory }

// Pipeline returns the timing pipeline.
func (c *Core) Pipeline() *pipeline.Pipeline { return c.pipeline }

// Cycle returns the number of clock ticks issued, including ticks the
// pipeline slept through.
func (c *Core) Cycle() uint64 { return c.cycle }

// LoadProgram installs a loaded program image and points thread 0 at its
// entry.
func (c *Core) LoadProgram(prog *loader.Program) {
	prog.Install(c.memory)
	c.regFile.PC = prog.EntryPoint
	c.regFile.SP = prog.InitialSP
	c.pipeline.SetPC(0, prog.EntryPoint)
}

// Start wakes thread 0 so the pipeline begins fetching.
func (c *Core) Start() {
	c.pipeline.WakeupFetch(0)
}

// Tick advances the clock one cycle. The pipeline evaluates only while
// it has work.
func (c *Core) Tick() {
	c.cycle++
	c.pipeline.Evaluate()
}

// Run ticks until the program halts, the pipeline goes idle, or
// maxCycles elapse. Returns the program exit code, meaningful only when
// Halted reports true.
func (c *Core) Run(maxCycles uint64) int64 {
	for c.cycle < maxCycles && !c.pipeline.Halted() && c.pipeline.Running() {
		c.Tick()
	}
	return c.pipeline.ExitCode()
}

// Halted reports whether the program executed a halting SVC.
func (c *Core) Halted() bool { return c.pipeline.Halted() }

// Drain forwards a drain request to the pipeline.
func (c *Core) Drain() bool { return c.pipeline.Drain() }

// DrainResume forwards a drain release to the pipeline.
func (c *Core) DrainResume() { c.pipeline.DrainResume() }

// IsDrained reports whether the pipeline holds no in-flight work.
func (c *Core) IsDrained() bool { return c.pipeline.IsDrained() }

// Stats returns the pipeline counters.
func (c *Core) Stats() pipeline.Statistics { return c.pipeline.Stats() }

// Dump writes the pipeline diagnostic snapshot.
func (c *Core) Dump(w io.Writer) { c.pipeline.Dump(w) }
