package pipeline

import (
	"fmt"
	"io"

	"github.com/sarchlab/minorsim/emu"
	"github.com/sarchlab/minorsim/insts"
	"github.com/sarchlab/minorsim/timing/cache"
	"github.com/sarchlab/minorsim/timing/latch"
)

// DrainState is the pipeline drain protocol state.
type DrainState int

// Drain states.
const (
	// StateRunning is normal operation.
	StateRunning DrainState = iota
	// StateDraining means a drain was requested and in-flight work is
	// still completing.
	StateDraining
	// StateDrained means the pipeline is empty and not ticking.
	StateDrained
	// StateResuming means drained state was released but no thread has
	// been woken yet.
	StateResuming
)

var drainStateNames = map[DrainState]string{
	StateRunning:  "running",
	StateDraining: "draining",
	StateDrained:  "drained",
	StateResuming: "resuming",
}

// String returns the state name.
func (s DrainState) String() string {
	if name, ok := drainStateNames[s]; ok {
		return name
	}
	return "invalid"
}

type options struct {
	icacheConfig    *cache.Config
	drainedCallback func()
}

// Option configures optional pipeline components.
type Option func(*options)

// WithICache routes fetch1 line reads through an instruction cache with
// the given configuration, attaching hit/miss latency to fetches.
func WithICache(config cache.Config) Option {
	return func(o *options) {
		o.icacheConfig = &config
	}
}

// WithDrainedCallback registers a function called once per drain request
// when the drain completes.
func WithDrainedCallback(fn func()) Option {
	return func(o *options) {
		o.drainedCallback = fn
	}
}

// Pipeline is the four-stage in-order pipeline. One Evaluate call models
// one clock tick: stages run back to front against the buffer state
// frozen at the start of the tick, then every buffer advances one slot.
type Pipeline struct {
	config   Config
	recorder *ActivityRecorder
	decoder  *insts.Decoder

	// Inter-stage buffers, in declaration order.
	f1ToF2 *latch.Buffer[Line]
	f2ToF1 *latch.Buffer[Branch]
	f2ToD  *latch.Buffer[InstGroup]
	dToE   *latch.Buffer[InstGroup]
	eToF1  *latch.Buffer[Branch]

	fetch1  *Fetch1
	fetch2  *Fetch2
	decode  *Decode
	execute *Execute
	// stages holds the four stages in pipeline order; the drain
	// protocol and evaluation loops go through this.
	stages []Stage

	icache *cache.Cache

	drainState          DrainState
	needToSignalDrained bool
	drainedCallback     func()

	ticking   bool
	haltSlept bool

	cycle       uint64
	bubbleTicks [5]uint64
}

// New creates a pipeline over the given architectural state.
func New(regFile *emu.RegFile, memory *emu.Memory, config Config, opts ...Option) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("pipeline config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pipeline{
		config:          config,
		recorder:        NewActivityRecorder(),
		decoder:         insts.NewDecoder(),
		drainedCallback: o.drainedCallback,
		ticking:         true,
	}

	var err error
	if p.f1ToF2, err = latch.New[Line](ChannelF1ToF2, config.Fetch1ToFetch2Delay); err != nil {
		return nil, err
	}
	if p.f2ToF1, err = latch.NewReverse[Branch](ChannelF2ToF1, config.Fetch2ToFetch1Delay); err != nil {
		return nil, err
	}
	if p.f2ToD, err = latch.New[InstGroup](ChannelF2ToD, config.Fetch2ToDecodeDelay); err != nil {
		return nil, err
	}
	if p.dToE, err = latch.New[InstGroup](ChannelDToE, config.DecodeToExecuteDelay); err != nil {
		return nil, err
	}
	if p.eToF1, err = latch.NewReverse[Branch](ChannelEToF1, config.ExecuteBranchDelay); err != nil {
		return nil, err
	}

	var source InstSource = &memoryInstSource{memory: memory}
	if o.icacheConfig != nil {
		p.icache = cache.New(*o.icacheConfig, cache.NewMemoryBacking(memory))
		source = &cacheInstSource{cache: p.icache}
	}

	p.fetch1 = NewFetch1(p.recorder, source, p.f1ToF2, p.eToF1, p.f2ToF1,
		config.NumThreads, config.LineWords)
	p.fetch2 = NewFetch2(p.recorder, p.decoder, p.f1ToF2, p.f2ToF1, p.f2ToD,
		config.NumThreads, config.DecodeWidth)
	p.decode = NewDecode(p.recorder, p.f2ToD, p.dToE, config.DecodeWidth)
	p.execute = NewExecute(p.recorder, regFile, memory, p.dToE, p.eToF1,
		config.NumThreads, config.IssueWidth)
	p.stages = []Stage{p.fetch1, p.fetch2, p.decode, p.execute}

	if err := p.armFault(config.FaultInjection); err != nil {
		return nil, err
	}

	return p, nil
}

// armFault schedules the configured bit flip on the named buffer.
func (p *Pipeline) armFault(f *FaultConfig) error {
	if f == nil {
		return nil
	}

	var err error
	switch f.Channel {
	case ChannelF1ToF2:
		err = p.f1ToF2.Arm(f.Cycle, f.Slot, func(l *Line) {
			l.CorruptBit(f.Bit)
		})
	case ChannelF2ToF1:
		err = p.f2ToF1.Arm(f.Cycle, f.Slot, func(b *Branch) {
			b.CorruptBit(f.Bit)
		})
	case ChannelF2ToD:
		err = p.f2ToD.Arm(f.Cycle, f.Slot, func(g *InstGroup) {
			g.CorruptBit(f.Bit, p.decoder)
		})
	case ChannelDToE:
		err = p.dToE.Arm(f.Cycle, f.Slot, func(g *InstGroup) {
			g.CorruptBit(f.Bit, p.decoder)
		})
	case ChannelEToF1:
		err = p.eToF1.Arm(f.Cycle, f.Slot, func(b *Branch) {
			b.CorruptBit(f.Bit)
		})
	default:
		return fmt.Errorf("fault injection: unknown channel %q", f.Channel)
	}
	if err != nil {
		return fmt.Errorf("fault injection on %s: %w", f.Channel, err)
	}
	return nil
}

// Evaluate runs one clock tick. Suppressed while the pipeline is idle or
// drained.
func (p *Pipeline) Evaluate() {
	if !p.ticking {
		return
	}
	now := p.cycle
	p.cycle++

	// Occupancy of each buffer's output slot, frozen for this tick.
	_, f1ToF2Data := p.f1ToF2.Output()
	_, f2ToF1Data := p.f2ToF1.Output()
	_, f2ToDData := p.f2ToD.Output()
	_, dToEData := p.dToE.Output()
	_, eToF1Data := p.eToF1.Output()

	// Fault hooks fire before any stage observes the buffers, in
	// buffer declaration order.
	p.f1ToF2.ApplyFault(now)
	p.f2ToF1.ApplyFault(now)
	p.f2ToD.ApplyFault(now)
	p.dToE.ApplyFault(now)
	p.eToF1.ApplyFault(now)

	// Stages run back to front so each consumes this tick's frozen
	// output before its upstream neighbor overwrites the input side.
	for i := len(p.stages) - 1; i >= 0; i-- {
		p.stages[i].Evaluate()
	}

	p.f1ToF2.Advance()
	p.f2ToF1.Advance()
	p.f2ToD.Advance()
	p.dToE.Advance()
	p.eToF1.Advance()

	// Once execute halts, stop the front end from fetching past the
	// halt point so the pipeline can go quiet.
	if p.execute.Halted() && !p.haltSlept {
		p.haltSlept = true
		for tid := 0; tid < p.config.NumThreads; tid++ {
			p.fetch1.Sleep(tid)
		}
	}

	// Bubble accounting charges each evaluated tick to every buffer
	// whose output slot carried no data. Suppressed ticks charge
	// nothing: an idle pipeline moves no bubbles.
	for i, hadData := range [5]bool{
		f1ToF2Data, f2ToF1Data, f2ToDData, dToEData, eToF1Data,
	} {
		if !hadData {
			p.bubbleTicks[i]++
		}
	}

	// Data still in flight inside a buffer keeps the pipeline awake
	// even when no stage moved this tick.
	inFlight := !p.f1ToF2.Empty() || !p.f2ToF1.Empty() ||
		!p.f2ToD.Empty() || !p.dToE.Empty() || !p.eToF1.Empty()
	p.recorder.RecordBufferData(inFlight)

	if p.config.EnableIdling {
		if !p.recorder.Active() && !p.needToSignalDrained &&
			p.drainState == StateRunning {
			p.ticking = false
		}
		p.recorder.DeactivateAll()
	}

	if p.needToSignalDrained && p.IsDrained() {
		p.completeDrain()
	}
}

// Drain asks the pipeline to finish its in-flight work. Returns true if
// the pipeline was already quiescent and the drain completed
// immediately; otherwise completion is reported through the drained
// callback once a later Evaluate finds the pipeline empty. Requesting a
// drain while one is in progress is a protocol violation.
func (p *Pipeline) Drain() bool {
	switch p.drainState {
	case StateDraining:
		panic("pipeline: drain requested while a drain is already in progress")
	case StateDrained:
		return true
	}

	p.drainState = StateDraining
	for _, s := range p.stages {
		s.Drain()
	}

	if p.IsDrained() {
		p.completeDrain()
		return true
	}

	p.needToSignalDrained = true
	// An idled pipeline must tick again to flush.
	p.ticking = true
	return false
}

func (p *Pipeline) completeDrain() {
	p.drainState = StateDrained
	p.needToSignalDrained = false
	p.ticking = false
	if p.drainedCallback != nil {
		p.drainedCallback()
	}
}

// DrainResume returns a drained pipeline to service. Threads that were
// fetching before the drain resume fetching; ticking restarts with the
// first woken thread.
func (p *Pipeline) DrainResume() {
	if p.drainState != StateDrained {
		panic("pipeline: drain resume without a completed drain")
	}

	p.drainState = StateResuming
	for _, s := range p.stages {
		s.DrainResume()
	}

	for tid := 0; tid < p.config.NumThreads; tid++ {
		if p.fetch1.Awake(tid) {
			p.WakeupFetch(tid)
		}
	}
}

// IsDrained reports whether no stage holds work and every forward buffer
// is empty. Idempotent. The backward redirect buffers are excluded: a
// parked redirect alone creates no new work while fetching is stopped.
func (p *Pipeline) IsDrained() bool {
	for _, s := range p.stages {
		if !s.IsDrained() {
			return false
		}
	}
	return p.f1ToF2.Empty() && p.f2ToD.Empty() && p.dToE.Empty()
}

// WakeupFetch starts a thread fetching and restarts the clock.
func (p *Pipeline) WakeupFetch(tid int) {
	p.fetch1.Wakeup(tid)
	if p.drainState == StateResuming {
		p.drainState = StateRunning
	}
	p.ticking = true
}

// SetPC sets a thread's fetch address.
func (p *Pipeline) SetPC(tid int, pc uint64) {
	p.fetch1.SetPC(tid, pc)
}

// Running reports whether the pipeline clock is ticking.
func (p *Pipeline) Running() bool { return p.ticking }

// State returns the drain protocol state.
func (p *Pipeline) State() DrainState { return p.drainState }

// Halted reports whether an SVC stopped execution.
func (p *Pipeline) Halted() bool { return p.execute.Halted() }

// ExitCode returns the X0 value captured at the halting SVC.
func (p *Pipeline) ExitCode() int64 { return p.execute.ExitCode() }

// Cycle returns the number of ticks evaluated.
func (p *Pipeline) Cycle() uint64 { return p.cycle }

// ICache returns the instruction cache, or nil when fetch reads memory
// directly.
func (p *Pipeline) ICache() *cache.Cache { return p.icache }

// Statistics holds pipeline counters. Bubble ticks count cycles a
// buffer's output slot carried no data.
type Statistics struct {
	Cycles          uint64
	Retired         uint64
	Predictions     uint64
	Redirects       uint64
	WrongPathLines  uint64
	WrongPathGroups uint64
	MemOps          uint64

	F1ToF2BubbleTicks uint64
	F2ToF1BubbleTicks uint64
	F2ToDBubbleTicks  uint64
	DToEBubbleTicks   uint64
	EToF1BubbleTicks  uint64
}

// BubbleFraction converts a bubble-tick counter to a fraction of all
// evaluated cycles.
func (s Statistics) BubbleFraction(ticks uint64) float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(ticks) / float64(s.Cycles)
}

// IPC returns retired instructions per evaluated cycle.
func (s Statistics) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Retired) / float64(s.Cycles)
}

// Stats assembles the pipeline counters.
func (p *Pipeline) Stats() Statistics {
	return Statistics{
		Cycles:          p.cycle,
		Retired:         p.execute.Retired(),
		Predictions:     p.fetch2.Predictions(),
		Redirects:       p.execute.Redirects(),
		WrongPathLines:  p.fetch2.Discards(),
		WrongPathGroups: p.execute.Discards(),
		MemOps:          p.execute.MemOps(),

		F1ToF2BubbleTicks: p.bubbleTicks[0],
		F2ToF1BubbleTicks: p.bubbleTicks[1],
		F2ToDBubbleTicks:  p.bubbleTicks[2],
		DToEBubbleTicks:   p.bubbleTicks[3],
		EToF1BubbleTicks:  p.bubbleTicks[4],
	}
}

// Dump writes a point-in-time diagnostic snapshot: drain state, buffer
// occupancy, and per-stage drained flags.
func (p *Pipeline) Dump(w io.Writer) {
	fmt.Fprintf(w, "pipeline: cycle=%d state=%s ticking=%v halted=%v\n",
		p.cycle, p.drainState, p.ticking, p.execute.Halted())

	dumpBuffer(w, p.f1ToF2)
	dumpBuffer(w, p.f2ToF1)
	dumpBuffer(w, p.f2ToD)
	dumpBuffer(w, p.dToE)
	dumpBuffer(w, p.eToF1)

	fmt.Fprintf(w, "  fetch1:  drained=%v\n", p.fetch1.IsDrained())
	fmt.Fprintf(w, "  fetch2:  drained=%v\n", p.fetch2.IsDrained())
	fmt.Fprintf(w, "  decode:  drained=%v\n", p.decode.IsDrained())
	fmt.Fprintf(w, "  execute: drained=%v retired=%d\n",
		p.execute.IsDrained(), p.execute.Retired())
}

func dumpBuffer[T any](w io.Writer, b *latch.Buffer[T]) {
	output := "bubble"
	if _, ok := b.Output(); ok {
		output = "data"
	}
	fmt.Fprintf(w, "  %-7s delay=%d output=%-6s empty=%v\n",
		b.Name(), b.Delay(), output, b.Empty())
}

// memoryInstSource fetches instruction words straight from memory with
// unit latency.
type memoryInstSource struct {
	memory *emu.Memory
}

func (s *memoryInstSource) ReadWords(addr uint64, n int) ([]uint32, uint64) {
	words := make([]uint32, n)
	for i := range words {
		words[i] = s.memory.Read32(addr + uint64(i)*4)
	}
	return words, 1
}

// cacheInstSource fetches instruction words through the L1I, reporting
// the slowest word access as the line latency.
type cacheInstSource struct {
	cache *cache.Cache
}

func (s *cacheInstSource) ReadWords(addr uint64, n int) ([]uint32, uint64) {
	words := make([]uint32, n)
	var latency uint64
	for i := range words {
		result := s.cache.Read(addr+uint64(i)*4, 4)
		words[i] = uint32(result.Data)
		if result.Latency > latency {
			latency = result.Latency
		}
	}
	return words, latency
}
