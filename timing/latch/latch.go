// Package latch provides fixed-latency inter-stage buffers for the pipeline
// model. A Buffer carries at most one payload per cycle from a producer to a
// consumer, surfacing each payload exactly delay cycles after it was written.
// An absent payload is a bubble.
package latch

import "fmt"

// Buffer is a fixed-delay pipeline latch. Slot 0 is the current output;
// slot delay receives writes. Advance shifts every payload one slot toward
// the output once per cycle.
//
// A Buffer is owned by a single pipeline and accessed sequentially within
// one tick, so it needs no locking.
type Buffer[T any] struct {
	name    string
	delay   int
	reverse bool

	// slots[i] surfaces at the output after i more Advance calls.
	slots []slot[T]

	// wrote guards against two writes landing in the same cycle.
	wrote bool

	fault *faultHook[T]
}

type slot[T any] struct {
	payload T
	valid   bool
}

type faultHook[T any] struct {
	cycle  uint64
	slot   int
	mutate func(*T)
	fired  bool
}

// New creates a forward buffer with the given delay in cycles.
// A delay below 1 is a configuration error: same-cycle visibility is
// modeled by stage evaluation order, never by a zero-delay buffer.
func New[T any](name string, delay int) (*Buffer[T], error) {
	return newBuffer[T](name, delay, false)
}

// NewReverse creates a buffer oriented against the nominal pipeline flow
// (consumer-to-producer signals such as branch redirects).
func NewReverse[T any](name string, delay int) (*Buffer[T], error) {
	return newBuffer[T](name, delay, true)
}

func newBuffer[T any](name string, delay int, reverse bool) (*Buffer[T], error) {
	if delay < 1 {
		return nil, fmt.Errorf("latch %s: delay must be >= 1 (got %d)", name, delay)
	}
	return &Buffer[T]{
		name:    name,
		delay:   delay,
		reverse: reverse,
		slots:   make([]slot[T], delay+1),
	}, nil
}

// Name returns the buffer name.
func (b *Buffer[T]) Name() string { return b.name }

// Delay returns the configured delay in cycles.
func (b *Buffer[T]) Delay() int { return b.delay }

// Reversed reports whether the buffer carries backward signals.
func (b *Buffer[T]) Reversed() bool { return b.reverse }

// Write enqueues a payload that will surface at the output after the
// configured delay. At most one write is permitted per cycle; a second
// write without an intervening Advance is an invariant breach and panics.
// Not writing in a cycle leaves a bubble.
func (b *Buffer[T]) Write(payload T) {
	if b.wrote {
		panic(fmt.Sprintf("latch %s: double write in one cycle", b.name))
	}
	b.slots[b.delay] = slot[T]{payload: payload, valid: true}
	b.wrote = true
}

// Output returns the payload surfacing this cycle. The second return value
// is false for a bubble. Idempotent within a cycle.
func (b *Buffer[T]) Output() (T, bool) {
	return b.slots[0].payload, b.slots[0].valid
}

// Incoming returns the payload written during the current cycle, before it
// has advanced. Earlier stages use this on reverse buffers to observe
// same-cycle signals from later stages; forward data must only be read
// through Output.
func (b *Buffer[T]) Incoming() (T, bool) {
	return b.slots[b.delay].payload, b.slots[b.delay].valid
}

// Advance shifts all payloads one slot toward the output, promoting the
// next payload to current. The pipeline calls this exactly once per tick,
// after every consumer has read Output for that tick.
func (b *Buffer[T]) Advance() {
	copy(b.slots, b.slots[1:])
	b.slots[b.delay] = slot[T]{}
	b.wrote = false
}

// Empty reports whether every slot, including the current output, holds a
// bubble. Used for drain-completion testing only.
func (b *Buffer[T]) Empty() bool {
	for _, s := range b.slots {
		if s.valid {
			return false
		}
	}
	return true
}

// Arm registers a fault-injection hook. On the matching cycle the pipeline
// invokes the hook, which mutates the payload occupying the target slot in
// place. At most one hook may be armed per buffer, at construction time.
// The buffer assigns no meaning to the mutation; it only exposes the
// mutation point.
func (b *Buffer[T]) Arm(cycle uint64, slotIndex int, mutate func(*T)) error {
	if b.fault != nil {
		return fmt.Errorf("latch %s: fault hook already armed", b.name)
	}
	if slotIndex < 0 || slotIndex > b.delay {
		return fmt.Errorf("latch %s: fault slot %d out of range [0, %d]",
			b.name, slotIndex, b.delay)
	}
	b.fault = &faultHook[T]{cycle: cycle, slot: slotIndex, mutate: mutate}
	return nil
}

// Armed reports whether a fault hook is registered and not yet fired.
func (b *Buffer[T]) Armed() bool {
	return b.fault != nil && !b.fault.fired
}

// ApplyFault fires the armed hook if now matches its injection cycle. The
// hook fires at most once and only mutates an occupied slot; injecting
// into a bubble is a no-op.
func (b *Buffer[T]) ApplyFault(now uint64) {
	if b.fault == nil || b.fault.fired || b.fault.cycle != now {
		return
	}
	b.fault.fired = true
	if s := &b.slots[b.fault.slot]; s.valid {
		b.fault.mutate(&s.payload)
	}
}
