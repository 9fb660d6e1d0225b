// Package pipeline provides the four-stage in-order pipeline model:
// fetch1 -> fetch2 -> decode -> execute, connected by fixed-latency latch
// buffers and driven one evaluation per simulated clock tick.
package pipeline

import (
	"github.com/sarchlab/minorsim/insts"
)

// Line is a block of fetched instruction words, the payload of the
// fetch1 -> fetch2 buffer.
type Line struct {
	// Tid is the hardware thread the line belongs to.
	Tid int
	// Seq is the fetch stream sequence number. It increments on every
	// redirect fetch1 takes; downstream stages use it to discard
	// wrong-path work.
	Seq uint64
	// Addr is the address of the first word.
	Addr uint64
	// Words holds the raw instruction words.
	Words []uint32
}

// CorruptBit flips one bit of the line's raw words. Used by the
// fault-injection hook; the pipeline assigns no further meaning to it.
func (l *Line) CorruptBit(bit int) {
	if len(l.Words) == 0 {
		return
	}
	idx := (bit / 32) % len(l.Words)
	l.Words[idx] ^= 1 << (bit % 32)
}

// DynInst is one in-flight instruction.
type DynInst struct {
	// PC is the instruction address.
	PC uint64
	// Word is the raw encoding.
	Word uint32
	// Inst is the decoded form.
	Inst *insts.Instruction
	// Tid and Seq carry over from the line the instruction came from.
	Tid int
	Seq uint64

	// PredictedTaken and PredictedTarget record the fetch2 prediction,
	// so execute can tell a pre-redirected branch from one that still
	// needs a redirect.
	PredictedTaken  bool
	PredictedTarget uint64
}

// InstGroup is an ordered batch of instructions from one fetch stream,
// the payload of the fetch2 -> decode and decode -> execute buffers.
type InstGroup struct {
	Tid   int
	Seq   uint64
	Insts []*DynInst
}

// CorruptBit flips one bit in the raw encoding of one instruction of the
// group and re-decodes it, modeling a soft error in a pipeline register.
func (g *InstGroup) CorruptBit(bit int, decoder *insts.Decoder) {
	if len(g.Insts) == 0 {
		return
	}
	di := g.Insts[(bit/32)%len(g.Insts)]
	di.Word ^= 1 << (bit % 32)
	di.Inst = decoder.Decode(di.Word)
}

// BranchReason classifies a backward signal.
type BranchReason uint8

// Backward signal reasons.
const (
	// ReasonBranchTaken is an execute-stage redirect for a resolved
	// taken branch.
	ReasonBranchTaken BranchReason = iota
	// ReasonPrediction is a fetch2 redirect for a predicted-taken
	// branch.
	ReasonPrediction
)

// String returns a short label for the reason.
func (r BranchReason) String() string {
	switch r {
	case ReasonBranchTaken:
		return "branch-taken"
	case ReasonPrediction:
		return "prediction"
	}
	return "unknown"
}

// Branch is a backward redirect signal, the payload of the execute ->
// fetch1 and fetch2 -> fetch1 buffers.
type Branch struct {
	Reason BranchReason
	// Tid is the thread being redirected.
	Tid int
	// Target is the new fetch address.
	Target uint64
}

// CorruptBit flips one bit of the redirect target.
func (b *Branch) CorruptBit(bit int) {
	b.Target ^= 1 << (bit % 64)
}
