package pipeline

import (
	"math/bits"

	"github.com/sarchlab/minorsim/emu"
	"github.com/sarchlab/minorsim/insts"
	"github.com/sarchlab/minorsim/timing/latch"
)

// executeThread tracks the newest stream sequence seen per thread; groups
// from older streams are wrong-path and dropped.
type executeThread struct {
	expectSeq uint64
}

// Execute retires instructions in order against the architectural state.
// Resolved taken branches redirect fetch1 through the branch buffer and
// squash younger queued work. SVC halts the pipeline, with X0 as the
// exit code.
type Execute struct {
	rec     *ActivityRecorder
	regFile *emu.RegFile
	memory  *emu.Memory

	in  *latch.Buffer[InstGroup]
	out *latch.Buffer[Branch]

	issueWidth int
	threads    []executeThread
	queue      []InstGroup

	halted   bool
	exitCode int64

	retired   uint64
	redirects uint64
	discards  uint64
	memOps    uint64
}

// NewExecute creates the execute stage.
func NewExecute(
	rec *ActivityRecorder,
	regFile *emu.RegFile,
	memory *emu.Memory,
	in *latch.Buffer[InstGroup],
	out *latch.Buffer[Branch],
	numThreads, issueWidth int,
) *Execute {
	return &Execute{
		rec:        rec,
		regFile:    regFile,
		memory:     memory,
		in:         in,
		out:        out,
		issueWidth: issueWidth,
		threads:    make([]executeThread, numThreads),
	}
}

// Halted reports whether an SVC has stopped the thread of control.
func (e *Execute) Halted() bool { return e.halted }

// ExitCode returns the X0 value captured at the halting SVC.
func (e *Execute) ExitCode() int64 { return e.exitCode }

// Retired returns the number of instructions retired.
func (e *Execute) Retired() uint64 { return e.retired }

// Redirects returns the number of branch redirects sent to fetch1.
func (e *Execute) Redirects() uint64 { return e.redirects }

// Discards returns the number of wrong-path groups dropped.
func (e *Execute) Discards() uint64 { return e.discards }

// MemOps returns the number of loads and stores performed.
func (e *Execute) MemOps() uint64 { return e.memOps }

// Evaluate performs one tick: accept an arriving group, then retire up
// to issueWidth instructions in order. A taken branch ends the cycle and
// squashes everything younger.
func (e *Execute) Evaluate() {
	if e.halted {
		// Anything still arriving is past the halt point.
		if _, ok := e.in.Output(); ok {
			e.discards++
		}
		return
	}

	if group, ok := e.in.Output(); ok {
		e.acceptGroup(group)
	}

	for issued := 0; issued < e.issueWidth && len(e.queue) > 0; issued++ {
		head := &e.queue[0]
		di := head.Insts[0]
		head.Insts = head.Insts[1:]
		if len(head.Insts) == 0 {
			e.queue = e.queue[1:]
		}

		redirected, halted := e.executeInst(di)
		e.retired++
		e.rec.ActivateStage(StageExecute)

		if halted {
			e.halted = true
			e.exitCode = int64(e.regFile.ReadReg(0))
			e.queue = nil
			return
		}
		if redirected {
			e.squash(di.Tid, di.Seq+1)
			return
		}
	}
}

func (e *Execute) acceptGroup(group InstGroup) {
	ts := &e.threads[group.Tid]
	if group.Seq < ts.expectSeq {
		e.discards++
		return
	}
	ts.expectSeq = group.Seq
	e.queue = append(e.queue, group)
	e.rec.ActivateStage(StageExecute)
}

// squash drops queued groups of tid older than seq and raises the
// thread's accept threshold so in-flight wrong-path groups are dropped
// on arrival.
func (e *Execute) squash(tid int, seq uint64) {
	e.threads[tid].expectSeq = seq

	kept := e.queue[:0]
	for _, g := range e.queue {
		if g.Tid == tid && g.Seq < seq {
			e.discards++
			continue
		}
		kept = append(kept, g)
	}
	e.queue = kept
}

// executeInst retires one instruction, reporting whether it redirected
// the front end and whether it halted the pipeline.
func (e *Execute) executeInst(di *DynInst) (redirected, halted bool) {
	inst := di.Inst

	switch inst.Op {
	case insts.OpADD, insts.OpSUB, insts.OpAND, insts.OpORR, insts.OpEOR:
		e.executeALU(inst)

	case insts.OpLDR:
		addr := e.regFile.ReadRegOrSP(inst.Rn) + inst.Imm
		e.regFile.WriteReg(inst.Rd, e.memory.Read64(addr))
		e.memOps++

	case insts.OpSTR:
		addr := e.regFile.ReadRegOrSP(inst.Rn) + inst.Imm
		e.memory.Write64(addr, e.regFile.ReadReg(inst.Rd))
		e.memOps++

	case insts.OpB, insts.OpBL:
		target := di.PC + uint64(inst.BranchOffset)
		if inst.Op == insts.OpBL {
			e.regFile.WriteReg(30, di.PC+4)
		}
		if !di.PredictedTaken || di.PredictedTarget != target {
			e.redirect(di.Tid, target)
			return true, false
		}

	case insts.OpBCond:
		if condHolds(inst.Cond, e.regFile.PSTATE) {
			e.redirect(di.Tid, di.PC+uint64(inst.BranchOffset))
			return true, false
		}

	case insts.OpRET:
		e.redirect(di.Tid, e.regFile.ReadReg(inst.Rn))
		return true, false

	case insts.OpSVC:
		return false, true

	case insts.OpNOP, insts.OpUnknown:
		// Retire with no architectural effect.
	}

	return false, false
}

func (e *Execute) redirect(tid int, target uint64) {
	e.out.Write(Branch{
		Reason: ReasonBranchTaken,
		Tid:    tid,
		Target: target,
	})
	e.redirects++
}

func (e *Execute) executeALU(inst *insts.Instruction) {
	var rn, op2 uint64
	if inst.Format == insts.FormatDPImm {
		rn = e.regFile.ReadRegOrSP(inst.Rn)
		op2 = inst.Imm << inst.Shift
	} else {
		rn = e.regFile.ReadReg(inst.Rn)
		op2 = e.regFile.ReadReg(inst.Rm)
	}

	var result uint64
	var flags emu.PSTATE
	switch inst.Op {
	case insts.OpADD:
		result, flags = addWithCarry(rn, op2, false, inst.Is64Bit)
	case insts.OpSUB:
		result, flags = addWithCarry(rn, ^op2, true, inst.Is64Bit)
	case insts.OpAND:
		result = rn & op2
	case insts.OpORR:
		result = rn | op2
	case insts.OpEOR:
		result = rn ^ op2
	}
	if !inst.Is64Bit {
		result = uint64(uint32(result))
	}

	if inst.SetFlags {
		switch inst.Op {
		case insts.OpAND, insts.OpORR, insts.OpEOR:
			flags = logicFlags(result, inst.Is64Bit)
		}
		e.regFile.PSTATE = flags
	}

	// CMP and friends encode Rd=31 to discard the result.
	if inst.SetFlags && inst.Rd == 31 {
		return
	}
	if inst.Format == insts.FormatDPImm && !inst.SetFlags {
		e.regFile.WriteRegOrSP(inst.Rd, result)
		return
	}
	e.regFile.WriteReg(inst.Rd, result)
}

// addWithCarry computes a + b + carry and the NZCV flags, at 64- or
// 32-bit width.
func addWithCarry(a, b uint64, carryIn, is64 bool) (uint64, emu.PSTATE) {
	if is64 {
		carry := uint64(0)
		if carryIn {
			carry = 1
		}
		result, c1 := bits.Add64(a, b, carry)
		return result, emu.PSTATE{
			N: result>>63 == 1,
			Z: result == 0,
			C: c1 == 1,
			V: ((a^result)&(b^result))>>63 == 1,
		}
	}

	a32, b32 := a&0xFFFFFFFF, b&0xFFFFFFFF
	carry := uint64(0)
	if carryIn {
		carry = 1
	}
	full := a32 + b32 + carry
	result := uint32(full)
	return uint64(result), emu.PSTATE{
		N: result>>31 == 1,
		Z: result == 0,
		C: full > 0xFFFFFFFF,
		V: ((uint32(a32)^result)&(uint32(b32)^result))>>31 == 1,
	}
}

// logicFlags derives NZ from a logical result; C and V clear.
func logicFlags(result uint64, is64 bool) emu.PSTATE {
	signBit := 31
	if is64 {
		signBit = 63
	}
	return emu.PSTATE{
		N: result>>signBit == 1,
		Z: result == 0,
	}
}

// condHolds evaluates a condition code against the flags.
func condHolds(cond insts.Cond, ps emu.PSTATE) bool {
	switch cond {
	case insts.CondEQ:
		return ps.Z
	case insts.CondNE:
		return !ps.Z
	case insts.CondCS:
		return ps.C
	case insts.CondCC:
		return !ps.C
	case insts.CondMI:
		return ps.N
	case insts.CondPL:
		return !ps.N
	case insts.CondVS:
		return ps.V
	case insts.CondVC:
		return !ps.V
	case insts.CondHI:
		return ps.C && !ps.Z
	case insts.CondLS:
		return !ps.C || ps.Z
	case insts.CondGE:
		return ps.N == ps.V
	case insts.CondLT:
		return ps.N != ps.V
	case insts.CondGT:
		return !ps.Z && ps.N == ps.V
	case insts.CondLE:
		return ps.Z || ps.N != ps.V
	}
	return true
}

// IsDrained reports whether execute holds no unretired work.
func (e *Execute) IsDrained() bool {
	return len(e.queue) == 0
}

// Drain is a no-op: execute drains by retiring its queue while the front
// end stops feeding it.
func (e *Execute) Drain() {}

// DrainResume is a no-op.
func (e *Execute) DrainResume() {}
