package pipeline

import (
	"github.com/sarchlab/minorsim/insts"
	"github.com/sarchlab/minorsim/timing/latch"
)

// fetch2Thread is fetch2's per-thread state: instructions decoded but not
// yet issued, and the stream sequence the thread expects lines from.
type fetch2Thread struct {
	queue     []*DynInst
	expectSeq uint64
}

// Fetch2 turns fetched lines into decoded instruction groups. It
// predicts unconditional direct branches, redirecting fetch1 through the
// prediction buffer, and drops lines from superseded fetch streams.
type Fetch2 struct {
	rec     *ActivityRecorder
	decoder *insts.Decoder

	in      *latch.Buffer[Line]
	predOut *latch.Buffer[Branch]
	out     *latch.Buffer[InstGroup]

	width   int
	threads []fetch2Thread
	nextTid int

	// discards counts lines dropped as wrong-path.
	discards uint64
	// predictions counts branches predicted taken.
	predictions uint64
}

// NewFetch2 creates the fetch2 stage.
func NewFetch2(
	rec *ActivityRecorder,
	decoder *insts.Decoder,
	in *latch.Buffer[Line],
	predOut *latch.Buffer[Branch],
	out *latch.Buffer[InstGroup],
	numThreads, width int,
) *Fetch2 {
	return &Fetch2{
		rec:     rec,
		decoder: decoder,
		in:      in,
		predOut: predOut,
		out:     out,
		width:   width,
		threads: make([]fetch2Thread, numThreads),
	}
}

// Predictions returns the number of branches predicted taken.
func (f *Fetch2) Predictions() uint64 { return f.predictions }

// Discards returns the number of wrong-path lines dropped.
func (f *Fetch2) Discards() uint64 { return f.discards }

// Evaluate performs one tick: accept an arriving line, then issue up to
// width instructions from one thread.
func (f *Fetch2) Evaluate() {
	if line, ok := f.in.Output(); ok {
		f.acceptLine(line)
	}

	tid := f.pickThread()
	if tid < 0 {
		return
	}
	f.issue(tid)
}

func (f *Fetch2) acceptLine(line Line) {
	ts := &f.threads[line.Tid]

	if line.Seq < ts.expectSeq {
		f.discards++
		return
	}
	if line.Seq > ts.expectSeq {
		// A redirect started a new stream; anything still queued
		// belongs to the old one.
		ts.queue = ts.queue[:0]
		ts.expectSeq = line.Seq
	}

	pc := line.Addr
	for _, word := range line.Words {
		ts.queue = append(ts.queue, &DynInst{
			PC:   pc,
			Word: word,
			Inst: f.decoder.Decode(word),
			Tid:  line.Tid,
			Seq:  line.Seq,
		})
		pc += 4
	}
	f.rec.ActivateStage(StageFetch2)
}

// pickThread round-robins over threads with queued instructions.
func (f *Fetch2) pickThread() int {
	n := len(f.threads)
	for i := 0; i < n; i++ {
		tid := (f.nextTid + i) % n
		if len(f.threads[tid].queue) > 0 {
			f.nextTid = (tid + 1) % n
			return tid
		}
	}
	return -1
}

// issue emits up to width instructions as one group. An unconditional
// direct branch ends the group: the rest of the queue is wrong-path, and
// fetch1 is redirected to the branch target.
func (f *Fetch2) issue(tid int) {
	ts := &f.threads[tid]

	group := InstGroup{Tid: tid, Seq: ts.queue[0].Seq}
	for len(group.Insts) < f.width && len(ts.queue) > 0 {
		di := ts.queue[0]
		ts.queue = ts.queue[1:]
		group.Insts = append(group.Insts, di)

		if di.Inst.Op == insts.OpB || di.Inst.Op == insts.OpBL {
			target := di.PC + uint64(di.Inst.BranchOffset)
			di.PredictedTaken = true
			di.PredictedTarget = target
			f.predOut.Write(Branch{
				Reason: ReasonPrediction,
				Tid:    tid,
				Target: target,
			})
			f.predictions++
			ts.queue = ts.queue[:0]
			ts.expectSeq = di.Seq + 1
			break
		}
	}

	f.out.Write(group)
	f.rec.ActivateStage(StageFetch2)
}

// IsDrained reports whether fetch2 holds no undelivered instructions.
func (f *Fetch2) IsDrained() bool {
	for i := range f.threads {
		if len(f.threads[i].queue) > 0 {
			return false
		}
	}
	return true
}

// Drain is a no-op: fetch2 drains by issuing what it holds while fetch1
// stops feeding it.
func (f *Fetch2) Drain() {}

// DrainResume is a no-op.
func (f *Fetch2) DrainResume() {}
