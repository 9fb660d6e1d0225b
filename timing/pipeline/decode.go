package pipeline

import (
	"github.com/sarchlab/minorsim/timing/latch"
)

// Decode buffers instruction groups between the front end and execute,
// re-slicing groups wider than its issue width. The model decodes
// encodings in fetch2, so this stage is purely a timed queue.
type Decode struct {
	rec *ActivityRecorder

	in  *latch.Buffer[InstGroup]
	out *latch.Buffer[InstGroup]

	width int
	queue []InstGroup
}

// NewDecode creates the decode stage.
func NewDecode(
	rec *ActivityRecorder,
	in, out *latch.Buffer[InstGroup],
	width int,
) *Decode {
	return &Decode{rec: rec, in: in, out: out, width: width}
}

// Evaluate performs one tick: accept an arriving group and forward the
// head of the queue, at most width instructions at a time.
func (d *Decode) Evaluate() {
	if group, ok := d.in.Output(); ok {
		d.queue = append(d.queue, group)
		d.rec.ActivateStage(StageDecode)
	}

	if len(d.queue) == 0 {
		return
	}

	head := d.queue[0]
	if len(head.Insts) > d.width {
		d.out.Write(InstGroup{
			Tid:   head.Tid,
			Seq:   head.Seq,
			Insts: head.Insts[:d.width],
		})
		d.queue[0].Insts = head.Insts[d.width:]
	} else {
		d.out.Write(head)
		d.queue = d.queue[1:]
	}
	d.rec.ActivateStage(StageDecode)
}

// IsDrained reports whether decode holds no undelivered groups.
func (d *Decode) IsDrained() bool {
	return len(d.queue) == 0
}

// Drain is a no-op: decode drains by forwarding what it holds.
func (d *Decode) Drain() {}

// DrainResume is a no-op.
func (d *Decode) DrainResume() {}
