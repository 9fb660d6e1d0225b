package pipeline

import (
	"github.com/sarchlab/minorsim/timing/latch"
)

// InstSource supplies instruction words to fetch1, reporting the access
// latency in cycles. Latency 1 delivers the line in the same cycle;
// higher latencies stall fetch1 for the remainder.
type InstSource interface {
	ReadWords(addr uint64, n int) ([]uint32, uint64)
}

// fetchThread is fetch1's per-thread state. Threads start asleep and
// fetch nothing until woken.
type fetchThread struct {
	pc    uint64
	seq   uint64
	awake bool
}

// Fetch1 generates line fetch requests. It owns the per-thread fetch PC
// and stream sequence and is the sole consumer of the two backward
// redirect buffers. Redirects are read from the buffer input side so a
// branch resolved this cycle changes the very next fetch.
type Fetch1 struct {
	rec    *ActivityRecorder
	source InstSource

	out    *latch.Buffer[Line]
	execIn *latch.Buffer[Branch]
	predIn *latch.Buffer[Branch]

	lineWords int
	threads   []fetchThread
	nextTid   int

	pending     *Line
	pendingWait uint64

	draining bool
}

// NewFetch1 creates the fetch1 stage. All threads begin asleep.
func NewFetch1(
	rec *ActivityRecorder,
	source InstSource,
	out *latch.Buffer[Line],
	execIn, predIn *latch.Buffer[Branch],
	numThreads, lineWords int,
) *Fetch1 {
	return &Fetch1{
		rec:       rec,
		source:    source,
		out:       out,
		execIn:    execIn,
		predIn:    predIn,
		lineWords: lineWords,
		threads:   make([]fetchThread, numThreads),
	}
}

// SetPC sets a thread's fetch address.
func (f *Fetch1) SetPC(tid int, pc uint64) {
	f.threads[tid].pc = pc
}

// PC returns a thread's current fetch address.
func (f *Fetch1) PC(tid int) uint64 {
	return f.threads[tid].pc
}

// Wakeup starts a thread fetching.
func (f *Fetch1) Wakeup(tid int) {
	f.threads[tid].awake = true
	f.rec.ActivateStage(StageFetch1)
}

// Sleep stops a thread from fetching.
func (f *Fetch1) Sleep(tid int) {
	f.threads[tid].awake = false
}

// Awake reports whether a thread is fetching.
func (f *Fetch1) Awake(tid int) bool {
	return f.threads[tid].awake
}

// Evaluate performs one tick: apply redirects, then continue or start a
// line fetch.
func (f *Fetch1) Evaluate() {
	f.takeRedirects()

	if f.pending != nil {
		f.rec.ActivateStage(StageFetch1)
		if f.pendingWait > 0 {
			f.pendingWait--
		}
		if f.pendingWait == 0 {
			f.out.Write(*f.pending)
			f.pending = nil
		}
		return
	}

	if f.draining {
		return
	}

	tid := f.pickThread()
	if tid < 0 {
		return
	}
	f.fetchLine(tid)
}

// takeRedirects applies this cycle's redirects. A resolved branch from
// execute beats a fetch2 prediction for the same thread, since the
// prediction belongs to a stream the branch is squashing; a prediction
// for a different thread is independent and must still land, or that
// thread's stream sequence runs ahead of its lines forever.
func (f *Fetch1) takeRedirects() {
	execBr, execOK := f.execIn.Incoming()
	if execOK {
		f.redirect(execBr)
	}

	predBr, predOK := f.predIn.Incoming()
	if !predOK || (execOK && execBr.Tid == predBr.Tid) {
		return
	}
	f.redirect(predBr)
}

func (f *Fetch1) redirect(br Branch) {
	t := &f.threads[br.Tid]
	t.pc = br.Target
	t.seq++
	if f.pending != nil && f.pending.Tid == br.Tid {
		f.pending = nil
		f.pendingWait = 0
	}
	f.rec.ActivateStage(StageFetch1)
}

// pickThread round-robins over awake threads.
func (f *Fetch1) pickThread() int {
	n := len(f.threads)
	for i := 0; i < n; i++ {
		tid := (f.nextTid + i) % n
		if f.threads[tid].awake {
			f.nextTid = (tid + 1) % n
			return tid
		}
	}
	return -1
}

func (f *Fetch1) fetchLine(tid int) {
	t := &f.threads[tid]

	words, latency := f.source.ReadWords(t.pc, f.lineWords)
	line := Line{Tid: tid, Seq: t.seq, Addr: t.pc, Words: words}
	t.pc += uint64(f.lineWords) * 4

	f.rec.ActivateStage(StageFetch1)

	if latency <= 1 {
		f.out.Write(line)
		return
	}
	f.pending = &line
	f.pendingWait = latency - 1
}

// IsDrained reports whether fetch1 has no line in flight and will start
// no more fetches.
func (f *Fetch1) IsDrained() bool {
	if f.pending != nil {
		return false
	}
	if f.draining {
		return true
	}
	for i := range f.threads {
		if f.threads[i].awake {
			return false
		}
	}
	return true
}

// Drain stops fetch1 from starting new line fetches. A fetch already in
// flight still completes.
func (f *Fetch1) Drain() {
	f.draining = true
}

// DrainResume re-enables fetching. Threads are woken separately.
func (f *Fetch1) DrainResume() {
	f.draining = false
}
