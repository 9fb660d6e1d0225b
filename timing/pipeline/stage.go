package pipeline

// StageID names a pipeline stage for activity tracking and diagnostics.
type StageID int

// Stage identifiers, in pipeline order.
const (
	StageFetch1 StageID = iota
	StageFetch2
	StageDecode
	StageExecute
	NumStages
)

var stageNames = [NumStages]string{"fetch1", "fetch2", "decode", "execute"}

// String returns the stage name.
func (id StageID) String() string {
	if id >= 0 && id < NumStages {
		return stageNames[id]
	}
	return "invalid"
}

// Stage is one evaluation unit of the pipeline. Evaluate performs one tick
// of stage-specific work: reading timed input from the inbound buffer,
// doing the unit's work, and writing timed output to the outbound
// buffer(s). The remaining methods implement the cooperative drain
// protocol.
type Stage interface {
	// Evaluate performs one tick of work. Side effects are limited to
	// the stage's declared buffer writes and stage-local state.
	Evaluate()

	// IsDrained reports whether the stage holds no in-flight work.
	// Idempotent between Evaluate calls.
	IsDrained() bool

	// Drain tells the stage to stop taking on new work and let its
	// internal queues run dry naturally.
	Drain()

	// DrainResume returns the stage to normal operation.
	DrainResume()
}
