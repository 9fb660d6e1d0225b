package pipeline

// ActivityRecorder tracks, per stage, whether useful work happened this
// cycle, plus whether any buffer carried real data. The aggregate drives
// the idle policy: when nothing is active and no drain is pending, the
// pipeline stops ticking.
type ActivityRecorder struct {
	stageActive [NumStages]bool
	bufferData  bool
}

// NewActivityRecorder creates a recorder with all stages inactive.
func NewActivityRecorder() *ActivityRecorder {
	return &ActivityRecorder{}
}

// ActivateStage marks a stage as having done useful work.
func (r *ActivityRecorder) ActivateStage(id StageID) {
	r.stageActive[id] = true
}

// DeactivateStage force-clears one stage's activity flag.
func (r *ActivityRecorder) DeactivateStage(id StageID) {
	r.stageActive[id] = false
}

// DeactivateAll force-clears every stage flag and the buffer-data flag,
// so each stage must positively re-signal before the pipeline is
// considered active again.
func (r *ActivityRecorder) DeactivateAll() {
	for id := StageID(0); id < NumStages; id++ {
		r.stageActive[id] = false
	}
	r.bufferData = false
}

// StageActive reports one stage's flag.
func (r *ActivityRecorder) StageActive(id StageID) bool {
	return r.stageActive[id]
}

// RecordBufferData notes whether any inter-stage buffer surfaced real
// data this cycle. In-flight data keeps the pipeline awake even when no
// stage advanced it this tick.
func (r *ActivityRecorder) RecordBufferData(present bool) {
	r.bufferData = present
}

// Active reports the aggregate pipeline-active flag.
func (r *ActivityRecorder) Active() bool {
	if r.bufferData {
		return true
	}
	for id := StageID(0); id < NumStages; id++ {
		if r.stageActive[id] {
			return true
		}
	}
	return false
}
