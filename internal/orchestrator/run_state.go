package orchestrator

import "time"

// RunCounters is owned by the Orchestrator and mutated only inside handlers.
type RunCounters struct {
	CompletedROIs       int       `json:"completed_rois"`
	TotalMeasuredTicks  uint64    `json:"total_measured_ticks"`
	ROIStartTick        *uint64   `json:"roi_start_tick,omitempty"`
	PhaseStartWallClock time.Time `json:"phase_start_wall_clock"`
}

// PhaseVisit records entry into a phase.
type PhaseVisit struct {
	Phase Phase     `json:"phase"`
	Tick  uint64    `json:"tick"`
	At    time.Time `json:"at"`
}

// ROIWindow is one completed measurement window.
type ROIWindow struct {
	Index     int    `json:"index"`
	StartTick uint64 `json:"start_tick"`
	EndTick   uint64 `json:"end_tick"`
}

// Ticks is the measured duration of the window.
func (w ROIWindow) Ticks() uint64 {
	return w.EndTick - w.StartTick
}

// CheckpointRecord describes one saved checkpoint.
type CheckpointRecord struct {
	Ordinal    int       `json:"ordinal"`
	Identifier string    `json:"identifier"`
	Path       string    `json:"path"`
	Tick       uint64    `json:"tick"`
	SavedAt    time.Time `json:"saved_at"`
}

// RunState is the phase registry shared by every component of one run. It
// is the only place handler context survives between event deliveries.
type RunState struct {
	Phase       Phase              `json:"phase"`
	Counters    RunCounters        `json:"counters"`
	History     []PhaseVisit       `json:"history"`
	Windows     []ROIWindow        `json:"windows,omitempty"`
	Checkpoints []CheckpointRecord `json:"checkpoints,omitempty"`
}

func NewRunState(now time.Time) *RunState {
	return &RunState{
		Phase:    PhaseNoWork,
		Counters: RunCounters{PhaseStartWallClock: now},
		History:  []PhaseVisit{{Phase: PhaseNoWork, At: now}},
	}
}

// Phases returns the sequence of phases visited, in order.
func (s *RunState) Phases() []Phase {
	out := make([]Phase, 0, len(s.History))
	for _, v := range s.History {
		out = append(out, v.Phase)
	}
	return out
}

// Snapshot returns a deep copy safe to hand outside the orchestrator.
func (s *RunState) Snapshot() RunState {
	out := *s
	if s.Counters.ROIStartTick != nil {
		tick := *s.Counters.ROIStartTick
		out.Counters.ROIStartTick = &tick
	}
	out.History = append([]PhaseVisit(nil), s.History...)
	out.Windows = append([]ROIWindow(nil), s.Windows...)
	out.Checkpoints = append([]CheckpointRecord(nil), s.Checkpoints...)
	return out
}
