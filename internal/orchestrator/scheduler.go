package orchestrator

import (
	"fmt"

	"github.com/Jawbreaker1/phasectl/internal/engine"
)

// Scheduler wraps the engine's "fire MAX_INSTS after n instructions"
// primitive. It remembers the last requested threshold but does not enforce
// the single-outstanding rule; the Orchestrator does.
type Scheduler struct {
	eng       engine.Engine
	threshold uint64
	pending   bool
	armed     int
}

func NewScheduler(eng engine.Engine) *Scheduler {
	return &Scheduler{eng: eng}
}

// Arm requests one MAX_INSTS event after n more retired instructions.
func (s *Scheduler) Arm(n uint64) error {
	if n == 0 {
		return fmt.Errorf("max insts threshold must be > 0")
	}
	if err := s.eng.ScheduleMaxInsts(n); err != nil {
		return fmt.Errorf("schedule max insts %d: %w", n, err)
	}
	s.threshold = n
	s.pending = true
	s.armed++
	return nil
}

// Fired marks the outstanding request as delivered.
func (s *Scheduler) Fired() {
	s.pending = false
}

// Pending returns the outstanding threshold, if any.
func (s *Scheduler) Pending() (uint64, bool) {
	return s.threshold, s.pending
}

// Armed returns how many requests were issued in total.
func (s *Scheduler) Armed() int {
	return s.armed
}
