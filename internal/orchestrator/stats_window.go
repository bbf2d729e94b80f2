package orchestrator

import (
	"fmt"

	"github.com/Jawbreaker1/phasectl/internal/engine"
)

// StatsWindow resets and dumps engine counters at phase boundaries and
// accumulates measured ticks into the shared RunState.
type StatsWindow struct {
	stats  engine.Stats
	clock  engine.Engine
	state  *RunState
	resets int
	dumps  int
}

func NewStatsWindow(stats engine.Stats, clock engine.Engine, state *RunState) *StatsWindow {
	return &StatsWindow{stats: stats, clock: clock, state: state}
}

func (w *StatsWindow) Reset() error {
	if err := w.stats.ResetCounters(); err != nil {
		return fmt.Errorf("reset stats: %w", err)
	}
	w.resets++
	return nil
}

func (w *StatsWindow) Dump() error {
	if err := w.stats.DumpCounters(); err != nil {
		return fmt.Errorf("dump stats: %w", err)
	}
	w.dumps++
	return nil
}

// BeginROI zeroes counters and records the ROI start tick.
func (w *StatsWindow) BeginROI() error {
	if err := w.Reset(); err != nil {
		return err
	}
	tick := w.clock.CurrentTick()
	w.state.Counters.ROIStartTick = &tick
	return nil
}

// EndROI dumps the window exactly once and folds its duration into the totals.
func (w *StatsWindow) EndROI() (ROIWindow, error) {
	if err := w.Dump(); err != nil {
		return ROIWindow{}, err
	}
	end := w.clock.CurrentTick()
	start := end
	if w.state.Counters.ROIStartTick != nil {
		start = *w.state.Counters.ROIStartTick
	}
	if end < start {
		return ROIWindow{}, fmt.Errorf("roi end tick %d precedes start tick %d", end, start)
	}
	w.state.Counters.TotalMeasuredTicks += end - start
	w.state.Counters.CompletedROIs++
	w.state.Counters.ROIStartTick = nil
	window := ROIWindow{Index: w.state.Counters.CompletedROIs, StartTick: start, EndTick: end}
	w.state.Windows = append(w.state.Windows, window)
	return window, nil
}

func (w *StatsWindow) Resets() int { return w.resets }

func (w *StatsWindow) Dumps() int { return w.dumps }
