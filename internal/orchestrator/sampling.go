package orchestrator

import "github.com/Jawbreaker1/phasectl/internal/engine"

// Sampling mode alternates FF_WORK -> WARMUP -> ROI until WORKEND or the ROI
// cap, optionally preceded by one INIT_FF window. With sampling disabled the
// whole benchmark is a single ROI.

func (o *Orchestrator) samplingWorkBegin() (engine.Signal, error) {
	if o.state.Phase != PhaseNoWork {
		o.log.Warnf("***WARNING: workbegin in phase %s ignored", o.state.Phase)
		return engine.Continue, nil
	}
	o.log.Infof("***Beginning benchmark execution")
	iv := o.plan.Intervals
	switch {
	case iv.InitFastForward > 0:
		o.log.Infof("***Beginning initial fast-forward")
		if err := o.setPhase(PhaseInitFF); err != nil {
			return engine.Continue, err
		}
		return engine.Continue, o.arm(iv.InitFastForward)
	case iv.Sampling:
		if err := o.setPhase(PhaseFFWork); err != nil {
			return engine.Continue, err
		}
		return engine.Continue, o.arm(iv.FastForward)
	default:
		o.log.Infof("***Switching to timing processor at benchmark start")
		if err := o.switchModel("benchmark start"); err != nil {
			return engine.Continue, err
		}
		o.log.Infof("===Entering stats ROI #1 at benchmark start")
		return engine.Continue, o.beginROI()
	}
}

func (o *Orchestrator) samplingWorkEnd() (engine.Signal, error) {
	o.log.Infof("***End of benchmark execution")
	phase := o.state.Phase
	if phase == PhaseROI {
		o.log.Infof("===Exiting stats ROI #%d at benchmark end. Took %.2f seconds",
			o.state.Counters.CompletedROIs+1, o.elapsed())
		if err := o.endROI(); err != nil {
			return engine.Continue, err
		}
	}
	if phase.Measuring() {
		o.log.Infof("***Switching to fast-forward processor for post-benchmark")
		if err := o.switchModel("benchmark end"); err != nil {
			return engine.Continue, err
		}
	}
	// The engine dumps a final block at exit if anything changed; zero it.
	if err := o.resetStats(); err != nil {
		return engine.Continue, err
	}
	return engine.Continue, o.setPhase(PhaseNoWork)
}

func (o *Orchestrator) samplingMaxInsts() (engine.Signal, error) {
	iv := o.plan.Intervals
	switch o.state.Phase {
	case PhaseROI:
		o.log.Infof("===Exiting stats ROI #%d. Took %.2f seconds", o.state.Counters.CompletedROIs+1, o.elapsed())
		if err := o.endROI(); err != nil {
			return engine.Continue, err
		}
		o.log.Infof("***Switching to fast-forward processor")
		if err := o.switchModel("roi end"); err != nil {
			return engine.Continue, err
		}
		if err := o.setPhase(PhaseFFWork); err != nil {
			return engine.Continue, err
		}
		if iv.MaxROIs > 0 && o.state.Counters.CompletedROIs >= iv.MaxROIs {
			if iv.ContinueAfterMax {
				o.log.Infof("***Max ROIs reached, fast-forwarding remainder of benchmark")
				return engine.Continue, nil
			}
			o.log.Infof("***Max ROIs reached, terminating simulation")
			// Reset first so the engine's exit block is empty.
			if err := o.resetStats(); err != nil {
				return engine.Continue, err
			}
			return engine.Terminate, o.setPhase(PhaseNoWork)
		}
		return engine.Continue, o.arm(iv.FastForward)

	case PhaseWarmup:
		o.log.Infof("===Entering stats ROI #%d. Warmup took %.2f seconds", o.state.Counters.CompletedROIs+1, o.elapsed())
		if err := o.beginROI(); err != nil {
			return engine.Continue, err
		}
		return engine.Continue, o.arm(iv.ROI)

	case PhaseFFWork:
		o.log.Infof("***Switching to timing processor. Fast forward took %.2f seconds", o.elapsed())
		if err := o.switchModel("fast-forward end"); err != nil {
			return engine.Continue, err
		}
		if err := o.setPhase(PhaseWarmup); err != nil {
			return engine.Continue, err
		}
		return engine.Continue, o.arm(iv.Warmup)

	case PhaseInitFF:
		o.log.Infof("***End of initial fast-forward. Took %.2f seconds", o.elapsed())
		if iv.Sampling {
			if err := o.setPhase(PhaseFFWork); err != nil {
				return engine.Continue, err
			}
			return engine.Continue, o.arm(iv.FastForward)
		}
		o.log.Infof("***Switching to timing processor")
		if err := o.switchModel("initial fast-forward end"); err != nil {
			return engine.Continue, err
		}
		o.log.Infof("===Entering stats ROI #1")
		return engine.Continue, o.beginROI()

	default:
		// WORKEND arrived mid-interval and left this request behind.
		o.log.Debugf("stale max_insts absorbed in phase %s", o.state.Phase)
		return engine.Continue, nil
	}
}
