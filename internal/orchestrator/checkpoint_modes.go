package orchestrator

import "github.com/Jawbreaker1/phasectl/internal/engine"

func (o *Orchestrator) roiWorkBegin() (engine.Signal, error) {
	o.log.Infof("===Entering stats ROI")
	return engine.Continue, o.beginROI()
}

// roiWorkEnd ends a single-window run. It is shared by the plain ROI,
// periodic checkpoint and restore modes.
func (o *Orchestrator) roiWorkEnd() (engine.Signal, error) {
	o.log.Infof("===Exiting stats ROI")
	if o.state.Phase == PhaseROI {
		if err := o.endROI(); err != nil {
			return engine.Terminate, err
		}
	} else {
		o.log.Warnf("***WARNING: workend in phase %s, dumping unmeasured window", o.state.Phase)
		if err := o.dumpStats(); err != nil {
			return engine.Terminate, err
		}
	}
	return engine.Terminate, o.setPhase(PhaseNoWork)
}

func (o *Orchestrator) checkpointROIWorkBegin() (engine.Signal, error) {
	o.log.Infof("===Entering stats ROI")
	if err := o.beginROI(); err != nil {
		return engine.Terminate, err
	}
	req := o.ckpt.Request(o.plan.Checkpoint.Dir, true)
	o.log.Infof("###Checkpoint created at start of ROI: %s", req.Path())
	if _, err := o.saveCheckpoint(req); err != nil {
		return engine.Terminate, err
	}
	return engine.Terminate, nil
}

func (o *Orchestrator) periodicWorkBegin() (engine.Signal, error) {
	o.log.Infof("===Entering stats ROI")
	if err := o.beginROI(); err != nil {
		return engine.Continue, err
	}
	every := o.plan.Checkpoint.Every
	o.log.Infof("###Taking checkpoints every %d instructions!", every)
	if err := o.arm(every); err != nil {
		return engine.Continue, err
	}
	req := o.ckpt.Request(o.plan.Checkpoint.Dir, false)
	o.log.Infof("###Checkpoint 1 (start of ROI): %s", req.Path())
	_, err := o.saveCheckpoint(req)
	return engine.Continue, err
}

func (o *Orchestrator) periodicMaxInsts() (engine.Signal, error) {
	if o.state.Phase != PhaseROI {
		o.log.Debugf("stale max_insts absorbed in phase %s", o.state.Phase)
		return engine.Continue, nil
	}
	req := o.ckpt.Request(o.plan.Checkpoint.Dir, false)
	o.log.Infof("###Checkpoint %d: %s", len(o.state.Checkpoints)+1, req.Path())
	if _, err := o.saveCheckpoint(req); err != nil {
		return engine.Continue, err
	}
	return engine.Continue, o.arm(o.plan.Checkpoint.Every)
}

// restoreMaxInsts: the first firing ends warmup, the next one ends the ROI.
func (o *Orchestrator) restoreMaxInsts() (engine.Signal, error) {
	switch o.state.Phase {
	case PhaseWarmup:
		o.log.Infof("===Entering stats ROI")
		if err := o.beginROI(); err != nil {
			return engine.Continue, err
		}
		if insts := o.plan.Checkpoint.Insts; insts > 0 {
			return engine.Continue, o.arm(insts)
		}
		return engine.Continue, nil
	case PhaseROI:
		o.log.Infof("===Exiting stats ROI")
		if err := o.endROI(); err != nil {
			return engine.Terminate, err
		}
		return engine.Terminate, o.setPhase(PhaseNoWork)
	default:
		o.log.Debugf("stale max_insts absorbed in phase %s", o.state.Phase)
		return engine.Continue, nil
	}
}

func (o *Orchestrator) initCheckpoint() (engine.Signal, error) {
	o.log.Infof("###Taking post-kernel-boot checkpoint")
	req := o.ckpt.Request(o.plan.Checkpoint.Dir, true)
	if _, err := o.saveCheckpoint(req); err != nil {
		return engine.Terminate, err
	}
	o.log.Infof("###Checkpoint written to %s", req.Path())
	return engine.Terminate, nil
}
