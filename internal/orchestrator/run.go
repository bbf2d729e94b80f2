package orchestrator

import (
	"fmt"
	"strings"
	"time"

	"github.com/Jawbreaker1/phasectl/internal/config"
	"github.com/Jawbreaker1/phasectl/internal/engine"
)

// Preflight checks the directories a plan depends on before any engine is
// built: restore sources must exist and checkpoint targets must be writable.
func Preflight(plan config.Plan) error {
	cp := plan.Checkpoint
	for _, dir := range []string{cp.RestoreDir, cp.StartFrom} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := ValidateRestoreDir(dir); err != nil {
			return err
		}
	}
	if strings.TrimSpace(cp.Dir) != "" {
		return PrepareDir(cp.Dir)
	}
	return nil
}

// ExpectedCauses lists the exit causes that count as a planned end of a run
// in the given mode.
func ExpectedCauses(plan config.Plan) []string {
	causes := []string{engine.CauseExitInstruction}
	switch plan.Mode {
	case config.ModeSampling:
		if plan.Intervals.MaxROIs > 0 && !plan.Intervals.ContinueAfterMax {
			causes = append(causes, engine.CauseMaxInsts)
		}
	case config.ModeROI, config.ModePeriodicCheckpoints:
		causes = append(causes, engine.CauseWorkEnd)
	case config.ModeRestore:
		causes = append(causes, engine.CauseWorkEnd, engine.CauseMaxInsts)
	case config.ModeCheckpointROI:
		causes = append(causes, engine.CauseWorkBegin)
	case config.ModeInitCheckpoint:
		causes = append(causes, engine.CauseCheckpoint)
	}
	return causes
}

func isExpectedCause(plan config.Plan, cause string) bool {
	for _, c := range ExpectedCauses(plan) {
		if c == cause {
			return true
		}
	}
	return false
}

func exitMessage(plan config.Plan, cause string) string {
	switch cause {
	case engine.CauseExitInstruction:
		return "***Exited simulation due to m5 exit"
	case engine.CauseMaxInsts:
		if plan.Mode == config.ModeRestore {
			return "***Exited simulation due to INSTS reached"
		}
		return "***Exited simulation due to max_rois met"
	case engine.CauseWorkEnd:
		return "***Exited simulation due to ROI end"
	case engine.CauseCheckpoint:
		return "***Exited simulation after checkpoint at kernel boot"
	case engine.CauseWorkBegin:
		return "***Exited simulation after checkpoint at ROI start"
	}
	return ""
}

// Run drives one simulation to completion and returns its report. Fatal
// checkpoint I/O errors are returned alongside the partial report; an
// unexpected exit cause is only a warning.
func Run(opts Options) (Report, error) {
	o, err := New(opts)
	if err != nil {
		return Report{}, err
	}
	started := o.now()
	if err := Preflight(opts.Plan); err != nil {
		return Report{}, err
	}
	if dir := opts.Plan.Checkpoint.RestoreDir; dir != "" {
		o.log.Infof("###Restoring checkpoint from: %s", dir)
	}

	o.log.Infof("***Beginning simulation!")
	o.emit(EventTypeRunStarted, map[string]any{
		"mode":         string(opts.Plan.Mode),
		"start_model":  string(opts.Plan.StartModel),
		"switch_model": string(opts.Plan.SwitchModel),
		"cores":        opts.Plan.Cores,
	})
	if err := o.Start(); err != nil {
		return Report{}, fmt.Errorf("start %s run: %w", opts.Plan.Mode, err)
	}
	runErr := opts.Engine.Run(o)

	report := o.buildReport(started)
	if err := o.Err(); err != nil {
		o.emit(EventTypeRunFailed, map[string]any{"error": err.Error()})
		return report, err
	}
	if runErr != nil {
		o.emit(EventTypeRunFailed, map[string]any{"error": runErr.Error()})
		return report, fmt.Errorf("engine run: %w", runErr)
	}

	if report.ExpectedExit {
		o.log.Infof("%s", exitMessage(opts.Plan, report.ExitCause))
	} else {
		o.log.Warnf("***WARNING: Exited simulation due to unexpected cause: %s", report.ExitCause)
		o.emit(EventTypeRunWarning, map[string]any{"exit_cause": report.ExitCause})
	}
	o.log.Infof("Simulated ticks in ROIs: %d", report.TotalMeasuredTicks)
	o.log.Infof("Total wallclock time: %.2f s = %.2f min", report.WallClockSeconds, report.WallClockSeconds/60)
	o.emit(EventTypeRunCompleted, map[string]any{
		"exit_cause":           report.ExitCause,
		"completed_rois":       report.CompletedROIs,
		"total_measured_ticks": report.TotalMeasuredTicks,
	})
	return report, nil
}

func (o *Orchestrator) buildReport(started time.Time) Report {
	state := o.state.Snapshot()
	finished := o.now()
	cause := o.eng.LastExitCause()
	unhandled := make([]string, 0, len(o.unhandled))
	for _, ev := range o.unhandled {
		unhandled = append(unhandled, string(ev))
	}
	return Report{
		RunID:              o.runlog.RunID(),
		Mode:               o.plan.Mode,
		StartModel:         o.plan.StartModel,
		SwitchModel:        o.plan.SwitchModel,
		Cores:              o.plan.Cores,
		Phases:             state.Phases(),
		FinalPhase:         state.Phase,
		CompletedROIs:      state.Counters.CompletedROIs,
		TotalMeasuredTicks: state.Counters.TotalMeasuredTicks,
		Windows:            state.Windows,
		Checkpoints:        state.Checkpoints,
		StatsResets:        o.stats.Resets(),
		StatsDumps:         o.stats.Dumps(),
		MaxInstsArmed:      o.sched.Armed(),
		UnhandledEvents:    unhandled,
		FinalTick:          o.eng.CurrentTick(),
		ExitCause:          cause,
		ExpectedExit:       isExpectedCause(o.plan, cause),
		StartedAt:          started.UTC(),
		FinishedAt:         finished.UTC(),
		WallClockSeconds:   finished.Sub(started).Seconds(),
	}
}
