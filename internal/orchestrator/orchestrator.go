package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"github.com/Jawbreaker1/phasectl/internal/config"
	"github.com/Jawbreaker1/phasectl/internal/engine"
	"github.com/Jawbreaker1/phasectl/internal/logging"
)

// handler is one resumable step. It reconstructs its context from the
// RunState on every call and leaves the registry fully updated on return.
type handler func(o *Orchestrator) (engine.Signal, error)

type handlerSet map[engine.ExitEvent]handler

var modeHandlers = map[config.Mode]handlerSet{
	config.ModeSampling: {
		engine.ExitWorkBegin: (*Orchestrator).samplingWorkBegin,
		engine.ExitWorkEnd:   (*Orchestrator).samplingWorkEnd,
		engine.ExitMaxInsts:  (*Orchestrator).samplingMaxInsts,
	},
	config.ModeROI: {
		engine.ExitWorkBegin: (*Orchestrator).roiWorkBegin,
		engine.ExitWorkEnd:   (*Orchestrator).roiWorkEnd,
	},
	config.ModeCheckpointROI: {
		engine.ExitWorkBegin: (*Orchestrator).checkpointROIWorkBegin,
	},
	config.ModePeriodicCheckpoints: {
		engine.ExitWorkBegin: (*Orchestrator).periodicWorkBegin,
		engine.ExitWorkEnd:   (*Orchestrator).roiWorkEnd,
		engine.ExitMaxInsts:  (*Orchestrator).periodicMaxInsts,
	},
	config.ModeRestore: {
		engine.ExitWorkEnd:  (*Orchestrator).roiWorkEnd,
		engine.ExitMaxInsts: (*Orchestrator).restoreMaxInsts,
	},
	config.ModeInitCheckpoint: {
		engine.ExitCheckpoint: (*Orchestrator).initCheckpoint,
	},
}

// Options wires an Orchestrator to its collaborators.
type Options struct {
	Plan   config.Plan
	Engine engine.Engine
	Stats  engine.Stats
	Logger *logging.Logger
	RunLog *RunLog
	Now    func() time.Time
}

// Orchestrator is the phase state machine. It implements engine.Dispatcher
// and is driven synchronously from inside Engine.Run.
type Orchestrator struct {
	plan     config.Plan
	eng      engine.Engine
	state    *RunState
	sched    *Scheduler
	stats    *StatsWindow
	ckpt     *CheckpointManager
	log      *logging.Logger
	runlog   *RunLog
	now      func() time.Time
	handlers handlerSet

	started   bool
	err       error
	unhandled []engine.ExitEvent
	logFailed bool
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Engine == nil {
		return nil, errors.New("engine is required")
	}
	if opts.Stats == nil {
		return nil, errors.New("stats is required")
	}
	handlers, ok := modeHandlers[opts.Plan.Mode]
	if !ok {
		return nil, &config.ConfigError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", opts.Plan.Mode)}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logging.Default()
	}
	state := NewRunState(now())
	return &Orchestrator{
		plan:     opts.Plan,
		eng:      opts.Engine,
		state:    state,
		sched:    NewScheduler(opts.Engine),
		stats:    NewStatsWindow(opts.Stats, opts.Engine, state),
		ckpt:     NewCheckpointManager(opts.Engine, state, now),
		log:      log,
		runlog:   opts.RunLog,
		now:      now,
		handlers: handlers,
	}, nil
}

// Start performs the pre-run actions of the selected mode. Restored runs arm
// their first MAX_INSTS here because no WORKBEGIN will follow the snapshot.
func (o *Orchestrator) Start() error {
	if o.started {
		return errors.New("orchestrator already started")
	}
	o.started = true
	if o.plan.Mode != config.ModeRestore {
		return nil
	}
	cp := o.plan.Checkpoint
	if cp.Warmup > 0 {
		o.log.Infof("***Warming up for %d instructions", cp.Warmup)
		if err := o.setPhase(PhaseWarmup); err != nil {
			return err
		}
		return o.arm(cp.Warmup)
	}
	o.log.Infof("===Entering stats ROI")
	if err := o.beginROI(); err != nil {
		return err
	}
	if cp.Insts > 0 {
		return o.arm(cp.Insts)
	}
	return nil
}

// Dispatch routes an exit event to the handler bound for the current mode.
// Events with no binding are reported and the run continues.
func (o *Orchestrator) Dispatch(ev engine.ExitEvent) engine.Signal {
	if o.err != nil {
		return engine.Terminate
	}
	if ev == engine.ExitMaxInsts {
		o.sched.Fired()
	}
	h, ok := o.handlers[ev]
	if !ok {
		o.unhandled = append(o.unhandled, ev)
		o.log.Warnf("***WARNING: no %s handler in %s mode; continuing", ev, o.plan.Mode)
		o.emit(EventTypeEventUnhandled, map[string]any{"event": string(ev)})
		return engine.Continue
	}
	sig, err := h(o)
	if err != nil {
		o.err = fmt.Errorf("handle %s in phase %s: %w", ev, o.state.Phase, err)
		o.log.Errorf("%v", o.err)
		return engine.Terminate
	}
	return sig
}

// Err returns the fatal error that stopped the run, if any.
func (o *Orchestrator) Err() error {
	return o.err
}

func (o *Orchestrator) State() RunState {
	return o.state.Snapshot()
}

func (o *Orchestrator) Phase() Phase {
	return o.state.Phase
}

// Unhandled lists events delivered without a handler binding.
func (o *Orchestrator) Unhandled() []engine.ExitEvent {
	return append([]engine.ExitEvent(nil), o.unhandled...)
}

func (o *Orchestrator) setPhase(to Phase) error {
	from := o.state.Phase
	if from == to {
		return nil
	}
	if err := ValidateTransition(from, to); err != nil {
		return err
	}
	at := o.now()
	o.state.Phase = to
	o.state.Counters.PhaseStartWallClock = at
	o.state.History = append(o.state.History, PhaseVisit{Phase: to, Tick: o.eng.CurrentTick(), At: at})
	o.log.Debugf("phase %s -> %s at tick %d", from, to, o.eng.CurrentTick())
	o.emit(EventTypePhaseChanged, map[string]any{"from": string(from), "to": string(to)})
	return nil
}

// elapsed is the wall-clock time spent in the current phase.
func (o *Orchestrator) elapsed() float64 {
	return o.now().Sub(o.state.Counters.PhaseStartWallClock).Seconds()
}

// arm requests the next MAX_INSTS. The engine cannot cancel a request, so a
// stale one left behind by WORKEND is tolerated and absorbed in NO_WORK.
func (o *Orchestrator) arm(n uint64) error {
	if pending, ok := o.sched.Pending(); ok {
		o.log.Warnf("arming max_insts %d while %d is still outstanding", n, pending)
	}
	if err := o.sched.Arm(n); err != nil {
		return err
	}
	o.emit(EventTypeMaxInstsArmed, map[string]any{"instructions": n})
	return nil
}

func (o *Orchestrator) switchModel(reason string) error {
	if err := o.eng.SwitchModel(); err != nil {
		return fmt.Errorf("switch model: %w", err)
	}
	o.emit(EventTypeModelSwitched, map[string]any{"reason": reason})
	return nil
}

func (o *Orchestrator) resetStats() error {
	if err := o.stats.Reset(); err != nil {
		return err
	}
	o.emit(EventTypeStatsReset, nil)
	return nil
}

func (o *Orchestrator) dumpStats() error {
	if err := o.stats.Dump(); err != nil {
		return err
	}
	o.emit(EventTypeStatsDumped, nil)
	return nil
}

// beginROI opens a measurement window and enters ROI.
func (o *Orchestrator) beginROI() error {
	if err := o.stats.BeginROI(); err != nil {
		return err
	}
	o.emit(EventTypeStatsReset, nil)
	return o.setPhase(PhaseROI)
}

// endROI closes the current window. The caller picks the next phase.
func (o *Orchestrator) endROI() error {
	window, err := o.stats.EndROI()
	if err != nil {
		return err
	}
	o.emit(EventTypeStatsDumped, nil)
	o.emit(EventTypeROICompleted, map[string]any{
		"index":      window.Index,
		"start_tick": window.StartTick,
		"end_tick":   window.EndTick,
		"ticks":      window.Ticks(),
	})
	return nil
}

func (o *Orchestrator) saveCheckpoint(req CheckpointRequest) (CheckpointRecord, error) {
	record, err := o.ckpt.Save(req)
	if err != nil {
		return CheckpointRecord{}, err
	}
	o.emit(EventTypeCheckpointSaved, map[string]any{
		"ordinal":    record.Ordinal,
		"identifier": record.Identifier,
		"path":       record.Path,
	})
	return record, nil
}

// emit records a run log event. Run log failures are observability-only.
func (o *Orchestrator) emit(eventType string, payload map[string]any) {
	if o.logFailed {
		return
	}
	if err := o.runlog.Emit(eventType, o.state.Phase, o.eng.CurrentTick(), payload); err != nil {
		o.logFailed = true
		o.log.Warnf("run log write failed, further events dropped from %s: %v", o.runlog.Path(), err)
	}
}
