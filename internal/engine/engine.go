// Package engine describes the execution engine the phase controller drives,
// and provides Synthetic, a deterministic trace-driven implementation.
package engine

import (
	"fmt"
	"strings"
)

// ExitEvent is the kind of notification the engine delivers when it stops
// to hand control to the controller.
type ExitEvent string

const (
	ExitWorkBegin  ExitEvent = "workbegin"
	ExitWorkEnd    ExitEvent = "workend"
	ExitMaxInsts   ExitEvent = "max_insts"
	ExitCheckpoint ExitEvent = "checkpoint"
)

// Exit-cause strings reported by LastExitCause.
const (
	CauseExitInstruction = "m5_exit instruction encountered"
	CauseMaxInsts        = "a thread reached the max instruction count"
	CauseWorkBegin       = "workbegin"
	CauseWorkEnd         = "workend"
	CauseCheckpoint      = "checkpoint"
)

// CauseFor maps an exit event to the cause string the engine reports when a
// handler stops the run on it.
func CauseFor(ev ExitEvent) string {
	switch ev {
	case ExitWorkBegin:
		return CauseWorkBegin
	case ExitWorkEnd:
		return CauseWorkEnd
	case ExitMaxInsts:
		return CauseMaxInsts
	case ExitCheckpoint:
		return CauseCheckpoint
	default:
		return string(ev)
	}
}

// Model is an execution-model variant.
type Model string

const (
	ModelKVM    Model = "kvm"
	ModelAtomic Model = "atomic"
	ModelTiming Model = "timing"
	ModelO3     Model = "o3"
)

var models = map[Model]bool{
	ModelKVM:    true,
	ModelAtomic: true,
	ModelTiming: true,
	ModelO3:     true,
}

// Precise reports whether m is a detailed (timing-accurate) model.
func (m Model) Precise() bool {
	return m == ModelTiming || m == ModelO3
}

// ParseModel validates a model name.
func ParseModel(raw string) (Model, error) {
	m := Model(strings.ToLower(strings.TrimSpace(raw)))
	if !models[m] {
		return "", fmt.Errorf("invalid execution model %q", raw)
	}
	return m, nil
}

// Signal is a handler's verdict on whether the engine should keep running.
type Signal bool

const (
	Continue  Signal = false
	Terminate Signal = true
)

// Dispatcher receives exit events. It is called synchronously from inside Run
// and must complete before the engine resumes.
type Dispatcher interface {
	Dispatch(ev ExitEvent) Signal
}

// Engine is the execution engine surface the controller consumes.
type Engine interface {
	// SwitchModel toggles between the fast and the precise execution model.
	SwitchModel() error
	// ScheduleMaxInsts requests one MAX_INSTS event after n more retired instructions.
	ScheduleMaxInsts(n uint64) error
	CurrentTick() uint64
	// Run executes until a dispatcher returns Terminate or the workload exits.
	Run(d Dispatcher) error
	SaveCheckpoint(dir string) error
	LastExitCause() string
}

// Stats is the statistics subsystem surface.
type Stats interface {
	ResetCounters() error
	DumpCounters() error
}
