package orchestrator

import (
	"io"
	"testing"
	"time"

	"github.com/Jawbreaker1/phasectl/internal/config"
	"github.com/Jawbreaker1/phasectl/internal/engine"
	"github.com/Jawbreaker1/phasectl/internal/logging"
)

// fakeEngine records every collaborator call. Tests drive it by setting the
// tick and calling Dispatch directly.
type fakeEngine struct {
	tick     uint64
	calls    []string
	armed    []uint64
	switches int
	resets   int
	dumps    int
	saved    []string
	saveErr  error
	cause    string
}

func (f *fakeEngine) SwitchModel() error {
	f.switches++
	f.calls = append(f.calls, "switch")
	return nil
}

func (f *fakeEngine) ScheduleMaxInsts(n uint64) error {
	f.armed = append(f.armed, n)
	f.calls = append(f.calls, "arm")
	return nil
}

func (f *fakeEngine) CurrentTick() uint64 { return f.tick }

func (f *fakeEngine) Run(d engine.Dispatcher) error { return nil }

func (f *fakeEngine) SaveCheckpoint(dir string) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, dir)
	f.calls = append(f.calls, "save")
	return nil
}

func (f *fakeEngine) LastExitCause() string { return f.cause }

func (f *fakeEngine) ResetCounters() error {
	f.resets++
	f.calls = append(f.calls, "reset")
	return nil
}

func (f *fakeEngine) DumpCounters() error {
	f.dumps++
	f.calls = append(f.calls, "dump")
	return nil
}

func (f *fakeEngine) lastCall() string {
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func quietLogger() *logging.Logger {
	return logging.New(io.Discard, logging.LevelDebug, "")
}

func fixedClock() func() time.Time {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func newTestOrchestrator(t *testing.T, plan config.Plan) (*Orchestrator, *fakeEngine) {
	t.Helper()
	eng := &fakeEngine{}
	o, err := New(Options{
		Plan:   plan,
		Engine: eng,
		Stats:  eng,
		Logger: quietLogger(),
		Now:    fixedClock(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := o.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return o, eng
}

// deliver advances the fake clock and dispatches ev.
func deliver(t *testing.T, o *Orchestrator, eng *fakeEngine, tick uint64, ev engine.ExitEvent) engine.Signal {
	t.Helper()
	eng.tick = tick
	return o.Dispatch(ev)
}

func samplingPlan(ff, warmup, roi uint64) config.Plan {
	return config.Plan{
		Mode: config.ModeSampling,
		Intervals: config.Intervals{
			Sampling:    true,
			FastForward: ff,
			Warmup:      warmup,
			ROI:         roi,
		},
		StartModel:  engine.ModelKVM,
		SwitchModel: engine.ModelO3,
		Cores:       1,
	}
}

func assertPhases(t *testing.T, o *Orchestrator, want ...Phase) {
	t.Helper()
	st := o.State()
	got := st.Phases()
	if len(got) != len(want) {
		t.Fatalf("phase history mismatch: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("phase history mismatch at %d: got %v want %v", i, got, want)
		}
	}
}
