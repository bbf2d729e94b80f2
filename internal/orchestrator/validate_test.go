package orchestrator

import (
	"errors"
	"testing"
	"time"
)

func TestValidateEventEnvelope(t *testing.T) {
	t.Parallel()

	valid := EventEnvelope{
		EventID: "evt-1",
		RunID:   "run-1",
		Source:  sourceOrchestrator,
		Seq:     1,
		TS:      time.Now(),
		Type:    EventTypeStatsReset,
		Phase:   PhaseROI,
	}
	if err := ValidateEventEnvelope(valid); err != nil {
		t.Fatalf("expected valid envelope, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*EventEnvelope)
	}{
		{name: "missing id", mutate: func(e *EventEnvelope) { e.EventID = "" }},
		{name: "missing run", mutate: func(e *EventEnvelope) { e.RunID = " " }},
		{name: "missing source", mutate: func(e *EventEnvelope) { e.Source = "" }},
		{name: "zero seq", mutate: func(e *EventEnvelope) { e.Seq = 0 }},
		{name: "zero ts", mutate: func(e *EventEnvelope) { e.TS = time.Time{} }},
		{name: "unknown type", mutate: func(e *EventEnvelope) { e.Type = "task_leased" }},
		{name: "unknown phase", mutate: func(e *EventEnvelope) { e.Phase = "drain" }},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			event := valid
			tc.mutate(&event)
			if err := ValidateEventEnvelope(event); !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("expected ErrInvalidEvent, got %v", err)
			}
		})
	}
}
