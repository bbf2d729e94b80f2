package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidEvent = errors.New("invalid event")

var validEventTypes = map[string]struct{}{
	EventTypeRunStarted:      {},
	EventTypePhaseChanged:    {},
	EventTypeModelSwitched:   {},
	EventTypeMaxInstsArmed:   {},
	EventTypeStatsReset:      {},
	EventTypeStatsDumped:     {},
	EventTypeROICompleted:    {},
	EventTypeCheckpointSaved: {},
	EventTypeEventUnhandled:  {},
	EventTypeRunWarning:      {},
	EventTypeRunCompleted:    {},
	EventTypeRunFailed:       {},
}

func ValidateEventEnvelope(event EventEnvelope) error {
	if strings.TrimSpace(event.EventID) == "" {
		return fmt.Errorf("%w: event_id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(event.RunID) == "" {
		return fmt.Errorf("%w: run_id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(event.Source) == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidEvent)
	}
	if event.Seq <= 0 {
		return fmt.Errorf("%w: seq must be > 0", ErrInvalidEvent)
	}
	if event.TS.IsZero() {
		return fmt.Errorf("%w: ts is required", ErrInvalidEvent)
	}
	if _, ok := validEventTypes[event.Type]; !ok {
		return fmt.Errorf("%w: unsupported type %q", ErrInvalidEvent, event.Type)
	}
	if event.Phase != "" {
		if err := ValidatePhase(string(event.Phase)); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
		}
	}
	return nil
}
