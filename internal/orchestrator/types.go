package orchestrator

import (
	"encoding/json"
	"time"
)

const (
	EventTypeRunStarted      = "run_started"
	EventTypePhaseChanged    = "phase_changed"
	EventTypeModelSwitched   = "model_switched"
	EventTypeMaxInstsArmed   = "max_insts_armed"
	EventTypeStatsReset      = "stats_reset"
	EventTypeStatsDumped     = "stats_dumped"
	EventTypeROICompleted    = "roi_completed"
	EventTypeCheckpointSaved = "checkpoint_saved"
	EventTypeEventUnhandled  = "event_unhandled"
	EventTypeRunWarning      = "run_warning"
	EventTypeRunCompleted    = "run_completed"
	EventTypeRunFailed       = "run_failed"

	sourceOrchestrator = "orchestrator"
)

// EventEnvelope is one line of a run's events.jsonl.
type EventEnvelope struct {
	EventID string          `json:"event_id"`
	RunID   string          `json:"run_id"`
	Source  string          `json:"source"`
	Seq     int64           `json:"seq"`
	TS      time.Time       `json:"ts"`
	Type    string          `json:"type"`
	Phase   Phase           `json:"phase,omitempty"`
	Tick    uint64          `json:"tick"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
