package orchestrator

import (
	"encoding/json"
	"time"
)

// RunLog appends event envelopes to a run's events.jsonl. A nil RunLog
// drops everything.
type RunLog struct {
	path  string
	runID string
	seq   int64
	now   func() time.Time
}

func NewRunLog(path, runID string, now func() time.Time) *RunLog {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &RunLog{path: path, runID: runID, now: now}
}

func (l *RunLog) RunID() string {
	if l == nil {
		return ""
	}
	return l.runID
}

func (l *RunLog) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Emit writes one event stamped with the phase and engine tick it happened at.
func (l *RunLog) Emit(eventType string, phase Phase, tick uint64, payload map[string]any) error {
	if l == nil {
		return nil
	}
	l.seq++
	return AppendEventJSONL(l.path, EventEnvelope{
		EventID: NewEventID(),
		RunID:   l.runID,
		Source:  sourceOrchestrator,
		Seq:     l.seq,
		TS:      l.now(),
		Type:    eventType,
		Phase:   phase,
		Tick:    tick,
		Payload: mustJSONRaw(payload),
	})
}

func mustJSONRaw(payload map[string]any) json.RawMessage {
	if len(payload) == 0 {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return data
}
