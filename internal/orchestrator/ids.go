package orchestrator

import (
	"github.com/google/uuid"
	"github.com/rs/xid"
)

// NewEventID returns a sortable identifier for one run log line.
func NewEventID() string {
	return "evt-" + xid.New().String()
}

func NewRunID() string {
	return uuid.NewString()
}
