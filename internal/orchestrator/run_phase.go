package orchestrator

import (
	"fmt"
	"strings"
)

// Phase is the execution window the run is currently in. Exactly one phase
// is active at a time.
type Phase string

const (
	PhaseNoWork Phase = "no_work"
	PhaseInitFF Phase = "init_ff"
	PhaseFFWork Phase = "ff_work"
	PhaseWarmup Phase = "warmup"
	PhaseROI    Phase = "roi"
)

var validPhases = map[Phase]struct{}{
	PhaseNoWork: {},
	PhaseInitFF: {},
	PhaseFFWork: {},
	PhaseWarmup: {},
	PhaseROI:    {},
}

func NormalizePhase(raw string) Phase {
	phase := Phase(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := validPhases[phase]; ok {
		return phase
	}
	return ""
}

func ValidatePhase(raw string) error {
	if NormalizePhase(raw) == "" {
		return fmt.Errorf("invalid phase %q", raw)
	}
	return nil
}

// Measuring reports whether the precise model is active during p.
func (p Phase) Measuring() bool {
	return p == PhaseWarmup || p == PhaseROI
}
