package orchestrator

import "fmt"

// allowedTransitions covers every variant: sampling (with optional initial
// fast-forward and ROI cap), plain ROI, checkpointing and restore.
var allowedTransitions = map[Phase]map[Phase]struct{}{
	PhaseNoWork: {
		PhaseInitFF: {},
		PhaseFFWork: {},
		PhaseWarmup: {},
		PhaseROI:    {},
	},
	PhaseInitFF: {
		PhaseFFWork: {},
		PhaseROI:    {},
		PhaseNoWork: {},
	},
	PhaseFFWork: {
		PhaseWarmup: {},
		PhaseNoWork: {},
	},
	PhaseWarmup: {
		PhaseROI:    {},
		PhaseNoWork: {},
	},
	PhaseROI: {
		PhaseFFWork: {},
		PhaseNoWork: {},
	},
}

func ValidateTransition(from, to Phase) error {
	if err := ValidatePhase(string(from)); err != nil {
		return err
	}
	if err := ValidatePhase(string(to)); err != nil {
		return err
	}
	if _, ok := allowedTransitions[from][to]; !ok {
		return fmt.Errorf("invalid phase transition: %s -> %s", from, to)
	}
	return nil
}
