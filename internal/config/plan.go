package config

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Jawbreaker1/phasectl/internal/engine"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// ConfigError is a fatal configuration problem detected before the run starts.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", ErrInvalidConfig, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}

func invalid(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Intervals holds resolved instruction counts for the sampling state machine.
type Intervals struct {
	InitFastForward  uint64
	Sampling         bool
	FastForward      uint64
	Warmup           uint64
	ROI              uint64
	MaxROIs          int
	ContinueAfterMax bool
}

// CheckpointPlan holds resolved checkpoint and restore settings.
type CheckpointPlan struct {
	Dir        string
	Every      uint64
	RestoreDir string
	Warmup     uint64
	Insts      uint64
	StartFrom  string
}

// Plan is the validated, unit-resolved form of Config.
type Plan struct {
	Mode        Mode
	Intervals   Intervals
	Checkpoint  CheckpointPlan
	StartModel  engine.Model
	SwitchModel engine.Model
	Cores       int
}

// ResolveMode returns the explicit mode or derives one from the checkpoint options.
func (cfg Config) ResolveMode() Mode {
	if cfg.Mode != "" {
		return cfg.Mode
	}
	cp := cfg.Checkpoint
	switch {
	case cp.TakeCheckpoints != nil:
		return ModePeriodicCheckpoints
	case strings.TrimSpace(cp.ROIDir) != "":
		return ModeCheckpointROI
	case strings.TrimSpace(cp.Restore) != "":
		return ModeRestore
	case strings.TrimSpace(cp.InitCheckpoint) != "":
		return ModeInitCheckpoint
	case cfg.Sampling.Enabled || cfg.Sampling.InitFastForward != nil:
		return ModeSampling
	default:
		return ModeROI
	}
}

var validModes = map[Mode]struct{}{
	ModeSampling:            {},
	ModeROI:                 {},
	ModeCheckpointROI:       {},
	ModePeriodicCheckpoints: {},
	ModeRestore:             {},
	ModeInitCheckpoint:      {},
}

// Validate reports the first configuration error, if any.
func (cfg Config) Validate() error {
	mode := cfg.ResolveMode()
	if _, ok := validModes[mode]; !ok {
		return invalid("mode", "unknown mode %q", mode)
	}
	if cfg.Engine.Cores < 1 {
		return invalid("cores", "must be positive")
	}
	if err := cfg.validateRanges(); err != nil {
		return err
	}
	if mode == ModeSampling {
		if err := cfg.validateSampling(); err != nil {
			return err
		}
		if cfg.hasCheckpointOptions() {
			return invalid("checkpoint", "checkpoint options are invalid in sampling mode")
		}
		return nil
	}
	if cfg.hasSamplingOptions() {
		return invalid("sampling", "sampling options are only valid in sampling mode")
	}
	return cfg.validateCheckpoint(mode)
}

func (cfg Config) hasSamplingOptions() bool {
	s := cfg.Sampling
	return s.Enabled || s.InitFastForward != nil || s.FastForward != nil || s.Warmup != nil ||
		s.ROI != nil || s.MaxROIs != nil || s.Continue
}

// hasCheckpointOptions ignores StartFrom: a post-boot checkpoint can seed a
// sampling run as well as a plain one.
func (cfg Config) hasCheckpointOptions() bool {
	cp := cfg.Checkpoint
	return cp.ROIDir != "" || cp.TakeCheckpoints != nil || cp.Restore != "" || cp.Warmup != nil ||
		cp.Insts != nil || cp.InitCheckpoint != ""
}

// maxMillions is the largest count that still fits in uint64 once scaled.
const maxMillions = math.MaxUint64 / Million

// validateRanges rejects counts that would overflow when scaled to instructions.
func (cfg Config) validateRanges() error {
	s, cp := cfg.Sampling, cfg.Checkpoint
	for _, f := range []struct {
		name string
		v    *int
	}{
		{"init_ff", s.InitFastForward},
		{"ff_interval", s.FastForward},
		{"warmup_interval", s.Warmup},
		{"roi_interval", s.ROI},
		{"take_checkpoints", cp.TakeCheckpoints},
		{"warmup", cp.Warmup},
		{"insts", cp.Insts},
	} {
		if f.v != nil && *f.v > 0 && uint64(*f.v) > maxMillions {
			return invalid(f.name, "%d million instructions overflows the instruction counter", *f.v)
		}
	}
	return nil
}

func (cfg Config) validateSampling() error {
	s := cfg.Sampling
	if s.Enabled {
		if s.FastForward == nil || s.Warmup == nil || s.ROI == nil {
			return invalid("sampling", "sample mode requires ff_interval, warmup_interval and roi_interval")
		}
		for name, v := range map[string]int{
			"ff_interval":     *s.FastForward,
			"warmup_interval": *s.Warmup,
			"roi_interval":    *s.ROI,
		} {
			if v < 1 {
				return invalid(name, "must be positive")
			}
		}
		if s.MaxROIs != nil && *s.MaxROIs < 1 {
			return invalid("max_rois", "must be positive")
		}
		if s.MaxROIs == nil && s.Continue {
			return invalid("continue", "only valid with max_rois")
		}
	} else {
		if s.FastForward != nil || s.Warmup != nil || s.ROI != nil {
			return invalid("sampling", "a sample interval was specified but sampling is disabled")
		}
		if s.MaxROIs != nil || s.Continue {
			return invalid("sampling", "max_rois and continue are invalid without sampling")
		}
	}
	if s.InitFastForward != nil && *s.InitFastForward < 1 {
		return invalid("init_ff", "must be positive")
	}
	return nil
}

func (cfg Config) validateCheckpoint(mode Mode) error {
	cp := cfg.Checkpoint
	creating := cp.TakeCheckpoints != nil || cp.ROIDir != "" || cp.InitCheckpoint != ""
	if creating && cp.Restore != "" {
		return invalid("restore", "checkpoint creation and restore are mutually exclusive")
	}
	if cp.InitCheckpoint != "" && (cp.TakeCheckpoints != nil || cp.ROIDir != "") {
		return invalid("init_checkpoint", "mutually exclusive with take_checkpoints and checkpoint_roi")
	}
	if cp.TakeCheckpoints != nil && cp.ROIDir != "" {
		return invalid("take_checkpoints", "mutually exclusive with checkpoint_roi")
	}
	if cp.InitCheckpoint != "" && cp.StartFrom != "" {
		return invalid("init_checkpoint", "mutually exclusive with start_from")
	}
	if cp.Restore != "" && cp.StartFrom != "" {
		return invalid("start_from", "mutually exclusive with restore")
	}
	if cp.Insts != nil && cp.Restore == "" {
		return invalid("insts", "only valid in combination with restore")
	}
	if cp.Warmup != nil && cp.Restore == "" {
		return invalid("warmup", "only valid in combination with restore")
	}
	if cp.Warmup != nil && *cp.Warmup < 0 {
		return invalid("warmup", "must be non-negative")
	}
	if cp.Insts != nil && *cp.Insts < 1 {
		return invalid("insts", "must be positive")
	}
	if cp.TakeCheckpoints != nil {
		if *cp.TakeCheckpoints < 1 {
			return invalid("take_checkpoints", "must be positive")
		}
		if strings.TrimSpace(cp.Path) == "" {
			return invalid("checkpoint_path", "required with take_checkpoints")
		}
	}

	want := map[Mode]bool{
		ModePeriodicCheckpoints: cp.TakeCheckpoints != nil,
		ModeCheckpointROI:       cp.ROIDir != "",
		ModeRestore:             cp.Restore != "",
		ModeInitCheckpoint:      cp.InitCheckpoint != "",
		ModeROI:                 !creating && cp.Restore == "",
	}
	if !want[mode] {
		return invalid("mode", "mode %q does not match the checkpoint options given", mode)
	}
	return nil
}

func millions(v *int) uint64 {
	if v == nil || *v <= 0 {
		return 0
	}
	return uint64(*v) * Million
}

// Resolve validates cfg and converts it into a Plan with absolute instruction counts.
func (cfg Config) Resolve() (Plan, error) {
	if err := cfg.Validate(); err != nil {
		return Plan{}, err
	}
	mode := cfg.ResolveMode()
	plan := Plan{Mode: mode, Cores: cfg.Engine.Cores}

	s := cfg.Sampling
	plan.Intervals = Intervals{
		InitFastForward:  millions(s.InitFastForward),
		Sampling:         s.Enabled,
		FastForward:      millions(s.FastForward),
		Warmup:           millions(s.Warmup),
		ROI:              millions(s.ROI),
		ContinueAfterMax: s.Continue,
	}
	if s.MaxROIs != nil {
		plan.Intervals.MaxROIs = *s.MaxROIs
	}

	cp := cfg.Checkpoint
	plan.Checkpoint = CheckpointPlan{
		Every:      millions(cp.TakeCheckpoints),
		RestoreDir: cp.Restore,
		Warmup:     millions(cp.Warmup),
		Insts:      millions(cp.Insts),
		StartFrom:  cp.StartFrom,
	}
	switch mode {
	case ModeCheckpointROI:
		plan.Checkpoint.Dir = cp.ROIDir
	case ModePeriodicCheckpoints:
		plan.Checkpoint.Dir = cp.Path
	case ModeInitCheckpoint:
		plan.Checkpoint.Dir = cp.InitCheckpoint
	}

	plan.StartModel, plan.SwitchModel = cfg.models(mode)
	return plan, nil
}

// models picks the execution models per mode: sampling fast-forwards on KVM
// (or atomic) and measures on O3; checkpoint creation runs atomic throughout;
// plain and restored runs stay on timing (or O3).
func (cfg Config) models(mode Mode) (engine.Model, engine.Model) {
	switch mode {
	case ModeSampling:
		if cfg.Engine.NoKVM {
			return engine.ModelAtomic, engine.ModelO3
		}
		return engine.ModelKVM, engine.ModelO3
	case ModeCheckpointROI, ModePeriodicCheckpoints, ModeInitCheckpoint:
		return engine.ModelAtomic, engine.ModelAtomic
	default:
		if cfg.Engine.O3 {
			return engine.ModelO3, engine.ModelO3
		}
		return engine.ModelTiming, engine.ModelTiming
	}
}
