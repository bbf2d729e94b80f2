package config

import (
	"errors"
	"math"
	"testing"

	"github.com/Jawbreaker1/phasectl/internal/engine"
)

func samplingConfig(ff, warmup, roi int) Config {
	cfg := Default()
	cfg.Mode = ModeSampling
	cfg.Sampling.Enabled = true
	cfg.Sampling.FastForward = intPtr(ff)
	cfg.Sampling.Warmup = intPtr(warmup)
	cfg.Sampling.ROI = intPtr(roi)
	return cfg
}

func TestResolveSamplingScalesMillions(t *testing.T) {
	t.Parallel()

	cfg := samplingConfig(10, 2, 5)
	cfg.Sampling.MaxROIs = intPtr(2)
	cfg.Sampling.InitFastForward = intPtr(1)
	plan, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	iv := plan.Intervals
	if iv.FastForward != 10_000_000 || iv.Warmup != 2_000_000 || iv.ROI != 5_000_000 {
		t.Fatalf("unexpected intervals %+v", iv)
	}
	if iv.InitFastForward != 1_000_000 || iv.MaxROIs != 2 || iv.ContinueAfterMax {
		t.Fatalf("unexpected intervals %+v", iv)
	}
	if plan.StartModel != engine.ModelKVM || plan.SwitchModel != engine.ModelO3 {
		t.Fatalf("unexpected models %s/%s", plan.StartModel, plan.SwitchModel)
	}

	cfg.Engine.NoKVM = true
	plan, err = cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.StartModel != engine.ModelAtomic {
		t.Fatalf("nokvm should start atomic, got %s", plan.StartModel)
	}
}

func TestValidateRejectsInvalidSampling(t *testing.T) {
	t.Parallel()

	missing := Default()
	missing.Mode = ModeSampling
	missing.Sampling.Enabled = true
	missing.Sampling.FastForward = intPtr(10)

	cases := map[string]Config{
		"missing intervals": missing,
		"zero ff":           samplingConfig(0, 2, 5),
		"negative roi":      samplingConfig(10, 2, -5),
		"continue without max": func() Config {
			c := samplingConfig(10, 2, 5)
			c.Sampling.Continue = true
			return c
		}(),
		"zero max rois": func() Config {
			c := samplingConfig(10, 2, 5)
			c.Sampling.MaxROIs = intPtr(0)
			return c
		}(),
		"interval without sampling": func() Config {
			c := samplingConfig(10, 2, 5)
			c.Sampling.Enabled = false
			return c
		}(),
		"max rois without sampling": func() Config {
			c := Default()
			c.Mode = ModeSampling
			c.Sampling.MaxROIs = intPtr(2)
			return c
		}(),
		"zero init ff": func() Config {
			c := Default()
			c.Mode = ModeSampling
			c.Sampling.InitFastForward = intPtr(0)
			return c
		}(),
		"checkpoint in sampling": func() Config {
			c := samplingConfig(10, 2, 5)
			c.Checkpoint.Restore = "somewhere"
			return c
		}(),
		"huge ff": samplingConfig(math.MaxInt, 2, 5),
		"zero cores": func() Config {
			c := samplingConfig(10, 2, 5)
			c.Engine.Cores = 0
			return c
		}(),
	}
	for name, cfg := range cases {
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected configuration error", name)
		}
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%s: expected *ConfigError, got %T", name, err)
		}
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig in chain", name)
		}
	}
}

func TestWholeBenchmarkSamplingModeIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Mode = ModeSampling
	cfg.Sampling.InitFastForward = intPtr(3)
	plan, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Intervals.Sampling || plan.Intervals.InitFastForward != 3_000_000 {
		t.Fatalf("unexpected intervals %+v", plan.Intervals)
	}
}

func TestSamplingMayStartFromPostBootCheckpoint(t *testing.T) {
	t.Parallel()

	cfg := samplingConfig(10, 2, 5)
	cfg.Checkpoint.StartFrom = "ckpts/boot"
	plan, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Mode != ModeSampling || plan.Checkpoint.StartFrom != "ckpts/boot" {
		t.Fatalf("unexpected plan %+v", plan)
	}
	if plan.StartModel != engine.ModelKVM {
		t.Fatalf("sampling from a post-boot checkpoint still fast-forwards, got %s", plan.StartModel)
	}

	cfg.Checkpoint.Insts = intPtr(1)
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("restore options stay invalid in sampling mode, got %v", err)
	}
}

func TestResolveModeFromCheckpointOptions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		apply func(*Config)
		want  Mode
	}{
		{"periodic", func(c *Config) { c.Checkpoint.TakeCheckpoints = intPtr(1) }, ModePeriodicCheckpoints},
		{"roi checkpoint", func(c *Config) { c.Checkpoint.ROIDir = "ck" }, ModeCheckpointROI},
		{"restore", func(c *Config) { c.Checkpoint.Restore = "ck"; c.Checkpoint.Warmup = intPtr(3) }, ModeRestore},
		{"init", func(c *Config) { c.Checkpoint.InitCheckpoint = "boot" }, ModeInitCheckpoint},
		{"plain", func(c *Config) {}, ModeROI},
		{"start from", func(c *Config) { c.Checkpoint.StartFrom = "boot" }, ModeROI},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.apply(&cfg)
		if got := cfg.ResolveMode(); got != tc.want {
			t.Fatalf("%s: mode = %s, want %s", tc.name, got, tc.want)
		}
		if _, err := cfg.Resolve(); err != nil {
			t.Fatalf("%s: Resolve: %v", tc.name, err)
		}
	}
}

func TestResolveCheckpointPlan(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Checkpoint.Restore = "ck"
	cfg.Checkpoint.Warmup = intPtr(3)
	cfg.Checkpoint.Insts = intPtr(20)
	cfg.Engine.O3 = true
	plan, err := cfg.Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if plan.Checkpoint.Warmup != 3_000_000 || plan.Checkpoint.Insts != 20_000_000 || plan.Checkpoint.RestoreDir != "ck" {
		t.Fatalf("unexpected checkpoint plan %+v", plan.Checkpoint)
	}
	if plan.StartModel != engine.ModelO3 || plan.SwitchModel != engine.ModelO3 {
		t.Fatalf("restore with o3 should stay on o3, got %s/%s", plan.StartModel, plan.SwitchModel)
	}

	periodic := Default()
	periodic.Checkpoint.TakeCheckpoints = intPtr(1)
	periodic.Checkpoint.Path = "out/ckpts"
	plan, err = periodic.Resolve()
	if err != nil {
		t.Fatalf("Resolve periodic: %v", err)
	}
	if plan.Checkpoint.Dir != "out/ckpts" || plan.Checkpoint.Every != 1_000_000 {
		t.Fatalf("unexpected periodic plan %+v", plan.Checkpoint)
	}
	if plan.StartModel != engine.ModelAtomic {
		t.Fatalf("checkpoint creation should run atomic, got %s", plan.StartModel)
	}
}

func TestValidateRejectsInvalidCheckpointCombos(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"create and restore":     func(c *Config) { c.Checkpoint.ROIDir = "a"; c.Checkpoint.Restore = "b" },
		"init and periodic":      func(c *Config) { c.Checkpoint.InitCheckpoint = "a"; c.Checkpoint.TakeCheckpoints = intPtr(1) },
		"init and start from":    func(c *Config) { c.Checkpoint.InitCheckpoint = "a"; c.Checkpoint.StartFrom = "b" },
		"insts without restore":  func(c *Config) { c.Checkpoint.Insts = intPtr(5) },
		"warmup without restore": func(c *Config) { c.Checkpoint.Warmup = intPtr(5) },
		"negative warmup":        func(c *Config) { c.Checkpoint.Restore = "a"; c.Checkpoint.Warmup = intPtr(-1) },
		"zero insts":             func(c *Config) { c.Checkpoint.Restore = "a"; c.Checkpoint.Insts = intPtr(0) },
		"zero take checkpoints":  func(c *Config) { c.Checkpoint.TakeCheckpoints = intPtr(0) },
		"empty checkpoint path":  func(c *Config) { c.Checkpoint.TakeCheckpoints = intPtr(1); c.Checkpoint.Path = "" },
		"sampling flag in roi":   func(c *Config) { c.Mode = ModeROI; c.Sampling.MaxROIs = intPtr(1) },
		"mode mismatch":          func(c *Config) { c.Mode = ModeRestore },
		"unknown mode":           func(c *Config) { c.Mode = "bogus" },
		"periodic and roi ckpt":  func(c *Config) { c.Checkpoint.TakeCheckpoints = intPtr(1); c.Checkpoint.ROIDir = "a" },
		"restore and start from": func(c *Config) { c.Checkpoint.Restore = "a"; c.Checkpoint.StartFrom = "b" },
		"huge take checkpoints":  func(c *Config) { c.Checkpoint.TakeCheckpoints = intPtr(math.MaxInt) },
		"huge insts":             func(c *Config) { c.Checkpoint.Restore = "a"; c.Checkpoint.Insts = intPtr(math.MaxInt) },
	}
	for name, apply := range cases {
		cfg := Default()
		apply(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected configuration error", name)
		}
	}

	ok := Default()
	ok.Checkpoint.Restore = "a"
	ok.Checkpoint.Warmup = intPtr(0)
	if err := ok.Validate(); err != nil {
		t.Fatalf("zero warmup with restore should be valid: %v", err)
	}
}
