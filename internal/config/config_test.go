package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Jawbreaker1/phasectl/internal/engine"
)

func TestLoadMergesConfigFiles(t *testing.T) {
	temp := t.TempDir()
	defaultPath := filepath.Join(temp, "default.json")
	profilePath := filepath.Join(temp, "profile.json")
	explicitPath := filepath.Join(temp, "run.json")

	writeJSON(t, defaultPath, map[string]any{
		"sampling": map[string]any{
			"enabled":         true,
			"ff_interval":     10,
			"warmup_interval": 2,
			"roi_interval":    5,
		},
		"output": map[string]any{
			"dir": "runs-default",
		},
	})

	writeJSON(t, profilePath, map[string]any{
		"sampling": map[string]any{
			"roi_interval": 7,
			"max_rois":     3,
		},
		"engine": map[string]any{
			"cores": 4,
		},
	})

	writeJSON(t, explicitPath, map[string]any{
		"sampling": map[string]any{
			"continue": true,
		},
	})

	cfg, paths, err := Load(defaultPath, profilePath, explicitPath)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 loaded paths, got %v", paths)
	}
	if !cfg.Sampling.Enabled {
		t.Fatalf("sampling should be enabled")
	}
	if cfg.Sampling.FastForward == nil || *cfg.Sampling.FastForward != 10 {
		t.Fatalf("ff_interval mismatch: got %v", cfg.Sampling.FastForward)
	}
	if cfg.Sampling.ROI == nil || *cfg.Sampling.ROI != 7 {
		t.Fatalf("roi_interval mismatch: got %v", cfg.Sampling.ROI)
	}
	if cfg.Sampling.MaxROIs == nil || *cfg.Sampling.MaxROIs != 3 {
		t.Fatalf("max_rois mismatch: got %v", cfg.Sampling.MaxROIs)
	}
	if !cfg.Sampling.Continue {
		t.Fatalf("continue mismatch")
	}
	if cfg.Engine.Cores != 4 {
		t.Fatalf("cores mismatch: got %d", cfg.Engine.Cores)
	}
	if cfg.Output.Dir != "runs-default" {
		t.Fatalf("output dir mismatch: got %s", cfg.Output.Dir)
	}
	// Defaults survive when no file overrides them.
	if cfg.Checkpoint.Path != "checkpoints" || cfg.Output.LogLevel != "info" {
		t.Fatalf("defaults lost: %+v %+v", cfg.Checkpoint, cfg.Output)
	}
}

func TestLoadToleratesMissingDefault(t *testing.T) {
	temp := t.TempDir()
	cfg, paths, err := Load(filepath.Join(temp, "missing.json"), "", "")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("expected no loaded paths, got %v", paths)
	}
	if cfg.Engine.Cores != 1 {
		t.Fatalf("expected default cores, got %d", cfg.Engine.Cores)
	}

	if _, _, err := Load(filepath.Join(temp, "missing.json"), filepath.Join(temp, "nope.json"), ""); err == nil {
		t.Fatalf("expected error for missing profile")
	}
}

func TestSaveWritesJSON(t *testing.T) {
	temp := t.TempDir()
	path := filepath.Join(temp, "run", "config.json")
	cfg := Default()
	cfg.Mode = ModeSampling
	cfg.Sampling.Enabled = true
	cfg.Sampling.FastForward = intPtr(10)

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Read saved file: %v", err)
	}
	var decoded Config
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal saved file: %v", err)
	}
	if decoded.Mode != ModeSampling {
		t.Fatalf("mode mismatch: got %s", decoded.Mode)
	}
	if decoded.Sampling.FastForward == nil || *decoded.Sampling.FastForward != 10 {
		t.Fatalf("ff_interval mismatch: got %v", decoded.Sampling.FastForward)
	}
}

func TestLoadWorkload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "workload.json")
	writeJSON(t, path, map[string]any{
		"total_instructions":     1000,
		"work_begin_at":          100,
		"fast_ticks_per_inst":    1,
		"precise_ticks_per_inst": 3,
	})
	w, err := LoadWorkload(path)
	if err != nil {
		t.Fatalf("LoadWorkload: %v", err)
	}
	if w.TotalInstructions != 1000 || w.WorkBeginAt == nil || *w.WorkBeginAt != 100 || w.WorkEndAt != nil {
		t.Fatalf("unexpected workload %+v", w)
	}
}

func TestResolveWorkload(t *testing.T) {
	var cfg Config
	if _, err := cfg.ResolveWorkload(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig without a workload, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "workload.json")
	writeJSON(t, path, map[string]any{
		"total_instructions":     500,
		"fast_ticks_per_inst":    1,
		"precise_ticks_per_inst": 2,
	})
	cfg.Engine.WorkloadPath = path
	w, err := cfg.ResolveWorkload()
	if err != nil {
		t.Fatalf("ResolveWorkload: %v", err)
	}
	if w.TotalInstructions != 500 {
		t.Fatalf("expected workload from file, got %+v", w)
	}

	cfg.Engine.Workload = &engine.Workload{TotalInstructions: 10}
	if _, err := cfg.ResolveWorkload(); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("inline workload without rates should be invalid, got %v", err)
	}
}

func writeJSON(t *testing.T, path string, payload map[string]any) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func intPtr(v int) *int { return &v }
