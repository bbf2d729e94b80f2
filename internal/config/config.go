package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Jawbreaker1/phasectl/internal/engine"
)

// Million is the CLI unit for every instruction count.
const Million = 1_000_000

type Mode string

const (
	ModeSampling            Mode = "sampling"
	ModeROI                 Mode = "roi"
	ModeCheckpointROI       Mode = "checkpoint-roi"
	ModePeriodicCheckpoints Mode = "periodic-checkpoints"
	ModeRestore             Mode = "restore"
	ModeInitCheckpoint      Mode = "init-checkpoint"
)

// Config is the user-facing run configuration. Instruction counts are in
// millions; optional counts are pointers so "unset" and "zero" stay distinct.
type Config struct {
	Mode     Mode `json:"mode,omitempty"`
	Sampling struct {
		Enabled         bool `json:"enabled"`
		InitFastForward *int `json:"init_ff,omitempty"`
		FastForward     *int `json:"ff_interval,omitempty"`
		Warmup          *int `json:"warmup_interval,omitempty"`
		ROI             *int `json:"roi_interval,omitempty"`
		MaxROIs         *int `json:"max_rois,omitempty"`
		Continue        bool `json:"continue"`
	} `json:"sampling"`
	Checkpoint struct {
		ROIDir          string `json:"checkpoint_roi,omitempty"`
		TakeCheckpoints *int   `json:"take_checkpoints,omitempty"`
		Path            string `json:"checkpoint_path,omitempty"`
		Restore         string `json:"restore,omitempty"`
		Warmup          *int   `json:"warmup,omitempty"`
		Insts           *int   `json:"insts,omitempty"`
		InitCheckpoint  string `json:"init_checkpoint,omitempty"`
		StartFrom       string `json:"start_from,omitempty"`
	} `json:"checkpoint"`
	Engine struct {
		NoKVM        bool             `json:"nokvm"`
		O3           bool             `json:"o3"`
		Cores        int              `json:"cores"`
		WorkloadPath string           `json:"workload_path,omitempty"`
		Workload     *engine.Workload `json:"workload,omitempty"`
	} `json:"engine"`
	Output struct {
		Dir      string `json:"dir"`
		LogLevel string `json:"log_level"`
	} `json:"output"`
}

// Default returns the baseline configuration the CLI overlays.
func Default() Config {
	var cfg Config
	cfg.Checkpoint.Path = "checkpoints"
	cfg.Engine.Cores = 1
	cfg.Output.Dir = "runs"
	cfg.Output.LogLevel = "info"
	return cfg
}

func DefaultPath() string {
	return filepath.Join("config", "default.json")
}

func ProfilePath(profile string) string {
	return filepath.Join("config", "profiles", profile+".json")
}

// Load merges the default, profile and explicit config files in that order.
// A missing default file is tolerated; the others must exist when named.
func Load(defaultPath, profilePath, explicitPath string) (Config, []string, error) {
	paths := []string{}
	merged := map[string]any{}

	base, err := toMap(Default())
	if err != nil {
		return Config{}, paths, err
	}
	deepMerge(merged, base)

	if defaultPath == "" {
		defaultPath = DefaultPath()
	}
	loaded, err := mergeFile(merged, defaultPath, false)
	if err != nil {
		return Config{}, paths, err
	}
	if loaded {
		paths = append(paths, defaultPath)
	}

	for _, path := range []string{profilePath, explicitPath} {
		if path == "" {
			continue
		}
		if _, err := mergeFile(merged, path, true); err != nil {
			return Config{}, paths, err
		}
		paths = append(paths, path)
	}

	data, err := json.Marshal(merged)
	if err != nil {
		return Config{}, paths, fmt.Errorf("marshal merged config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, paths, fmt.Errorf("unmarshal merged config: %w", err)
	}

	return cfg, paths, nil
}

func toMap(cfg Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return out, nil
}

func mergeFile(dst map[string]any, path string, required bool) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return false, nil
		}
		return false, fmt.Errorf("config file not found: %s", path)
	}
	if info.IsDir() {
		return false, fmt.Errorf("config path is a directory: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read config: %s: %w", path, err)
	}
	var src map[string]any
	if err := json.Unmarshal(data, &src); err != nil {
		return false, fmt.Errorf("parse config: %s: %w", path, err)
	}
	deepMerge(dst, src)
	return true, nil
}

func deepMerge(dst, src map[string]any) {
	for key, value := range src {
		srcMap, ok := value.(map[string]any)
		if !ok {
			dst[key] = value
			continue
		}
		if existing, ok := dst[key]; ok {
			if existingMap, ok := existing.(map[string]any); ok {
				deepMerge(existingMap, srcMap)
				continue
			}
		}
		newMap := map[string]any{}
		deepMerge(newMap, srcMap)
		dst[key] = newMap
	}
}

func Save(path string, cfg Config) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// LoadWorkload reads a synthetic engine workload description.
func LoadWorkload(path string) (engine.Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return engine.Workload{}, fmt.Errorf("read workload: %s: %w", path, err)
	}
	var w engine.Workload
	if err := json.Unmarshal(data, &w); err != nil {
		return engine.Workload{}, fmt.Errorf("parse workload: %s: %w", path, err)
	}
	return w, nil
}

// ResolveWorkload returns the inline workload or loads it from WorkloadPath.
func (cfg Config) ResolveWorkload() (engine.Workload, error) {
	var w engine.Workload
	switch {
	case cfg.Engine.Workload != nil:
		w = *cfg.Engine.Workload
	case cfg.Engine.WorkloadPath != "":
		loaded, err := LoadWorkload(cfg.Engine.WorkloadPath)
		if err != nil {
			return engine.Workload{}, err
		}
		w = loaded
	default:
		return engine.Workload{}, invalid("workload", "a workload file or inline workload is required")
	}
	if err := w.Validate(); err != nil {
		return engine.Workload{}, invalid("workload", "%v", err)
	}
	return w, nil
}
