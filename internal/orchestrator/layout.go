package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
)

type RunPaths struct {
	Root        string
	ConfigPath  string
	EventsPath  string
	ReportPath  string
	SummaryPath string
	StatsPath   string
}

func BuildRunPaths(baseDir, runID string) RunPaths {
	root := filepath.Join(baseDir, runID)
	return RunPaths{
		Root:        root,
		ConfigPath:  filepath.Join(root, "config.json"),
		EventsPath:  filepath.Join(root, "events.jsonl"),
		ReportPath:  filepath.Join(root, "report.json"),
		SummaryPath: filepath.Join(root, "summary.md"),
		StatsPath:   filepath.Join(root, "stats.txt"),
	}
}

func EnsureRunLayout(baseDir, runID string) (RunPaths, error) {
	if runID == "" {
		return RunPaths{}, fmt.Errorf("run_id is empty")
	}
	paths := BuildRunPaths(baseDir, runID)
	if err := os.MkdirAll(paths.Root, 0o755); err != nil {
		return RunPaths{}, fmt.Errorf("create run dir %s: %w", paths.Root, err)
	}
	return paths, nil
}
