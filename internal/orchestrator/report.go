package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Jawbreaker1/phasectl/internal/config"
	"github.com/Jawbreaker1/phasectl/internal/engine"
)

// Report is the best-effort summary written at the end of every run.
type Report struct {
	RunID              string             `json:"run_id,omitempty"`
	Mode               config.Mode        `json:"mode"`
	StartModel         engine.Model       `json:"start_model"`
	SwitchModel        engine.Model       `json:"switch_model"`
	Cores              int                `json:"cores"`
	Phases             []Phase            `json:"phases"`
	FinalPhase         Phase              `json:"final_phase"`
	CompletedROIs      int                `json:"completed_rois"`
	TotalMeasuredTicks uint64             `json:"total_measured_ticks"`
	Windows            []ROIWindow        `json:"windows,omitempty"`
	Checkpoints        []CheckpointRecord `json:"checkpoints,omitempty"`
	StatsResets        int                `json:"stats_resets"`
	StatsDumps         int                `json:"stats_dumps"`
	MaxInstsArmed      int                `json:"max_insts_armed"`
	UnhandledEvents    []string           `json:"unhandled_events,omitempty"`
	FinalTick          uint64             `json:"final_tick"`
	ExitCause          string             `json:"exit_cause"`
	ExpectedExit       bool               `json:"expected_exit"`
	StartedAt          time.Time          `json:"started_at"`
	FinishedAt         time.Time          `json:"finished_at"`
	WallClockSeconds   float64            `json:"wall_clock_seconds"`
	Error              string             `json:"error,omitempty"`
}

func WriteReport(path string, report Report) error {
	if err := WriteJSONAtomic(path, report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func ReadReport(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("read report %s: %w", path, err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return Report{}, fmt.Errorf("parse report %s: %w", path, err)
	}
	return report, nil
}

// RenderSummary formats a report as markdown for summary.md.
func RenderSummary(report Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Phase Run Report\n\n")
	if report.RunID != "" {
		fmt.Fprintf(&b, "- Run ID: `%s`\n", report.RunID)
	}
	fmt.Fprintf(&b, "- Mode: `%s`\n", report.Mode)
	fmt.Fprintf(&b, "- Models: `%s` -> `%s` (%d cores)\n", report.StartModel, report.SwitchModel, report.Cores)
	if report.ExpectedExit {
		fmt.Fprintf(&b, "- Exit cause: `%s`\n", report.ExitCause)
	} else {
		fmt.Fprintf(&b, "- Exit cause: `%s` (UNEXPECTED)\n", report.ExitCause)
	}
	if report.Error != "" {
		fmt.Fprintf(&b, "- Error: %s\n", report.Error)
	}
	fmt.Fprintf(&b, "- Final phase: `%s` at tick %d\n", report.FinalPhase, report.FinalTick)
	fmt.Fprintf(&b, "- Completed ROIs: %d\n", report.CompletedROIs)
	fmt.Fprintf(&b, "- Simulated ticks in ROIs: %d\n", report.TotalMeasuredTicks)
	fmt.Fprintf(&b, "- Wall clock: %.2f s\n", report.WallClockSeconds)

	phases := make([]string, 0, len(report.Phases))
	for _, p := range report.Phases {
		phases = append(phases, string(p))
	}
	fmt.Fprintf(&b, "\n## Phases\n\n%s\n", strings.Join(phases, " -> "))

	fmt.Fprintf(&b, "\n## ROI Windows\n\n")
	if len(report.Windows) == 0 {
		fmt.Fprintf(&b, "- No ROI completed.\n")
	} else {
		fmt.Fprintf(&b, "| # | start tick | end tick | ticks |\n|---|---|---|---|\n")
		for _, w := range report.Windows {
			fmt.Fprintf(&b, "| %d | %d | %d | %d |\n", w.Index, w.StartTick, w.EndTick, w.Ticks())
		}
	}

	if len(report.Checkpoints) > 0 {
		fmt.Fprintf(&b, "\n## Checkpoints\n\n")
		for _, c := range report.Checkpoints {
			fmt.Fprintf(&b, "- %d. `%s` at tick %d: `%s`\n", c.Ordinal, c.Identifier, c.Tick, c.Path)
		}
	}
	if len(report.UnhandledEvents) > 0 {
		fmt.Fprintf(&b, "\n## Unhandled Events\n\n")
		for _, ev := range report.UnhandledEvents {
			fmt.Fprintf(&b, "- `%s`\n", ev)
		}
	}
	return b.String()
}

// WriteSummary renders report into path.
func WriteSummary(path string, report Report) error {
	if err := os.WriteFile(path, []byte(RenderSummary(report)), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
