package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sarchlab/akita/v4/sim"
)

// tickSeconds is the simulated duration of one tick (1 ps).
const tickSeconds = 1e-12

// SnapshotFile is the file Synthetic writes into a checkpoint directory.
const SnapshotFile = "snapshot.json"

// Workload describes the instruction stream the synthetic engine replays.
// Marker offsets are absolute retired-instruction counts.
type Workload struct {
	TotalInstructions   uint64  `json:"total_instructions"`
	WorkBeginAt         *uint64 `json:"work_begin_at,omitempty"`
	WorkEndAt           *uint64 `json:"work_end_at,omitempty"`
	CheckpointAt        *uint64 `json:"checkpoint_at,omitempty"`
	FastTicksPerInst    uint64  `json:"fast_ticks_per_inst"`
	PreciseTicksPerInst uint64  `json:"precise_ticks_per_inst"`
}

// Validate checks marker ordering and rates.
func (w Workload) Validate() error {
	if w.TotalInstructions == 0 {
		return fmt.Errorf("workload total_instructions must be > 0")
	}
	if w.FastTicksPerInst == 0 || w.PreciseTicksPerInst == 0 {
		return fmt.Errorf("workload ticks per instruction must be > 0")
	}
	for name, at := range map[string]*uint64{
		"work_begin_at": w.WorkBeginAt,
		"work_end_at":   w.WorkEndAt,
		"checkpoint_at": w.CheckpointAt,
	} {
		if at != nil && *at > w.TotalInstructions {
			return fmt.Errorf("workload %s (%d) exceeds total_instructions (%d)", name, *at, w.TotalInstructions)
		}
	}
	if w.WorkBeginAt != nil && w.WorkEndAt != nil && *w.WorkEndAt < *w.WorkBeginAt {
		return fmt.Errorf("workload work_end_at precedes work_begin_at")
	}
	return nil
}

// SyntheticConfig configures a Synthetic engine.
type SyntheticConfig struct {
	Workload    Workload
	StartModel  Model
	SwitchModel Model
	Cores       int
	// StatsPath receives dumped statistics blocks; empty keeps them in memory only.
	StatsPath string
	// RestoreFrom is a checkpoint directory written by SaveCheckpoint.
	RestoreFrom string
}

// StatsBlock is one dumped statistics window.
type StatsBlock struct {
	Tick         uint64 `json:"tick"`
	WindowTicks  uint64 `json:"window_ticks"`
	WindowInsts  uint64 `json:"window_insts"`
	PreciseInsts uint64 `json:"precise_insts"`
	Model        Model  `json:"model"`
	Trailing     bool   `json:"trailing,omitempty"`
}

type snapshot struct {
	Retired   uint64          `json:"retired"`
	Tick      uint64          `json:"tick"`
	Switched  bool            `json:"switched"`
	Delivered map[string]bool `json:"delivered"`
}

type counters struct {
	ticks        uint64
	insts        uint64
	preciseInsts uint64
	dirty        bool
}

type retireEvent struct {
	*sim.EventBase
	target uint64
}

// Synthetic is a deterministic engine that replays a Workload on top of an
// akita serial event queue. It implements both Engine and Stats.
type Synthetic struct {
	cfg       SyntheticConfig
	queue     sim.Engine
	retired   uint64
	tick      uint64
	switched  bool
	pending   []uint64
	delivered map[ExitEvent]bool
	window    counters
	blocks    []StatsBlock
	cause     string
	halted    bool
	ran       bool
	disp      Dispatcher
}

// NewSynthetic builds a synthetic engine, restoring from a snapshot when configured.
func NewSynthetic(cfg SyntheticConfig) (*Synthetic, error) {
	if err := cfg.Workload.Validate(); err != nil {
		return nil, err
	}
	if cfg.StartModel == "" {
		cfg.StartModel = ModelKVM
	}
	if cfg.SwitchModel == "" {
		cfg.SwitchModel = ModelO3
	}
	if cfg.Cores <= 0 {
		cfg.Cores = 1
	}
	s := &Synthetic{
		cfg:       cfg,
		queue:     sim.NewSerialEngine(),
		delivered: map[ExitEvent]bool{},
	}
	if strings.TrimSpace(cfg.RestoreFrom) != "" {
		if err := s.restore(cfg.RestoreFrom); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Synthetic) restore(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, SnapshotFile))
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	if snap.Retired > s.cfg.Workload.TotalInstructions {
		return fmt.Errorf("snapshot at instruction %d is beyond workload end %d", snap.Retired, s.cfg.Workload.TotalInstructions)
	}
	s.retired = snap.Retired
	s.tick = snap.Tick
	s.switched = snap.Switched
	for name, done := range snap.Delivered {
		s.delivered[ExitEvent(name)] = done
	}
	return nil
}

// ActiveModel returns the model currently executing.
func (s *Synthetic) ActiveModel() Model {
	if s.switched {
		return s.cfg.SwitchModel
	}
	return s.cfg.StartModel
}

func (s *Synthetic) SwitchModel() error {
	if s.cfg.StartModel == s.cfg.SwitchModel {
		return fmt.Errorf("start and switch models are both %s", s.cfg.StartModel)
	}
	s.switched = !s.switched
	return nil
}

func (s *Synthetic) ScheduleMaxInsts(n uint64) error {
	if n == 0 {
		return fmt.Errorf("max instruction count must be > 0")
	}
	s.pending = append(s.pending, s.retired+n)
	sort.Slice(s.pending, func(i, j int) bool { return s.pending[i] < s.pending[j] })
	return nil
}

func (s *Synthetic) CurrentTick() uint64 {
	return s.tick
}

// Retired returns the number of instructions retired so far.
func (s *Synthetic) Retired() uint64 {
	return s.retired
}

func (s *Synthetic) LastExitCause() string {
	return s.cause
}

// Blocks returns every statistics block dumped so far, including the trailing one.
func (s *Synthetic) Blocks() []StatsBlock {
	out := make([]StatsBlock, len(s.blocks))
	copy(out, s.blocks)
	return out
}

func (s *Synthetic) Run(d Dispatcher) error {
	if s.ran {
		return errors.New("synthetic engine already ran")
	}
	s.ran = true
	s.disp = d
	if s.deliverDue() {
		return s.finish()
	}
	s.scheduleNext()
	if err := s.queue.Run(); err != nil {
		return fmt.Errorf("event queue: %w", err)
	}
	return s.finish()
}

// finish mirrors the engine's habit of dumping a final block whenever
// counters changed since the last reset or dump.
func (s *Synthetic) finish() error {
	if !s.halted {
		s.cause = CauseExitInstruction
	}
	if s.window.dirty {
		return s.dump(true)
	}
	return nil
}

func (s *Synthetic) Handle(e sim.Event) error {
	ev, ok := e.(*retireEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %T", e)
	}
	s.advance(ev.target)
	if s.deliverDue() {
		return nil
	}
	s.scheduleNext()
	return nil
}

func (s *Synthetic) ticksPerInst() uint64 {
	if s.ActiveModel().Precise() {
		return s.cfg.Workload.PreciseTicksPerInst
	}
	return s.cfg.Workload.FastTicksPerInst
}

func (s *Synthetic) advance(target uint64) {
	if target <= s.retired {
		return
	}
	n := target - s.retired
	dt := n * s.ticksPerInst()
	s.retired = target
	s.tick += dt
	s.window.insts += n
	s.window.ticks += dt
	if s.ActiveModel().Precise() {
		s.window.preciseInsts += n
	}
	s.window.dirty = true
}

func (s *Synthetic) marker(ev ExitEvent) (uint64, bool) {
	var at *uint64
	switch ev {
	case ExitWorkBegin:
		at = s.cfg.Workload.WorkBeginAt
	case ExitWorkEnd:
		at = s.cfg.Workload.WorkEndAt
	case ExitCheckpoint:
		at = s.cfg.Workload.CheckpointAt
	}
	if at == nil || s.delivered[ev] {
		return 0, false
	}
	return *at, true
}

// markerOrder is the delivery order for events due at the same instruction.
var markerOrder = []ExitEvent{ExitWorkBegin, ExitCheckpoint, ExitMaxInsts, ExitWorkEnd}

// nextDue returns the next event due at the current instruction count.
// Markers already behind a restored snapshot are skipped.
func (s *Synthetic) nextDue() (ExitEvent, bool) {
	for _, ev := range markerOrder {
		if ev == ExitMaxInsts {
			if len(s.pending) > 0 && s.pending[0] <= s.retired {
				s.pending = s.pending[1:]
				return ExitMaxInsts, true
			}
			continue
		}
		at, ok := s.marker(ev)
		if !ok {
			continue
		}
		if at <= s.retired {
			s.delivered[ev] = true
			return ev, true
		}
	}
	return "", false
}

// deliverDue dispatches every event due now and reports whether the run halted.
func (s *Synthetic) deliverDue() bool {
	for {
		ev, ok := s.nextDue()
		if !ok {
			break
		}
		if s.disp.Dispatch(ev) == Terminate {
			s.halted = true
			s.cause = CauseFor(ev)
			return true
		}
	}
	if s.retired >= s.cfg.Workload.TotalInstructions {
		return true
	}
	return false
}

func (s *Synthetic) scheduleNext() {
	next := s.cfg.Workload.TotalInstructions
	for _, ev := range markerOrder {
		if ev == ExitMaxInsts {
			if len(s.pending) > 0 && s.pending[0] < next {
				next = s.pending[0]
			}
			continue
		}
		if at, ok := s.marker(ev); ok && at < next {
			next = at
		}
	}
	dt := (next - s.retired) * s.ticksPerInst()
	at := sim.VTimeInSec(float64(s.tick+dt) * tickSeconds)
	s.queue.Schedule(&retireEvent{
		EventBase: sim.NewEventBase(at, s),
		target:    next,
	})
}

func (s *Synthetic) ResetCounters() error {
	s.window = counters{}
	return nil
}

func (s *Synthetic) DumpCounters() error {
	return s.dump(false)
}

func (s *Synthetic) dump(trailing bool) error {
	block := StatsBlock{
		Tick:         s.tick,
		WindowTicks:  s.window.ticks,
		WindowInsts:  s.window.insts,
		PreciseInsts: s.window.preciseInsts,
		Model:        s.ActiveModel(),
		Trailing:     trailing,
	}
	s.blocks = append(s.blocks, block)
	s.window.dirty = false
	if s.cfg.StatsPath == "" {
		return nil
	}
	return appendStatsBlock(s.cfg.StatsPath, block, s.cfg.Cores)
}

func appendStatsBlock(path string, b StatsBlock, cores int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create stats dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open stats file: %w", err)
	}
	defer f.Close()
	var sb strings.Builder
	sb.WriteString("\n---------- Begin Simulation Statistics ----------\n")
	fmt.Fprintf(&sb, "%-40s %d\n", "curTick", b.Tick)
	fmt.Fprintf(&sb, "%-40s %d\n", "simTicks", b.WindowTicks)
	fmt.Fprintf(&sb, "%-40s %d\n", "simInsts", b.WindowInsts)
	fmt.Fprintf(&sb, "%-40s %d\n", "system.processor.switch.committedInsts", b.PreciseInsts)
	fmt.Fprintf(&sb, "%-40s %d\n", "system.processor.numCores", cores)
	fmt.Fprintf(&sb, "%-40s %s\n", "system.processor.activeModel", b.Model)
	sb.WriteString("---------- End Simulation Statistics   ----------\n")
	if _, err := f.WriteString(sb.String()); err != nil {
		return fmt.Errorf("write stats block: %w", err)
	}
	return nil
}

func (s *Synthetic) SaveCheckpoint(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	delivered := make(map[string]bool, len(s.delivered))
	for ev, done := range s.delivered {
		delivered[string(ev)] = done
	}
	data, err := json.MarshalIndent(snapshot{
		Retired:   s.retired,
		Tick:      s.tick,
		Switched:  s.switched,
		Delivered: delivered,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, SnapshotFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}
