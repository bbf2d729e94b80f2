package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Jawbreaker1/phasectl/internal/engine"
)

// CheckpointIndexFile lists the checkpoints saved into a directory.
const CheckpointIndexFile = "checkpoints.jsonl"

const checkpointPrefix = "chkpt."

// IOError is a fatal filesystem failure around checkpoint directories.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// CheckpointRequest names where a snapshot goes. With Flat set the snapshot
// is written straight into TargetDirectory; otherwise into a child named
// Identifier.
type CheckpointRequest struct {
	TargetDirectory string
	Identifier      string
	Flat            bool
}

func (r CheckpointRequest) Path() string {
	if r.Flat {
		return r.TargetDirectory
	}
	return filepath.Join(r.TargetDirectory, r.Identifier)
}

// CheckpointIdentifier derives the on-disk name for a checkpoint taken at tick.
func CheckpointIdentifier(tick uint64) string {
	return checkpointPrefix + strconv.FormatUint(tick, 10)
}

// CheckpointManager creates checkpoint directories and issues saves.
type CheckpointManager struct {
	eng   engine.Engine
	state *RunState
	now   func() time.Time
	seen  map[string]struct{}
}

func NewCheckpointManager(eng engine.Engine, state *RunState, now func() time.Time) *CheckpointManager {
	if now == nil {
		now = time.Now
	}
	return &CheckpointManager{
		eng:   eng,
		state: state,
		now:   now,
		seen:  map[string]struct{}{},
	}
}

// PrepareDir creates dir if needed and verifies it is writable.
func PrepareDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return &IOError{Op: "create checkpoint dir", Path: dir, Err: errors.New("path is empty")}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &IOError{Op: "create checkpoint dir", Path: dir, Err: err}
	}
	probe, err := os.CreateTemp(dir, ".write-probe-*")
	if err != nil {
		return &IOError{Op: "write checkpoint dir", Path: dir, Err: err}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}

// ValidateRestoreDir fails when a checkpoint to restore from is absent.
func ValidateRestoreDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return &IOError{Op: "open restore dir", Path: dir, Err: err}
	}
	if !info.IsDir() {
		return &IOError{Op: "open restore dir", Path: dir, Err: errors.New("not a directory")}
	}
	return nil
}

// Request builds a request whose identifier is derived from the current
// engine tick, which strictly increases between checkpoint events.
func (m *CheckpointManager) Request(dir string, flat bool) CheckpointRequest {
	return CheckpointRequest{
		TargetDirectory: dir,
		Identifier:      CheckpointIdentifier(m.eng.CurrentTick()),
		Flat:            flat,
	}
}

// Save blocks until the engine has written the snapshot, then records it in
// the directory index and the run state.
func (m *CheckpointManager) Save(req CheckpointRequest) (CheckpointRecord, error) {
	key := filepath.Clean(req.TargetDirectory) + "/" + req.Identifier
	if _, dup := m.seen[key]; dup {
		return CheckpointRecord{}, fmt.Errorf("checkpoint identifier %q already used in %s", req.Identifier, req.TargetDirectory)
	}
	if err := PrepareDir(req.TargetDirectory); err != nil {
		return CheckpointRecord{}, err
	}
	path := req.Path()
	if err := m.eng.SaveCheckpoint(path); err != nil {
		return CheckpointRecord{}, &IOError{Op: "save checkpoint", Path: path, Err: err}
	}
	m.seen[key] = struct{}{}
	record := CheckpointRecord{
		Ordinal:    len(m.state.Checkpoints) + 1,
		Identifier: req.Identifier,
		Path:       path,
		Tick:       m.eng.CurrentTick(),
		SavedAt:    m.now().UTC(),
	}
	if err := AppendJSONL(filepath.Join(req.TargetDirectory, CheckpointIndexFile), record); err != nil {
		return CheckpointRecord{}, &IOError{Op: "index checkpoint", Path: req.TargetDirectory, Err: err}
	}
	m.state.Checkpoints = append(m.state.Checkpoints, record)
	return record, nil
}

// ReadCheckpointIndex lists the records written by Save into dir.
func ReadCheckpointIndex(dir string) ([]CheckpointRecord, error) {
	return ReadJSONL[CheckpointRecord](filepath.Join(dir, CheckpointIndexFile))
}
