package orchestrator

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func WriteJSONAtomic(path string, v any) error {
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// AppendJSONL appends v as a single JSON line.
func AppendJSONL(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal line: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append line: %w", err)
	}
	return nil
}

func AppendEventJSONL(path string, event EventEnvelope) error {
	if err := ValidateEventEnvelope(event); err != nil {
		return err
	}
	if err := AppendJSONL(path, event); err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// ReadJSONL decodes every non-blank line of path into a T.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	out := []T{}
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var item T
		if err := json.Unmarshal(line, &item); err != nil {
			return nil, fmt.Errorf("parse line %d: %w", lineNo, err)
		}
		out = append(out, item)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return out, nil
}

func ReadEvents(path string) ([]EventEnvelope, error) {
	events, err := ReadJSONL[EventEnvelope](path)
	if err != nil {
		return nil, err
	}
	for i, event := range events {
		if err := ValidateEventEnvelope(event); err != nil {
			return nil, fmt.Errorf("validate event %d: %w", i+1, err)
		}
	}
	return events, nil
}

// VerifyRunLog reads a run's event log and checks that sequence numbers and
// engine ticks never go backwards.
func VerifyRunLog(path string) ([]EventEnvelope, error) {
	events, err := ReadEvents(path)
	if err != nil {
		return nil, err
	}
	if err := ValidateMonotonicSequences(events); err != nil {
		return nil, err
	}
	if err := ValidateMonotonicTicks(events); err != nil {
		return nil, err
	}
	return events, nil
}

func ValidateMonotonicSequences(events []EventEnvelope) error {
	lastSeq := map[string]int64{}
	for _, event := range events {
		prev, ok := lastSeq[event.Source]
		if ok && event.Seq <= prev {
			return fmt.Errorf("non-monotonic seq for source %s: %d <= %d", event.Source, event.Seq, prev)
		}
		lastSeq[event.Source] = event.Seq
	}
	return nil
}

// ValidateMonotonicTicks checks that engine time never runs backwards in a log.
func ValidateMonotonicTicks(events []EventEnvelope) error {
	var last uint64
	for _, event := range events {
		if event.Tick < last {
			return fmt.Errorf("tick went backwards at seq %d: %d < %d", event.Seq, event.Tick, last)
		}
		last = event.Tick
	}
	return nil
}
