// Package audit keeps an append-only JSONL record of team activity.
//
// Each line is one JSON object:
//
//	{"timestamp": "...", "teamId": "...", "type": "task:updated", "taskId": "...", "data": {...}}
//
// Readers skip lines that fail to parse, so a torn final write or a
// hand-edited file never hides the rest of the log.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/crew/internal/logging"
)

// FileName is the default audit log file name.
const FileName = "audit.jsonl"

// Entry is one audit record.
type Entry struct {
	ID          string         `json:"id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	TeamID      string         `json:"teamId"`
	Type        string         `json:"type"`
	TaskID      string         `json:"taskId,omitempty"`
	TeammateID  string         `json:"teammateId,omitempty"`
	CycleNumber int            `json:"cycleNumber,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// Recorder accepts audit entries.
type Recorder interface {
	Record(e Entry) error
}

// Nop discards entries.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(Entry) error { return nil }

// Log appends entries to a rotating JSONL file.
type Log struct {
	mu  sync.Mutex
	w   *logging.RotatingWriter
	now func() time.Time
}

// Open opens (creating if needed) the audit log at path.
func Open(path string, rotation logging.RotationConfig) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: create directory: %w", err)
	}
	w, err := logging.NewRotatingWriter(path, rotation)
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &Log{w: w, now: time.Now}, nil
}

// Record appends e. Missing IDs and timestamps are filled in.
func (l *Log) Record(e Entry) error {
	if e.Type == "" {
		return fmt.Errorf("audit: entry type is required")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: marshal entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(data); err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

// Path returns the log file path.
func (l *Log) Path() string { return l.w.Path() }

// Close closes the log file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

// Filter selects entries in Read. Zero fields match everything.
type Filter struct {
	TeamID     string
	TaskID     string
	TeammateID string
	Types      []string
	Since      time.Time
	// Limit keeps the most recent N matches. 0 = unlimited.
	Limit int
}

func (f Filter) match(e Entry) bool {
	if f.TeamID != "" && e.TeamID != f.TeamID {
		return false
	}
	if f.TaskID != "" && e.TaskID != f.TaskID {
		return false
	}
	if f.TeammateID != "" && e.TeammateID != f.TeammateID {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == e.Type {
			return true
		}
	}
	return false
}

// ReadResult is the outcome of Read.
type ReadResult struct {
	Entries []Entry
	// Skipped counts malformed lines.
	Skipped int
}

// Read returns the entries in path matching f, oldest first. A missing file
// yields no entries.
func Read(path string, f Filter) (ReadResult, error) {
	var res ReadResult

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return res, nil
		}
		return res, fmt.Errorf("audit: open: %w", err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil || e.Type == "" {
			res.Skipped++
			continue
		}
		if f.match(e) {
			res.Entries = append(res.Entries, e)
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("audit: scan: %w", err)
	}

	if f.Limit > 0 && len(res.Entries) > f.Limit {
		res.Entries = res.Entries[len(res.Entries)-f.Limit:]
	}
	return res, nil
}
