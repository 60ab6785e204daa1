// Package audit records one line per processed action in an append-only
// JSON-lines file. The file write is synchronous and its failure is fatal to
// the operation; an optional ClickHouse mirror receives the same records
// asynchronously for analytics.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Record is one audit entry.
type Record struct {
	TS         time.Time `json:"ts"`
	TraceID    string    `json:"trace_id"`
	Action     string    `json:"action"`
	ActionKey  string    `json:"action_key"`
	ReportPath string    `json:"report_path"`
	Event      string    `json:"event"`
}

// Mirror receives audit records on a best-effort basis.
type Mirror interface {
	Write(rec Record)
	Close()
}

// Logger appends records to the JSONL audit file.
type Logger struct {
	path   string
	mu     sync.Mutex
	mirror Mirror // nil when no mirror is configured
}

func NewLogger(path string, mirror Mirror) *Logger {
	return &Logger{path: path, mirror: mirror}
}

// Append stamps the record with the current UTC time and writes it as one
// JSON line. The mirror, if any, is fed after the file write succeeds.
func (l *Logger) Append(rec Record) error {
	rec.TS = time.Now().UTC()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: encode record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("audit: create log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("audit: open %s: %w", l.path, err)
	}
	defer func() { _ = f.Close() }()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: append to %s: %w", l.path, err)
	}

	if l.mirror != nil {
		l.mirror.Write(rec)
	}
	return nil
}

// Close flushes the mirror if one is attached.
func (l *Logger) Close() {
	if l.mirror != nil {
		l.mirror.Close()
	}
}
