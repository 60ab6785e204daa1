// Package report persists one JSON report file per processed trace.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Persist writes the report payload as indented JSON under dir, keyed by
// trace ID, and returns the file path.
func Persist(dir, traceID string, payload map[string]any) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create dir %s: %w", dir, err)
	}

	raw, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: encode report: %w", err)
	}

	path := filepath.Join(dir, "automation_"+traceID+".json")
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", path, err)
	}
	return path, nil
}
