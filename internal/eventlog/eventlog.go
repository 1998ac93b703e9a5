// Package eventlog provides the append-only execution log for a run: one
// JSON event per line, flushed as it is written so the file is tail-able and
// survives a killed process up to the last complete line.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fixbench/runner/internal/domain"
)

// Writer appends events to a log file. It is owned exclusively by the agent
// driver while the run is open; after Close the file is read-only input for
// the metrics extractor.
type Writer struct {
	mu         sync.Mutex
	file       *os.File
	redactions []string
}

// NewWriter opens (or creates) the log file at path for appending.
func NewWriter(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}

	return &Writer{file: file}, nil
}

// Redact registers secrets that must never appear in the log. Any occurrence
// in a marshaled event is replaced before the line hits disk.
func (w *Writer) Redact(secrets ...string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range secrets {
		if s != "" {
			w.redactions = append(w.redactions, s)
		}
	}
}

// Append stamps the event (unless the caller already did) and writes it as
// one JSON line.
func (w *Writer) Append(event domain.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	line := string(data)
	for _, secret := range w.redactions {
		line = strings.ReplaceAll(line, secret, "[REDACTED]")
	}

	if _, err := w.file.WriteString(line + "\n"); err != nil {
		return err
	}
	return w.file.Sync()
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if w == nil || w.file == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.file.Close()
	w.file = nil
	return err
}
