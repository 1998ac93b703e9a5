package eventlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fixbench/runner/internal/domain"
)

func TestWriter_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}

	events := []domain.Event{
		{Kind: domain.EventRunStart, RunID: "r1", TaskID: "t1"},
		{Kind: domain.EventModelResponse, Model: "claude-3-haiku-20240307",
			Usage: &domain.Usage{InputTokens: 120, OutputTokens: 30}},
		{Kind: domain.EventRunEnd, Status: domain.StatusSuccess},
	}
	for _, ev := range events {
		if err := w.Append(ev); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if len(got) != 3 {
		t.Fatalf("read %d events, want 3", len(got))
	}
	if got[0].Kind != domain.EventRunStart || got[0].RunID != "r1" {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Usage == nil || got[1].Usage.InputTokens != 120 {
		t.Errorf("usage not round-tripped: %+v", got[1].Usage)
	}
	if got[0].Timestamp.IsZero() {
		t.Error("writer should stamp events")
	}
	if got[2].Status != domain.StatusSuccess {
		t.Errorf("terminal status = %q", got[2].Status)
	}
}

func TestWriter_Redact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	w, err := NewWriter(path)
	if err != nil {
		t.Fatal(err)
	}
	w.Redact("sk-ant-secret123")

	err = w.Append(domain.Event{
		Kind: domain.EventError,
		Text: "request failed: invalid key sk-ant-secret123 rejected",
	})
	if err != nil {
		t.Fatal(err)
	}
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "sk-ant-secret123") {
		t.Error("secret leaked into log")
	}
	if !strings.Contains(string(data), "[REDACTED]") {
		t.Error("expected redaction marker in log")
	}
}

func TestRead_TruncatedLastLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")

	content := `{"ts":"2026-01-02T10:00:00Z","kind":"run_start","run_id":"r1"}
{"ts":"2026-01-02T10:00:05Z","kind":"model_response","usage":{"input_tokens":50,"output_tokens":10}}
{"ts":"2026-01-02T10:00:09Z","kind":"run_en`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	events, err := Read(path)
	if !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
	if len(events) != 2 {
		t.Errorf("parseable prefix = %d events, want 2", len(events))
	}
}

func TestRead_MissingOrEmpty(t *testing.T) {
	if _, err := Read(filepath.Join(t.TempDir(), "nope.jsonl")); !errors.Is(err, ErrCorrupt) {
		t.Errorf("missing file err = %v, want ErrCorrupt", err)
	}

	empty := filepath.Join(t.TempDir(), "empty.jsonl")
	if err := os.WriteFile(empty, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(empty); !errors.Is(err, ErrCorrupt) {
		t.Errorf("empty file err = %v, want ErrCorrupt", err)
	}
}
