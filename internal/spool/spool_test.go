package spool

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestIsDescriptor(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"task.yaml", true},
		{"task.yml", true},
		{"TASK.YAML", true},
		{"task.yaml.done", false},
		{"task.json", false},
		{"notes.md", false},
	}

	for _, tt := range tests {
		if got := isDescriptor(tt.name); got != tt.want {
			t.Errorf("isDescriptor(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestWatcher_ProcessesExistingFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.yaml", "a.yaml", "skip.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("task_id: t\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	w, err := NewWatcher(dir, func(path string) error {
		mu.Lock()
		got = append(got, filepath.Base(path))
		if len(got) == 2 {
			close(done)
		}
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for existing descriptors")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 || got[0] != "a.yaml" || got[1] != "b.yaml" {
		t.Errorf("processed = %v, want [a.yaml b.yaml] in order", got)
	}
}

func TestWatcher_PicksUpNewFileAndMarksDone(t *testing.T) {
	dir := t.TempDir()

	processed := make(chan string, 1)
	w, err := NewWatcher(dir, func(path string) error {
		processed <- path
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	w.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	// Give the event loop a moment to attach before writing.
	time.Sleep(100 * time.Millisecond)

	path := filepath.Join(dir, "new.yaml")
	if err := os.WriteFile(path, []byte("task_id: t\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case got := <-processed:
		if got != path {
			t.Errorf("processed %q, want %q", got, path)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for new descriptor")
	}

	// The descriptor is renamed so it cannot run twice.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path + ".done"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("descriptor was not marked done")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestWatcher_CallbackErrorMarksFailed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("oops"), 0o644); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	w, err := NewWatcher(dir, func(string) error {
		defer close(done)
		return os.ErrInvalid
	})
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Start(ctx)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for callback")
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := os.Stat(path + ".failed"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("descriptor was not marked failed")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestNewJanitor_InvalidCron(t *testing.T) {
	_, err := NewJanitor("invalid", 14, func(time.Time) ([]string, error) { return nil, nil })
	if err == nil {
		t.Fatal("expected error for invalid cron expression")
	}
}

func TestJanitor_ShouldRun(t *testing.T) {
	j, err := NewJanitor("* * * * *", 14, func(time.Time) ([]string, error) { return nil, nil })
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	if !j.ShouldRun(now) {
		t.Error("Should run when schedule elapsed since default last run")
	}

	j.Sweep(now)
	if j.ShouldRun(now) {
		t.Error("Should not run again within the same minute")
	}
}

func TestJanitor_SweepRemovesArtifacts(t *testing.T) {
	artifacts := t.TempDir()
	expired := filepath.Join(artifacts, "run-old")
	if err := os.MkdirAll(expired, 0o755); err != nil {
		t.Fatal(err)
	}

	var gotCutoff time.Time
	j, err := NewJanitor("0 3 * * *", 14, func(cutoff time.Time) ([]string, error) {
		gotCutoff = cutoff
		return []string{expired}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	now := time.Date(2026, 3, 20, 3, 0, 0, 0, time.UTC)
	j.Sweep(now)

	want := now.Add(-14 * 24 * time.Hour)
	if !gotCutoff.Equal(want) {
		t.Errorf("cutoff = %v, want %v", gotCutoff, want)
	}
	if _, err := os.Stat(expired); !os.IsNotExist(err) {
		t.Errorf("expired artifacts dir still exists")
	}
}
