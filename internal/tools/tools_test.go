package tools

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseCall(t *testing.T) {
	tests := []struct {
		name     string
		tool     string
		input    string
		wantKind Kind
		wantErr  bool
	}{
		{"read file", "read_file", `{"path":"src/main.py"}`, KindReadFile, false},
		{"write file", "write_file", `{"path":"a.txt","content":"hi"}`, KindWriteFile, false},
		{"list dir root", "list_dir", `{}`, KindListDir, false},
		{"run command", "run_command", `{"command":"pytest -x"}`, KindRunCommand, false},
		{"unknown tool", "delete_repository", `{}`, "", true},
		{"read without path", "read_file", `{}`, "", true},
		{"run without command", "run_command", `{}`, "", true},
		{"malformed input", "read_file", `{not json`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, err := ParseCall(tt.tool, json.RawMessage(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrDisallowed) {
					t.Fatalf("err = %v, want ErrDisallowed", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if call.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", call.Kind, tt.wantKind)
			}
		})
	}
}

func TestExecutor_ReadWriteList(t *testing.T) {
	root := t.TempDir()
	e := NewExecutor(root, 0)
	ctx := context.Background()

	res := e.Execute(ctx, Call{Kind: KindWriteFile, Path: "pkg/fix.py", Content: "print('ok')\n"})
	if res.IsError {
		t.Fatalf("write failed: %s", res.Output)
	}

	res = e.Execute(ctx, Call{Kind: KindReadFile, Path: "pkg/fix.py"})
	if res.IsError || res.Output != "print('ok')\n" {
		t.Errorf("read = %+v", res)
	}

	res = e.Execute(ctx, Call{Kind: KindListDir, Path: ""})
	if res.IsError || !strings.Contains(res.Output, "pkg/") {
		t.Errorf("list = %+v", res)
	}
}

func TestExecutor_PathConfinement(t *testing.T) {
	root := t.TempDir()
	e := NewExecutor(root, 0)

	escapes := []Call{
		{Kind: KindReadFile, Path: "../outside.txt"},
		{Kind: KindWriteFile, Path: "../../etc/passwd", Content: "x"},
		{Kind: KindReadFile, Path: "/etc/passwd"},
	}
	for _, call := range escapes {
		if err := e.Validate(call); !errors.Is(err, ErrDisallowed) {
			t.Errorf("Validate(%q %q) = %v, want ErrDisallowed", call.Kind, call.Path, err)
		}
	}

	// In-tree paths pass validation.
	if err := e.Validate(Call{Kind: KindReadFile, Path: "sub/file.go"}); err != nil {
		t.Errorf("Validate(sub/file.go) = %v", err)
	}
}

func TestExecutor_RunCommand(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "hello.txt"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	e := NewExecutor(root, 0)

	res := e.Execute(context.Background(), Call{Kind: KindRunCommand, Command: "cat hello.txt"})
	if res.IsError || res.ExitCode != 0 {
		t.Fatalf("run = %+v", res)
	}
	if res.Output != "hello" {
		t.Errorf("output = %q", res.Output)
	}
}

func TestExecutor_RunCommand_FailureIsResultNotAbort(t *testing.T) {
	e := NewExecutor(t.TempDir(), 0)

	res := e.Execute(context.Background(), Call{Kind: KindRunCommand, Command: "exit 3"})
	if !res.IsError {
		t.Error("expected IsError for failing command")
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
}

func TestDefinitions_CoverAllowList(t *testing.T) {
	defs := Definitions()
	if len(defs) != 4 {
		t.Fatalf("got %d tool definitions, want 4", len(defs))
	}
	want := map[string]bool{"read_file": true, "write_file": true, "list_dir": true, "run_command": true}
	for _, d := range defs {
		if !want[d.Name] {
			t.Errorf("unexpected tool definition %q", d.Name)
		}
		if d.InputSchema["type"] != "object" {
			t.Errorf("tool %q schema type = %v", d.Name, d.InputSchema["type"])
		}
	}
}
