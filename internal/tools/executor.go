package tools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// maxOutputBytes caps tool output fed back into the model context.
const maxOutputBytes = 64 * 1024

// Result is the outcome of executing one tool call. A failing command is a
// normal result (IsError set, exit code captured), not an execution error:
// it goes back to the model so it can adapt.
type Result struct {
	Output   string
	ExitCode int
	IsError  bool
}

// Executor runs allow-listed tool calls against a single working copy. All
// file paths are confined to Root; escapes are policy violations.
type Executor struct {
	Root           string
	CommandTimeout time.Duration
}

// NewExecutor creates an executor rooted at the working copy.
func NewExecutor(root string, commandTimeout time.Duration) *Executor {
	return &Executor{Root: root, CommandTimeout: commandTimeout}
}

// Validate rejects calls whose paths escape the working copy. Returns
// ErrDisallowed so callers log the attempt as a policy violation.
func (e *Executor) Validate(call Call) error {
	switch call.Kind {
	case KindReadFile, KindWriteFile, KindListDir:
		if _, err := e.resolve(call.Path); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs a validated call. Only run_command can block for long; it is
// bounded by CommandTimeout.
func (e *Executor) Execute(ctx context.Context, call Call) Result {
	switch call.Kind {
	case KindReadFile:
		return e.readFile(call.Path)
	case KindWriteFile:
		return e.writeFile(call.Path, call.Content)
	case KindListDir:
		return e.listDir(call.Path)
	case KindRunCommand:
		return e.runCommand(ctx, call.Command)
	default:
		return Result{Output: fmt.Sprintf("unknown tool kind %q", call.Kind), IsError: true}
	}
}

// resolve maps a model-supplied relative path into the working copy,
// rejecting absolute paths and traversal out of the root.
func (e *Executor) resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%w: absolute path %q", ErrDisallowed, rel)
	}
	abs := filepath.Join(e.Root, rel)
	cleanRoot := filepath.Clean(e.Root)
	if abs != cleanRoot && !strings.HasPrefix(abs, cleanRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path %q escapes working copy", ErrDisallowed, rel)
	}
	return abs, nil
}

func (e *Executor) readFile(rel string) Result {
	abs, err := e.resolve(rel)
	if err != nil {
		return Result{Output: err.Error(), IsError: true}
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return Result{Output: err.Error(), IsError: true}
	}
	return Result{Output: clip(string(data))}
}

func (e *Executor) writeFile(rel, content string) Result {
	abs, err := e.resolve(rel)
	if err != nil {
		return Result{Output: err.Error(), IsError: true}
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return Result{Output: err.Error(), IsError: true}
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return Result{Output: err.Error(), IsError: true}
	}
	return Result{Output: fmt.Sprintf("wrote %d bytes to %s", len(content), rel)}
}

func (e *Executor) listDir(rel string) Result {
	abs, err := e.resolve(rel)
	if err != nil {
		return Result{Output: err.Error(), IsError: true}
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return Result{Output: err.Error(), IsError: true}
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return Result{Output: strings.Join(names, "\n")}
}

func (e *Executor) runCommand(ctx context.Context, command string) Result {
	if e.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.CommandTimeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = e.Root
	out, err := cmd.CombinedOutput()

	res := Result{Output: clip(string(out))}
	if err != nil {
		res.IsError = true
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Output = clip(res.Output + "\n" + err.Error())
		}
	}
	return res
}

func clip(s string) string {
	if len(s) <= maxOutputBytes {
		return s
	}
	return s[:maxOutputBytes] + "\n...(truncated)..."
}
