// Package tools defines the closed set of tool invocations the agent driver
// will execute on behalf of the model. Anything outside this set is a policy
// violation: logged, rejected, and returned to the model as an error result.
package tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fixbench/runner/internal/anthropic"
)

// Kind tags one permitted tool.
type Kind string

const (
	KindReadFile   Kind = "read_file"
	KindWriteFile  Kind = "write_file"
	KindListDir    Kind = "list_dir"
	KindRunCommand Kind = "run_command"
)

// ErrDisallowed marks an invocation outside the allow-list. The run does not
// terminate on it.
var ErrDisallowed = errors.New("tool invocation not permitted")

// Call is a validated invocation of one permitted tool. The Kind tag decides
// which fields are meaningful.
type Call struct {
	Kind Kind `json:"kind"`

	// read_file, write_file, list_dir: path relative to the working copy
	Path string `json:"path,omitempty"`

	// write_file
	Content string `json:"content,omitempty"`

	// run_command
	Command string `json:"command,omitempty"`
}

type callInput struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Command string `json:"command"`
}

// ParseCall maps a model tool_use block onto the closed variant set. An
// unknown tool name or malformed input yields ErrDisallowed; the default
// case is total, not a lookup failure.
func ParseCall(name string, input json.RawMessage) (Call, error) {
	var in callInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return Call{}, fmt.Errorf("%w: bad input for %q: %v", ErrDisallowed, name, err)
		}
	}

	switch Kind(name) {
	case KindReadFile:
		if in.Path == "" {
			return Call{}, fmt.Errorf("%w: read_file requires path", ErrDisallowed)
		}
		return Call{Kind: KindReadFile, Path: in.Path}, nil
	case KindWriteFile:
		if in.Path == "" {
			return Call{}, fmt.Errorf("%w: write_file requires path", ErrDisallowed)
		}
		return Call{Kind: KindWriteFile, Path: in.Path, Content: in.Content}, nil
	case KindListDir:
		return Call{Kind: KindListDir, Path: in.Path}, nil
	case KindRunCommand:
		if in.Command == "" {
			return Call{}, fmt.Errorf("%w: run_command requires command", ErrDisallowed)
		}
		return Call{Kind: KindRunCommand, Command: in.Command}, nil
	default:
		return Call{}, fmt.Errorf("%w: unknown tool %q", ErrDisallowed, name)
	}
}

// Definitions returns the tool schemas advertised to the model.
func Definitions() []anthropic.Tool {
	pathProp := map[string]any{"type": "string", "description": "Path relative to the repository root"}
	return []anthropic.Tool{
		{
			Name:        string(KindReadFile),
			Description: "Read a file from the repository.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": pathProp},
				"required":   []string{"path"},
			},
		},
		{
			Name:        string(KindWriteFile),
			Description: "Write (create or overwrite) a file in the repository.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path":    pathProp,
					"content": map[string]any{"type": "string", "description": "Full new file content"},
				},
				"required": []string{"path", "content"},
			},
		},
		{
			Name:        string(KindListDir),
			Description: "List the entries of a directory in the repository.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"path": pathProp},
			},
		},
		{
			Name:        string(KindRunCommand),
			Description: "Run a shell command inside the repository (e.g. the test suite). Returns stdout, stderr and the exit code.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{"type": "string", "description": "Shell command to execute"},
				},
				"required": []string{"command"},
			},
		},
	}
}
