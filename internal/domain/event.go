package domain

import (
	"encoding/json"
	"time"
)

// EventKind identifies the type of an execution-log event.
type EventKind string

const (
	EventRunStart        EventKind = "run_start"
	EventModelRequest    EventKind = "model_request"
	EventModelResponse   EventKind = "model_response"
	EventToolCall        EventKind = "tool_call"
	EventToolResult      EventKind = "tool_result"
	EventPolicyViolation EventKind = "policy_violation"
	EventError           EventKind = "error"
	EventRunEnd          EventKind = "run_end"
)

// Usage is the token usage reported on a single model response.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Event is one record in the append-only execution log. The log is owned by
// the agent driver while a run is open and read-only afterwards; the metrics
// extractor depends on this schema staying stable.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      EventKind `json:"kind"`

	RunID  string `json:"run_id,omitempty"`
	TaskID string `json:"task_id,omitempty"`

	// model_request / model_response
	Model string `json:"model,omitempty"`
	Text  string `json:"text,omitempty"`
	Usage *Usage `json:"usage,omitempty"`

	// tool_call / tool_result / policy_violation
	Tool       string          `json:"tool,omitempty"`
	Input      json.RawMessage `json:"input,omitempty"`
	Output     string          `json:"output,omitempty"`
	ExitCode   *int            `json:"exit_code,omitempty"`
	ToolTokens int             `json:"tool_tokens,omitempty"`

	// run_end
	Status RunStatus `json:"status,omitempty"`
	Reason string    `json:"reason,omitempty"`
}
