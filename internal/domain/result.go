package domain

// RunStatus is the terminal status of a run.
type RunStatus string

const (
	StatusSuccess RunStatus = "success"
	StatusFailure RunStatus = "failure"
	StatusError   RunStatus = "error"
	StatusTimeout RunStatus = "timeout"
)

// TokenUsage counts tokens by usage category across a run.
type TokenUsage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Tool       int `json:"tool"`
}

// Total returns the sum over all categories.
func (u TokenUsage) Total() int {
	return u.Prompt + u.Completion + u.Tool
}

// TestDetails carries auxiliary pass/fail counts parsed from the acceptance
// command output. Informational only; the binary exit code decides the run.
type TestDetails struct {
	TestsPassed int `json:"tests_passed"`
	TestsFailed int `json:"tests_failed"`
}

// ResultRecord is the canonical outcome summary of one run. It is derived
// deterministically from the closed execution log, the working-tree diff and
// the acceptance check, written exactly once, and never mutated afterwards.
type ResultRecord struct {
	RunID           string       `json:"run_id"`
	TaskID          string       `json:"task_id"`
	Status          RunStatus    `json:"status"`
	DurationSeconds float64      `json:"duration_seconds"`
	TokenUsage      TokenUsage   `json:"token_usage"`
	EstimatedCost   float64      `json:"estimated_cost"`
	FailureReason   string       `json:"failure_reason,omitempty"`
	PatchApplied    bool         `json:"patch_applied"`
	Details         *TestDetails `json:"details,omitempty"`
}
