package driver

import (
	"fmt"
	"strings"

	"github.com/fixbench/runner/internal/domain"
)

const (
	completionMarker = "TASK_COMPLETE"
	failureMarker    = "TASK_FAILED"

	// failureLogTail bounds how much of the pre-verification log goes into
	// the opening context.
	failureLogTail = 8000
)

const systemPromptTemplate = `You are an expert developer fixing a single bug in a checked-out repository.

Problem:
%s
%s
You have tools to read files, write files, list directories and run shell commands inside the repository. Work in small steps: inspect the failing code, apply a fix by writing the affected files, then verify it.

When you are confident the bug is fixed, reply with a final message containing the line %s.
If you conclude the bug cannot be fixed, reply with a final message containing the line %s: <short reason>.

Do not ask for clarification. Make reasonable decisions based on the repository content.`

// BuildSystemPrompt constructs the session system prompt from the task.
func BuildSystemPrompt(task *domain.TaskDescriptor) string {
	var acceptance string
	if task.AcceptanceCommand != "" {
		acceptance = fmt.Sprintf("\nThe fix is verified with: %s\nRun it before declaring the task complete.\n", task.AcceptanceCommand)
	}
	return fmt.Sprintf(systemPromptTemplate, task.ProblemStatement, acceptance, completionMarker, failureMarker)
}

// BuildUserMessage builds the opening user message from the pre-verification
// failure log, keeping only the tail to bound the context.
func BuildUserMessage(failureLog string) string {
	if strings.TrimSpace(failureLog) == "" {
		return "No pre-verification log is available. Inspect the repository to locate the bug."
	}
	return "Here are the failure logs from the pre-verification step:\n\n" + tail(failureLog, failureLogTail)
}

// extractFailureReason pulls the reason text following the failure marker.
func extractFailureReason(text string) string {
	reason := strings.TrimPrefix(text, failureMarker)
	reason = strings.TrimLeft(reason, ": ")
	if idx := strings.IndexByte(reason, '\n'); idx >= 0 {
		reason = reason[:idx]
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "agent reported failure"
	}
	return reason
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
