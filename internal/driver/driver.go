// Package driver runs one bounded session with the coding model: it feeds
// the problem context in, executes allow-listed tool calls against the
// working copy, and stops at the first terminal condition.
package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fixbench/runner/internal/anthropic"
	"github.com/fixbench/runner/internal/domain"
	"github.com/fixbench/runner/internal/eventlog"
	"github.com/fixbench/runner/internal/tools"
)

// ModelClient is the slice of the API client the driver needs.
type ModelClient interface {
	CreateMessageWithFallback(ctx context.Context, req anthropic.Request, models []string) (*anthropic.Response, error)
}

// Options bound a single session.
type Options struct {
	Model          string
	FallbackModels []string
	MaxTokens      int
	MaxDuration    time.Duration // 0 = unbounded
	MaxSteps       int           // tool-call budget; 0 = unbounded
}

// state of the turn-based session loop. One transition function per state.
type state int

const (
	stateAwaitingModel state = iota
	stateExecutingTool
	stateTerminal
)

// Driver holds the session for one run. It owns the execution log while the
// run is open and mutates the working copy through the tool executor; it
// never deletes or resets the working copy itself.
type Driver struct {
	client ModelClient
	log    *eventlog.Writer
	exec   *tools.Executor
	opts   Options

	messages []anthropic.Message
	pending  []anthropic.ContentBlock // tool_use blocks awaiting execution
	results  []anthropic.ContentBlock // tool_result blocks for the next turn
	steps    int
	deadline time.Time

	status domain.RunStatus
	reason string
}

// New creates a driver. All configuration is explicit; nothing is read from
// ambient state, so independent runs are isolated and testable in process.
func New(client ModelClient, log *eventlog.Writer, exec *tools.Executor, opts Options) *Driver {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4096
	}
	return &Driver{client: client, log: log, exec: exec, opts: opts}
}

// Run drives the session to a terminal status and returns it with the
// failure reason (empty on success). Budgets and cancellation are checked at
// turn boundaries only: a long tool call may overrun the deadline by at most
// its own duration, and is never killed mid-execution.
func (d *Driver) Run(ctx context.Context, task *domain.TaskDescriptor, failureLog string) (domain.RunStatus, string) {
	system := BuildSystemPrompt(task)
	d.messages = []anthropic.Message{{
		Role:    "user",
		Content: []anthropic.ContentBlock{{Type: "text", Text: BuildUserMessage(failureLog)}},
	}}
	if d.opts.MaxDuration > 0 {
		d.deadline = time.Now().Add(d.opts.MaxDuration)
	}

	for st := stateAwaitingModel; st != stateTerminal; {
		switch st {
		case stateAwaitingModel:
			st = d.awaitModel(ctx, system)
		case stateExecutingTool:
			st = d.executeTool(ctx)
		}
	}
	return d.status, d.reason
}

// awaitModel is the turn boundary: budgets and cancellation are checked
// here, then the accumulated context is sent to the model and its reply is
// classified.
func (d *Driver) awaitModel(ctx context.Context, system string) state {
	if ctx.Err() != nil {
		return d.terminal(domain.StatusError, "run canceled")
	}
	if !d.deadline.IsZero() && time.Now().After(d.deadline) {
		return d.terminal(domain.StatusTimeout, "deadline exceeded")
	}
	if d.opts.MaxSteps > 0 && d.steps >= d.opts.MaxSteps {
		return d.terminal(domain.StatusTimeout, "step limit exhausted")
	}

	d.flushToolResults()

	d.appendEvent(domain.Event{
		Kind:  domain.EventModelRequest,
		Model: d.opts.Model,
		Text:  describeRequest(d.messages),
	})

	resp, err := d.client.CreateMessageWithFallback(ctx, anthropic.Request{
		Model:     d.opts.Model,
		MaxTokens: d.opts.MaxTokens,
		System:    system,
		Messages:  d.messages,
		Tools:     tools.Definitions(),
	}, append([]string{d.opts.Model}, d.opts.FallbackModels...))
	if err != nil {
		d.appendEvent(domain.Event{Kind: domain.EventError, Text: err.Error()})
		if ctx.Err() != nil {
			return d.terminal(domain.StatusError, "run canceled")
		}
		return d.terminal(domain.StatusError, fmt.Sprintf("model request failed: %v", err))
	}

	text := responseText(resp)
	d.appendEvent(domain.Event{
		Kind:  domain.EventModelResponse,
		Model: resp.Model,
		Text:  text,
		Usage: &domain.Usage{InputTokens: resp.Usage.InputTokens, OutputTokens: resp.Usage.OutputTokens},
	})

	d.messages = append(d.messages, anthropic.Message{Role: "assistant", Content: resp.Content})

	for _, block := range resp.Content {
		if block.Type == "tool_use" {
			d.pending = append(d.pending, block)
		}
	}
	if len(d.pending) > 0 {
		return stateExecutingTool
	}

	// No tool request: the reply must carry a completion or failure signal.
	if idx := strings.Index(text, failureMarker); idx >= 0 {
		return d.terminal(domain.StatusFailure, extractFailureReason(text[idx:]))
	}
	if strings.Contains(text, completionMarker) {
		return d.terminal(domain.StatusSuccess, "")
	}
	return d.terminal(domain.StatusFailure, "agent stopped without completion signal")
}

// executeTool pops and executes one pending tool_use block. Tool calls are
// strictly sequential: the model sees every result before its next decision.
func (d *Driver) executeTool(ctx context.Context) state {
	if d.opts.MaxSteps > 0 && d.steps >= d.opts.MaxSteps {
		return d.terminal(domain.StatusTimeout, "step limit exhausted")
	}

	block := d.pending[0]
	d.pending = d.pending[1:]
	d.steps++

	call, err := tools.ParseCall(block.Name, block.Input)
	if err == nil {
		err = d.exec.Validate(call)
	}
	if err != nil {
		if !errors.Is(err, tools.ErrDisallowed) {
			err = fmt.Errorf("%w: %v", tools.ErrDisallowed, err)
		}
		// Rejected, logged, and fed back to the model; the run continues.
		d.appendEvent(domain.Event{
			Kind:   domain.EventPolicyViolation,
			Tool:   block.Name,
			Input:  block.Input,
			Output: err.Error(),
		})
		d.results = append(d.results, anthropic.ContentBlock{
			Type:      "tool_result",
			ToolUseID: block.ID,
			Content:   "policy violation: " + err.Error(),
			IsError:   true,
		})
	} else {
		d.appendEvent(domain.Event{
			Kind:  domain.EventToolCall,
			Tool:  block.Name,
			Input: block.Input,
		})

		// Tool execution is detached from session cancellation: the shell's
		// cancel request is honored at the next turn boundary, never
		// mid-tool-execution.
		res := d.exec.Execute(context.WithoutCancel(ctx), call)

		exitCode := res.ExitCode
		d.appendEvent(domain.Event{
			Kind:       domain.EventToolResult,
			Tool:       block.Name,
			Output:     res.Output,
			ExitCode:   &exitCode,
			ToolTokens: approxTokens(res.Output),
		})
		d.results = append(d.results, anthropic.ContentBlock{
			Type:      "tool_result",
			ToolUseID: block.ID,
			Content:   res.Output,
			IsError:   res.IsError,
		})
	}

	if len(d.pending) > 0 {
		return stateExecutingTool
	}
	return stateAwaitingModel
}

func (d *Driver) terminal(status domain.RunStatus, reason string) state {
	d.status = status
	d.reason = reason
	return stateTerminal
}

// flushToolResults moves collected tool_result blocks into a user message
// for the next model turn.
func (d *Driver) flushToolResults() {
	if len(d.results) == 0 {
		return
	}
	d.messages = append(d.messages, anthropic.Message{Role: "user", Content: d.results})
	d.results = nil
}

func (d *Driver) appendEvent(ev domain.Event) {
	if d.log == nil {
		return
	}
	// Log write failures must not kill the session; the extractor degrades
	// gracefully on a partial log.
	_ = d.log.Append(ev)
}

// describeRequest summarizes the outgoing context for the log without
// duplicating the whole conversation on every turn.
func describeRequest(messages []anthropic.Message) string {
	if len(messages) == 0 {
		return ""
	}
	last := messages[len(messages)-1]
	var texts, results int
	for _, block := range last.Content {
		switch block.Type {
		case "text":
			texts++
		case "tool_result":
			results++
		}
	}
	if results > 0 {
		return fmt.Sprintf("turn %d: %d tool result(s)", len(messages), results)
	}
	if texts > 0 && len(messages) == 1 {
		return last.Content[0].Text
	}
	return fmt.Sprintf("turn %d", len(messages))
}

func responseText(resp *anthropic.Response) string {
	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// approxTokens is a rough 4-bytes-per-token estimate for tool output fed
// back into the context; the API only reports usage for model turns.
func approxTokens(s string) int {
	return (len(s) + 3) / 4
}
