// Package metrics derives the canonical result record from a closed
// execution log and the final working-tree diff. Extraction is a pure
// function of its inputs: the same log and diff always produce the same
// record, and no internal fault escapes the package boundary. A log that
// cannot be parsed degrades to a record with failure_reason "log-parse-error".
package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fixbench/runner/internal/domain"
)

const logParseError = "log-parse-error"

// Inputs are everything extraction depends on. Acceptance is nil when the
// task has no acceptance command (or it was not run); it is the exit code
// and output of re-running the acceptance command against the final tree.
type Inputs struct {
	Events     []domain.Event
	LogCorrupt bool

	Diff  string
	Dirty bool

	Acceptance *AcceptanceCheck

	// AcceptanceErr is set when the acceptance re-run could not be executed
	// at all (as opposed to running and failing). A claimed success cannot
	// stand unverified, so it degrades to status error.
	AcceptanceErr string
}

// AcceptanceCheck is the outcome of the acceptance command against the
// final working tree.
type AcceptanceCheck struct {
	ExitCode int
	Output   string
}

// Extract produces the run's result record. It never panics and never
// returns an error: every degradation is encoded in the record itself so the
// pipeline always terminates with some record.
func Extract(in Inputs) (rec *domain.ResultRecord) {
	rec = &domain.ResultRecord{}

	defer func() {
		// A parse fault on hostile input must not cross the boundary. The
		// result is named so the degraded record survives the recover.
		if r := recover(); r != nil {
			rec = &domain.ResultRecord{
				Status:        domain.StatusError,
				FailureReason: logParseError,
			}
		}
	}()

	var (
		terminal  *domain.Event
		lastError string
		lastModel string
	)

	for i := range in.Events {
		ev := &in.Events[i]
		switch ev.Kind {
		case domain.EventRunStart:
			rec.RunID = ev.RunID
			rec.TaskID = ev.TaskID
		case domain.EventModelResponse:
			if ev.Usage != nil {
				rec.TokenUsage.Prompt += ev.Usage.InputTokens
				rec.TokenUsage.Completion += ev.Usage.OutputTokens
				model := ev.Model
				if model == "" {
					model = lastModel
				}
				rec.EstimatedCost += responseCost(model, *ev.Usage)
			}
			if ev.Model != "" {
				lastModel = ev.Model
			}
		case domain.EventToolResult:
			rec.TokenUsage.Tool += ev.ToolTokens
			rec.EstimatedCost += toolTokenCost(lastModel, ev.ToolTokens)
		case domain.EventError:
			lastError = ev.Text
		case domain.EventRunEnd:
			terminal = ev
		}
	}

	if n := len(in.Events); n > 0 {
		d := in.Events[n-1].Timestamp.Sub(in.Events[0].Timestamp).Seconds()
		if d > 0 {
			rec.DurationSeconds = d
		}
	}

	rec.PatchApplied = in.Dirty

	switch {
	case in.LogCorrupt || terminal == nil:
		rec.Status = domain.StatusError
		rec.FailureReason = logParseError
	default:
		rec.Status = terminal.Status
		rec.FailureReason = terminal.Reason
	}

	// The acceptance check can only demote: a self-reported success that
	// does not pass becomes a failure; an explicit failure stays a failure
	// even when the check happens to pass.
	if in.Acceptance != nil {
		if rec.Status == domain.StatusSuccess && in.Acceptance.ExitCode != 0 {
			rec.Status = domain.StatusFailure
			rec.FailureReason = fmt.Sprintf("acceptance command failed with exit code %d", in.Acceptance.ExitCode)
		}
		if passed, failed, ok := parsePytestSummary(in.Acceptance.Output); ok {
			rec.Details = &domain.TestDetails{TestsPassed: passed, TestsFailed: failed}
		}
	}

	// A success the re-run could not verify does not stand.
	if in.AcceptanceErr != "" && rec.Status == domain.StatusSuccess {
		rec.Status = domain.StatusError
		rec.FailureReason = fmt.Sprintf("acceptance re-run failed: %s", in.AcceptanceErr)
	}

	if rec.Status != domain.StatusSuccess && rec.FailureReason == "" {
		if lastError != "" {
			rec.FailureReason = lastError
		} else {
			rec.FailureReason = "unspecified"
		}
	}
	if rec.Status == domain.StatusSuccess {
		rec.FailureReason = ""
	}

	return rec
}

// Encode renders a record to its canonical byte form.
func Encode(rec *domain.ResultRecord) ([]byte, error) {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WriteRecord persists the record to path. The record is write-once: an
// existing file is an error, never overwritten.
func WriteRecord(rec *domain.ResultRecord, path string) error {
	data, err := Encode(rec)
	if err != nil {
		return fmt.Errorf("encoding result record: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating result record: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing result record: %w", err)
	}
	return nil
}
