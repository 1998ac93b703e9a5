package workspace

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// VerifyResult is the outcome of one verification (acceptance) run.
type VerifyResult struct {
	ExitCode int
	Output   string
}

// Passed reports whether the check succeeded.
func (r VerifyResult) Passed() bool {
	return r.ExitCode == 0
}

// RunSetup executes setup commands in the working copy before the run.
// Failures are reported but non-fatal: the original tree may legitimately be
// half-broken before the fix.
func RunSetup(ctx context.Context, dir string, commands []string, logPath string) []error {
	var errs []error
	for _, command := range commands {
		res, err := RunCheck(ctx, dir, command, logPath)
		if err != nil {
			errs = append(errs, fmt.Errorf("setup %q: %w", command, err))
			continue
		}
		if !res.Passed() {
			errs = append(errs, fmt.Errorf("setup %q: exit %d", command, res.ExitCode))
		}
	}
	return errs
}

// RunCheck runs one shell command in the working copy, appending a
// structured transcript to logPath (when non-empty) for debugging and for
// pass/fail detail extraction.
func RunCheck(ctx context.Context, dir, command, logPath string) (VerifyResult, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()

	res := VerifyResult{Output: string(out)}
	if err != nil {
		exitErr, ok := err.(*exec.ExitError)
		if !ok {
			return res, fmt.Errorf("running %q: %w", command, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	if logPath != "" {
		entry := fmt.Sprintf("\nCommand: %s\nReturn Code: %d\n--- OUTPUT ---\n%s\n--------------\n",
			command, res.ExitCode, res.Output)
		f, ferr := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if ferr == nil {
			f.WriteString(entry)
			f.Close()
		}
	}

	return res, nil
}
