package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/fixbench/runner/internal/anthropic"
	"github.com/fixbench/runner/internal/config"
	"github.com/fixbench/runner/internal/domain"
	"github.com/fixbench/runner/internal/driver"
	"github.com/fixbench/runner/internal/eventlog"
	"github.com/fixbench/runner/internal/metrics"
	"github.com/fixbench/runner/internal/store"
	"github.com/fixbench/runner/internal/tools"
	"github.com/fixbench/runner/internal/workspace"
)

// executePipeline runs the full pipeline for one task descriptor: working
// copy, agent session, verification, extraction, persistence. It returns an
// error only on infrastructure failure; an agent that could not fix the bug
// is reported through the record's status.
func executePipeline(ctx context.Context, cfg *config.Config, taskPath string, keepWorkspace bool) (*domain.ResultRecord, error) {
	// A .env next to the working directory may carry the credential.
	godotenv.Load()

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
	}

	task, err := domain.LoadTask(taskPath)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	artifactsDir := filepath.Join(cfg.General.ArtifactsDir, runID)
	if err := os.MkdirAll(artifactsDir, 0o755); err != nil {
		return nil, err
	}

	db, err := store.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	startedAt := time.Now().UTC()
	if err := db.StartRun(runID, task.TaskID, artifactsDir, startedAt); err != nil {
		return nil, err
	}

	manager := workspace.NewManager(task.Repository.Path, cfg.General.WorkDir)
	wt, err := manager.Create(runID, task.Repository.Revision)
	if err != nil {
		return nil, fmt.Errorf("preparing working copy: %w", err)
	}
	if !keepWorkspace {
		defer func() {
			if err := manager.Remove(wt); err != nil {
				log.Printf("cleaning up working copy: %v", err)
			}
		}()
	}

	for _, err := range workspace.RunSetup(ctx, wt, task.SetupCommands, filepath.Join(artifactsDir, "setup.log")) {
		log.Printf("setup warning: %v", err)
	}

	// Pre-verification establishes the failing baseline; its transcript is
	// the agent's starting context.
	var failureLog string
	if task.AcceptanceCommand != "" {
		pre, err := workspace.RunCheck(ctx, wt, task.AcceptanceCommand,
			filepath.Join(artifactsDir, "pre_verify.log"))
		if err != nil {
			return nil, fmt.Errorf("pre-verification: %w", err)
		}
		if pre.Passed() {
			log.Printf("warning: acceptance command already passes before the fix")
		}
		failureLog = pre.Output
	}

	eventsPath := filepath.Join(artifactsDir, "events.jsonl")
	logWriter, err := eventlog.NewWriter(eventsPath)
	if err != nil {
		return nil, err
	}
	logWriter.Redact(apiKey)

	logWriter.Append(domain.Event{
		Kind:   domain.EventRunStart,
		RunID:  runID,
		TaskID: task.TaskID,
		Model:  cfg.Anthropic.Model,
	})

	client := anthropic.NewClient(apiKey, cfg.Anthropic.BaseURL, cfg.Budgets.MaxRetries)
	executor := tools.NewExecutor(wt, cfg.Budgets.ToolTimeout())
	drv := driver.New(client, logWriter, executor, driver.Options{
		Model:          cfg.Anthropic.Model,
		FallbackModels: cfg.Anthropic.FallbackModels,
		MaxTokens:      cfg.Anthropic.MaxTokens,
		MaxDuration:    cfg.Budgets.MaxDuration(),
		MaxSteps:       cfg.Budgets.MaxSteps,
	})

	status, reason := drv.Run(ctx, task, failureLog)

	logWriter.Append(domain.Event{
		Kind:   domain.EventRunEnd,
		Status: status,
		Reason: reason,
	})
	if err := logWriter.Close(); err != nil {
		log.Printf("closing execution log: %v", err)
	}

	// Post-run evidence gathering continues even when the run was canceled:
	// the record must reflect whatever state the working copy reached.
	diff, dirty, err := workspace.Diff(wt)
	if err != nil {
		log.Printf("capturing diff: %v", err)
	}
	if diff != "" {
		if err := os.WriteFile(filepath.Join(artifactsDir, "diff.patch"), []byte(diff), 0o644); err != nil {
			log.Printf("writing diff: %v", err)
		}
	}

	var acceptance *metrics.AcceptanceCheck
	var acceptanceErr string
	if task.AcceptanceCommand != "" {
		post, err := workspace.RunCheck(context.WithoutCancel(ctx), wt, task.AcceptanceCommand,
			filepath.Join(artifactsDir, "post_verify.log"))
		if err != nil {
			// The check could not run at all; a claimed success must not
			// stand unverified, so the failure flows into extraction.
			log.Printf("post-verification: %v", err)
			acceptanceErr = err.Error()
		} else {
			acceptance = &metrics.AcceptanceCheck{ExitCode: post.ExitCode, Output: post.Output}
		}
	}

	events, readErr := eventlog.Read(eventsPath)
	rec := metrics.Extract(metrics.Inputs{
		Events:        events,
		LogCorrupt:    readErr != nil,
		Diff:          diff,
		Dirty:         dirty,
		Acceptance:    acceptance,
		AcceptanceErr: acceptanceErr,
	})

	if err := metrics.WriteRecord(rec, filepath.Join(artifactsDir, "result.json")); err != nil {
		return nil, err
	}

	if err := db.FinishRun(runID, rec, time.Now().UTC()); err != nil {
		log.Printf("recording run history: %v", err)
	}

	return rec, nil
}
