// Package workflow executes the asynchronous onboarding pipeline: an
// ordered sequence of idempotent steps per triggering event, with
// per-run memoization, bounded retry, and terminal-failure
// classification.
package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/helphive/helphive/internal/metrics"
	"github.com/helphive/helphive/internal/model"
)

// StepFunc executes one pipeline step. It receives the run context
// holding the event payload and the outputs of prior succeeded steps.
// Steps must be safe to invoke more than once: a crash between the
// step's side effect and the durable success record replays the step
// on the next attempt.
type StepFunc func(ctx context.Context, rc *RunContext) (any, error)

// Step is one named unit of the pipeline.
type Step struct {
	Name string
	Run  StepFunc
}

// RunContext carries the triggering event payload and the memoized
// results of steps that already succeeded in this run. It is owned
// exclusively by one run and never shared.
type RunContext struct {
	Email   string
	Results map[string]json.RawMessage
}

// Result unmarshals the memoized output of a prior step into v.
func (rc *RunContext) Result(step string, v any) error {
	raw, ok := rc.Results[step]
	if !ok {
		return fmt.Errorf("no result recorded for step %q", step)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode result of step %q: %w", step, err)
	}
	return nil
}

// RunStore is the persistence surface the engine drives.
type RunStore interface {
	RecordStepSuccess(ctx context.Context, id, step string, resultJSON []byte) error
	MarkSucceeded(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	MarkRetry(ctx context.Context, id, errMsg string, nextAttemptAt time.Time, exhausted bool) error
}

// Engine executes the pipeline for individual run attempts.
type Engine struct {
	store   RunStore
	steps   []Step
	logger  *slog.Logger
	metrics metrics.Recorder
}

// NewEngine creates an Engine over the given ordered steps.
func NewEngine(store RunStore, steps []Step, logger *slog.Logger, recorder metrics.Recorder) *Engine {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Engine{
		store:   store,
		steps:   steps,
		logger:  logger.With("component", "workflow.engine"),
		metrics: recorder,
	}
}

// Execute performs one attempt of a run: steps execute strictly in
// pipeline order, steps with a durably recorded success are skipped
// and their memoized results made available to later steps.
//
// A known limitation: the notifier invocation inside a step is not
// deduplicated beyond the step-success record, so a crash after the
// side effect but before the record can produce a duplicate message.
func (e *Engine) Execute(ctx context.Context, run *model.WorkflowRun) {
	rc := &RunContext{
		Email:   run.Email,
		Results: make(map[string]json.RawMessage, len(e.steps)),
	}
	if len(run.StepResults) > 0 {
		if err := json.Unmarshal(run.StepResults, &rc.Results); err != nil {
			// Corrupted memoization state cannot be repaired by retrying.
			e.failRun(ctx, run, fmt.Errorf("decode step results: %w", err))
			return
		}
	}

	for _, step := range e.steps {
		if run.HasSucceededStep(step.Name) {
			continue
		}

		result, err := step.Run(ctx, rc)
		if err != nil {
			e.metrics.IncStepExecuted(step.Name, "failure")
			if IsTerminal(err) {
				e.logger.Warn("step raised terminal failure",
					"run_id", run.ID,
					"step", step.Name,
					"error", err,
				)
				e.failRun(ctx, run, err)
			} else {
				e.retryRun(ctx, run, step.Name, err)
			}
			return
		}

		raw, err := json.Marshal(result)
		if err != nil {
			e.metrics.IncStepExecuted(step.Name, "failure")
			e.failRun(ctx, run, fmt.Errorf("encode result of step %q: %w", step.Name, err))
			return
		}

		// Record the success before the next step runs so a retry of
		// this run never re-executes it.
		if err := e.store.RecordStepSuccess(ctx, run.ID, step.Name, raw); err != nil {
			e.metrics.IncStepExecuted(step.Name, "failure")
			e.retryRun(ctx, run, step.Name, err)
			return
		}

		e.metrics.IncStepExecuted(step.Name, "success")
		rc.Results[step.Name] = raw
		run.SucceededSteps = append(run.SucceededSteps, step.Name)

		e.logger.Debug("step succeeded",
			"run_id", run.ID,
			"step", step.Name,
		)
	}

	if err := e.store.MarkSucceeded(ctx, run.ID); err != nil {
		e.logger.Error("failed to mark run succeeded", "run_id", run.ID, "error", err)
		return
	}

	e.metrics.IncRunFinished("succeeded")
	e.logger.Info("run succeeded",
		"run_id", run.ID,
		"email", run.Email,
		"attempts", run.AttemptCount+1,
	)
}

// failRun records a terminal failure. No retry budget is consumed and
// no further attempt is scheduled.
func (e *Engine) failRun(ctx context.Context, run *model.WorkflowRun, cause error) {
	if err := e.store.MarkFailed(ctx, run.ID, cause.Error()); err != nil {
		e.logger.Error("failed to mark run failed", "run_id", run.ID, "error", err)
		return
	}
	e.metrics.IncRunFinished("failed")
}

// retryRun records a retriable failure: the attempt budget advances
// and either a backoff retry is scheduled or the run is reported
// exhausted.
func (e *Engine) retryRun(ctx context.Context, run *model.WorkflowRun, step string, cause error) {
	nextAttempt := run.AttemptCount + 1
	exhausted := IsExhausted(nextAttempt, run.MaxAttempts)

	e.logger.Warn("run attempt failed",
		"run_id", run.ID,
		"step", step,
		"attempt", nextAttempt,
		"exhausted", exhausted,
		"error", cause,
	)

	nextAttemptAt := run.NextAttemptAt
	if !exhausted {
		nextAttemptAt = NextRetryAt(run.AttemptCount)
	}
	if err := e.store.MarkRetry(ctx, run.ID, cause.Error(), nextAttemptAt, exhausted); err != nil {
		e.logger.Error("failed to record retry", "run_id", run.ID, "error", err)
		return
	}

	if exhausted {
		e.metrics.IncRunFinished("exhausted")
	}
}
