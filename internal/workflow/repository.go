package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/helphive/helphive/internal/model"
)

// Repository handles workflow run persistence.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new workflow run repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateRun inserts a new run record. Runs are keyed by the triggering
// event ID, so a redelivered stream message never creates a second run.
// Returns true if a new run was created.
func (r *Repository) CreateRun(ctx context.Context, run *model.WorkflowRun) (bool, error) {
	query := `
		INSERT INTO workflow_runs (
			id, event_id, email, status, attempt_count, max_attempts,
			next_attempt_at, succeeded_steps, step_results, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO NOTHING
	`

	stepResults := run.StepResults
	if len(stepResults) == 0 {
		stepResults = []byte(`{}`)
	}

	result, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.EventID,
		run.Email,
		string(run.Status),
		run.AttemptCount,
		run.MaxAttempts,
		run.NextAttemptAt,
		pq.Array(run.SucceededSteps),
		stepResults,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert workflow run: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// GetRun retrieves a run by ID.
func (r *Repository) GetRun(ctx context.Context, id string) (*model.WorkflowRun, error) {
	return r.getRun(ctx, "id", id)
}

// GetRunByEventID retrieves a run by its triggering event ID.
func (r *Repository) GetRunByEventID(ctx context.Context, eventID string) (*model.WorkflowRun, error) {
	return r.getRun(ctx, "event_id", eventID)
}

func (r *Repository) getRun(ctx context.Context, column, value string) (*model.WorkflowRun, error) {
	query := fmt.Sprintf(`
		SELECT id, event_id, email, status, attempt_count, max_attempts,
			   next_attempt_at, succeeded_steps, step_results, last_error,
			   created_at, updated_at
		FROM workflow_runs
		WHERE %s = $1
	`, column)

	run, err := scanRun(r.db.QueryRowContext(ctx, query, value))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query workflow run: %w", err)
	}
	return run, nil
}

// RunningLease bounds how long a claimed run may sit in running state
// before it is treated as abandoned (worker crash, lost status write)
// and becomes claimable again.
const RunningLease = 5 * time.Minute

// GetDueRuns retrieves runs ready for their next attempt, including
// running runs whose lease has expired. SKIP LOCKED keeps concurrent
// workers from picking up the same run.
func (r *Repository) GetDueRuns(ctx context.Context, limit int) ([]*model.WorkflowRun, error) {
	query := `
		SELECT id, event_id, email, status, attempt_count, max_attempts,
			   next_attempt_at, succeeded_steps, step_results, last_error,
			   created_at, updated_at
		FROM workflow_runs
		WHERE (status = 'pending' AND next_attempt_at <= $1)
		   OR (status = 'running' AND updated_at <= $2)
		ORDER BY next_attempt_at
		LIMIT $3
		FOR UPDATE SKIP LOCKED
	`

	now := time.Now()
	rows, err := r.db.QueryContext(ctx, query, now, now.Add(-RunningLease), limit)
	if err != nil {
		return nil, fmt.Errorf("query due runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.WorkflowRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// MarkRunning transitions a pending run, or a running run with an
// expired lease, to running. Returns false if another worker got
// there first.
func (r *Repository) MarkRunning(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE workflow_runs
		SET status = 'running', updated_at = $2
		WHERE id = $1
		  AND (status = 'pending' OR (status = 'running' AND updated_at <= $3))
	`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query, id, now, now.Add(-RunningLease))
	if err != nil {
		return false, fmt.Errorf("mark run running: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// RecordStepSuccess durably memoizes a step result. A step recorded
// here is never re-executed across retries of the same run.
func (r *Repository) RecordStepSuccess(ctx context.Context, id, step string, resultJSON []byte) error {
	query := `
		UPDATE workflow_runs
		SET succeeded_steps = array_append(succeeded_steps, $2),
			step_results = step_results || jsonb_build_object($2::text, $3::jsonb),
			updated_at = $4
		WHERE id = $1 AND NOT ($2 = ANY(succeeded_steps))
	`

	if len(resultJSON) == 0 {
		resultJSON = []byte(`null`)
	}

	_, err := r.db.ExecContext(ctx, query, id, step, resultJSON, time.Now())
	if err != nil {
		return fmt.Errorf("record step success: %w", err)
	}
	return nil
}

// MarkSucceeded marks a run as fully completed.
func (r *Repository) MarkSucceeded(ctx context.Context, id string) error {
	query := `
		UPDATE workflow_runs
		SET status = 'succeeded', last_error = NULL, updated_at = $2
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("mark run succeeded: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrRunNotFound
	}
	return nil
}

// MarkFailed records a step-level terminal failure. The run stops
// immediately and is never retried; the attempt budget is untouched.
func (r *Repository) MarkFailed(ctx context.Context, id, errMsg string) error {
	query := `
		UPDATE workflow_runs
		SET status = 'failed', last_error = $2, updated_at = $3
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, truncateError(errMsg), time.Now())
	if err != nil {
		return fmt.Errorf("mark run failed: %w", err)
	}
	return nil
}

// MarkRetry records a retriable failure: the attempt counter advances
// and the run either returns to pending for the scheduled retry or,
// when the budget is spent, becomes exhausted.
func (r *Repository) MarkRetry(ctx context.Context, id, errMsg string, nextAttemptAt time.Time, exhausted bool) error {
	status := "pending"
	if exhausted {
		status = "exhausted"
	}

	query := `
		UPDATE workflow_runs
		SET status = $2,
			attempt_count = attempt_count + 1,
			last_error = $3,
			next_attempt_at = $4,
			updated_at = $5
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query, id, status, truncateError(errMsg), nextAttemptAt, time.Now())
	if err != nil {
		return fmt.Errorf("mark run retry: %w", err)
	}
	return nil
}

// GetQueueDepth returns the count of runs awaiting execution.
func (r *Repository) GetQueueDepth(ctx context.Context) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM workflow_runs
		WHERE status IN ('pending', 'running')
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count queue depth: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.WorkflowRun, error) {
	var run model.WorkflowRun
	var status string
	var steps []string

	if err := row.Scan(
		&run.ID,
		&run.EventID,
		&run.Email,
		&status,
		&run.AttemptCount,
		&run.MaxAttempts,
		&run.NextAttemptAt,
		pq.Array(&steps),
		&run.StepResults,
		&run.LastError,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		return nil, err
	}

	run.Status = model.RunStatus(status)
	run.SucceededSteps = steps
	return &run, nil
}

// truncateError keeps stored error messages bounded.
func truncateError(msg string) string {
	if len(msg) > 500 {
		return msg[:500]
	}
	return msg
}
