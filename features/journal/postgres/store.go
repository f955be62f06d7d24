// Package postgres implements journal.Store backed by PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cubeassist/workflow-agent/runtime/workflow"
	"github.com/cubeassist/workflow-agent/runtime/workflow/journal"
)

// Store implements journal.Store against the workflow_run table, one row
// per step execution, keyed by step_run_id.
type Store struct {
	pool *pgxpool.Pool
}

var _ journal.Store = (*Store)(nil)

// New wraps an existing pool. The caller owns the pool's lifecycle.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Upsert implements journal.Store.
func (s *Store) Upsert(ctx context.Context, run workflow.StepRun) error {
	snapshot, err := json.Marshal(run.WorkflowStateSnapshot)
	if err != nil {
		return fmt.Errorf("postgres: marshal snapshot for step run %s: %w", run.StepRunID, err)
	}
	success, err := marshalOrNull(run.SuccessResponse)
	if err != nil {
		return fmt.Errorf("postgres: marshal success response for step run %s: %w", run.StepRunID, err)
	}
	failure, err := marshalOrNull(run.ErrorResponse)
	if err != nil {
		return fmt.Errorf("postgres: marshal error response for step run %s: %w", run.StepRunID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_run (
			step_run_id, workflow_run_id, workflow_id, step_id, started_at,
			completed_at, status, workflow_state_snapshot, success_response, error_response
		) VALUES ($1, $2, $3, $4, COALESCE($5, now()), $6, $7, $8, $9, $10)
		ON CONFLICT (step_run_id) DO UPDATE SET
			completed_at = EXCLUDED.completed_at,
			status = EXCLUDED.status,
			workflow_state_snapshot = EXCLUDED.workflow_state_snapshot,
			success_response = EXCLUDED.success_response,
			error_response = EXCLUDED.error_response`,
		run.StepRunID, run.WorkflowRunID, run.WorkflowID, run.StepID, nullTime(run.StartedAt),
		run.CompletedAt, string(run.Status), snapshot, success, failure,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert step run %s: %w", run.StepRunID, err)
	}
	return nil
}

// FindInputRequired implements journal.Store.
func (s *Store) FindInputRequired(ctx context.Context, workflowRunID string) (workflow.InputRequiredStep, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT workflow_id, step_id, step_run_id, workflow_state_snapshot
		FROM workflow_run
		WHERE workflow_run_id = $1 AND status = $2
		ORDER BY started_at DESC
		LIMIT 1`, workflowRunID, string(workflow.TaskInputRequired))

	var (
		res      workflow.InputRequiredStep
		snapshot []byte
	)
	if err := row.Scan(&res.WorkflowID, &res.StepID, &res.StepRunID, &snapshot); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workflow.InputRequiredStep{}, journal.ErrNoInputRequired
		}
		return workflow.InputRequiredStep{}, fmt.Errorf("postgres: find input-required step for run %s: %w", workflowRunID, err)
	}
	if err := json.Unmarshal(snapshot, &res.WorkflowState); err != nil {
		return workflow.InputRequiredStep{}, fmt.Errorf("postgres: decode workflow state for run %s: %w", workflowRunID, err)
	}
	return res, nil
}

// ListByRun implements journal.Store.
func (s *Store) ListByRun(ctx context.Context, workflowRunID string) ([]workflow.StepRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT step_run_id, workflow_run_id, workflow_id, step_id, started_at,
		       completed_at, status, workflow_state_snapshot, success_response, error_response
		FROM workflow_run
		WHERE workflow_run_id = $1
		ORDER BY started_at ASC`, workflowRunID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list step runs for %s: %w", workflowRunID, err)
	}
	defer rows.Close()

	var out []workflow.StepRun
	for rows.Next() {
		var (
			run              workflow.StepRun
			status           string
			snapshot         []byte
			success, failure []byte
		)
		if err := rows.Scan(&run.StepRunID, &run.WorkflowRunID, &run.WorkflowID, &run.StepID,
			&run.StartedAt, &run.CompletedAt, &status, &snapshot, &success, &failure); err != nil {
			return nil, fmt.Errorf("postgres: scan step run row: %w", err)
		}
		run.Status = workflow.TaskState(status)
		if err := json.Unmarshal(snapshot, &run.WorkflowStateSnapshot); err != nil {
			return nil, fmt.Errorf("postgres: decode snapshot for step run %s: %w", run.StepRunID, err)
		}
		if len(success) > 0 {
			_ = json.Unmarshal(success, &run.SuccessResponse)
		}
		if len(failure) > 0 {
			_ = json.Unmarshal(failure, &run.ErrorResponse)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate step run rows: %w", err)
	}
	return out, nil
}

func marshalOrNull(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
