// Package postgres implements catalogue.Store backed by PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor injection;
// the caller creates and closes the pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cubeassist/workflow-agent/runtime/workflow"
	"github.com/cubeassist/workflow-agent/runtime/workflow/catalogue"
)

// Store implements catalogue.Store against the workflows/workflow_steps
// tables.
type Store struct {
	db *pgxpool.Pool
}

var _ catalogue.Store = (*Store)(nil)

// New wraps an existing pool. The caller owns the pool's lifecycle.
func New(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// GetWorkflow implements catalogue.Store.
func (s *Store) GetWorkflow(ctx context.Context, workflowID string) (workflow.Definition, error) {
	row := s.db.QueryRow(ctx, `
		SELECT workflow_id, name, exit_keywords, roles
		FROM workflows
		WHERE workflow_id = $1`, workflowID)

	var def workflow.Definition
	if err := row.Scan(&def.WorkflowID, &def.Name, &def.ExitKeywords, &def.Roles); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return workflow.Definition{}, catalogue.ErrNotFound
		}
		return workflow.Definition{}, fmt.Errorf("postgres: load workflow %s: %w", workflowID, err)
	}

	steps, err := s.loadSteps(ctx, workflowID)
	if err != nil {
		return workflow.Definition{}, err
	}
	def.Steps = steps
	return def, nil
}

// ListWorkflows implements catalogue.Store.
func (s *Store) ListWorkflows(ctx context.Context, roles []string) ([]workflow.Definition, error) {
	rows, err := s.db.Query(ctx, `
		SELECT workflow_id, name, exit_keywords, roles
		FROM workflows
		WHERE roles && $1 OR cardinality(roles) = 0`, roles)
	if err != nil {
		return nil, fmt.Errorf("postgres: list workflows: %w", err)
	}
	defer rows.Close()

	var defs []workflow.Definition
	for rows.Next() {
		var def workflow.Definition
		if err := rows.Scan(&def.WorkflowID, &def.Name, &def.ExitKeywords, &def.Roles); err != nil {
			return nil, fmt.Errorf("postgres: scan workflow row: %w", err)
		}
		steps, err := s.loadSteps(ctx, def.WorkflowID)
		if err != nil {
			return nil, err
		}
		def.Steps = steps
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate workflow rows: %w", err)
	}
	return defs, nil
}

type stepRow struct {
	StepID         string
	Type           string
	NextStepID     *string
	FailureMessage *string
	Payload        []byte
}

func (s *Store) loadSteps(ctx context.Context, workflowID string) ([]workflow.StepDefinition, error) {
	rows, err := s.db.Query(ctx, `
		SELECT step_id, step_type, next_step_id, failure_message, payload
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY position`, workflowID)
	if err != nil {
		return nil, fmt.Errorf("postgres: load steps for %s: %w", workflowID, err)
	}
	defer rows.Close()

	var steps []workflow.StepDefinition
	for rows.Next() {
		var r stepRow
		if err := rows.Scan(&r.StepID, &r.Type, &r.NextStepID, &r.FailureMessage, &r.Payload); err != nil {
			return nil, fmt.Errorf("postgres: scan step row: %w", err)
		}
		step, err := decodeStep(r)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate step rows: %w", err)
	}
	return steps, nil
}

func decodeStep(r stepRow) (workflow.StepDefinition, error) {
	step := workflow.StepDefinition{
		StepID: r.StepID,
		Type:   workflow.StepType(r.Type),
	}
	if r.NextStepID != nil {
		step.NextStepID = *r.NextStepID
	}
	if r.FailureMessage != nil {
		step.FailureMessage = *r.FailureMessage
	}
	switch step.Type {
	case workflow.StepUserInput, workflow.StepFinalResponse:
		var ui workflow.UserInteraction
		if err := json.Unmarshal(r.Payload, &ui); err != nil {
			return workflow.StepDefinition{}, fmt.Errorf("postgres: decode user interaction for step %s: %w", r.StepID, err)
		}
		step.UserInteraction = &ui
	case workflow.StepSystemAction:
		var sa workflow.SystemActionDetails
		if err := json.Unmarshal(r.Payload, &sa); err != nil {
			return workflow.StepDefinition{}, fmt.Errorf("postgres: decode system action for step %s: %w", r.StepID, err)
		}
		step.SystemAction = &sa
	}
	return step, nil
}
