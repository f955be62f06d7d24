// Package journal persists one row per step execution within a workflow
// run, and answers the "is this run waiting on me" resume query.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cubeassist/workflow-agent/runtime/workflow"
)

// ErrNoInputRequired is returned by FindInputRequired when the run is not
// currently paused awaiting a reply.
var ErrNoInputRequired = errors.New("journal: no step awaiting input for run")

// Store persists StepRun rows. Implementations must treat Upsert as the
// single write path for a step's lifecycle: a step run moves from "working"
// to exactly one terminal or paused state, never back.
type Store interface {
	// Upsert inserts a new step run or updates an existing one keyed by
	// StepRunID.
	Upsert(ctx context.Context, run workflow.StepRun) error
	// FindInputRequired returns the most recent step run of workflowRunID
	// whose status is input-required. Returns ErrNoInputRequired if none.
	FindInputRequired(ctx context.Context, workflowRunID string) (workflow.InputRequiredStep, error)
	// ListByRun returns every step run recorded for workflowRunID, oldest first.
	ListByRun(ctx context.Context, workflowRunID string) ([]workflow.StepRun, error)
}

// Journal wraps a Store with id generation and the working -> terminal
// transition helpers used by the graph runtime.
type Journal struct {
	store Store
}

// New wraps store.
func New(store Store) *Journal {
	return &Journal{store: store}
}

// Begin records a new step run entering the "working" state and returns its
// generated id.
func (j *Journal) Begin(ctx context.Context, workflowRunID, workflowID, stepID string, snapshot map[string]any) (string, error) {
	stepRunID := uuid.NewString()
	run := workflow.StepRun{
		StepRunID:             stepRunID,
		WorkflowRunID:         workflowRunID,
		WorkflowID:            workflowID,
		StepID:                stepID,
		StartedAt:             now(),
		Status:                workflow.TaskWorking,
		WorkflowStateSnapshot: snapshot,
	}
	if err := j.store.Upsert(ctx, run); err != nil {
		return "", fmt.Errorf("journal: begin step run: %w", err)
	}
	return stepRunID, nil
}

// Complete transitions stepRunID to a terminal or paused status, attaching
// the success/error payload recorded for it.
func (j *Journal) Complete(ctx context.Context, run workflow.StepRun) error {
	if run.CompletedAt == nil && run.Status != workflow.TaskInputRequired {
		t := now()
		run.CompletedAt = &t
	}
	if err := j.store.Upsert(ctx, run); err != nil {
		return fmt.Errorf("journal: complete step run %s: %w", run.StepRunID, err)
	}
	return nil
}

// FindInputRequired answers the resume-probe query: is workflowRunID
// currently paused, and if so at which step and with what state snapshot.
func (j *Journal) FindInputRequired(ctx context.Context, workflowRunID string) (workflow.InputRequiredStep, error) {
	step, err := j.store.FindInputRequired(ctx, workflowRunID)
	if err != nil {
		return workflow.InputRequiredStep{}, err
	}
	return step, nil
}

// History returns the full step-run trail for a run, oldest first.
func (j *Journal) History(ctx context.Context, workflowRunID string) ([]workflow.StepRun, error) {
	return j.store.ListByRun(ctx, workflowRunID)
}

// now is a seam so tests can stub wall-clock time; production always uses
// time.Now.
var now = time.Now
