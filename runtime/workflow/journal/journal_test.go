package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubeassist/workflow-agent/runtime/workflow"
)

type fakeStore struct {
	byID map[string]workflow.StepRun
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: map[string]workflow.StepRun{}}
}

func (f *fakeStore) Upsert(_ context.Context, run workflow.StepRun) error {
	f.byID[run.StepRunID] = run
	return nil
}

func (f *fakeStore) FindInputRequired(_ context.Context, workflowRunID string) (workflow.InputRequiredStep, error) {
	for _, run := range f.byID {
		if run.WorkflowRunID == workflowRunID && run.Status == workflow.TaskInputRequired {
			return workflow.InputRequiredStep{
				WorkflowID:    run.WorkflowID,
				StepID:        run.StepID,
				StepRunID:     run.StepRunID,
				WorkflowState: run.WorkflowStateSnapshot,
			}, nil
		}
	}
	return workflow.InputRequiredStep{}, ErrNoInputRequired
}

func (f *fakeStore) ListByRun(_ context.Context, workflowRunID string) ([]workflow.StepRun, error) {
	var out []workflow.StepRun
	for _, run := range f.byID {
		if run.WorkflowRunID == workflowRunID {
			out = append(out, run)
		}
	}
	return out, nil
}

func TestBeginThenCompleteTransitionsStatus(t *testing.T) {
	store := newFakeStore()
	j := New(store)
	ctx := context.Background()

	stepRunID, err := j.Begin(ctx, "run-1", "wf-1", "step-1", map[string]any{"k": "v"})
	require.NoError(t, err)
	require.NotEmpty(t, stepRunID)
	require.Equal(t, workflow.TaskWorking, store.byID[stepRunID].Status)

	err = j.Complete(ctx, workflow.StepRun{
		StepRunID:     stepRunID,
		WorkflowRunID: "run-1",
		WorkflowID:    "wf-1",
		StepID:        "step-1",
		Status:        workflow.TaskInputRequired,
	})
	require.NoError(t, err)
	require.Equal(t, workflow.TaskInputRequired, store.byID[stepRunID].Status)
}

func TestFindInputRequiredNotFound(t *testing.T) {
	j := New(newFakeStore())
	_, err := j.FindInputRequired(context.Background(), "no-such-run")
	require.ErrorIs(t, err, ErrNoInputRequired)
}

func TestFindInputRequiredReturnsPausedStep(t *testing.T) {
	store := newFakeStore()
	j := New(store)
	ctx := context.Background()

	stepRunID, err := j.Begin(ctx, "run-1", "wf-1", "step-2", nil)
	require.NoError(t, err)
	require.NoError(t, j.Complete(ctx, workflow.StepRun{
		StepRunID:             stepRunID,
		WorkflowRunID:         "run-1",
		WorkflowID:            "wf-1",
		StepID:                "step-2",
		Status:                workflow.TaskInputRequired,
		WorkflowStateSnapshot: map[string]any{"x": 1.0},
	}))

	pending, err := j.FindInputRequired(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, "step-2", pending.StepID)
	require.Equal(t, 1.0, pending.WorkflowState["x"])
}
