package catalogue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubeassist/workflow-agent/runtime/workflow"
)

type fakeStore struct {
	getCalls  int
	listCalls int
	defs      map[string]workflow.Definition
}

func (f *fakeStore) GetWorkflow(_ context.Context, id string) (workflow.Definition, error) {
	f.getCalls++
	def, ok := f.defs[id]
	if !ok {
		return workflow.Definition{}, ErrNotFound
	}
	return def, nil
}

func (f *fakeStore) ListWorkflows(_ context.Context, roles []string) ([]workflow.Definition, error) {
	f.listCalls++
	var out []workflow.Definition
	for _, def := range f.defs {
		out = append(out, def)
	}
	return out, nil
}

func TestGetStepsByWorkflowIDCachesAcrossCalls(t *testing.T) {
	store := &fakeStore{defs: map[string]workflow.Definition{
		"wf-1": {WorkflowID: "wf-1", Roles: []string{"agent"}},
	}}
	cat, err := New(store)
	require.NoError(t, err)

	_, err = cat.GetStepsByWorkflowID(context.Background(), "wf-1", []string{"agent"})
	require.NoError(t, err)
	_, err = cat.GetStepsByWorkflowID(context.Background(), "wf-1", []string{"agent"})
	require.NoError(t, err)

	require.Equal(t, 1, store.getCalls, "expected the second lookup to hit cache")
}

func TestGetStepsByWorkflowIDForbidden(t *testing.T) {
	store := &fakeStore{defs: map[string]workflow.Definition{
		"wf-1": {WorkflowID: "wf-1", Roles: []string{"admin"}},
	}}
	cat, err := New(store)
	require.NoError(t, err)

	_, err = cat.GetStepsByWorkflowID(context.Background(), "wf-1", []string{"agent"})
	require.ErrorIs(t, err, ErrForbidden)
}

func TestGetAllWorkflowsCachesByRoleTupleRegardlessOfOrder(t *testing.T) {
	store := &fakeStore{defs: map[string]workflow.Definition{
		"wf-1": {WorkflowID: "wf-1"},
	}}
	cat, err := New(store)
	require.NoError(t, err)

	_, err = cat.GetAllWorkflows(context.Background(), []string{"agent", "admin"})
	require.NoError(t, err)
	_, err = cat.GetAllWorkflows(context.Background(), []string{"admin", "agent"})
	require.NoError(t, err)

	require.Equal(t, 1, store.listCalls, "expected role order to not bust the cache")
}
