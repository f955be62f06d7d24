// Package graph executes a workflow's step list turn by turn: each call runs
// steps until a handler reports input-required, failed, or canceled, or a
// step finishes with no successor.
package graph

import (
	"context"
	"fmt"

	"github.com/cubeassist/workflow-agent/runtime/workflow"
	"github.com/cubeassist/workflow-agent/runtime/workflow/handlers"
	"github.com/cubeassist/workflow-agent/runtime/workflow/journal"
)

// Graph is a data-driven router over a fixed step list: next-step lookups
// are table lookups against the plan rather than per-node closures, so the
// same routing code serves every workflow definition.
type Graph struct {
	deps    handlers.Deps
	journal *journal.Journal
	steps   map[string]workflow.StepDefinition
}

// New builds a Graph over the given step list.
func New(deps handlers.Deps, j *journal.Journal, steps []workflow.StepDefinition) *Graph {
	index := make(map[string]workflow.StepDefinition, len(steps))
	for _, s := range steps {
		index[s.StepID] = s
	}
	return &Graph{deps: deps, journal: j, steps: index}
}

// Outcome is the result of running the graph to its next suspension point.
type Outcome struct {
	TaskState workflow.TaskState
	StepID    string
	Output    map[string]any
}

// Run executes steps starting at startStepID until the run suspends or
// ends: a step reports input-required, failed, or canceled, or a step
// finishes with no successor. A completed step that has a successor hands
// over to it. Reply data reaches only the first step, so a later USER_INPUT
// step in the same turn prompts and suspends with input-required.
func (g *Graph) Run(ctx context.Context, state *workflow.RunState, startStepID string) (Outcome, error) {
	currentID := startStepID
	for {
		step, ok := g.steps[currentID]
		if !ok {
			return Outcome{}, fmt.Errorf("graph: unknown step id %q", currentID)
		}

		snapshot := snapshotScratchpad(state)
		stepRunID, err := g.journal.Begin(ctx, state.Identity.WorkflowRunID, state.Identity.WorkflowID, step.StepID, snapshot)
		if err != nil {
			return Outcome{}, err
		}
		state.Identity.CurrentStepRunID = stepRunID

		res, err := handlers.Dispatch(ctx, g.deps, step, state)
		if err != nil {
			return Outcome{}, fmt.Errorf("graph: execute step %s: %w", step.StepID, err)
		}
		if res.EventLogLine != "" {
			state.EventLog = append(state.EventLog, res.EventLogLine)
		}

		completeRun := workflow.StepRun{
			StepRunID:             stepRunID,
			WorkflowRunID:         state.Identity.WorkflowRunID,
			WorkflowID:            state.Identity.WorkflowID,
			StepID:                step.StepID,
			Status:                persistedStatus(res.TaskState),
			WorkflowStateSnapshot: snapshotScratchpad(state),
			SuccessResponse:       successPayload(res),
			ErrorResponse:         errorPayload(res),
		}
		if err := g.journal.Complete(ctx, completeRun); err != nil {
			return Outcome{}, err
		}

		// Only the first step of a turn may have arrived here with reply
		// data attached; downstream steps in the same turn never re-ingest it.
		state.Inputs = workflow.Inputs{}

		next := nextStepID(step, res)
		switch res.TaskState {
		case workflow.TaskInputRequired, workflow.TaskFailed, workflow.TaskCanceled:
			return Outcome{TaskState: res.TaskState, StepID: step.StepID, Output: res.Output}, nil
		}
		if next == "" {
			return Outcome{TaskState: workflow.TaskCompleted, StepID: step.StepID, Output: res.Output}, nil
		}
		currentID = next
	}
}

// nextStepID resolves routing precedence: an explicit handler override (an
// orchestration rule's go-to-step) wins over the step's own declared
// successor.
func nextStepID(step workflow.StepDefinition, res handlers.Result) string {
	if res.NextStepID != "" {
		return res.NextStepID
	}
	return step.NextStepID
}

// persistedStatus maps a handler's internal task-state sentinel to the
// status recorded on the step-run row. TaskWorking only ever signals "the
// turn continues past this step" to the graph loop itself; every step-run
// row that reaches Complete has, by definition, finished, so it is recorded
// as completed rather than leaking the in-memory continuation sentinel into
// the audit trail.
func persistedStatus(taskState workflow.TaskState) workflow.TaskState {
	if taskState == workflow.TaskWorking {
		return workflow.TaskCompleted
	}
	return taskState
}

func snapshotScratchpad(state *workflow.RunState) map[string]any {
	out := make(map[string]any, len(state.Scratchpad))
	for k, v := range state.Scratchpad {
		out[k] = v
	}
	return out
}

func successPayload(res handlers.Result) map[string]any {
	if res.TaskState == workflow.TaskFailed || res.TaskState == workflow.TaskCanceled {
		return nil
	}
	return res.Output
}

func errorPayload(res handlers.Result) map[string]any {
	if res.TaskState != workflow.TaskFailed {
		return nil
	}
	return res.Output
}
