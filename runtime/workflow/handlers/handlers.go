// Package handlers implements the three step-type handlers the graph
// runtime dispatches to: USER_INPUT, SYSTEM_ACTION, and FINAL_RESPONSE.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cubeassist/workflow-agent/runtime/workflow"
	"github.com/cubeassist/workflow-agent/runtime/workflow/toolclient"
)

// ErrUnknownStepType is returned by Dispatch for a step whose Type value is
// not one of the three known variants.
var ErrUnknownStepType = errors.New("handlers: unknown step type")

// Evaluator is the subset of template.Evaluator the handlers depend on.
type Evaluator interface {
	Render(tmpl string, scope map[string]any) (string, error)
	FreeVars(tmpl string) []string
	EvalBool(condition string, scope map[string]any) (bool, error)
}

// Deps bundles the collaborators every handler needs. Eval is always
// required; a nil Tools is valid for workflows that never reach a
// SYSTEM_ACTION step.
type Deps struct {
	Eval  Evaluator
	Tools toolclient.Caller
}

// Result is the outcome of executing a single step.
type Result struct {
	// TaskState is the resulting run status.
	TaskState workflow.TaskState
	// NextStepID overrides the step's declared NextStepID; it is set from
	// the go-to-step of a matching orchestration rule. Empty means "use the
	// step's own routing".
	NextStepID string
	// Output is this step's visible output. The graph returns the Output of
	// the last step it ran as the turn's output; earlier steps' Output is not
	// merged into it.
	Output map[string]any
	// EventLogLine, if non-empty, is appended to the run's event log.
	EventLogLine string
}

// Dispatch routes to the handler for step.Type.
func Dispatch(ctx context.Context, deps Deps, step workflow.StepDefinition, state *workflow.RunState) (Result, error) {
	start := time.Now()
	var (
		res Result
		err error
	)
	switch step.Type {
	case workflow.StepUserInput:
		res, err = handleUserInput(deps, step, state)
	case workflow.StepSystemAction:
		res, err = handleSystemAction(ctx, deps, step, state)
	case workflow.StepFinalResponse:
		res, err = handleFinalResponse(deps, step, state)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownStepType, step.Type)
	}
	if err != nil {
		return res, err
	}
	res.EventLogLine = fmt.Sprintf("%s for step %s execution time: %s", step.Type, step.StepID, time.Since(start))
	return res, nil
}

// scope builds the evaluation scope for templates and conditions: the
// run's accumulated scratchpad plus the current turn's ingested data.
func scope(state *workflow.RunState) map[string]any {
	out := make(map[string]any, len(state.Scratchpad)+len(state.Inputs.Data)+1)
	for k, v := range state.Scratchpad {
		out[k] = v
	}
	for k, v := range state.Inputs.Data {
		out[k] = v
	}
	out["user_message"] = state.Inputs.Text
	return out
}

func isExitKeyword(text string, keywords []string) bool {
	trimmed := strings.TrimSpace(strings.ToLower(text))
	for _, kw := range keywords {
		if trimmed == strings.ToLower(strings.TrimSpace(kw)) {
			return true
		}
	}
	return false
}
