package handlers

import (
	"context"
	"fmt"

	"github.com/cubeassist/workflow-agent/runtime/workflow"
	"github.com/cubeassist/workflow-agent/runtime/workflow/jsonpath"
)

// successMappingKey is the reserved scratchpad sub-key SuccessMapping writes
// into, preserved from the distilled workflow_state.inputs slip (see
// DESIGN.md Open Question i).
const successMappingKey = "success_mapping"

// handleSystemAction implements the SYSTEM_ACTION step: resolve declared
// inputs against run state, call the named tool, and branch on whether the
// reply's error mapping reports failure.
func handleSystemAction(ctx context.Context, deps Deps, step workflow.StepDefinition, state *workflow.RunState) (Result, error) {
	sa := step.SystemAction
	if sa == nil {
		return Result{}, fmt.Errorf("handlers: step %s is SYSTEM_ACTION with no action payload", step.StepID)
	}
	if deps.Tools == nil {
		return Result{}, fmt.Errorf("handlers: step %s: no tool client configured", step.StepID)
	}

	// source is an ephemeral copy of scratchpad augmented with token/user_id
	// for this resolution only: scope() allocates a fresh map each call, so
	// these two keys never reach the persisted state.Scratchpad.
	source := scope(state)
	source["token"] = state.Auth.Token
	source["user_id"] = state.Auth.UserID

	resolved, err := jsonpath.Resolve(sa.Inputs, source)
	if err != nil {
		return Result{}, fmt.Errorf("handlers: resolve inputs for step %s: %w", step.StepID, err)
	}
	args, _ := resolved.(map[string]any)

	reply, err := deps.Tools.Call(ctx, sa.Name, args)
	if err != nil {
		msg, rerr := deps.Eval.Render(step.FailureMessage, source)
		if rerr != nil {
			msg = step.FailureMessage
		}
		return Result{
			TaskState: workflow.TaskFailed,
			Output:    map[string]any{"message": msg, "error": err.Error()},
		}, nil
	}

	if len(sa.ErrorMapping) > 0 {
		errInfo, err := jsonpath.Resolve(sa.ErrorMapping, reply)
		if err != nil {
			return Result{}, fmt.Errorf("handlers: resolve error mapping for step %s: %w", step.StepID, err)
		}
		if info, ok := errInfo.(map[string]any); ok {
			if status, _ := info["error_status"].(string); status == "error" {
				msg, rerr := deps.Eval.Render(step.FailureMessage, source)
				if rerr != nil {
					msg = step.FailureMessage
				}
				return Result{
					TaskState: workflow.TaskFailed,
					Output:    map[string]any{"message": msg, "tool_reply": reply},
				}, nil
			}
		}
	}

	if state.Scratchpad == nil {
		state.Scratchpad = map[string]any{}
	}
	if len(sa.SuccessMapping) > 0 {
		sub, _ := state.Scratchpad[successMappingKey].(map[string]any)
		sub, err = jsonpath.ApplyMapping(sub, sa.SuccessMapping, reply)
		if err != nil {
			return Result{}, fmt.Errorf("handlers: apply success mapping for step %s: %w", step.StepID, err)
		}
		state.Scratchpad[successMappingKey] = sub
	}
	if len(sa.OutputMapping) > 0 {
		state.Scratchpad, err = jsonpath.ApplyMapping(state.Scratchpad, sa.OutputMapping, reply)
		if err != nil {
			return Result{}, fmt.Errorf("handlers: apply output mapping for step %s: %w", step.StepID, err)
		}
	}

	return Result{TaskState: workflow.TaskWorking}, nil
}
