package handlers

import (
	"fmt"

	"github.com/cubeassist/workflow-agent/runtime/workflow"
)

// handleFinalResponse implements the FINAL_RESPONSE step: render the
// message and mark the step completed.
func handleFinalResponse(deps Deps, step workflow.StepDefinition, state *workflow.RunState) (Result, error) {
	ui := step.UserInteraction
	if ui == nil {
		return Result{}, fmt.Errorf("handlers: step %s is FINAL_RESPONSE with no message payload", step.StepID)
	}
	rendered, err := deps.Eval.Render(ui.UserMessage, scope(state))
	if err != nil {
		return Result{}, fmt.Errorf("handlers: render final response for step %s: %w", step.StepID, err)
	}
	return Result{
		TaskState: workflow.TaskCompleted,
		Output:    map[string]any{"message": rendered},
	}, nil
}
