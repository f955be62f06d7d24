package handlers

import (
	"fmt"
	"regexp"

	"github.com/cubeassist/workflow-agent/runtime/workflow"
)

// handleUserInput implements the USER_INPUT step: prompt the caller when no
// reply has been ingested yet, or ingest the reply, validate it, and route
// via orchestration rules when one is present.
func handleUserInput(deps Deps, step workflow.StepDefinition, state *workflow.RunState) (Result, error) {
	ui := step.UserInteraction
	if ui == nil {
		return Result{}, fmt.Errorf("handlers: step %s is USER_INPUT with no interaction payload", step.StepID)
	}

	if isExitKeyword(state.Inputs.Text, state.Identity.ExitKeywords) {
		msg, err := deps.Eval.Render(step.FailureMessage, scope(state))
		if err != nil {
			msg = step.FailureMessage
		}
		return Result{
			TaskState: workflow.TaskCanceled,
			Output:    map[string]any{"message": msg},
		}, nil
	}

	if !hasReply(state, ui) {
		rendered, err := deps.Eval.Render(ui.UserMessage, scope(state))
		if err != nil {
			return Result{}, fmt.Errorf("handlers: render prompt for step %s: %w", step.StepID, err)
		}
		return Result{
			TaskState: workflow.TaskInputRequired,
			Output:    map[string]any{"message": rendered},
		}, nil
	}

	for _, key := range ui.ExpectedDataKey {
		if val, ok := state.Inputs.Data[key]; ok {
			if state.Scratchpad == nil {
				state.Scratchpad = map[string]any{}
			}
			state.Scratchpad[key] = val
		}
	}

	if failState, msg, failed := runValidation(ui.ValidationRules, state); failed {
		return Result{
			TaskState: failState,
			Output:    msg,
		}, nil
	}

	s := scope(state)
	for _, rule := range ui.OrchestrationRules {
		// A rule whose condition references a variable absent from scope is
		// skipped rather than evaluated.
		missing := false
		for _, name := range deps.Eval.FreeVars(rule.Condition) {
			if _, present := s[name]; !present {
				missing = true
				break
			}
		}
		if missing {
			continue
		}
		ok, err := deps.Eval.EvalBool(rule.Condition, s)
		if err != nil {
			return Result{}, fmt.Errorf("handlers: orchestration rule for step %s: %w", step.StepID, err)
		}
		if ok {
			nullRuleVariables(deps, rule, state)
			return Result{
				TaskState:  workflow.TaskWorking,
				NextStepID: rule.GoToStep,
			}, nil
		}
	}

	return Result{TaskState: workflow.TaskWorking}, nil
}

// nullRuleVariables clears every variable the winning rule's condition
// referenced from both Scratchpad and Inputs.Data, so a stale value can't
// accidentally satisfy the same rule again on a later turn.
func nullRuleVariables(deps Deps, rule workflow.OrchestrationRule, state *workflow.RunState) {
	for _, name := range deps.Eval.FreeVars(rule.Condition) {
		if _, ok := state.Scratchpad[name]; ok {
			state.Scratchpad[name] = nil
		}
		if _, ok := state.Inputs.Data[name]; ok {
			state.Inputs.Data[name] = nil
		}
	}
}

// hasReply reports whether the current turn supplied the data this step is
// waiting on, distinguishing the first (prompting) visit to a USER_INPUT
// step from a resume carrying the caller's answer.
func hasReply(state *workflow.RunState, ui *workflow.UserInteraction) bool {
	if len(ui.ExpectedDataKey) == 0 {
		return state.Inputs.Text != ""
	}
	for _, key := range ui.ExpectedDataKey {
		if _, ok := state.Inputs.Data[key]; ok {
			return true
		}
	}
	return false
}

func runValidation(rules []workflow.ValidationRule, state *workflow.RunState) (workflow.TaskState, map[string]any, bool) {
	for _, rule := range rules {
		val, ok := state.Scratchpad[rule.FieldToValidate]
		if !ok {
			continue
		}
		str, _ := val.(string)
		var valid bool
		switch rule.RuleType {
		case "present_in_list":
			valid = true // list membership is resolved by the caller of this
			// package against a named list; absent a list provider this rule
			// type is a no-op pass, matching "fail open on unknown data".
		case "regex":
			valid = matchesRegex(rule.Regex, str)
		default:
			valid = true
		}
		if !valid {
			return rule.ResultTaskState, rule.ValidationMessage, true
		}
	}
	return "", nil, false
}

func matchesRegex(pattern, value string) bool {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(value)
}
