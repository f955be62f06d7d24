package handlers

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubeassist/workflow-agent/runtime/workflow"
)

var stubFreeVarRE = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.]*)\s*\}\}`)

// stubEval renders templates via plain string return of the template itself
// (tests assert on structure, not on rendered text) and evaluates conditions
// by looking up a pre-seeded bool under the condition string as key.
type stubEval struct {
	conditions map[string]bool
}

func (s stubEval) Render(tmpl string, scope map[string]any) (string, error) {
	return tmpl, nil
}

func (s stubEval) FreeVars(tmpl string) []string {
	matches := stubFreeVarRE.FindAllStringSubmatch(tmpl, -1)
	var out []string
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func (s stubEval) EvalBool(condition string, scope map[string]any) (bool, error) {
	return s.conditions[condition], nil
}

type stubCaller struct {
	reply      map[string]any
	err        error
	capturedTo *map[string]any
}

func (c stubCaller) Call(_ context.Context, _ string, args map[string]any) (map[string]any, error) {
	if c.capturedTo != nil {
		*c.capturedTo = args
	}
	return c.reply, c.err
}

func baseState() *workflow.RunState {
	return &workflow.RunState{
		Identity:   workflow.Identity{ExitKeywords: []string{"quit", "cancel"}},
		Scratchpad: map[string]any{},
	}
}

func TestUserInputPromptsOnFirstVisit(t *testing.T) {
	step := workflow.StepDefinition{
		StepID: "ask-name",
		Type:   workflow.StepUserInput,
		UserInteraction: &workflow.UserInteraction{
			UserMessage:     "What is your name?",
			ExpectedDataKey: []string{"name"},
		},
	}
	res, err := handleUserInput(Deps{Eval: stubEval{}}, step, baseState())
	require.NoError(t, err)
	require.Equal(t, workflow.TaskInputRequired, res.TaskState)
	require.Equal(t, "What is your name?", res.Output["message"])
}

func TestUserInputExitKeywordDominates(t *testing.T) {
	step := workflow.StepDefinition{
		StepID:         "ask-name",
		Type:           workflow.StepUserInput,
		FailureMessage: "Cancelled.",
		UserInteraction: &workflow.UserInteraction{
			UserMessage:     "What is your name?",
			ExpectedDataKey: []string{"name"},
		},
	}
	state := baseState()
	state.Inputs.Text = "quit"
	res, err := handleUserInput(Deps{Eval: stubEval{}}, step, state)
	require.NoError(t, err)
	require.Equal(t, workflow.TaskCanceled, res.TaskState)
}

func TestUserInputResumeRoutesViaOrchestrationRule(t *testing.T) {
	condition := "{{ name }} == 'admin'"
	step := workflow.StepDefinition{
		StepID: "ask-name",
		Type:   workflow.StepUserInput,
		UserInteraction: &workflow.UserInteraction{
			UserMessage:     "What is your name?",
			ExpectedDataKey: []string{"name"},
			OrchestrationRules: []workflow.OrchestrationRule{
				{Condition: condition, GoToStep: "admin-step"},
			},
		},
	}
	state := baseState()
	state.Inputs.Data = map[string]any{"name": "admin"}
	res, err := handleUserInput(Deps{Eval: stubEval{conditions: map[string]bool{condition: true}}}, step, state)
	require.NoError(t, err)
	require.Equal(t, workflow.TaskWorking, res.TaskState)
	require.Equal(t, "admin-step", res.NextStepID)
	require.Nil(t, state.Scratchpad["name"])
	require.Nil(t, state.Inputs.Data["name"])
}

func TestSystemActionSuccessAppliesOutputMapping(t *testing.T) {
	step := workflow.StepDefinition{
		StepID: "lookup-order",
		Type:   workflow.StepSystemAction,
		SystemAction: &workflow.SystemActionDetails{
			Name:         "lookup_order",
			Inputs:       map[string]any{"order_id": "$.order_id"},
			OutputMapping: map[string]string{"status": "status"},
		},
	}
	state := baseState()
	state.Scratchpad["order_id"] = "o-1"
	deps := Deps{
		Eval:  stubEval{},
		Tools: stubCaller{reply: map[string]any{"status": "shipped"}},
	}
	res, err := handleSystemAction(context.Background(), deps, step, state)
	require.NoError(t, err)
	require.Equal(t, workflow.TaskWorking, res.TaskState)
	require.Equal(t, "shipped", state.Scratchpad["status"])
}

func TestSystemActionResolvesTokenAndUserIDWithoutPersisting(t *testing.T) {
	step := workflow.StepDefinition{
		StepID: "whoami",
		Type:   workflow.StepSystemAction,
		SystemAction: &workflow.SystemActionDetails{
			Name:   "whoami",
			Inputs: map[string]any{"auth_token": "$.token", "caller": "$.user_id"},
		},
	}
	state := baseState()
	state.Auth = workflow.Auth{Token: "secret-token", UserID: "u-1"}
	var captured map[string]any
	deps := Deps{
		Eval:  stubEval{},
		Tools: stubCaller{reply: map[string]any{}, capturedTo: &captured},
	}

	res, err := handleSystemAction(context.Background(), deps, step, state)
	require.NoError(t, err)
	require.Equal(t, workflow.TaskWorking, res.TaskState)
	require.Equal(t, "secret-token", captured["auth_token"])
	require.Equal(t, "u-1", captured["caller"])
	require.NotContains(t, state.Scratchpad, "token")
	require.NotContains(t, state.Scratchpad, "user_id")
}

func TestSystemActionErrorMappingFails(t *testing.T) {
	step := workflow.StepDefinition{
		StepID:         "lookup-order",
		Type:           workflow.StepSystemAction,
		FailureMessage: "lookup failed",
		SystemAction: &workflow.SystemActionDetails{
			Name:         "lookup_order",
			Inputs:       map[string]any{},
			ErrorMapping: map[string]any{"error_status": "$.failed"},
		},
	}
	deps := Deps{
		Eval:  stubEval{},
		Tools: stubCaller{reply: map[string]any{"failed": "error"}},
	}
	res, err := handleSystemAction(context.Background(), deps, step, baseState())
	require.NoError(t, err)
	require.Equal(t, workflow.TaskFailed, res.TaskState)
}

func TestSystemActionErrorMappingNonErrorStringPasses(t *testing.T) {
	step := workflow.StepDefinition{
		StepID: "lookup-order",
		Type:   workflow.StepSystemAction,
		SystemAction: &workflow.SystemActionDetails{
			Name:         "lookup_order",
			Inputs:       map[string]any{},
			ErrorMapping: map[string]any{"error_status": "$.failed"},
		},
	}
	deps := Deps{
		Eval:  stubEval{},
		Tools: stubCaller{reply: map[string]any{"failed": "ok"}},
	}
	res, err := handleSystemAction(context.Background(), deps, step, baseState())
	require.NoError(t, err)
	require.Equal(t, workflow.TaskWorking, res.TaskState)
}

func TestFinalResponseCompletesRun(t *testing.T) {
	step := workflow.StepDefinition{
		StepID: "done",
		Type:   workflow.StepFinalResponse,
		UserInteraction: &workflow.UserInteraction{
			UserMessage: "All set!",
		},
	}
	res, err := handleFinalResponse(Deps{Eval: stubEval{}}, step, baseState())
	require.NoError(t, err)
	require.Equal(t, workflow.TaskCompleted, res.TaskState)
	require.Equal(t, "All set!", res.Output["message"])
}
