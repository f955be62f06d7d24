// Package workflow defines the data model for the workflow execution engine:
// workflow and step definitions loaded from the catalogue, and the run state
// threaded through graph execution.
package workflow

import "time"

// StepType discriminates the step-definition variants.
type StepType string

const (
	// StepUserInput prompts the caller and, on resume, ingests the reply.
	StepUserInput StepType = "USER_INPUT"
	// StepSystemAction invokes a named tool and maps its reply into state.
	StepSystemAction StepType = "SYSTEM_ACTION"
	// StepFinalResponse renders a message and completes the step; the run
	// ends there unless the step declares a NextStepID.
	StepFinalResponse StepType = "FINAL_RESPONSE"
)

// TaskState is the wire-level execution status of a run or step, per spec §6.
type TaskState string

const (
	TaskWorking        TaskState = "working"
	TaskInputRequired  TaskState = "input-required"
	TaskCompleted      TaskState = "completed"
	TaskFailed         TaskState = "failed"
	TaskCanceled       TaskState = "canceled"
)

type (
	// Definition is a read-only workflow definition as loaded from the catalogue.
	Definition struct {
		// WorkflowID is the stable identifier for this workflow.
		WorkflowID string
		// Name is the human label shown to callers.
		Name string
		// ExitKeywords terminates any running conversation when received as user
		// text, case-insensitively, at a USER_INPUT step.
		ExitKeywords []string
		// Roles lists the roles authorised to read this workflow.
		Roles []string
		// Steps is the ordered list of step definitions.
		Steps []StepDefinition
	}

	// StepDefinition is one node of the workflow graph, discriminated by Type.
	StepDefinition struct {
		StepID          string
		Type            StepType
		NextStepID      string // empty means no declared successor
		FailureMessage  string
		UserInteraction *UserInteraction
		SystemAction    *SystemActionDetails
	}

	// UserInteraction carries the USER_INPUT (and FINAL_RESPONSE, message-only)
	// payload of a step.
	UserInteraction struct {
		// UserMessage is a template string rendered as the prompt (or the final
		// response body for FINAL_RESPONSE steps).
		UserMessage string `json:"user_message"`
		// ExpectedDataKey is the ordered list of keys expected in the user reply.
		ExpectedDataKey []string `json:"expected_data_key"`
		// OrchestrationRules is evaluated in order; the first truthy condition wins.
		OrchestrationRules []OrchestrationRule `json:"orchestration_rules"`
		// ValidationRules optionally validates ingested reply data before
		// orchestration rules run. Additive beyond spec.md; see SPEC_FULL.md.
		ValidationRules []ValidationRule `json:"validation_rules"`
	}

	// OrchestrationRule routes to GoToStep when Condition renders and evaluates truthy.
	OrchestrationRule struct {
		Condition string `json:"condition"`
		GoToStep  string `json:"go_to_step"`
	}

	// ValidationRule is an additive, optional check against ingested user data.
	ValidationRule struct {
		RuleType          string    `json:"rule_type"` // "present_in_list" | "regex"
		FieldToValidate   string    `json:"field_to_validate"`
		ListName          string    `json:"list_name"`
		Regex             string    `json:"regex"`
		ResultTaskState   TaskState `json:"result_task_state"`
		ValidationMessage map[string]any `json:"validation_message"`
	}

	// SystemActionDetails carries the SYSTEM_ACTION payload of a step.
	SystemActionDetails struct {
		// Name is the tool name invoked via the tool client.
		Name string `json:"name"`
		// Inputs is an arbitrary JSON tree whose string leaves may be JSON-path
		// references into workflow state.
		Inputs map[string]any `json:"inputs"`
		// ErrorMapping is resolved against the tool reply to produce
		// {error_status, error_message}.
		ErrorMapping map[string]any `json:"error_mapping"`
		// SuccessMapping is a legacy key->json-path map written into a reserved
		// scratchpad sub-key (see DESIGN.md Open Question i).
		SuccessMapping map[string]string `json:"success_mapping"`
		// OutputMapping is a key->json-path map written back into workflow state.
		OutputMapping map[string]string `json:"output_mapping"`
	}
)

type (
	// RunState is the mutable state threaded through graph execution, split
	// per §9's design note into identity / inputs / scratchpad / status / auth.
	// Routing between steps is not carried here: the graph resolves it turn by
	// turn from the handler's NextStepID override or the step's declared one,
	// so there is nothing left over to leak across a suspension.
	RunState struct {
		Identity   Identity
		Inputs     Inputs
		Scratchpad map[string]any
		Status     Status
		Auth       Auth
		EventLog   []string
	}

	// Identity carries the caller-supplied and server-generated run identity.
	Identity struct {
		WorkflowID       string
		WorkflowRunID    string
		WorkflowName     string
		ExitKeywords     []string
		CurrentStepRunID string
	}

	// Inputs holds the caller-supplied reply for the current turn.
	Inputs struct {
		Text string
		Data map[string]any
	}

	// Status carries turn-scoped metadata that isn't itself execution state.
	Status struct {
		IsNewConversation bool
	}

	// Auth carries identity resolved from the caller's token. The token itself
	// must never leak into Scratchpad outside the ephemeral assembly moment
	// inside SYSTEM_ACTION input resolution (§3 invariant).
	Auth struct {
		Token     string
		UserID    string
		UserRoles []string
	}
)

// StepRun is one persisted execution of one step within a run (§4.E).
type StepRun struct {
	StepRunID            string
	WorkflowRunID        string
	WorkflowID           string
	StepID               string
	StartedAt            time.Time
	CompletedAt          *time.Time
	Status               TaskState
	WorkflowStateSnapshot map[string]any
	SuccessResponse      map[string]any
	ErrorResponse        map[string]any
}

// InputRequiredStep projects the fields the manager needs to resume a run,
// per §4.E's find-input-required operation.
type InputRequiredStep struct {
	WorkflowID    string
	StepID        string
	StepRunID     string
	WorkflowState map[string]any
}
