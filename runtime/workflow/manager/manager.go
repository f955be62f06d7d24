// Package manager is the entry point for a single inbound turn: it resolves
// caller identity, decides whether the turn starts a new run or resumes a
// paused one, assembles run state, drives the graph to its next suspension
// point, and projects the outcome for the request adaptor.
package manager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cubeassist/workflow-agent/runtime/workflow"
	"github.com/cubeassist/workflow-agent/runtime/workflow/catalogue"
	"github.com/cubeassist/workflow-agent/runtime/workflow/graph"
	"github.com/cubeassist/workflow-agent/runtime/workflow/handlers"
	"github.com/cubeassist/workflow-agent/runtime/workflow/journal"
)

// identityBudget bounds the identity-resolution tool call, mirroring the
// original implementation's 100-second ceiling on the whole turn's setup.
const identityBudget = 100 * time.Second

// ErrUnauthenticated is returned when identity resolution cannot establish
// a caller identity for the supplied token.
var ErrUnauthenticated = errors.New("manager: could not resolve caller identity")

// IdentityResolver looks up the caller behind an opaque bearer token.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, token string) (userID string, roles []string, err error)
}

// Request is one inbound turn.
type Request struct {
	Token         string
	WorkflowID    string // set to start a new run; empty when resuming
	WorkflowRunID string // caller-supplied correlation id
	Text          string
	Data          map[string]any
}

// Response is the projection of a turn's outcome for the request adaptor.
// Status mirrors TaskState as the wire-level canonical status string; the
// reply carries both under separate keys, per the outbound reply shape.
type Response struct {
	WorkflowRunID string
	WorkflowID    string
	WorkflowName  string
	TaskState     workflow.TaskState
	Status        string
	Output        map[string]any
	EventLog      []string
}

// Manager wires identity resolution, the catalogue, the journal, and the
// graph runtime together to serve one turn at a time.
type Manager struct {
	identity  IdentityResolver
	catalogue *catalogue.Catalogue
	journal   *journal.Journal
	deps      handlers.Deps
}

// New builds a Manager from its collaborators.
func New(identity IdentityResolver, cat *catalogue.Catalogue, j *journal.Journal, deps handlers.Deps) *Manager {
	return &Manager{identity: identity, catalogue: cat, journal: j, deps: deps}
}

// Handle serves one inbound turn end to end.
func (m *Manager) Handle(ctx context.Context, req Request) (Response, error) {
	idCtx, cancel := context.WithTimeout(ctx, identityBudget)
	userID, roles, err := m.identity.ResolveIdentity(idCtx, req.Token)
	cancel()
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	pending, resumeErr := m.journal.FindInputRequired(ctx, req.WorkflowRunID)
	isResume := resumeErr == nil

	var (
		def       workflow.Definition
		startStep string
		scratch   map[string]any
	)
	if isResume {
		def, err = m.catalogue.GetStepsByWorkflowID(ctx, pending.WorkflowID, roles)
		if err != nil {
			return Response{}, hideForbidden(err)
		}
		startStep = pending.StepID
		scratch = pending.WorkflowState
	} else {
		if !errors.Is(resumeErr, journal.ErrNoInputRequired) {
			return Response{}, fmt.Errorf("manager: resume probe: %w", resumeErr)
		}
		if req.WorkflowID == "" {
			return Response{}, errors.New("manager: new run requires a workflow id")
		}
		def, err = m.catalogue.GetStepsByWorkflowID(ctx, req.WorkflowID, roles)
		if err != nil {
			return Response{}, hideForbidden(err)
		}
		if len(def.Steps) == 0 {
			return Response{}, fmt.Errorf("manager: workflow %s has no steps", def.WorkflowID)
		}
		startStep, err = startStepID(def.Steps)
		if err != nil {
			return Response{}, err
		}
		scratch = map[string]any{}
	}

	runID := req.WorkflowRunID
	if runID == "" {
		runID = uuid.NewString()
	}

	state := &workflow.RunState{
		Identity: workflow.Identity{
			WorkflowID:    def.WorkflowID,
			WorkflowRunID: runID,
			WorkflowName:  def.Name,
			ExitKeywords:  def.ExitKeywords,
		},
		Scratchpad: scratch,
		Inputs:     workflow.Inputs{Text: req.Text, Data: req.Data},
		Auth:       workflow.Auth{Token: req.Token, UserID: userID, UserRoles: roles},
		Status:     workflow.Status{IsNewConversation: !isResume},
	}

	g := graph.New(m.deps, m.journal, def.Steps)
	outcome, err := g.Run(ctx, state, startStep)
	if err != nil {
		return Response{}, err
	}

	return Response{
		WorkflowRunID: runID,
		WorkflowID:    def.WorkflowID,
		WorkflowName:  def.Name,
		TaskState:     outcome.TaskState,
		Status:        string(outcome.TaskState),
		Output:        outcome.Output,
		EventLog:      state.EventLog,
	}, nil
}

// hideForbidden collapses a catalogue authorization failure into the same
// not-found sentinel a missing workflow would produce. A caller must not be
// able to tell "exists but you lack the role" from "doesn't exist" by the
// error text it gets back.
func hideForbidden(err error) error {
	if errors.Is(err, catalogue.ErrForbidden) {
		return catalogue.ErrNotFound
	}
	return err
}

// startStepID returns the unique step id that is never referenced as any
// step's next-step-id: the graph's implicit entry point. Step order in the
// definition's Steps list carries no routing meaning, so this cannot be
// taken as def.Steps[0].
func startStepID(steps []workflow.StepDefinition) (string, error) {
	referenced := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.NextStepID != "" {
			referenced[s.NextStepID] = true
		}
	}
	for _, s := range steps {
		if !referenced[s.StepID] {
			return s.StepID, nil
		}
	}
	return "", errors.New("manager: workflow has no unreferenced start step")
}
