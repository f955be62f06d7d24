// Package a2a adapts inbound HTTP requests onto the workflow manager and
// projects its responses back onto the wire, tracking each in-flight turn
// as a cancellable task the way the original agent-to-agent server did.
package a2a

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/cubeassist/workflow-agent/internal/telemetry"
	"github.com/cubeassist/workflow-agent/runtime/workflow/manager"
)

// agentName identifies this service in outbound reply metadata, matching
// the client-info name the tool client advertises to the MCP server.
const agentName = "workflow-agent"

// ErrCancelUnsupported is returned for every inbound cancel request. A turn
// always completes or suspends before its HTTP response is written, so
// there is no running task left to cancel by the time a cancel could race it.
var ErrCancelUnsupported = errors.New("a2a: task cancellation is not supported")

type (
	// TaskStore tracks in-flight turns keyed by workflow run id. The default
	// implementation is in-memory and process-bound.
	TaskStore interface {
		Store(id string, state *TaskState) error
		Load(id string) (*TaskState, bool)
		Delete(id string)
	}

	// TaskState is the status snapshot of one in-flight turn. Safe for
	// concurrent use.
	TaskState struct {
		mu     sync.RWMutex
		Status string
		Cancel context.CancelFunc
	}

	// Server exposes the workflow manager over a single HTTP endpoint.
	Server struct {
		mgr   *manager.Manager
		log   *telemetry.Logger
		store TaskStore
	}

	inMemoryTaskStore struct {
		mu    sync.RWMutex
		tasks map[string]*TaskState
	}
)

func (t *TaskState) setStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = status
}

// NewServer builds a Server around mgr with an in-memory TaskStore.
func NewServer(mgr *manager.Manager, log *telemetry.Logger) *Server {
	return &Server{mgr: mgr, log: log, store: newInMemoryTaskStore()}
}

// Message is the inbound RPC envelope this service accepts.
type Message struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type sendTaskParams struct {
	Token         string         `json:"token"`
	WorkflowID    string         `json:"workflow_id"`
	WorkflowRunID string         `json:"workflow_run_id"`
	Text          string         `json:"text"`
	Data          map[string]any `json:"data"`
}

// Reply is the outbound RPC envelope.
type Reply struct {
	WorkflowRunID string         `json:"workflow_run_id"`
	WorkflowID    string         `json:"workflow_id,omitempty"`
	WorkflowName  string         `json:"workflow_name,omitempty"`
	TaskState     string         `json:"task_state"`
	Status        string         `json:"status,omitempty"`
	Output        map[string]any `json:"output,omitempty"`
	EventLog      []string       `json:"event_log,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// replyMetadata builds the part metadata that names this agent and repeats
// the event-log/workflow-id/workflow-name fields, per the reply's metadata
// contract.
func replyMetadata(resp manager.Response) map[string]any {
	return map[string]any{
		agentName: map[string]any{
			"event_log":     resp.EventLog,
			"workflow_id":   resp.WorkflowID,
			"workflow_name": resp.WorkflowName,
		},
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var msg Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch msg.Method {
	case "tasks/send":
		s.handleSendTask(w, r.Context(), msg.Params)
	case "tasks/cancel":
		writeError(w, http.StatusNotImplemented, ErrCancelUnsupported)
	default:
		writeError(w, http.StatusBadRequest, errors.New("a2a: unknown method "+msg.Method))
	}
}

func (s *Server) handleSendTask(w http.ResponseWriter, ctx context.Context, raw json.RawMessage) {
	var params sendTaskParams
	if err := json.Unmarshal(raw, &params); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if params.WorkflowRunID == "" {
		writeError(w, http.StatusBadRequest, errors.New("a2a: workflow_run_id is required"))
		return
	}

	taskCtx, cancel := context.WithCancel(ctx)
	state := &TaskState{Status: "working", Cancel: cancel}
	if err := s.store.Store(params.WorkflowRunID, state); err != nil {
		cancel()
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer s.store.Delete(params.WorkflowRunID)
	defer cancel()

	resp, err := s.mgr.Handle(taskCtx, manager.Request{
		Token:         params.Token,
		WorkflowID:    params.WorkflowID,
		WorkflowRunID: params.WorkflowRunID,
		Text:          params.Text,
		Data:          params.Data,
	})
	if err != nil {
		state.setStatus("failed")
		s.log.Error(ctx, "handle task failed", "error", err, "workflow_run_id", params.WorkflowRunID)
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	state.setStatus(string(resp.TaskState))
	writeJSON(w, http.StatusOK, Reply{
		WorkflowRunID: resp.WorkflowRunID,
		WorkflowID:    resp.WorkflowID,
		WorkflowName:  resp.WorkflowName,
		TaskState:     string(resp.TaskState),
		Status:        resp.Status,
		Output:        resp.Output,
		EventLog:      resp.EventLog,
		Metadata:      replyMetadata(resp),
	})
}

func newInMemoryTaskStore() *inMemoryTaskStore {
	return &inMemoryTaskStore{tasks: make(map[string]*TaskState)}
}

func (s *inMemoryTaskStore) Store(id string, state *TaskState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[id] = state
	return nil
}

func (s *inMemoryTaskStore) Load(id string) (*TaskState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.tasks[id]
	return state, ok
}

func (s *inMemoryTaskStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, Reply{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
