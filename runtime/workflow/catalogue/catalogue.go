// Package catalogue resolves workflow definitions by id and lists workflows
// visible to a caller's roles, backed by a durable Store and fronted by two
// bounded LRU caches.
package catalogue

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/cubeassist/workflow-agent/runtime/workflow"
)

// definitionCacheSize and listCacheSize bound the two LRU caches fronting
// the store: one per workflow id, one per distinct sorted role tuple.
const (
	definitionCacheSize = 32
	listCacheSize       = 16
)

var (
	// ErrNotFound indicates the requested workflow does not exist.
	ErrNotFound = errors.New("catalogue: workflow not found")
	// ErrForbidden indicates the workflow exists but none of the caller's
	// roles are authorized to read it.
	ErrForbidden = errors.New("catalogue: workflow not authorized for caller roles")
)

// Store loads workflow definitions from durable storage. Implementations
// must be safe for concurrent use.
type Store interface {
	// GetWorkflow loads a single workflow definition by id.
	// Returns ErrNotFound when no such workflow exists.
	GetWorkflow(ctx context.Context, workflowID string) (workflow.Definition, error)
	// ListWorkflows loads every workflow definition authorized for any of roles.
	ListWorkflows(ctx context.Context, roles []string) ([]workflow.Definition, error)
}

// Catalogue resolves workflow definitions, caching both per-id lookups and
// per-role-tuple listings to avoid a store round-trip on every turn of a run.
type Catalogue struct {
	store        Store
	definitions  *lru.Cache[string, workflow.Definition]
	listings     *lru.Cache[string, []workflow.Definition]
}

// New wraps store with the bounded definition and listing caches.
func New(store Store) (*Catalogue, error) {
	defs, err := lru.New[string, workflow.Definition](definitionCacheSize)
	if err != nil {
		return nil, err
	}
	lists, err := lru.New[string, []workflow.Definition](listCacheSize)
	if err != nil {
		return nil, err
	}
	return &Catalogue{store: store, definitions: defs, listings: lists}, nil
}

// GetStepsByWorkflowID returns the steps of workflowID if one of roles is
// authorized to read it.
func (c *Catalogue) GetStepsByWorkflowID(ctx context.Context, workflowID string, roles []string) (workflow.Definition, error) {
	def, ok := c.definitions.Get(workflowID)
	if !ok {
		var err error
		def, err = c.store.GetWorkflow(ctx, workflowID)
		if err != nil {
			return workflow.Definition{}, err
		}
		c.definitions.Add(workflowID, def)
	}
	if !authorized(def.Roles, roles) {
		return workflow.Definition{}, ErrForbidden
	}
	return def, nil
}

// GetAllWorkflows returns every workflow visible to any of roles. The cache
// key is the sorted, deduplicated role tuple so that callers whose roles
// arrive in a different order still hit the same cache entry.
func (c *Catalogue) GetAllWorkflows(ctx context.Context, roles []string) ([]workflow.Definition, error) {
	key := roleKey(roles)
	if cached, ok := c.listings.Get(key); ok {
		return cached, nil
	}
	defs, err := c.store.ListWorkflows(ctx, roles)
	if err != nil {
		return nil, err
	}
	c.listings.Add(key, defs)
	return defs, nil
}

func roleKey(roles []string) string {
	sorted := append([]string(nil), roles...)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)
	return strings.Join(sorted, "\x1f")
}

func authorized(workflowRoles, callerRoles []string) bool {
	if len(workflowRoles) == 0 {
		return true
	}
	want := make(map[string]bool, len(workflowRoles))
	for _, r := range workflowRoles {
		want[r] = true
	}
	for _, r := range callerRoles {
		if want[r] {
			return true
		}
	}
	return false
}
