// Package executor maps queued action types to the remote operations that
// replay them.
package executor

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/errors"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/models"
)

// Executor performs the remote side effect for one action payload.
// Implementations must return an error on any remote failure and tolerate
// being invoked more than once for the same logical action.
type Executor interface {
	Execute(ctx context.Context, payload json.RawMessage) error
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, payload json.RawMessage) error

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, payload json.RawMessage) error {
	return f(ctx, payload)
}

// Registry is a fixed mapping from action type to executor.
type Registry struct {
	mu        sync.RWMutex
	executors map[models.ActionType]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[models.ActionType]Executor)}
}

// Register binds exec to actionType, replacing any previous binding.
func (r *Registry) Register(actionType models.ActionType, exec Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[actionType] = exec
}

// Lookup returns the executor for actionType or an UNKNOWN_ACTION error.
func (r *Registry) Lookup(actionType models.ActionType) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exec, ok := r.executors[actionType]
	if !ok {
		return nil, errors.Newf(errors.ErrUnknownAction, "no executor registered for action type %q", actionType)
	}
	return exec, nil
}

// Execute looks up the executor for actionType and runs it.
func (r *Registry) Execute(ctx context.Context, actionType models.ActionType, payload json.RawMessage) error {
	exec, err := r.Lookup(actionType)
	if err != nil {
		return err
	}
	return exec.Execute(ctx, payload)
}

// Types returns the registered action types, sorted.
func (r *Registry) Types() []models.ActionType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]models.ActionType, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
