// Package queue provides the durable offline action queue: a FIFO pending
// queue, a dead-letter queue for actions that exhausted their retries, and
// the drain loop that replays pending actions against the backend.
package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/errors"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/logging"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/models"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/store"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/uuid"
)

const (
	// MaxRetries is the number of failed attempts after which an action is dead-lettered.
	MaxRetries = 3

	// PendingKey and DeadLetterKey are the durable store keys of the two queues.
	PendingKey    = "sync_queue.pending"
	DeadLetterKey = "sync_queue.dead_letter"
)

// Dispatcher runs the remote operation for an action type.
// *executor.Registry satisfies it.
type Dispatcher interface {
	Execute(ctx context.Context, actionType models.ActionType, payload json.RawMessage) error
}

// Progress reports the position of a running drain.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Status is a point-in-time view of the engine for UI and API consumers.
type Status struct {
	PendingCount int                   `json:"pending_count"`
	FailedCount  int                   `json:"failed_count"`
	IsSyncing    bool                  `json:"is_syncing"`
	SyncProgress *Progress             `json:"sync_progress"`
	PendingQueue []models.QueuedAction `json:"pending_queue"`
	FailedQueue  []models.QueuedAction `json:"failed_queue"`
}

// Engine owns the pending and dead-letter queues. Every mutation is followed
// by a full-queue write to the durable store before the method returns.
type Engine struct {
	store      store.Store
	exec       Dispatcher
	observers  []Observer
	now        func() time.Time
	newID      func() string
	maxRetries int

	mu         sync.Mutex
	pending    []models.QueuedAction
	deadLetter []models.QueuedAction
	draining   bool
	progress   *Progress

	background sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver registers an observer for drain lifecycle events.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithClock overrides the time source used for enqueue timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithIDGenerator overrides action id generation.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// WithMaxRetries overrides the retry ceiling. Values below 1 are ignored.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxRetries = n
		}
	}
}

// New creates an engine and loads both queues from st. Missing keys start
// as empty queues.
func New(ctx context.Context, st store.Store, exec Dispatcher, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:      st,
		exec:       exec,
		now:        time.Now,
		newID:      uuid.New,
		maxRetries: MaxRetries,
	}
	for _, opt := range opts {
		opt(e)
	}

	pending, err := e.load(ctx, PendingKey)
	if err != nil {
		return nil, err
	}
	deadLetter, err := e.load(ctx, DeadLetterKey)
	if err != nil {
		return nil, err
	}
	e.pending, e.deadLetter = reconcile(pending, deadLetter)

	logging.Info("Sync queue loaded", map[string]interface{}{
		"pending":     len(e.pending),
		"dead_letter": len(e.deadLetter),
	})

	return e, nil
}

// reconcile drops duplicate ids. A crash between the two queue writes can
// leave an action in both; the dead-letter copy wins.
func reconcile(pending, deadLetter []models.QueuedAction) ([]models.QueuedAction, []models.QueuedAction) {
	seen := make(map[string]bool, len(pending)+len(deadLetter))
	dl := make([]models.QueuedAction, 0, len(deadLetter))
	for _, a := range deadLetter {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		dl = append(dl, a)
	}
	p := make([]models.QueuedAction, 0, len(pending))
	for _, a := range pending {
		if seen[a.ID] {
			logging.Warn("Dropping duplicate queued action", map[string]interface{}{"action_id": a.ID})
			continue
		}
		seen[a.ID] = true
		p = append(p, a)
	}
	return p, dl
}

func (e *Engine) load(ctx context.Context, key string) ([]models.QueuedAction, error) {
	data, ok, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrPersistence, "failed to load "+key, err)
	}
	if !ok || len(data) == 0 {
		return []models.QueuedAction{}, nil
	}

	var actions []models.QueuedAction
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, errors.Wrap(errors.ErrPersistence, "failed to decode "+key, err)
	}
	if actions == nil {
		actions = []models.QueuedAction{}
	}
	return actions, nil
}

// persist writes the full queue under key. Callers hold e.mu.
func (e *Engine) persist(ctx context.Context, key string, actions []models.QueuedAction) error {
	if actions == nil {
		actions = []models.QueuedAction{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return errors.Wrap(errors.ErrPersistence, "failed to encode "+key, err)
	}
	if err := e.store.Set(ctx, key, data); err != nil {
		logging.ErrorWithCode("Failed to persist sync queue", string(errors.ErrPersistence), err,
			map[string]interface{}{"key": key, "size": len(actions)})
		return errors.Wrap(errors.ErrPersistence, "failed to save "+key, err)
	}
	return nil
}

// Enqueue appends a new action to the pending queue and persists it before
// returning. On a persistence failure the action is not queued.
func (e *Engine) Enqueue(ctx context.Context, actionType models.ActionType, payload json.RawMessage) (models.QueuedAction, error) {
	if actionType == "" {
		return models.QueuedAction{}, errors.New(errors.ErrInvalid, "action type is required")
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return models.QueuedAction{}, errors.New(errors.ErrInvalid, "payload must be a valid JSON document")
	}
	if !actionType.IsKnown() {
		logging.Warn("Enqueuing action with unknown type", map[string]interface{}{"action_type": actionType})
	}

	action := models.QueuedAction{
		ID:         e.newID(),
		ActionType: actionType,
		Payload:    append(json.RawMessage(nil), payload...),
		EnqueuedAt: e.now().UTC(),
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending = append(e.pending, action)
	if err := e.persist(ctx, PendingKey, e.pending); err != nil {
		e.pending = e.pending[:len(e.pending)-1]
		return models.QueuedAction{}, err
	}

	logging.Debug("Enqueued action", map[string]interface{}{
		"action_id":   action.ID,
		"action_type": action.ActionType,
		"pending":     len(e.pending),
	})

	return action.Clone(), nil
}

// Retry moves a dead-lettered action back to the tail of the pending queue
// with its retry count reset, then starts a drain in the background.
// found is false when id is not in the dead-letter queue.
func (e *Engine) Retry(ctx context.Context, id string) (found bool, err error) {
	e.mu.Lock()
	idx := indexOf(e.deadLetter, id)
	if idx < 0 {
		e.mu.Unlock()
		return false, nil
	}

	action := e.deadLetter[idx]
	action.RetryCount = 0
	action.LastError = ""
	e.deadLetter = removeAt(e.deadLetter, idx)
	e.pending = append(e.pending, action)

	// pending first; reconcile keeps the dead-letter copy after a crash in between
	err = e.persist(ctx, PendingKey, e.pending)
	if err == nil {
		err = e.persist(ctx, DeadLetterKey, e.deadLetter)
	}
	e.mu.Unlock()

	if err != nil {
		return true, err
	}

	logging.Info("Retrying dead-lettered action", map[string]interface{}{
		"action_id":   id,
		"action_type": action.ActionType,
	})

	e.background.Add(1)
	go func() {
		defer e.background.Done()
		if _, err := e.Drain(context.WithoutCancel(ctx)); err != nil {
			logging.Error("Drain after retry failed", err, map[string]interface{}{"action_id": id})
		}
	}()

	return true, nil
}

// Discard permanently removes an action from the dead-letter queue.
// found is false when id is not in the dead-letter queue.
func (e *Engine) Discard(ctx context.Context, id string) (found bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := indexOf(e.deadLetter, id)
	if idx < 0 {
		return false, nil
	}

	removed := e.deadLetter[idx]
	e.deadLetter = removeAt(e.deadLetter, idx)
	if err := e.persist(ctx, DeadLetterKey, e.deadLetter); err != nil {
		return true, err
	}

	logging.Info("Discarded dead-lettered action", map[string]interface{}{
		"action_id":   id,
		"action_type": removed.ActionType,
	})
	return true, nil
}

// SyncNow drains the pending queue on behalf of a user request.
func (e *Engine) SyncNow(ctx context.Context) (DrainResult, error) {
	return e.Drain(ctx)
}

// Close waits for background drains started by Retry.
func (e *Engine) Close() {
	e.background.Wait()
}

// PendingCount returns the number of pending actions.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// FailedCount returns the number of dead-lettered actions.
func (e *Engine) FailedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.deadLetter)
}

// IsSyncing reports whether a drain is running.
func (e *Engine) IsSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draining
}

// SyncProgress returns the progress of the running drain, or nil.
func (e *Engine) SyncProgress() *Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.progress == nil {
		return nil
	}
	p := *e.progress
	return &p
}

// FailedQueue returns a copy of the dead-letter queue.
func (e *Engine) FailedQueue() []models.QueuedAction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.CloneActions(e.deadLetter)
}

// PendingQueue returns a copy of the pending queue in FIFO order.
func (e *Engine) PendingQueue() []models.QueuedAction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return models.CloneActions(e.pending)
}

// Snapshot returns a consistent Status.
func (e *Engine) Snapshot() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := Status{
		PendingCount: len(e.pending),
		FailedCount:  len(e.deadLetter),
		IsSyncing:    e.draining,
		PendingQueue: models.CloneActions(e.pending),
		FailedQueue:  models.CloneActions(e.deadLetter),
	}
	if e.progress != nil {
		p := *e.progress
		s.SyncProgress = &p
	}
	return s
}

func indexOf(actions []models.QueuedAction, id string) int {
	for i, a := range actions {
		if a.ID == id {
			return i
		}
	}
	return -1
}

// removeAt returns actions without element i, reusing the backing array.
func removeAt(actions []models.QueuedAction, i int) []models.QueuedAction {
	return append(actions[:i], actions[i+1:]...)
}
