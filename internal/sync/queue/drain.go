package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/logging"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/models"
)

// DrainResult is the aggregate outcome of one drain pass.
type DrainResult struct {
	// Skipped is set when the pending queue was empty or another drain was running.
	Skipped      bool          `json:"skipped"`
	SkipReason   SkipReason    `json:"skip_reason,omitempty"`
	Total        int           `json:"total"`
	Succeeded    int           `json:"succeeded"`
	Requeued     int           `json:"requeued"`
	DeadLettered int           `json:"dead_lettered"`
	Duration     time.Duration `json:"duration"`

	// Error is set when a persistence failure aborted the pass.
	Error string `json:"error,omitempty"`
}

// SkipReason tells why a drain did not run.
type SkipReason string

const (
	SkipEmpty      SkipReason = "empty"
	SkipInProgress SkipReason = "in_progress"
)

type outcome int

const (
	outcomeSucceeded outcome = iota
	outcomeRequeued
	outcomeDeadLettered
	outcomeVanished
)

// Drain replays the pending queue once, strictly in FIFO order and one
// action at a time. The batch is the pending queue as of the call; actions
// enqueued meanwhile stay pending for the next drain.
//
// Executor failures never surface: the action is kept with retry_count+1 or
// moved to the dead-letter queue once the count reaches the retry ceiling.
// The only error returned is a persistence failure, which stops the pass.
//
// Cancelling ctx does not stop a pass once started: the batch runs to
// completion so that no attempt is charged against an action the backend
// never saw. Executors bound their own calls with timeouts.
func (e *Engine) Drain(ctx context.Context) (DrainResult, error) {
	e.mu.Lock()
	if e.draining {
		e.mu.Unlock()
		return DrainResult{Skipped: true, SkipReason: SkipInProgress}, nil
	}
	if len(e.pending) == 0 {
		e.mu.Unlock()
		return DrainResult{Skipped: true, SkipReason: SkipEmpty}, nil
	}
	batch := models.CloneActions(e.pending)
	e.draining = true
	e.progress = &Progress{Current: 0, Total: len(batch)}
	e.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	result := DrainResult{Total: len(batch)}

	logging.Info("Sync drain started", map[string]interface{}{"total": len(batch)})
	e.notifyStarted(len(batch))

	var err error
	for i, action := range batch {
		e.notifyProgress(e.advance(i + 1))

		execErr := e.execute(ctx, action)

		var out outcome
		out, err = e.settle(ctx, action.ID, execErr)
		switch out {
		case outcomeSucceeded:
			result.Succeeded++
		case outcomeRequeued:
			result.Requeued++
		case outcomeDeadLettered:
			result.DeadLettered++
		}
		if err != nil {
			break
		}
	}

	e.mu.Lock()
	e.draining = false
	e.progress = nil
	e.mu.Unlock()

	result.Duration = time.Since(start)

	ctxFields := map[string]interface{}{
		"total":         result.Total,
		"succeeded":     result.Succeeded,
		"requeued":      result.Requeued,
		"dead_lettered": result.DeadLettered,
		"duration_ms":   result.Duration.Milliseconds(),
	}
	if err != nil {
		result.Error = err.Error()
		logging.Error("Sync drain aborted", err, ctxFields)
	} else {
		logging.Info("Sync drain completed", ctxFields)
	}
	e.notifyCompleted(result)

	return result, err
}

// advance sets progress.Current before an attempt and returns a copy.
func (e *Engine) advance(current int) Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress.Current = current
	return *e.progress
}

// execute runs the executor, turning a panic into an ordinary failure.
func (e *Engine) execute(ctx context.Context, action models.QueuedAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor for %s panicked: %v", action.ActionType, r)
		}
	}()
	return e.exec.Execute(ctx, action.ActionType, action.Payload)
}

// settle applies one attempt's outcome to the queues and persists them.
// A failed action under the ceiling keeps its position, so after the pass
// pending is the requeued batch actions followed by mid-drain enqueues.
func (e *Engine) settle(ctx context.Context, id string, execErr error) (outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := indexOf(e.pending, id)
	if idx < 0 {
		// only drains remove from pending, and there is one drain at a time
		return outcomeVanished, nil
	}

	if execErr == nil {
		e.pending = removeAt(e.pending, idx)
		return outcomeSucceeded, e.persist(ctx, PendingKey, e.pending)
	}

	failed := e.pending[idx]
	failed.RetryCount++
	failed.LastError = execErr.Error()

	fields := map[string]interface{}{
		"action_id":   failed.ID,
		"action_type": failed.ActionType,
		"retry_count": failed.RetryCount,
		"max_retries": e.maxRetries,
	}

	if failed.RetryCount < e.maxRetries {
		e.pending[idx] = failed
		logging.Warn("Action failed, will retry on next drain", fields, map[string]interface{}{"error": failed.LastError})
		return outcomeRequeued, e.persist(ctx, PendingKey, e.pending)
	}

	e.pending = removeAt(e.pending, idx)
	e.deadLetter = append(e.deadLetter, failed)
	logging.Warn("Action exhausted retries, moved to dead-letter queue", fields, map[string]interface{}{"error": failed.LastError})

	// dead-letter first; reconcile drops the stale pending copy after a crash in between
	if err := e.persist(ctx, DeadLetterKey, e.deadLetter); err != nil {
		return outcomeDeadLettered, err
	}
	return outcomeDeadLettered, e.persist(ctx, PendingKey, e.pending)
}
