package queue

import (
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/logging"
)

// Observer reacts to drain lifecycle events. Callbacks run on the draining
// goroutine outside the engine lock and must not block.
type Observer interface {
	DrainStarted(total int)
	DrainProgress(p Progress)
	DrainCompleted(result DrainResult)
}

// ObserverFuncs builds an Observer from optional callbacks.
type ObserverFuncs struct {
	OnStarted   func(total int)
	OnProgress  func(p Progress)
	OnCompleted func(result DrainResult)
}

// DrainStarted calls OnStarted if set.
func (o ObserverFuncs) DrainStarted(total int) {
	if o.OnStarted != nil {
		o.OnStarted(total)
	}
}

// DrainProgress calls OnProgress if set.
func (o ObserverFuncs) DrainProgress(p Progress) {
	if o.OnProgress != nil {
		o.OnProgress(p)
	}
}

// DrainCompleted calls OnCompleted if set.
func (o ObserverFuncs) DrainCompleted(result DrainResult) {
	if o.OnCompleted != nil {
		o.OnCompleted(result)
	}
}

func (e *Engine) notifyStarted(total int) {
	for _, o := range e.observers {
		e.safely(func() { o.DrainStarted(total) })
	}
}

func (e *Engine) notifyProgress(p Progress) {
	for _, o := range e.observers {
		e.safely(func() { o.DrainProgress(p) })
	}
}

func (e *Engine) notifyCompleted(result DrainResult) {
	for _, o := range e.observers {
		e.safely(func() { o.DrainCompleted(result) })
	}
}

// safely keeps a misbehaving observer from breaking the drain.
func (e *Engine) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn("Sync observer panicked", map[string]interface{}{"panic": r})
		}
	}()
	fn()
}
