// Package connectivity tracks whether the backend is reachable and notifies
// listeners when that changes.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/logging"
)

// Listener receives online/offline transitions.
type Listener func(online bool)

// Probe reports whether the backend is currently reachable.
type Probe interface {
	Check(ctx context.Context) bool
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context) bool

// Check calls f.
func (f ProbeFunc) Check(ctx context.Context) bool { return f(ctx) }

// Monitor holds the current online state and publishes transitions only.
// Repeated signals with the same state are ignored.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	nextID    int
	listeners map[int]Listener
}

// NewMonitor creates a monitor in the given initial state.
func NewMonitor(initial bool) *Monitor {
	return &Monitor{
		online:    initial,
		listeners: make(map[int]Listener),
	}
}

// Online reports the current state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Subscribe registers l and returns a func that removes it. The func is
// safe to call more than once.
func (m *Monitor) Subscribe(l Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Listeners returns the number of registered listeners.
func (m *Monitor) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// Set records the current state and notifies listeners when it changed.
// Listeners run synchronously on the caller's goroutine, outside the lock.
func (m *Monitor) Set(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.mu.Unlock()

	logging.Info("Connectivity changed", map[string]interface{}{
		"is_online": online,
		"listeners": len(listeners),
	})

	for _, l := range listeners {
		l(online)
	}
	return true
}

// Run polls probe every interval and feeds the result to Set until ctx is
// cancelled. The first check happens immediately.
func (m *Monitor) Run(ctx context.Context, probe Probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		m.Set(probe.Check(ctx))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
