// Package scheduler drives the sync queue: it drains when connectivity comes
// back and runs a periodic auto-drain while online.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/errors"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/logging"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/sync/connectivity"
	"github.com/silvabell741-del/Hist-ria-Acess-vel-Mark-I/internal/sync/queue"
)

// Drainer is the part of the queue engine the scheduler needs.
type Drainer interface {
	Drain(ctx context.Context) (queue.DrainResult, error)
	IsSyncing() bool
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	AutoDrainInterval time.Duration // Periodic drain while online (0 disables, default: 1 minute)
	DrainOnStart      bool          // Drain once at Start when already online
}

// DefaultSchedulerConfig returns default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		AutoDrainInterval: 1 * time.Minute,
		DrainOnStart:      true,
	}
}

// Scheduler reacts to connectivity transitions and runs the auto-drain job.
type Scheduler struct {
	drainer  Drainer
	monitor  *connectivity.Monitor
	interval time.Duration
	onStart  bool

	mu            sync.RWMutex
	ctx           context.Context
	cron          *cron.Cron
	unsubscribe   func()
	isRunning     bool
	lastDrainTime time.Time
	lastResult    *queue.DrainResult

	wg sync.WaitGroup
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	IsRunning     bool               `json:"is_running"`
	IsOnline      bool               `json:"is_online"`
	LastDrainTime *time.Time         `json:"last_drain_time,omitempty"`
	LastResult    *queue.DrainResult `json:"last_result,omitempty"`
}

// NewScheduler creates a new Scheduler.
func NewScheduler(drainer Drainer, monitor *connectivity.Monitor, config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}

	return &Scheduler{
		drainer:  drainer,
		monitor:  monitor,
		interval: config.AutoDrainInterval,
		onStart:  config.DrainOnStart,
		ctx:      context.Background(),
	}
}

// Start subscribes to the monitor and starts the auto-drain job. ctx is
// used for every drain the scheduler starts.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}

	if s.interval > 0 {
		c := cron.New()
		spec := fmt.Sprintf("@every %s", s.interval)
		if _, err := c.AddFunc(spec, func() { s.autoDrain() }); err != nil {
			return errors.Wrap(errors.ErrConfig, "invalid auto-drain interval", err)
		}
		c.Start()
		s.cron = c
	}

	s.ctx = ctx
	s.unsubscribe = s.monitor.Subscribe(s.onConnectivityChange)
	s.isRunning = true

	logging.Info("Sync scheduler started", map[string]interface{}{
		"auto_drain_interval": s.interval.String(),
		"is_online":           s.monitor.Online(),
	})

	if s.onStart && s.monitor.Online() {
		s.spawnDrain("startup")
	}
	return nil
}

// Stop deregisters the connectivity listener, stops the cron and waits for
// drains the scheduler started.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.unsubscribe()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// SetOnlineStatus forwards a manual connectivity signal to the monitor.
func (s *Scheduler) SetOnlineStatus(isOnline bool) {
	s.monitor.Set(isOnline)
}

// IsOnline returns whether the backend is considered reachable.
func (s *Scheduler) IsOnline() bool {
	return s.monitor.Online()
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current status of the scheduler.
func (s *Scheduler) GetStatus() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := Status{
		IsRunning: s.isRunning,
		IsOnline:  s.monitor.Online(),
	}
	if !s.lastDrainTime.IsZero() {
		t := s.lastDrainTime
		status.LastDrainTime = &t
	}
	if s.lastResult != nil {
		r := *s.lastResult
		status.LastResult = &r
	}
	return status
}

// onConnectivityChange runs on the goroutine that called Monitor.Set, so the
// drain itself is started in the background. Going offline touches nothing.
func (s *Scheduler) onConnectivityChange(online bool) {
	if !online {
		logging.Info("Offline, auto-drain suspended", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	s.spawnDrain("online")
}

// spawnDrain starts a background drain. Callers hold s.mu.
func (s *Scheduler) spawnDrain(reason string) {
	ctx := s.ctx
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runDrain(ctx, reason)
	}()
}

// autoDrain is the cron job.
func (s *Scheduler) autoDrain() {
	if !s.monitor.Online() {
		logging.Debug("Skipping auto-drain - offline", nil)
		return
	}
	if s.drainer.IsSyncing() {
		logging.Debug("Drain already in progress, skipping", nil)
		return
	}

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	s.runDrain(ctx, "periodic")
}

func (s *Scheduler) runDrain(ctx context.Context, reason string) {
	result, err := s.drainer.Drain(ctx)
	if err != nil {
		logging.ErrorWithCode("Scheduled drain failed", string(errors.CodeOf(err)), err,
			map[string]interface{}{"reason": reason})
		return
	}
	if result.Skipped {
		return
	}

	s.mu.Lock()
	s.lastDrainTime = time.Now()
	s.lastResult = &result
	s.mu.Unlock()

	logging.Debug("Scheduled drain finished", map[string]interface{}{
		"reason":        reason,
		"succeeded":     result.Succeeded,
		"requeued":      result.Requeued,
		"dead_lettered": result.DeadLettered,
	})
}
