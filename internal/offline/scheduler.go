package offline

import (
	"context"
	"sync"
	"time"
)

// Syncer runs one reconciliation round. *Engine implements it.
type Syncer interface {
	PerformSync(ctx context.Context) *SyncResult
}

// SchedulerConfig holds configuration for the auto-sync scheduler.
type SchedulerConfig struct {
	// Interval is how often a sync is attempted. Default: 5 minutes.
	Interval time.Duration

	// RoundTimeout bounds a single round. Default: 2 minutes.
	RoundTimeout time.Duration

	// SyncOnStart runs a round immediately when the scheduler starts.
	SyncOnStart bool

	// OnResult, when set, receives the result of every round that ran.
	OnResult func(*SyncResult)
}

// Scheduler retries sync periodically and on demand. Ticks while the device is
// offline are skipped without calling the Syncer.
type Scheduler struct {
	syncer Syncer
	conn   Connectivity
	log    Logger
	config SchedulerConfig

	ticker    *time.Ticker
	trigger   chan struct{}
	stopCh    chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	isRunning bool
	mu        sync.Mutex
}

// NewScheduler creates a scheduler. A nil Connectivity is treated as always online.
func NewScheduler(syncer Syncer, conn Connectivity, logger Logger, config SchedulerConfig) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.RoundTimeout <= 0 {
		config.RoundTimeout = 2 * time.Minute
	}
	if conn == nil {
		conn = AlwaysOnline{}
	}
	if logger == nil {
		logger = NopLogger{}
	}
	return &Scheduler{
		syncer:  syncer,
		conn:    conn,
		log:     logger,
		config:  config,
		trigger: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Start begins the loop. Calling it again while running does nothing.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.log.Info("sync scheduler started", "interval", s.config.Interval)
	if s.config.SyncOnStart {
		s.Trigger()
	}

	go s.run()
}

func (s *Scheduler) run() {
	defer close(s.done)
	for {
		select {
		case <-s.ticker.C:
			s.runRound()
		case <-s.trigger:
			s.runRound()
		case <-s.stopCh:
			s.log.Info("sync scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) runRound() {
	if !s.conn.Online() {
		s.log.Debug("sync skipped: offline")
		return
	}
	res := s.RunNow()
	if !res.Success {
		s.log.Warn("scheduled sync failed", "error", res.Err)
	}
}

// Trigger asks the loop for a round as soon as possible. Triggers that arrive
// while one is already queued are coalesced.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Stop halts the loop and waits for an in-progress round to finish. Safe to call
// more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		running := s.isRunning
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
		s.mu.Unlock()

		if running {
			<-s.done
		}
	})
}

// RunNow performs a round immediately on the calling goroutine.
func (s *Scheduler) RunNow() *SyncResult {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.RoundTimeout)
	defer cancel()

	res := s.syncer.PerformSync(ctx)
	if s.config.OnResult != nil {
		s.config.OnResult(res)
	}
	return res
}
