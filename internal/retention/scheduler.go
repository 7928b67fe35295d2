// Package retention supplies an optional background compaction
// schedule: a ticker-driven goroutine that calls Compact() on every
// registered store. A reasonable addition, not a required one —
// Compact stays synchronous and callable directly without it.
package retention

import (
	"sync"
	"time"

	"github.com/hako/durafmt"
	"go.uber.org/zap"
)

// Compactor is the subset of store.Store the scheduler drives. Any
// store.Store satisfies it.
type Compactor interface {
	Compact() error
}

// Config controls how often the scheduler runs a compaction pass.
type Config struct {
	Interval time.Duration
}

// Scheduler periodically calls Compact on every registered Compactor.
// Compact itself stays synchronous and callable directly; starting a
// Scheduler is never required.
type Scheduler struct {
	mu        sync.Mutex
	compactors []Compactor
	config    Config
	logger    *zap.SugaredLogger
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler returns a Scheduler that has not yet been started.
func NewScheduler(cfg Config, logger *zap.SugaredLogger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Scheduler{
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Register adds c to the set of stores swept on every tick.
func (s *Scheduler) Register(c Compactor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.compactors = append(s.compactors, c)
}

// Start begins the background ticker. Call Stop to end it.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.compactAll()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) compactAll() {
	s.mu.Lock()
	compactors := make([]Compactor, len(s.compactors))
	copy(compactors, s.compactors)
	s.mu.Unlock()

	for _, c := range compactors {
		start := time.Now()
		if err := c.Compact(); err != nil {
			s.logger.Warnw("background compaction pass failed", "error", err)
			continue
		}
		s.logger.Infow("background compaction pass complete", "elapsed", durafmt.Parse(time.Since(start)).String())
	}
}

// Stop ends the ticker goroutine and waits for the in-flight pass, if
// any, to finish.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
