// Package scheduler runs the process-wide expiry and eviction task.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
	"github.com/amitpaz1/formbridge-sub001/internal/store"
	"github.com/amitpaz1/formbridge-sub001/internal/submission"
)

// DefaultExpiryInterval is the tick between expiry sweeps.
const DefaultExpiryInterval = 60 * time.Second

// ExpiryScheduler marks TTL-expired submissions and prunes terminal
// records. One instance runs per process; Start and Stop bracket the
// service lifecycle and every sweep is idempotent, so a restart mid-sweep
// is harmless.
type ExpiryScheduler struct {
	manager    *submission.Manager
	store      *store.SubmissionStore
	interval   time.Duration
	maxEntries int
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewExpiryScheduler creates a scheduler. maxEntries 0 disables eviction; a
// non-positive interval falls back to DefaultExpiryInterval.
func NewExpiryScheduler(manager *submission.Manager, subs *store.SubmissionStore, interval time.Duration, maxEntries int) *ExpiryScheduler {
	if interval <= 0 {
		interval = DefaultExpiryInterval
	}
	return &ExpiryScheduler{
		manager:    manager,
		store:      subs,
		interval:   interval,
		maxEntries: maxEntries,
	}
}

// Start launches the sweep loop.
func (s *ExpiryScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
	logger.Info("expiry scheduler started",
		zap.Duration("interval", s.interval),
		zap.Int("max_entries", s.maxEntries),
	)
}

// Stop halts the sweep loop and waits for it to exit.
func (s *ExpiryScheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	logger.Info("expiry scheduler stopped")
}

func (s *ExpiryScheduler) sweep(ctx context.Context) {
	now := time.Now().UTC()

	expired := s.manager.ExpireDue(ctx, now)
	cleaned := s.store.CleanupExpired(now)
	evicted := 0
	if s.maxEntries > 0 {
		evicted = s.store.Evict(s.maxEntries)
	}

	if expired > 0 || cleaned > 0 || evicted > 0 {
		logger.Info("expiry sweep",
			zap.Int("expired", expired),
			zap.Int("cleaned", cleaned),
			zap.Int("evicted", evicted),
		)
	}
}
