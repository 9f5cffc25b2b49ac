package delivery

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
)

// DefaultRetryInterval is how often the scheduler scans for due retries.
const DefaultRetryInterval = 30 * time.Second

// RetryScheduler periodically re-drives pending deliveries whose retry time
// has passed. It also recovers deliveries that were in flight when the
// process last stopped.
type RetryScheduler struct {
	engine   *Engine
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRetryScheduler creates a scheduler. A non-positive interval falls back
// to DefaultRetryInterval.
func NewRetryScheduler(engine *Engine, interval time.Duration) *RetryScheduler {
	if interval <= 0 {
		interval = DefaultRetryInterval
	}
	return &RetryScheduler{
		engine:   engine,
		interval: interval,
	}
}

// Start launches the scan loop. The first scan runs immediately so
// deliveries stranded by a restart resume without waiting a full interval.
func (s *RetryScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.scan()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.scan()
			}
		}
	}()
	logger.Info("delivery retry scheduler started", zap.Duration("interval", s.interval))
}

// Stop halts the scan loop and waits for it to exit.
func (s *RetryScheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	logger.Info("delivery retry scheduler stopped")
}

func (s *RetryScheduler) scan() {
	due := s.engine.Queue().GetPendingRetries(time.Now().UTC())
	if len(due) == 0 {
		return
	}
	logger.Debug("resuming pending deliveries", zap.Int("count", len(due)))
	for _, rec := range due {
		s.engine.Resume(rec.DeliveryID)
	}
}
