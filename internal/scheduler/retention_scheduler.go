package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/STRATINT/newsdesk/internal/ingestion"
)

// ArticleCleaner deletes articles collected before now minus days.
type ArticleCleaner interface {
	CleanupOlderThan(ctx context.Context, days int, now time.Time) (int64, error)
}

// CleanupObserver is notified of every successful cleanup.
type CleanupObserver interface {
	ObserveCleanup(deleted int64)
}

// RetentionScheduler deletes expired articles on a fixed interval.
type RetentionScheduler struct {
	store    ArticleCleaner
	days     int
	interval time.Duration
	observer CleanupObserver
	logger   *slog.Logger
	now      func() time.Time
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewRetentionScheduler keeps days of articles, checking every interval. observer may
// be nil.
func NewRetentionScheduler(store ArticleCleaner, days int, interval time.Duration, observer CleanupObserver, logger *slog.Logger) *RetentionScheduler {
	return &RetentionScheduler{
		store:    store,
		days:     days,
		interval: interval,
		observer: observer,
		logger:   logger,
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start cleans up immediately and then on every tick until Stop or ctx cancellation.
func (s *RetentionScheduler) Start(ctx context.Context) {
	s.logger.Info("starting retention scheduler", "interval", s.interval, "days", s.days)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runScheduled(ctx)

	for {
		select {
		case <-ticker.C:
			s.runScheduled(ctx)
		case <-s.stopChan:
			s.logger.Info("retention scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("retention scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler. It is safe to call more than once.
func (s *RetentionScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *RetentionScheduler) runScheduled(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := s.Cleanup(ctx, s.days); err != nil {
		s.logger.Error("scheduled cleanup failed", "days", s.days, "error", err)
	}
}

// Cleanup deletes articles older than days right away. It backs both the scheduler
// and the maintenance endpoint.
func (s *RetentionScheduler) Cleanup(ctx context.Context, days int) (int64, error) {
	now := s.now().UTC()
	deleted, err := s.store.CleanupOlderThan(ctx, days, now)
	if err != nil {
		return 0, err
	}
	if s.observer != nil {
		s.observer.ObserveCleanup(deleted)
	}
	s.logger.Info("expired articles deleted",
		"deleted", deleted,
		"days", days,
		"cutoff", ingestion.RetentionCutoff(days, now).Format(time.RFC3339),
	)
	return deleted, nil
}
