package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/STRATINT/newsdesk/internal/ingestion"
)

// PassRunner executes one collection pass.
type PassRunner interface {
	RunOnce(ctx context.Context, filter ingestion.SourceFilter) (*ingestion.PassResult, error)
}

// CollectionScheduler triggers a collection pass over every enabled source on a fixed
// interval.
type CollectionScheduler struct {
	runner   PassRunner
	lock     Locker
	interval time.Duration
	logger   *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
}

// CollectionOption customises a CollectionScheduler.
type CollectionOption func(*CollectionScheduler)

// WithLock makes every tick take lock first; a tick that loses the lock is skipped.
func WithLock(lock Locker) CollectionOption {
	return func(s *CollectionScheduler) { s.lock = lock }
}

// NewCollectionScheduler creates a scheduler firing every interval.
func NewCollectionScheduler(runner PassRunner, interval time.Duration, logger *slog.Logger, opts ...CollectionOption) *CollectionScheduler {
	s := &CollectionScheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs a pass immediately and then on every tick. It blocks until Stop is called
// or ctx is cancelled.
func (s *CollectionScheduler) Start(ctx context.Context) {
	s.logger.Info("starting collection scheduler", "interval", s.interval, "locked", s.lock != nil)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ticker.C:
			s.tick(ctx)
		case <-s.stopChan:
			s.logger.Info("collection scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("collection scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler. It is safe to call more than once.
func (s *CollectionScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

func (s *CollectionScheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if s.lock != nil {
		release, ok, err := s.lock.TryLock(ctx)
		if err != nil {
			s.logger.Error("failed to acquire collection lock", "error", err)
			return
		}
		if !ok {
			s.logger.Info("collection pass skipped, another instance holds the lock")
			return
		}
		defer func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := release(releaseCtx); err != nil {
				s.logger.Warn("failed to release collection lock", "error", err)
			}
		}()
	}

	result, err := s.runner.RunOnce(ctx, ingestion.SourceFilter{})
	switch {
	case errors.Is(err, ingestion.ErrPassInProgress):
		s.logger.Info("collection pass skipped, a pass is already running")
	case err != nil:
		s.logger.Error("scheduled collection pass failed", "error", err)
	case result.DeliveryError != nil:
		s.logger.Warn("scheduled collection pass delivered partially", "pass_id", result.PassID, "error", result.DeliveryError)
	}
}
