// Package jobs runs background maintenance on a ticker.
package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tutoring-api/internal/logger"
	"tutoring-api/internal/metrics"
)

// Booker is the part of the booking workflow the sweeper drives.
type Booker interface {
	Expire(ctx context.Context, limit int) (int, error)
	Reconcile(ctx context.Context, limit int) (int, error)
}

type SweeperConfig struct {
	Interval time.Duration
	Timeout  time.Duration
	Batch    int
}

// Sweeper times out stale unpaid booking attempts and retries paid ones whose
// appointment write has not landed yet.
type Sweeper struct {
	b   Booker
	cfg SweeperConfig
}

func NewSweeper(b Booker, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	return &Sweeper{b: b, cfg: cfg}
}

// Run sweeps on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass bounded by the configured timeout.
func (s *Sweeper) Sweep(ctx context.Context) {
	log := logger.FromContext(ctx)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	expired, err := s.b.Expire(ctx, s.cfg.Batch)
	metrics.SweptAttempts.WithLabelValues("expired").Add(float64(expired))
	if err != nil {
		log.Error("sweeper expire failed", zap.Error(err))
	}

	reconciled, err := s.b.Reconcile(ctx, s.cfg.Batch)
	metrics.SweptAttempts.WithLabelValues("reconciled").Add(float64(reconciled))
	if err != nil {
		log.Error("sweeper reconcile failed", zap.Error(err))
	}

	if expired > 0 || reconciled > 0 {
		log.Info("sweeper pass", zap.Int("expired", expired), zap.Int("reconciled", reconciled))
	}
}
