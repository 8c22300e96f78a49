package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/comfortstays/pgbilling/internal/clock"
	obscontext "github.com/comfortstays/pgbilling/internal/observability/context"
	obsmetrics "github.com/comfortstays/pgbilling/internal/observability/metrics"
	occupancydomain "github.com/comfortstays/pgbilling/internal/occupancy/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobAutoCheckout = "auto_checkout"

	lockKeyPrefix = "pgbilling:scheduler:lock:"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type checkoutRunner interface {
	RunAutomaticCheckouts(ctx context.Context, asOf time.Time) (int, error)
}

type Params struct {
	fx.In

	Log       *zap.Logger
	Occupancy occupancydomain.Service
	Locker    Locker
	GenID     *snowflake.Node
	Clock     clock.Clock
	Metrics   *obsmetrics.SweepMetrics `optional:"true"`
	Config    Config                   `optional:"true"`
}

type Scheduler struct {
	log       *zap.Logger
	cfg       Config
	genID     *snowflake.Node
	clock     clock.Clock
	locker    Locker
	metrics   *obsmetrics.SweepMetrics
	checkouts checkoutRunner
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Occupancy == nil || p.Locker == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:       p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:       p.Config.withDefaults(),
		genID:     p.GenID,
		clock:     p.Clock,
		locker:    p.Locker,
		metrics:   p.Metrics,
		checkouts: p.Occupancy,
	}, nil
}

// runJob runs fn under the job's lock and a deadline. A run skipped because
// another instance holds the lock is not an error.
func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	fn func(ctx context.Context) (int, error),
) error {
	lockKey := lockKeyPrefix + name
	token, acquired, err := s.locker.TryLock(parent, lockKey, s.cfg.LockTTL)
	if err != nil {
		return fmt.Errorf("%s: acquire lock: %w", name, err)
	}
	if !acquired {
		s.metrics.IncSkipped(name)
		s.log.Debug("scheduler.job.skipped", zap.String("job", name))
		return nil
	}
	defer func() {
		// The parent may already be canceled on shutdown; release anyway.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.locker.Release(releaseCtx, lockKey, token); err != nil {
			s.log.Warn("failed to release scheduler lock", zap.String("job", name), zap.Error(err))
		}
	}()

	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	run := s.newJobRun(name)
	ctx = obscontext.WithRequestID(ctx, run.runID)
	s.logJobStart(ctx, run)

	start := s.clock.Now()
	processed, err := fn(ctx)
	run.finish(processed, err)
	s.metrics.ObserveRun(name, s.clock.Now().Sub(start), processed, err)
	s.logJobFinish(ctx, run)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce moves every bed whose checkout date has passed into history.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, JobAutoCheckout, func(ctx context.Context) (int, error) {
		return s.checkouts.RunAutomaticCheckouts(ctx, clock.Today(s.clock))
	})
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
