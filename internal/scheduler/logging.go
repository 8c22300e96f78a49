package scheduler

import (
	"context"
	"time"

	"github.com/comfortstays/pgbilling/internal/clock"
	obslogger "github.com/comfortstays/pgbilling/internal/observability/logger"
	"go.uber.org/zap"
)

// jobRun is one execution of a sweep, identified in logs by runID.
type jobRun struct {
	job       string
	runID     string
	asOf      time.Time
	startedAt time.Time
	processed int
	err       error
}

func (s *Scheduler) newJobRun(job string) *jobRun {
	return &jobRun{
		job:       job,
		runID:     s.genID.Generate().String(),
		asOf:      clock.Today(s.clock),
		startedAt: time.Now(),
	}
}

func (r *jobRun) finish(processed int, err error) {
	r.processed = max(processed, 0)
	r.err = err
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

func (s *Scheduler) logJobStart(ctx context.Context, run *jobRun) {
	s.logger(ctx).Info("scheduler.job.start",
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("as_of", run.asOf.Format(time.DateOnly)),
	)
}

func (s *Scheduler) logJobFinish(ctx context.Context, run *jobRun) {
	fields := []zap.Field{
		zap.String("job", run.job),
		zap.String("run_id", run.runID),
		zap.String("as_of", run.asOf.Format(time.DateOnly)),
		zap.Int64("duration_ms", time.Since(run.startedAt).Milliseconds()),
		zap.Int("beds_checked_out", run.processed),
	}
	if run.err != nil {
		s.logger(ctx).Warn("scheduler.job.finish", append(fields, zap.Error(run.err))...)
		return
	}
	s.logger(ctx).Info("scheduler.job.finish", fields...)
}
