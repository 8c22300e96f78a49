package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	SweepReasonDeadlineExceeded = "deadline_exceeded"
	SweepReasonLockTimeout      = "db_lock_timeout"
	SweepReasonSerialization    = "serialization_failure"
	SweepReasonNotFound         = "not_found"
	SweepReasonUnknown          = "unknown"
)

// SweepMetrics captures background checkout sweep health.
type SweepMetrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	errors    *prometheus.CounterVec
	processed *prometheus.CounterVec
	skipped   *prometheus.CounterVec
}

func NewSweepMetrics(cfg Config) (*SweepMetrics, error) {
	return newSweepMetrics(prometheus.DefaultRegisterer, cfg)
}

func newSweepMetrics(registerer prometheus.Registerer, cfg Config) (*SweepMetrics, error) {
	labels := constLabels(cfg)
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "pgbilling_sweep_runs_total",
		Help:        "Background sweep runs by job.",
		ConstLabels: labels,
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "pgbilling_sweep_duration_seconds",
		Help:        "Background sweep latency by job.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: labels,
	}, []string{"job"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "pgbilling_sweep_errors_total",
		Help:        "Background sweep errors by low-cardinality reason.",
		ConstLabels: labels,
	}, []string{"job", "reason"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "pgbilling_sweep_processed_total",
		Help:        "Items handled by background sweeps.",
		ConstLabels: labels,
	}, []string{"job"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "pgbilling_sweep_skipped_total",
		Help:        "Sweep runs skipped because another instance held the lock.",
		ConstLabels: labels,
	}, []string{"job"})

	var err error
	if runs, err = register(registerer, runs); err != nil {
		return nil, err
	}
	if duration, err = register(registerer, duration); err != nil {
		return nil, err
	}
	if errs, err = register(registerer, errs); err != nil {
		return nil, err
	}
	if processed, err = register(registerer, processed); err != nil {
		return nil, err
	}
	if skipped, err = register(registerer, skipped); err != nil {
		return nil, err
	}

	return &SweepMetrics{
		runs:      runs,
		duration:  duration,
		errors:    errs,
		processed: processed,
		skipped:   skipped,
	}, nil
}

func (m *SweepMetrics) ObserveRun(job string, elapsed time.Duration, processed int, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if processed > 0 {
		m.processed.WithLabelValues(job).Add(float64(processed))
	}
	if err != nil {
		m.errors.WithLabelValues(job, ClassifySweepError(err)).Inc()
	}
}

func (m *SweepMetrics) IncSkipped(job string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(job).Inc()
}

// ClassifySweepError maps err to a bounded reason label.
func ClassifySweepError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return SweepReasonDeadlineExceeded
	case errors.Is(err, gorm.ErrRecordNotFound):
		return SweepReasonNotFound
	case hasPGCode(err, "55P03"):
		return SweepReasonLockTimeout
	case hasPGCode(err, "40001"), hasPGCode(err, "40P01"):
		return SweepReasonSerialization
	default:
		return SweepReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
