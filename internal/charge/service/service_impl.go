package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/comfortstays/pgbilling/internal/charge/domain"
	"github.com/comfortstays/pgbilling/internal/clock"
	"github.com/comfortstays/pgbilling/internal/config"
	obslogger "github.com/comfortstays/pgbilling/internal/observability/logger"
	"github.com/comfortstays/pgbilling/internal/observability/metrics"
	occupancydomain "github.com/comfortstays/pgbilling/internal/occupancy/domain"
	"github.com/comfortstays/pgbilling/internal/proration"
	readingdomain "github.com/comfortstays/pgbilling/internal/reading/domain"
	roomdomain "github.com/comfortstays/pgbilling/internal/room/domain"
	"github.com/comfortstays/pgbilling/pkg/db"
	"github.com/comfortstays/pgbilling/pkg/db/option"
	"github.com/comfortstays/pgbilling/pkg/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   config.Config
	Repo     chargedomain.Repository
	Readings readingdomain.Repository
	Spans    occupancydomain.SpanReader
	Rooms    roomdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	tracer  trace.Tracer
	metrics *metrics.Metrics

	maxAttempts  int
	retryBackoff time.Duration

	repo     chargedomain.Repository
	store    repository.Repository[chargedomain.Charge]
	readings readingdomain.Repository
	spans    occupancydomain.SpanReader
	rooms    roomdomain.Service
}

func New(p Params) chargedomain.Service {
	maxAttempts := p.Config.Charges.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("charge.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		tracer:  otel.Tracer("pgbilling/charge"),
		metrics: p.Metrics,

		maxAttempts:  maxAttempts,
		retryBackoff: p.Config.Charges.RetryBackoff,

		repo:     p.Repo,
		store:    repository.ProvideStore[chargedomain.Charge](p.DB),
		readings: p.Readings,
		spans:    p.Spans,
		rooms:    p.Rooms,
	}
}

func (s *Service) Reconcile(ctx context.Context, readingID snowflake.ID, fn func(tx *gorm.DB) error) error {
	var (
		err     error
		attempt int
	)
retry:
	for attempt = 1; attempt <= s.maxAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if !db.IsRetryable(err) || attempt == s.maxAttempts {
			break
		}

		wait := s.retryBackoff * time.Duration(attempt)
		s.log.Warn("charge reconcile failed, retrying",
			zap.String("reading_id", readingID.String()),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break retry
		case <-time.After(wait):
		}
	}

	if isRequestError(err) {
		return err
	}

	s.metrics.RecordPersistenceFailure(ctx, persistenceReason(err))
	s.log.Error("charges not persisted",
		zap.String("reading_id", readingID.String()),
		zap.Int("attempts", attempt),
		zap.Error(err),
	)
	return &chargedomain.PersistenceError{ReadingID: readingID, Attempts: attempt, Err: err}
}

func (s *Service) MaterializeTx(ctx context.Context, tx *gorm.DB, readingID snowflake.ID) ([]chargedomain.Charge, error) {
	ctx, span := s.tracer.Start(ctx, "charge.materialize",
		trace.WithAttributes(attribute.String("reading_id", readingID.String())),
	)
	defer span.End()

	reading, err := s.readings.FindByID(ctx, tx, readingID)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		return nil, chargedomain.ErrReadingMissing
	}

	tariff := s.rooms.Tariff()
	now := s.clock.Now().UTC()
	charges := []chargedomain.Charge{}
	for i := range reading.Rooms {
		entry := &reading.Rooms[i]
		room, err := s.rooms.Get(entry.RoomID)
		if err != nil || !room.HasAC {
			s.log.Warn("reading references a room that is not billed for AC",
				zap.String("reading_id", reading.ID.String()),
				zap.String("room_id", entry.RoomID),
			)
			continue
		}

		roomCharges, err := s.materializeRoom(ctx, tx, reading, entry, tariff.RatePerUnit, now)
		if err != nil {
			return nil, err
		}
		charges = append(charges, roomCharges...)
	}

	total, collected, err := s.repo.CountByReading(ctx, tx, reading.ID)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		if collected > 0 {
			s.log.Warn("replacing collected charges, collection status resets to pending",
				zap.String("reading_id", reading.ID.String()),
				zap.Int64("collected", collected),
			)
		}
		if _, err := s.repo.DeleteByReading(ctx, tx, reading.ID); err != nil {
			return nil, err
		}
	}
	if err := s.repo.BatchInsert(ctx, tx, charges); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("charges.count", len(charges)),
		attribute.Int64("charges.replaced", total),
	)
	return charges, nil
}

// materializeRoom derives one room's consumption from the preceding reading
// and splits the bill across the room's occupants.
func (s *Service) materializeRoom(
	ctx context.Context,
	tx *gorm.DB,
	reading *readingdomain.MeterReading,
	entry *readingdomain.ReadingRoom,
	ratePerUnit float64,
	now time.Time,
) ([]chargedomain.Charge, error) {
	previous, err := s.readings.FindPrevious(ctx, tx, entry.RoomID, reading.Year, reading.Month)
	if err != nil {
		return nil, err
	}

	entry.PreviousUnits = 0
	entry.BaselineMissing = previous == nil
	if previous != nil {
		entry.PreviousUnits = previous.CurrentUnits
	} else {
		s.metrics.RecordMissingBaseline(ctx)
		s.log.Warn("no previous reading, billing full meter value",
			zap.String("reading_id", reading.ID.String()),
			zap.String("room_id", entry.RoomID),
			obslogger.Period(reading.Year, reading.Month),
			zap.Float64("current_units", entry.CurrentUnits),
		)
	}
	entry.UnitsConsumed = proration.UnitsConsumed(entry.PreviousUnits, entry.CurrentUnits)
	entry.Calculation = datatypes.JSON("{}")

	var charges []chargedomain.Charge
	if entry.UnitsConsumed > 0 {
		period := proration.Period{Year: reading.Year, Month: reading.Month}
		spans, err := s.spans.SpansForRoom(ctx, tx, entry.RoomID, period)
		if err != nil {
			return nil, err
		}

		totalBill := proration.TotalBill(entry.UnitsConsumed, ratePerUnit)
		calc, err := proration.ComputeFairDistribution(entry.RoomID, reading.Year, reading.Month, totalBill, spans)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(calc); err == nil {
			entry.Calculation = raw
		}

		charges = make([]chargedomain.Charge, 0, len(calc.Shares))
		for _, share := range calc.Shares {
			charges = append(charges, chargedomain.Charge{
				ID:                 s.genID.Generate(),
				ReadingID:          reading.ID,
				RoomID:             entry.RoomID,
				BedID:              share.BedID,
				OccupantID:         share.OccupantID,
				OccupantName:       share.OccupantName,
				Year:               reading.Year,
				Month:              reading.Month,
				UnitsConsumed:      entry.UnitsConsumed,
				TotalBill:          calc.TotalBill,
				OccupancyDays:      share.OccupancyDays,
				TotalOccupancyDays: calc.TotalOccupancyDays,
				FairShare:          share.FairShare,
				DailyRate:          share.DailyRate,
				DailyRatePerUnit:   calc.DailyRatePerUnit,
				AveragePerPerson:   calc.AveragePerPerson,
				Status:             chargedomain.StatusPending,
				CreatedAt:          now,
			})
		}
		s.metrics.RecordChargesMaterialized(ctx, entry.RoomID, len(charges), calc.TotalBill)
	}

	if err := s.readings.UpdateRoom(ctx, tx, entry); err != nil {
		return nil, err
	}
	return charges, nil
}

func (s *Service) Materialize(ctx context.Context, readingID string) ([]chargedomain.Charge, error) {
	id, err := chargedomain.ParseID(strings.TrimSpace(readingID))
	if err != nil {
		return nil, chargedomain.ErrInvalidID
	}

	var charges []chargedomain.Charge
	err = s.Reconcile(ctx, id, func(tx *gorm.DB) error {
		var err error
		charges, err = s.MaterializeTx(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("charges materialized",
		zap.String("reading_id", id.String()),
		zap.Int("count", len(charges)),
	)
	return charges, nil
}

func (s *Service) ListByReading(ctx context.Context, readingID snowflake.ID) ([]chargedomain.Charge, error) {
	rows, err := s.store.Find(ctx, &chargedomain.Charge{ReadingID: readingID}, sortByID())
	if err != nil {
		return nil, err
	}
	return deref(rows), nil
}

func (s *Service) List(ctx context.Context, req chargedomain.ListRequest) ([]chargedomain.Charge, error) {
	filter := &chargedomain.Charge{RoomID: strings.TrimSpace(req.RoomID)}
	if value := strings.TrimSpace(req.ReadingID); value != "" {
		id, err := chargedomain.ParseID(value)
		if err != nil {
			return nil, chargedomain.ErrInvalidID
		}
		filter.ReadingID = id
	}
	switch status := chargedomain.Status(strings.ToLower(strings.TrimSpace(req.Status))); status {
	case "":
	case chargedomain.StatusPending, chargedomain.StatusCollected:
		filter.Status = status
	default:
		return nil, chargedomain.ErrInvalidStatus
	}

	opts := []option.QueryOption{sortByID()}
	if req.Year != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "year", Operator: option.EQ, Value: *req.Year}))
	}
	if req.Month != nil {
		if *req.Month < 0 || *req.Month > 11 {
			return nil, proration.ErrInvalidMonth
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "month", Operator: option.EQ, Value: *req.Month}))
	}

	rows, err := s.store.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return deref(rows), nil
}

func (s *Service) Get(ctx context.Context, id string) (*chargedomain.Charge, error) {
	chargeID, err := chargedomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, chargedomain.ErrInvalidID
	}
	charge, err := s.repo.FindByID(ctx, s.db, chargeID)
	if err != nil {
		return nil, err
	}
	if charge == nil {
		return nil, chargedomain.ErrNotFound
	}
	return charge, nil
}

// MarkCollected records that the occupant paid. Collecting twice is a no-op.
func (s *Service) MarkCollected(ctx context.Context, id string) (*chargedomain.Charge, error) {
	charge, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if charge.Status == chargedomain.StatusCollected {
		return charge, nil
	}

	now := s.clock.Now().UTC()
	if err := s.repo.MarkCollected(ctx, s.db, charge.ID, now); err != nil {
		return nil, err
	}
	s.metrics.RecordChargeCollected(ctx, charge.RoomID)

	charge.Status = chargedomain.StatusCollected
	charge.CollectedAt = &now
	return charge, nil
}

func (s *Service) Summary(ctx context.Context, year, month int) (*chargedomain.Summary, error) {
	if _, err := proration.NewPeriod(year, month); err != nil {
		return nil, err
	}

	reading, err := s.readings.FindByPeriod(ctx, s.db, year, month)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.SummarizeByRoom(ctx, s.db, year, month)
	if err != nil {
		return nil, err
	}
	byRoom := make(map[string]chargedomain.RoomTotals, len(totals))
	for _, t := range totals {
		byRoom[t.RoomID] = t
	}

	summary := &chargedomain.Summary{
		Year:     year,
		Month:    month,
		Currency: s.rooms.Tariff().Currency,
		Rooms:    []chargedomain.RoomSummary{},
	}
	if reading != nil {
		summary.ReadingID = reading.ID.String()
	}
	for _, room := range s.rooms.ACRooms() {
		row := chargedomain.RoomSummary{RoomTotals: byRoom[room.ID]}
		row.RoomID = room.ID
		if reading != nil {
			if entry := reading.Room(room.ID); entry != nil {
				row.UnitsConsumed = entry.UnitsConsumed
				row.BaselineMissing = entry.BaselineMissing
			}
		}
		summary.Rooms = append(summary.Rooms, row)
		summary.Billed += row.Billed
		summary.Collected += row.Collected
		summary.Pending += row.Pending
	}
	return summary, nil
}

func sortByID() option.QueryOption {
	return option.WithSortBy(option.QuerySortBy{
		Allow:   map[string]bool{"id": true},
		OrderBy: "asc",
		Default: "id",
	})
}

func deref(rows []*chargedomain.Charge) []chargedomain.Charge {
	out := make([]chargedomain.Charge, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out
}

// isRequestError reports failures caused by the input or the caller rather
// than the database; those are returned unchanged.
func isRequestError(err error) bool {
	for _, target := range []error{
		context.Canceled,
		context.DeadlineExceeded,
		chargedomain.ErrReadingMissing,
		proration.ErrInvalidMonth,
		proration.ErrInvalidYear,
		proration.ErrNegativeBill,
		proration.ErrInvalidSpan,
		readingdomain.ErrPeriodTaken,
		readingdomain.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func persistenceReason(err error) string {
	if db.IsRetryable(err) {
		return "retries_exhausted"
	}
	return "db_error"
}
