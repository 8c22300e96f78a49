package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/comfortstays/pgbilling/internal/charge/domain"
	"github.com/comfortstays/pgbilling/internal/clock"
	obslogger "github.com/comfortstays/pgbilling/internal/observability/logger"
	"github.com/comfortstays/pgbilling/internal/observability/metrics"
	"github.com/comfortstays/pgbilling/internal/proration"
	readingdomain "github.com/comfortstays/pgbilling/internal/reading/domain"
	roomdomain "github.com/comfortstays/pgbilling/internal/room/domain"
	"github.com/comfortstays/pgbilling/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 24
	maxListLimit     = 120
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    readingdomain.Repository
	Charges chargedomain.Service
	Rooms   roomdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics

	repo    readingdomain.Repository
	charges chargedomain.Service
	rooms   roomdomain.Service
}

func New(p Params) readingdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("reading.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,

		repo:    p.Repo,
		charges: p.Charges,
		rooms:   p.Rooms,
	}
}

// Create stores a reading and materializes its charges in one transaction.
func (s *Service) Create(ctx context.Context, req readingdomain.CreateRequest) (*readingdomain.Response, error) {
	if _, err := proration.NewPeriod(req.Year, req.Month); err != nil {
		return nil, err
	}
	readingDate, err := s.readingDate(req.ReadingDate)
	if err != nil {
		return nil, err
	}
	rooms, err := s.roomEntries(req.Rooms)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, readingdomain.ErrNoRooms
	}

	existing, err := s.repo.FindByPeriod(ctx, s.db, req.Year, req.Month)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, readingdomain.ErrPeriodTaken
	}

	now := s.clock.Now().UTC()
	reading := &readingdomain.MeterReading{
		ID:          s.genID.Generate(),
		Year:        req.Year,
		Month:       req.Month,
		ReadingDate: readingDate,
		Notes:       strings.TrimSpace(req.Notes),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var charges []chargedomain.Charge
	err = s.charges.Reconcile(ctx, reading.ID, func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, reading); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return readingdomain.ErrPeriodTaken
			}
			return err
		}
		if err := s.repo.ReplaceRooms(ctx, tx, reading.ID, rooms); err != nil {
			return err
		}
		var err error
		charges, err = s.charges.MaterializeTx(ctx, tx, reading.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordReadingSaved(ctx, "create")
	s.log.Info("reading created",
		zap.String("reading_id", reading.ID.String()),
		obslogger.Period(reading.Year, reading.Month),
		zap.Int("charges", len(charges)),
	)
	return s.respond(ctx, reading.ID, charges)
}

// Update edits a reading and replaces its charge set. Later readings keep
// their stored consumption until they are recomputed; they are logged and
// listed in the response as stale.
func (s *Service) Update(ctx context.Context, req readingdomain.UpdateRequest) (*readingdomain.Response, error) {
	id, err := readingdomain.ParseID(strings.TrimSpace(req.ID))
	if err != nil {
		return nil, readingdomain.ErrInvalidID
	}
	reading, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		return nil, readingdomain.ErrNotFound
	}

	year, month := reading.Year, reading.Month
	fromYear, fromMonth := reading.Year, reading.Month
	if req.Year != nil {
		year = *req.Year
	}
	if req.Month != nil {
		month = *req.Month
	}
	if _, err := proration.NewPeriod(year, month); err != nil {
		return nil, err
	}
	if year < fromYear || (year == fromYear && month < fromMonth) {
		fromYear, fromMonth = year, month
	}
	if year != reading.Year || month != reading.Month {
		other, err := s.repo.FindByPeriod(ctx, s.db, year, month)
		if err != nil {
			return nil, err
		}
		if other != nil && other.ID != reading.ID {
			return nil, readingdomain.ErrPeriodTaken
		}
	}
	if req.ReadingDate != nil {
		readingDate, err := s.readingDate(req.ReadingDate)
		if err != nil {
			return nil, err
		}
		reading.ReadingDate = readingDate
	}
	if req.Notes != nil {
		reading.Notes = strings.TrimSpace(*req.Notes)
	}

	updates, err := s.roomEntries(req.Rooms)
	if err != nil {
		return nil, err
	}
	rooms := mergeRooms(reading.Rooms, updates)

	reading.Year = year
	reading.Month = month
	reading.UpdatedAt = s.clock.Now().UTC()

	var charges []chargedomain.Charge
	err = s.charges.Reconcile(ctx, reading.ID, func(tx *gorm.DB) error {
		if err := s.repo.Update(ctx, tx, reading); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return readingdomain.ErrPeriodTaken
			}
			return err
		}
		if err := s.repo.ReplaceRooms(ctx, tx, reading.ID, rooms); err != nil {
			return err
		}
		var err error
		charges, err = s.charges.MaterializeTx(ctx, tx, reading.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordReadingSaved(ctx, "update")
	s.log.Info("reading updated",
		zap.String("reading_id", reading.ID.String()),
		obslogger.Period(reading.Year, reading.Month),
		zap.Int("charges", len(charges)),
	)

	resp, err := s.respond(ctx, reading.ID, charges)
	if err != nil {
		return nil, err
	}
	stale, err := s.staleAfter(ctx, reading.ID, fromYear, fromMonth)
	if err != nil {
		s.log.Warn("list later readings failed", zap.String("reading_id", reading.ID.String()), zap.Error(err))
	} else if len(stale) > 0 {
		s.log.Warn("later readings need recompute",
			zap.String("reading_id", reading.ID.String()),
			zap.Strings("stale_reading_ids", stale),
		)
		resp.StaleReadings = stale
	}
	return resp, nil
}

// staleAfter lists readings later than (year, month), other than id. Their
// previous units were taken from a reading that has since changed.
func (s *Service) staleAfter(ctx context.Context, id snowflake.ID, year, month int) ([]string, error) {
	later, err := s.repo.ListLater(ctx, s.db, year, month)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, r := range later {
		if r.ID != id {
			ids = append(ids, r.ID.String())
		}
	}
	return ids, nil
}

func (s *Service) Get(ctx context.Context, id string) (*readingdomain.Response, error) {
	readingID, err := readingdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, readingdomain.ErrInvalidID
	}
	charges, err := s.charges.ListByReading(ctx, readingID)
	if err != nil {
		return nil, err
	}
	return s.respond(ctx, readingID, charges)
}

func (s *Service) List(ctx context.Context, req readingdomain.ListRequest) ([]readingdomain.Response, error) {
	roomID := strings.TrimSpace(req.RoomID)
	if roomID != "" {
		if _, err := s.rooms.Get(roomID); err != nil {
			return nil, readingdomain.ErrUnknownRoom
		}
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	readings, err := s.repo.List(ctx, s.db, readingdomain.ListFilter{
		RoomID: roomID,
		Year:   req.Year,
		Limit:  limit,
	})
	if err != nil {
		return nil, err
	}

	rate := s.rooms.Tariff().RatePerUnit
	out := make([]readingdomain.Response, 0, len(readings))
	for i := range readings {
		out = append(out, toResponse(&readings[i], rate, nil))
	}
	return out, nil
}

// Recompute rebuilds the charge set of an unchanged reading.
func (s *Service) Recompute(ctx context.Context, id string) (*readingdomain.Response, error) {
	readingID, err := readingdomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, readingdomain.ErrInvalidID
	}
	charges, err := s.charges.Materialize(ctx, readingID.String())
	if err != nil {
		if errors.Is(err, chargedomain.ErrReadingMissing) {
			return nil, readingdomain.ErrNotFound
		}
		return nil, err
	}

	s.metrics.RecordReadingSaved(ctx, "recompute")
	return s.respond(ctx, readingID, charges)
}

func (s *Service) respond(ctx context.Context, id snowflake.ID, charges []chargedomain.Charge) (*readingdomain.Response, error) {
	reading, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if reading == nil {
		return nil, readingdomain.ErrNotFound
	}
	if charges == nil {
		charges = []chargedomain.Charge{}
	}
	resp := toResponse(reading, s.rooms.Tariff().RatePerUnit, charges)
	return &resp, nil
}

func (s *Service) readingDate(value *time.Time) (time.Time, error) {
	today := clock.Today(s.clock)
	if value == nil {
		return today, nil
	}
	date := value.UTC()
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	if date.After(today) {
		return time.Time{}, readingdomain.ErrFutureReading
	}
	return date, nil
}

// roomEntries validates meter values keyed by room id. Only AC rooms carry
// a metered bill.
func (s *Service) roomEntries(values map[string]float64) ([]readingdomain.ReadingRoom, error) {
	rooms := make([]readingdomain.ReadingRoom, 0, len(values))
	for rawID, units := range values {
		roomID := strings.TrimSpace(rawID)
		room, err := s.rooms.Get(roomID)
		if err != nil {
			return nil, readingdomain.ErrUnknownRoom
		}
		if !room.HasAC {
			return nil, readingdomain.ErrRoomNotAC
		}
		if units < 0 || math.IsNaN(units) || math.IsInf(units, 0) {
			return nil, readingdomain.ErrNegativeUnits
		}
		rooms = append(rooms, readingdomain.ReadingRoom{RoomID: roomID, CurrentUnits: units})
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomID < rooms[j].RoomID })
	return rooms, nil
}

// mergeRooms overlays edited meter values on the stored ones. Derived
// columns are reset; materialization fills them again.
func mergeRooms(stored, updates []readingdomain.ReadingRoom) []readingdomain.ReadingRoom {
	byID := make(map[string]float64, len(stored)+len(updates))
	for _, room := range stored {
		byID[room.RoomID] = room.CurrentUnits
	}
	for _, room := range updates {
		byID[room.RoomID] = room.CurrentUnits
	}

	out := make([]readingdomain.ReadingRoom, 0, len(byID))
	for roomID, units := range byID {
		out = append(out, readingdomain.ReadingRoom{RoomID: roomID, CurrentUnits: units})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

func toResponse(reading *readingdomain.MeterReading, ratePerUnit float64, charges []chargedomain.Charge) readingdomain.Response {
	rooms := make([]readingdomain.RoomResponse, 0, len(reading.Rooms))
	for _, room := range reading.Rooms {
		rooms = append(rooms, readingdomain.RoomResponse{
			RoomID:          room.RoomID,
			PreviousUnits:   room.PreviousUnits,
			CurrentUnits:    room.CurrentUnits,
			UnitsConsumed:   room.UnitsConsumed,
			TotalBill:       proration.TotalBill(room.UnitsConsumed, ratePerUnit),
			BaselineMissing: room.BaselineMissing,
		})
	}
	return readingdomain.Response{
		ID:          reading.ID.String(),
		Year:        reading.Year,
		Month:       reading.Month,
		ReadingDate: reading.ReadingDate,
		Notes:       reading.Notes,
		Rooms:       rooms,
		Charges:     charges,
		CreatedAt:   reading.CreatedAt,
		UpdatedAt:   reading.UpdatedAt,
	}
}
