package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/comfortstays/pgbilling/internal/clock"
	occupancydomain "github.com/comfortstays/pgbilling/internal/occupancy/domain"
	"github.com/comfortstays/pgbilling/internal/proration"
	roomdomain "github.com/comfortstays/pgbilling/internal/room/domain"
	"github.com/comfortstays/pgbilling/pkg/db/option"
	"github.com/comfortstays/pgbilling/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  occupancydomain.Repository
	Rooms roomdomain.Service
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  occupancydomain.Repository
	rooms roomdomain.Service

	history repository.Repository[occupancydomain.BedHistory]
}

func New(p Params) *Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("occupancy.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		rooms: p.Rooms,

		history: repository.ProvideStore[occupancydomain.BedHistory](p.DB),
	}
}

// SyncBeds creates any bed the room catalog declares that is not stored yet.
// Existing beds are never removed, so shrinking a room keeps its history.
func (s *Service) SyncBeds(ctx context.Context) (int, error) {
	created := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		for _, room := range s.rooms.List() {
			beds, err := s.repo.ListByRoom(ctx, tx, room.ID)
			if err != nil {
				return err
			}
			existing := make(map[int]struct{}, len(beds))
			for _, bed := range beds {
				existing[bed.BedNumber] = struct{}{}
			}
			for number := 1; number <= room.BedCount; number++ {
				if _, ok := existing[number]; ok {
					continue
				}
				bed := &occupancydomain.Bed{
					ID:        s.genID.Generate(),
					RoomID:    room.ID,
					BedNumber: number,
					CreatedAt: now,
					UpdatedAt: now,
				}
				if err := s.repo.Insert(ctx, tx, bed); err != nil {
					return err
				}
				created++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if created > 0 {
		s.log.Info("beds synced with room catalog", zap.Int("created", created))
	}
	return created, nil
}

func (s *Service) ListBeds(ctx context.Context, roomID string) ([]occupancydomain.Bed, error) {
	if _, err := s.rooms.Get(roomID); err != nil {
		return nil, err
	}
	beds, err := s.repo.ListByRoom(ctx, s.db, roomID)
	if err != nil {
		return nil, err
	}
	if beds == nil {
		beds = []occupancydomain.Bed{}
	}
	return beds, nil
}

func (s *Service) GetBed(ctx context.Context, id string) (*occupancydomain.Bed, error) {
	bedID, err := occupancydomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, occupancydomain.ErrInvalidID
	}
	bed, err := s.repo.FindByID(ctx, s.db, bedID)
	if err != nil {
		return nil, err
	}
	if bed == nil {
		return nil, occupancydomain.ErrNotFound
	}
	return bed, nil
}

// AssignOccupant places an occupant on a vacant bed, or edits the current
// occupant's details when the bed is already taken.
func (s *Service) AssignOccupant(ctx context.Context, req occupancydomain.AssignRequest) (*occupancydomain.Bed, error) {
	name := strings.TrimSpace(req.OccupantName)
	if name == "" {
		return nil, occupancydomain.ErrInvalidOccupantName
	}
	if req.Rent < 0 || req.Deposit < 0 {
		return nil, occupancydomain.ErrInvalidAmount
	}
	bed, err := s.GetBed(ctx, req.BedID)
	if err != nil {
		return nil, err
	}

	// Editing the current occupant keeps their check-in unless a new one is given.
	checkIn := dayPtr(req.CheckInDate)
	if checkIn == nil && bed.IsOccupied {
		checkIn = bed.CheckInDate
	}
	if checkIn == nil {
		today := clock.Today(s.clock)
		checkIn = &today
	}
	checkOut := dayPtr(req.CheckOutDate)
	if checkOut != nil && checkOut.Before(*checkIn) {
		return nil, occupancydomain.ErrInvalidDates
	}

	if !bed.IsOccupied {
		bed.OccupantID = s.genID.Generate()
		bed.IsOccupied = true
	}
	bed.OccupantName = name
	bed.OccupantPhone = strings.TrimSpace(req.OccupantPhone)
	bed.OccupantEmail = strings.TrimSpace(req.OccupantEmail)
	bed.Rent = req.Rent
	bed.Deposit = req.Deposit
	bed.CheckInDate = checkIn
	bed.CheckOutDate = checkOut
	bed.Notes = strings.TrimSpace(req.Notes)
	bed.UpdatedAt = s.clock.Now().UTC()

	if err := s.repo.UpdateOccupant(ctx, s.db, bed); err != nil {
		return nil, err
	}

	s.log.Info("occupant assigned",
		zap.String("room_id", bed.RoomID),
		zap.Int("bed_number", bed.BedNumber),
		zap.String("occupant_id", bed.OccupantID.String()),
	)
	return bed, nil
}

// Vacate ends the current tenure, records it in the bed history and frees
// the bed. The checkout date defaults to today.
func (s *Service) Vacate(ctx context.Context, req occupancydomain.VacateRequest) (*occupancydomain.BedHistory, error) {
	bed, err := s.GetBed(ctx, req.BedID)
	if err != nil {
		return nil, err
	}
	if !bed.IsOccupied {
		return nil, occupancydomain.ErrBedVacant
	}

	checkOut := dayPtr(req.CheckOutDate)
	if checkOut == nil {
		today := clock.Today(s.clock)
		checkOut = &today
	}
	if bed.CheckInDate != nil && checkOut.Before(*bed.CheckInDate) {
		return nil, occupancydomain.ErrInvalidDates
	}

	var entry *occupancydomain.BedHistory
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.moveToHistory(ctx, tx, *bed, *checkOut, occupancydomain.MoveReasonManual)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *Service) History(ctx context.Context, roomID string) ([]occupancydomain.BedHistory, error) {
	if _, err := s.rooms.Get(roomID); err != nil {
		return nil, err
	}
	rows, err := s.history.Find(ctx,
		&occupancydomain.BedHistory{RoomID: roomID},
		option.WithSortBy(option.QuerySortBy{
			Allow:   map[string]bool{"check_out_date": true},
			Default: "check_out_date",
		}),
	)
	if err != nil {
		return nil, err
	}
	out := make([]occupancydomain.BedHistory, 0, len(rows))
	for _, row := range rows {
		out = append(out, *row)
	}
	return out, nil
}

// RoomSpans lists every tenure that bills against roomID for the month,
// with the days each one covers.
func (s *Service) RoomSpans(ctx context.Context, roomID string, year, month int) ([]occupancydomain.SpanResponse, error) {
	period, err := proration.NewPeriod(year, month)
	if err != nil {
		return nil, err
	}
	if _, err := s.rooms.Get(roomID); err != nil {
		return nil, err
	}

	beds, err := s.repo.ListOccupied(ctx, s.db, roomID)
	if err != nil {
		return nil, err
	}
	history, err := s.historyOverlapping(ctx, s.db, roomID, period)
	if err != nil {
		return nil, err
	}

	out := make([]occupancydomain.SpanResponse, 0, len(beds)+len(history))
	for _, bed := range beds {
		span := spanFromBed(bed)
		out = append(out, occupancydomain.SpanResponse{
			Span:          span,
			RoomID:        roomID,
			Current:       true,
			OccupancyDays: proration.OccupancyDaysInMonth(span, period),
		})
	}
	for _, entry := range history {
		span := spanFromHistory(*entry)
		out = append(out, occupancydomain.SpanResponse{
			Span:          span,
			RoomID:        roomID,
			OccupancyDays: proration.OccupancyDaysInMonth(span, period),
		})
	}
	return out, nil
}

// RunAutomaticCheckouts vacates every bed whose checkout date is strictly
// before the calendar day of asOf.
func (s *Service) RunAutomaticCheckouts(ctx context.Context, asOf time.Time) (int, error) {
	day := proration.Day(asOf)
	beds, err := s.repo.ListCheckedOutBefore(ctx, s.db, day)
	if err != nil {
		return 0, err
	}
	if len(beds) == 0 {
		return 0, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, bed := range beds {
			if _, err := s.moveToHistory(ctx, tx, bed, *bed.CheckOutDate, occupancydomain.MoveReasonAutoCheckout); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("automatic checkouts processed",
		zap.Int("count", len(beds)),
		zap.Time("as_of", day),
	)
	return len(beds), nil
}

func (s *Service) moveToHistory(ctx context.Context, tx *gorm.DB, bed occupancydomain.Bed, checkOut time.Time, reason string) (*occupancydomain.BedHistory, error) {
	now := s.clock.Now().UTC()
	entry := &occupancydomain.BedHistory{
		ID:            s.genID.Generate(),
		BedID:         bed.ID,
		RoomID:        bed.RoomID,
		BedNumber:     bed.BedNumber,
		OccupantID:    bed.OccupantID,
		OccupantName:  bed.OccupantName,
		OccupantPhone: bed.OccupantPhone,
		CheckInDate:   bed.CheckInDate,
		CheckOutDate:  proration.Day(checkOut),
		Reason:        reason,
		MovedAt:       now,
	}
	if err := s.history.WithTrx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}
	if err := s.repo.Clear(ctx, tx, bed.ID, now); err != nil {
		return nil, err
	}

	s.log.Info("occupant moved to history",
		zap.String("room_id", bed.RoomID),
		zap.Int("bed_number", bed.BedNumber),
		zap.String("occupant_id", bed.OccupantID.String()),
		zap.String("reason", reason),
	)
	return entry, nil
}

func (s *Service) historyOverlapping(ctx context.Context, db *gorm.DB, roomID string, period proration.Period) ([]*occupancydomain.BedHistory, error) {
	return s.history.WithTrx(db).Find(ctx,
		&occupancydomain.BedHistory{RoomID: roomID},
		option.ApplyOperator(option.Condition{
			Field:    "check_out_date",
			Operator: option.GTE,
			Value:    period.Start(),
		}),
		option.WithSortBy(option.QuerySortBy{
			Allow:   map[string]bool{"moved_at": true},
			OrderBy: "asc",
			Default: "moved_at",
		}),
	)
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	d := proration.Day(*t)
	return &d
}
