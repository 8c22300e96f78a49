package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/comfortstays/pgbilling/internal/proration"
	"gorm.io/gorm"
)

type Service interface {
	SyncBeds(ctx context.Context) (int, error)
	ListBeds(ctx context.Context, roomID string) ([]Bed, error)
	GetBed(ctx context.Context, id string) (*Bed, error)
	AssignOccupant(ctx context.Context, req AssignRequest) (*Bed, error)
	Vacate(ctx context.Context, req VacateRequest) (*BedHistory, error)
	History(ctx context.Context, roomID string) ([]BedHistory, error)
	RoomSpans(ctx context.Context, roomID string, year, month int) ([]SpanResponse, error)
	RunAutomaticCheckouts(ctx context.Context, asOf time.Time) (int, error)
}

// SpanReader derives billing spans for a room. It runs on the caller's
// connection so it can take part in an open transaction.
type SpanReader interface {
	SpansForRoom(ctx context.Context, db *gorm.DB, roomID string, period proration.Period) ([]proration.Span, error)
}

type AssignRequest struct {
	BedID         string     `json:"-"`
	OccupantName  string     `json:"occupant_name"`
	OccupantPhone string     `json:"occupant_phone"`
	OccupantEmail string     `json:"occupant_email"`
	Rent          float64    `json:"rent"`
	Deposit       float64    `json:"deposit"`
	CheckInDate   *time.Time `json:"check_in_date"`
	CheckOutDate  *time.Time `json:"check_out_date"`
	Notes         string     `json:"notes"`
}

type VacateRequest struct {
	BedID        string     `json:"-"`
	CheckOutDate *time.Time `json:"check_out_date"`
}

type SpanResponse struct {
	proration.Span
	RoomID        string `json:"room_id"`
	Current       bool   `json:"current"`
	OccupancyDays int    `json:"occupancy_days"`
}

var (
	ErrInvalidID           = errors.New("invalid_id")
	ErrNotFound            = errors.New("bed_not_found")
	ErrInvalidOccupantName = errors.New("invalid_occupant_name")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidDates        = errors.New("check_out_before_check_in")
	ErrBedVacant           = errors.New("bed_vacant")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
