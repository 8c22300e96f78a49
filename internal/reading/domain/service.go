package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/comfortstays/pgbilling/internal/charge/domain"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Response, error)
	Update(ctx context.Context, req UpdateRequest) (*Response, error)
	Get(ctx context.Context, id string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
	Recompute(ctx context.Context, id string) (*Response, error)
}

// CreateRequest records current meter units keyed by room id.
type CreateRequest struct {
	Year        int                `json:"year"`
	Month       int                `json:"month"`
	ReadingDate *time.Time         `json:"reading_date"`
	Notes       string             `json:"notes"`
	Rooms       map[string]float64 `json:"rooms"`
}

type UpdateRequest struct {
	ID          string             `json:"-"`
	Year        *int               `json:"year,omitempty"`
	Month       *int               `json:"month,omitempty"`
	ReadingDate *time.Time         `json:"reading_date,omitempty"`
	Notes       *string            `json:"notes,omitempty"`
	Rooms       map[string]float64 `json:"rooms,omitempty"`
}

type ListRequest struct {
	RoomID string `form:"room_id"`
	Year   *int   `form:"year"`
	Limit  int    `form:"limit"`
}

type RoomResponse struct {
	RoomID          string  `json:"room_id"`
	PreviousUnits   float64 `json:"previous_units"`
	CurrentUnits    float64 `json:"current_units"`
	UnitsConsumed   float64 `json:"units_consumed"`
	TotalBill       float64 `json:"total_bill"`
	BaselineMissing bool    `json:"baseline_missing"`
}

type Response struct {
	ID          string                `json:"id"`
	Year        int                   `json:"year"`
	Month       int                   `json:"month"`
	ReadingDate time.Time             `json:"reading_date"`
	Notes       string                `json:"notes"`
	Rooms       []RoomResponse        `json:"rooms"`
	Charges     []chargedomain.Charge `json:"charges,omitempty"`
	// StaleReadings lists later readings whose baseline changed with this
	// edit. They keep their charges until recomputed.
	StaleReadings []string  `json:"stale_readings,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

var (
	ErrInvalidID     = errors.New("invalid_id")
	ErrNotFound      = errors.New("reading_not_found")
	ErrNoRooms       = errors.New("no_rooms")
	ErrUnknownRoom   = errors.New("unknown_room")
	ErrRoomNotAC     = errors.New("room_not_ac_enabled")
	ErrNegativeUnits = errors.New("negative_units")
	ErrPeriodTaken   = errors.New("reading_exists_for_period")
	ErrFutureReading = errors.New("reading_date_in_future")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
