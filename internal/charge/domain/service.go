package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// Reconcile runs fn in one transaction, retrying retryable database
	// failures. A failure that outlives the retries is a *PersistenceError.
	Reconcile(ctx context.Context, readingID snowflake.ID, fn func(tx *gorm.DB) error) error
	// MaterializeTx replaces the charge set of a reading inside tx.
	MaterializeTx(ctx context.Context, tx *gorm.DB, readingID snowflake.ID) ([]Charge, error)
	Materialize(ctx context.Context, readingID string) ([]Charge, error)
	ListByReading(ctx context.Context, readingID snowflake.ID) ([]Charge, error)
	List(ctx context.Context, req ListRequest) ([]Charge, error)
	Get(ctx context.Context, id string) (*Charge, error)
	MarkCollected(ctx context.Context, id string) (*Charge, error)
	Summary(ctx context.Context, year, month int) (*Summary, error)
}

type ListRequest struct {
	ReadingID string `form:"reading_id"`
	RoomID    string `form:"room_id"`
	Year      *int   `form:"year"`
	Month     *int   `form:"month"`
	Status    string `form:"status"`
}

type RoomSummary struct {
	RoomTotals
	UnitsConsumed   float64 `json:"units_consumed"`
	BaselineMissing bool    `json:"baseline_missing"`
}

type Summary struct {
	Year      int           `json:"year"`
	Month     int           `json:"month"`
	ReadingID string        `json:"reading_id,omitempty"`
	Currency  string        `json:"currency"`
	Rooms     []RoomSummary `json:"rooms"`
	Billed    float64       `json:"billed"`
	Collected float64       `json:"collected"`
	Pending   float64       `json:"pending"`
}

var (
	ErrInvalidID      = errors.New("invalid_id")
	ErrNotFound       = errors.New("charge_not_found")
	ErrInvalidStatus  = errors.New("invalid_status")
	ErrReadingMissing = errors.New("reading_not_found")
	ErrPersistence    = errors.New("charges_inconsistent")
)

// PersistenceError reports that the charge set of a reading could not be
// committed. Nothing from the failed attempt was kept.
type PersistenceError struct {
	ReadingID snowflake.ID
	Attempts  int
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("charges for reading %s not persisted after %d attempt(s): %v", e.ReadingID, e.Attempts, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
