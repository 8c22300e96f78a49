package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Transaction, error)
	Get(ctx context.Context, id string) (*Transaction, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	SetStatus(ctx context.Context, id string, status string) (*Transaction, error)
	Delete(ctx context.Context, id string) error
	Summary(ctx context.Context, year, month int) (*Summary, error)
}

// CreateRequest records a transaction. Rent and deposits name the bed they
// were collected from; a missing amount is taken from the bed's agreed rent
// or deposit.
type CreateRequest struct {
	Type   string     `json:"type"`
	Status string     `json:"status"`
	BedID  string     `json:"bed_id"`
	Amount *float64   `json:"amount"`
	Note   string     `json:"note"`
	Date   *time.Time `json:"date"`
}

type ListRequest struct {
	Type   string
	Status string
	BedID  string
	RoomID string
	Year   *int
	Month  *int
	Limit  int
}

// ListResponse carries the filtered rows and their total.
type ListResponse struct {
	Transactions []Transaction `json:"transactions"`
	Total        float64       `json:"total"`
	Count        int           `json:"count"`
}

// Summary is the profit and loss of one month. Collections count rent and
// deposits already received; fixed costs come from the billing config.
type Summary struct {
	Year        int         `json:"year"`
	Month       int         `json:"month"`
	Currency    string      `json:"currency"`
	Rent        float64     `json:"rent"`
	Deposits    float64     `json:"deposits"`
	Collections float64     `json:"collections"`
	Outstanding float64     `json:"outstanding"`
	Expenses    float64     `json:"expenses"`
	FixedCosts  []FixedCost `json:"fixed_costs"`
	FixedTotal  float64     `json:"fixed_total"`
	Net         float64     `json:"net"`
	Result      string      `json:"result"`
	// PotentialRent is the agreed rent of every bed occupied today.
	PotentialRent float64      `json:"potential_rent"`
	ByType        []TypeTotals `json:"by_type"`
}

type FixedCost struct {
	Name   string  `json:"name"`
	Amount float64 `json:"amount"`
}

const (
	ResultProfit = "profit"
	ResultLoss   = "loss"
)

var (
	ErrInvalidID      = errors.New("invalid_id")
	ErrNotFound       = errors.New("transaction_not_found")
	ErrInvalidType    = errors.New("invalid_transaction_type")
	ErrInvalidStatus  = errors.New("invalid_status")
	ErrInvalidAmount  = errors.New("invalid_amount")
	ErrBedRequired    = errors.New("bed_required")
	ErrBedVacant      = errors.New("bed_vacant")
	ErrNoteRequired   = errors.New("note_required_for_changed_amount")
	ErrDuplicateEntry = errors.New("collection_exists_for_date")
)

func ParseID(value string) (snowflake.ID, error) {
	return snowflake.ParseString(value)
}
