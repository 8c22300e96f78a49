package domain

import "errors"

// Room is a physical space whose beds share one electricity meter.
type Room struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	HasAC    bool   `json:"has_ac"`
	BedCount int    `json:"bed_count"`
}

// Tariff is the rate applied to metered AC consumption.
type Tariff struct {
	RatePerUnit float64 `json:"rate_per_unit"`
	Currency    string  `json:"currency"`
}

type Service interface {
	List() []Room
	ACRooms() []Room
	Get(id string) (*Room, error)
	Tariff() Tariff
}

var (
	ErrNotFound     = errors.New("room_not_found")
	ErrInvalidID    = errors.New("invalid_room_id")
	ErrNotACEnabled = errors.New("room_not_ac_enabled")
)
