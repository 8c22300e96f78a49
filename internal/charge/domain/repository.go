package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	BatchInsert(ctx context.Context, db *gorm.DB, charges []Charge) error
	DeleteByReading(ctx context.Context, db *gorm.DB, readingID snowflake.ID) (int64, error)
	CountByReading(ctx context.Context, db *gorm.DB, readingID snowflake.ID) (total int64, collected int64, err error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Charge, error)
	MarkCollected(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
	SummarizeByRoom(ctx context.Context, db *gorm.DB, year, month int) ([]RoomTotals, error)
}

type RoomTotals struct {
	RoomID      string  `json:"room_id"`
	Billed      float64 `json:"billed"`
	Collected   float64 `json:"collected"`
	Pending     float64 `json:"pending"`
	ChargeCount int     `json:"charge_count"`
}
