package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, txn *Transaction) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Transaction, error)
	// FindCollection returns the collection of type t on bedID dated day.
	FindCollection(ctx context.Context, db *gorm.DB, bedID snowflake.ID, t Type, day time.Time) (*Transaction, error)
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, collectedAt *time.Time, updatedAt time.Time) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error)
	SummarizeByType(ctx context.Context, db *gorm.DB, year, month int) ([]TypeTotals, error)
}

type TypeTotals struct {
	Type        Type    `json:"type"`
	Collected   float64 `json:"collected"`
	Outstanding float64 `json:"outstanding"`
	Count       int     `json:"count"`
}
