package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, bed *Bed) error
	UpdateOccupant(ctx context.Context, db *gorm.DB, bed *Bed) error
	Clear(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Bed, error)
	ListByRoom(ctx context.Context, db *gorm.DB, roomID string) ([]Bed, error)
	ListOccupied(ctx context.Context, db *gorm.DB, roomID string) ([]Bed, error)
	ListCheckedOutBefore(ctx context.Context, db *gorm.DB, day time.Time) ([]Bed, error)
}
