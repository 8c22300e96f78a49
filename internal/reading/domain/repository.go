package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, reading *MeterReading) error
	Update(ctx context.Context, db *gorm.DB, reading *MeterReading) error
	ReplaceRooms(ctx context.Context, db *gorm.DB, readingID snowflake.ID, rooms []ReadingRoom) error
	UpdateRoom(ctx context.Context, db *gorm.DB, room *ReadingRoom) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*MeterReading, error)
	FindByPeriod(ctx context.Context, db *gorm.DB, year, month int) (*MeterReading, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]MeterReading, error)
	// FindPrevious returns roomID's entry in the most recent reading strictly
	// before (year, month), ordered by (year, month) then reading date.
	FindPrevious(ctx context.Context, db *gorm.DB, roomID string, year, month int) (*ReadingRoom, error)
	// ListLater returns the readings strictly after (year, month), oldest first.
	// Rooms are not loaded.
	ListLater(ctx context.Context, db *gorm.DB, year, month int) ([]MeterReading, error)
}

type ListFilter struct {
	RoomID string
	Year   *int
	Limit  int
}
