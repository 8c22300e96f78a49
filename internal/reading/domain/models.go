package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// MeterReading is the monthly snapshot of every AC room meter. Month is
// zero-based.
type MeterReading struct {
	ID          snowflake.ID  `json:"id" gorm:"primaryKey"`
	Year        int           `json:"year" gorm:"not null;uniqueIndex:ux_meter_readings_period,priority:1"`
	Month       int           `json:"month" gorm:"not null;uniqueIndex:ux_meter_readings_period,priority:2"`
	ReadingDate time.Time     `json:"reading_date" gorm:"not null"`
	Notes       string        `json:"notes" gorm:"type:text"`
	CreatedAt   time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt   time.Time     `json:"updated_at" gorm:"not null"`
	Rooms       []ReadingRoom `json:"rooms" gorm:"-"`
}

func (MeterReading) TableName() string { return "meter_readings" }

// ReadingRoom is one room's entry within a reading. PreviousUnits and
// UnitsConsumed are filled in when charges are materialized.
type ReadingRoom struct {
	ReadingID       snowflake.ID   `json:"reading_id" gorm:"primaryKey;autoIncrement:false"`
	RoomID          string         `json:"room_id" gorm:"primaryKey;type:text"`
	PreviousUnits   float64        `json:"previous_units" gorm:"not null;default:0"`
	CurrentUnits    float64        `json:"current_units" gorm:"not null"`
	UnitsConsumed   float64        `json:"units_consumed" gorm:"not null;default:0"`
	BaselineMissing bool           `json:"baseline_missing" gorm:"not null;default:false"`
	Calculation     datatypes.JSON `json:"calculation,omitempty" gorm:"not null"`
}

func (ReadingRoom) TableName() string { return "reading_rooms" }

// Room returns the entry for roomID, or nil.
func (r *MeterReading) Room(roomID string) *ReadingRoom {
	for i := range r.Rooms {
		if r.Rooms[i].RoomID == roomID {
			return &r.Rooms[i]
		}
	}
	return nil
}
