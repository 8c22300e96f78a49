package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Bed is one sleeping place in a room. When occupied it carries the
// current occupant's tenure.
type Bed struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	RoomID        string       `json:"room_id" gorm:"type:text;not null;uniqueIndex:ux_beds_room_number,priority:1"`
	BedNumber     int          `json:"bed_number" gorm:"not null;uniqueIndex:ux_beds_room_number,priority:2"`
	IsOccupied    bool         `json:"is_occupied" gorm:"not null;default:false"`
	OccupantID    snowflake.ID `json:"occupant_id"`
	OccupantName  string       `json:"occupant_name" gorm:"type:text"`
	OccupantPhone string       `json:"occupant_phone" gorm:"type:text"`
	OccupantEmail string       `json:"occupant_email" gorm:"type:text"`
	Rent          float64      `json:"rent" gorm:"not null;default:0"`
	Deposit       float64      `json:"deposit" gorm:"not null;default:0"`
	CheckInDate   *time.Time   `json:"check_in_date"`
	CheckOutDate  *time.Time   `json:"check_out_date"`
	Notes         string       `json:"notes" gorm:"type:text"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt     time.Time    `json:"updated_at" gorm:"not null"`
}

func (Bed) TableName() string { return "beds" }

const (
	MoveReasonManual       = "manual"
	MoveReasonAutoCheckout = "auto_checkout"
)

// BedHistory is a finished tenure. It keeps past occupants billable for the
// days they stayed.
type BedHistory struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	BedID         snowflake.ID `json:"bed_id" gorm:"not null;index"`
	RoomID        string       `json:"room_id" gorm:"type:text;not null;index"`
	BedNumber     int          `json:"bed_number" gorm:"not null"`
	OccupantID    snowflake.ID `json:"occupant_id" gorm:"not null"`
	OccupantName  string       `json:"occupant_name" gorm:"type:text"`
	OccupantPhone string       `json:"occupant_phone" gorm:"type:text"`
	CheckInDate   *time.Time   `json:"check_in_date"`
	CheckOutDate  time.Time    `json:"check_out_date" gorm:"not null"`
	Reason        string       `json:"reason" gorm:"type:text;not null"`
	MovedAt       time.Time    `json:"moved_at" gorm:"not null"`
}

func (BedHistory) TableName() string { return "bed_history" }
