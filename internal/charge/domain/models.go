package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCollected Status = "collected"
)

// Charge is one occupant's share of a room's AC bill for one reading.
// Charges are derived: they are replaced wholesale whenever their reading
// is materialized again.
type Charge struct {
	ID                 snowflake.ID `json:"id" gorm:"primaryKey"`
	ReadingID          snowflake.ID `json:"reading_id" gorm:"not null;index"`
	RoomID             string       `json:"room_id" gorm:"type:text;not null"`
	BedID              string       `json:"bed_id" gorm:"type:text"`
	OccupantID         string       `json:"occupant_id" gorm:"type:text;not null"`
	OccupantName       string       `json:"occupant_name" gorm:"type:text"`
	Year               int          `json:"year" gorm:"not null;index:ix_prorated_charges_period,priority:1"`
	Month              int          `json:"month" gorm:"not null;index:ix_prorated_charges_period,priority:2"`
	UnitsConsumed      float64      `json:"units_consumed" gorm:"not null"`
	TotalBill          float64      `json:"total_bill" gorm:"not null"`
	OccupancyDays      int          `json:"occupancy_days" gorm:"not null"`
	TotalOccupancyDays int          `json:"total_occupancy_days" gorm:"not null"`
	FairShare          float64      `json:"fair_share" gorm:"not null"`
	DailyRate          float64      `json:"daily_rate" gorm:"not null"`
	DailyRatePerUnit   float64      `json:"daily_rate_per_unit" gorm:"not null"`
	AveragePerPerson   float64      `json:"average_per_person" gorm:"not null"`
	Status             Status       `json:"status" gorm:"type:text;not null"`
	CollectedAt        *time.Time   `json:"collected_at"`
	CreatedAt          time.Time    `json:"created_at" gorm:"not null"`
}

func (Charge) TableName() string { return "prorated_charges" }
