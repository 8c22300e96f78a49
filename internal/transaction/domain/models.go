package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypeRent    Type = "rent"
	TypeDeposit Type = "deposit"
	TypeExpense Type = "expense"
)

// IsCollection reports whether money of this type comes in from an occupant.
func (t Type) IsCollection() bool {
	return t == TypeRent || t == TypeDeposit
}

type Status string

const (
	StatusCollected Status = "collected"
	StatusPending   Status = "pending"
	StatusOverdue   Status = "overdue"
)

// Transaction is one money movement of the hostel: rent or a deposit taken
// from the occupant of a bed, or an expense paid out.
type Transaction struct {
	ID           snowflake.ID  `json:"id" gorm:"primaryKey"`
	Type         Type          `json:"type" gorm:"type:text;not null;index:ix_transactions_period_type,priority:3"`
	Status       Status        `json:"status" gorm:"type:text;not null"`
	BedID        *snowflake.ID `json:"bed_id,omitempty" gorm:"index"`
	RoomID       string        `json:"room_id,omitempty" gorm:"type:text"`
	OccupantID   string        `json:"occupant_id,omitempty" gorm:"type:text"`
	OccupantName string        `json:"occupant_name,omitempty" gorm:"type:text"`
	Amount       float64       `json:"amount" gorm:"not null"`
	Note         string        `json:"note" gorm:"type:text"`
	Date         time.Time     `json:"date" gorm:"not null"`
	Year         int           `json:"year" gorm:"not null;index:ix_transactions_period_type,priority:1"`
	Month        int           `json:"month" gorm:"not null;index:ix_transactions_period_type,priority:2"`
	CollectedAt  *time.Time    `json:"collected_at"`
	CreatedAt    time.Time     `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time     `json:"updated_at" gorm:"not null"`
}

func (Transaction) TableName() string { return "transactions" }
