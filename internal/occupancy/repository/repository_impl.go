package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	occupancydomain "github.com/comfortstays/pgbilling/internal/occupancy/domain"
	"gorm.io/gorm"
)

const bedColumns = `id, room_id, bed_number, is_occupied, occupant_id, occupant_name, occupant_phone,
	occupant_email, rent, deposit, check_in_date, check_out_date, notes, created_at, updated_at`

type repo struct{}

func Provide() occupancydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, b *occupancydomain.Bed) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO beds (`+bedColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID,
		b.RoomID,
		b.BedNumber,
		b.IsOccupied,
		b.OccupantID,
		b.OccupantName,
		b.OccupantPhone,
		b.OccupantEmail,
		b.Rent,
		b.Deposit,
		b.CheckInDate,
		b.CheckOutDate,
		b.Notes,
		b.CreatedAt,
		b.UpdatedAt,
	).Error
}

func (r *repo) UpdateOccupant(ctx context.Context, db *gorm.DB, b *occupancydomain.Bed) error {
	return db.WithContext(ctx).Exec(
		`UPDATE beds
		 SET is_occupied = ?, occupant_id = ?, occupant_name = ?, occupant_phone = ?, occupant_email = ?,
		     rent = ?, deposit = ?, check_in_date = ?, check_out_date = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		b.IsOccupied,
		b.OccupantID,
		b.OccupantName,
		b.OccupantPhone,
		b.OccupantEmail,
		b.Rent,
		b.Deposit,
		b.CheckInDate,
		b.CheckOutDate,
		b.Notes,
		b.UpdatedAt,
		b.ID,
	).Error
}

func (r *repo) Clear(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE beds
		 SET is_occupied = ?, occupant_id = 0, occupant_name = '', occupant_phone = '', occupant_email = '',
		     rent = 0, deposit = 0, check_in_date = NULL, check_out_date = NULL, notes = '', updated_at = ?
		 WHERE id = ?`,
		false,
		now,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*occupancydomain.Bed, error) {
	var bed occupancydomain.Bed
	err := db.WithContext(ctx).Raw(
		`SELECT `+bedColumns+` FROM beds WHERE id = ?`,
		id,
	).Scan(&bed).Error
	if err != nil {
		return nil, err
	}
	if bed.ID == 0 {
		return nil, nil
	}
	return &bed, nil
}

func (r *repo) ListByRoom(ctx context.Context, db *gorm.DB, roomID string) ([]occupancydomain.Bed, error) {
	var beds []occupancydomain.Bed
	err := db.WithContext(ctx).Raw(
		`SELECT `+bedColumns+` FROM beds WHERE room_id = ? ORDER BY bed_number ASC`,
		roomID,
	).Scan(&beds).Error
	return beds, err
}

func (r *repo) ListOccupied(ctx context.Context, db *gorm.DB, roomID string) ([]occupancydomain.Bed, error) {
	var beds []occupancydomain.Bed
	err := db.WithContext(ctx).Raw(
		`SELECT `+bedColumns+` FROM beds WHERE room_id = ? AND is_occupied = ? ORDER BY bed_number ASC`,
		roomID,
		true,
	).Scan(&beds).Error
	return beds, err
}

func (r *repo) ListCheckedOutBefore(ctx context.Context, db *gorm.DB, day time.Time) ([]occupancydomain.Bed, error) {
	var beds []occupancydomain.Bed
	err := db.WithContext(ctx).Raw(
		`SELECT `+bedColumns+` FROM beds
		 WHERE is_occupied = ? AND check_out_date IS NOT NULL AND check_out_date < ?
		 ORDER BY room_id ASC, bed_number ASC`,
		true,
		day,
	).Scan(&beds).Error
	return beds, err
}
