package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/comfortstays/pgbilling/internal/charge/domain"
	"gorm.io/gorm"
)

const chargeColumns = `id, reading_id, room_id, bed_id, occupant_id, occupant_name, year, month,
	units_consumed, total_bill, occupancy_days, total_occupancy_days, fair_share, daily_rate,
	daily_rate_per_unit, average_per_person, status, collected_at, created_at`

type repo struct{}

func Provide() chargedomain.Repository {
	return &repo{}
}

func (r *repo) BatchInsert(ctx context.Context, db *gorm.DB, charges []chargedomain.Charge) error {
	if len(charges) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(&charges, 100).Error
}

func (r *repo) DeleteByReading(ctx context.Context, db *gorm.DB, readingID snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM prorated_charges WHERE reading_id = ?`,
		readingID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) CountByReading(ctx context.Context, db *gorm.DB, readingID snowflake.ID) (int64, int64, error) {
	var row struct {
		Total     int64
		Collected int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) AS total,
		        COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS collected
		 FROM prorated_charges WHERE reading_id = ?`,
		chargedomain.StatusCollected,
		readingID,
	).Scan(&row).Error
	return row.Total, row.Collected, err
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*chargedomain.Charge, error) {
	var charge chargedomain.Charge
	err := db.WithContext(ctx).Raw(
		`SELECT `+chargeColumns+` FROM prorated_charges WHERE id = ?`,
		id,
	).Scan(&charge).Error
	if err != nil {
		return nil, err
	}
	if charge.ID == 0 {
		return nil, nil
	}
	return &charge, nil
}

func (r *repo) MarkCollected(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE prorated_charges SET status = ?, collected_at = ? WHERE id = ? AND status = ?`,
		chargedomain.StatusCollected,
		at,
		id,
		chargedomain.StatusPending,
	).Error
}

func (r *repo) SummarizeByRoom(ctx context.Context, db *gorm.DB, year, month int) ([]chargedomain.RoomTotals, error) {
	var rows []chargedomain.RoomTotals
	err := db.WithContext(ctx).Raw(
		`SELECT room_id,
		        COALESCE(SUM(fair_share), 0) AS billed,
		        COALESCE(SUM(CASE WHEN status = ? THEN fair_share ELSE 0 END), 0) AS collected,
		        COALESCE(SUM(CASE WHEN status = ? THEN fair_share ELSE 0 END), 0) AS pending,
		        COUNT(*) AS charge_count
		 FROM prorated_charges
		 WHERE year = ? AND month = ?
		 GROUP BY room_id
		 ORDER BY room_id ASC`,
		chargedomain.StatusCollected,
		chargedomain.StatusPending,
		year,
		month,
	).Scan(&rows).Error
	return rows, err
}
