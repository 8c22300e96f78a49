package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	transactiondomain "github.com/comfortstays/pgbilling/internal/transaction/domain"
	"gorm.io/gorm"
)

const transactionColumns = `id, type, status, bed_id, room_id, occupant_id, occupant_name, amount, note,
	date, year, month, collected_at, created_at, updated_at`

type repo struct{}

func Provide() transactiondomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, t *transactiondomain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO transactions (`+transactionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.Type,
		t.Status,
		t.BedID,
		t.RoomID,
		t.OccupantID,
		t.OccupantName,
		t.Amount,
		t.Note,
		t.Date,
		t.Year,
		t.Month,
		t.CollectedAt,
		t.CreatedAt,
		t.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*transactiondomain.Transaction, error) {
	var txn transactiondomain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`,
		id,
	).Scan(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

func (r *repo) FindCollection(ctx context.Context, db *gorm.DB, bedID snowflake.ID, t transactiondomain.Type, day time.Time) (*transactiondomain.Transaction, error) {
	var txn transactiondomain.Transaction
	err := db.WithContext(ctx).Raw(
		`SELECT `+transactionColumns+` FROM transactions
		 WHERE bed_id = ? AND type = ? AND date >= ? AND date < ?
		 LIMIT 1`,
		bedID,
		t,
		day,
		day.AddDate(0, 0, 1),
	).Scan(&txn).Error
	if err != nil {
		return nil, err
	}
	if txn.ID == 0 {
		return nil, nil
	}
	return &txn, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, status transactiondomain.Status, collectedAt *time.Time, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE transactions SET status = ?, collected_at = ?, updated_at = ? WHERE id = ?`,
		status,
		collectedAt,
		updatedAt,
		id,
	).Error
}

func (r *repo) Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`DELETE FROM transactions WHERE id = ?`,
		id,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) SummarizeByType(ctx context.Context, db *gorm.DB, year, month int) ([]transactiondomain.TypeTotals, error) {
	var rows []transactiondomain.TypeTotals
	err := db.WithContext(ctx).Raw(
		`SELECT type,
		        COALESCE(SUM(CASE WHEN status = ? THEN amount ELSE 0 END), 0) AS collected,
		        COALESCE(SUM(CASE WHEN status <> ? THEN amount ELSE 0 END), 0) AS outstanding,
		        COUNT(*) AS count
		 FROM transactions
		 WHERE year = ? AND month = ?
		 GROUP BY type
		 ORDER BY type ASC`,
		transactiondomain.StatusCollected,
		transactiondomain.StatusCollected,
		year,
		month,
	).Scan(&rows).Error
	return rows, err
}
