package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	readingdomain "github.com/comfortstays/pgbilling/internal/reading/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() readingdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, m *readingdomain.MeterReading) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO meter_readings (id, year, month, reading_date, notes, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.Year,
		m.Month,
		m.ReadingDate,
		m.Notes,
		m.CreatedAt,
		m.UpdatedAt,
	).Error
}

func (r *repo) Update(ctx context.Context, db *gorm.DB, m *readingdomain.MeterReading) error {
	return db.WithContext(ctx).Exec(
		`UPDATE meter_readings
		 SET year = ?, month = ?, reading_date = ?, notes = ?, updated_at = ?
		 WHERE id = ?`,
		m.Year,
		m.Month,
		m.ReadingDate,
		m.Notes,
		m.UpdatedAt,
		m.ID,
	).Error
}

func (r *repo) ReplaceRooms(ctx context.Context, db *gorm.DB, readingID snowflake.ID, rooms []readingdomain.ReadingRoom) error {
	if err := db.WithContext(ctx).Exec(
		`DELETE FROM reading_rooms WHERE reading_id = ?`,
		readingID,
	).Error; err != nil {
		return err
	}
	for _, room := range rooms {
		err := db.WithContext(ctx).Exec(
			`INSERT INTO reading_rooms (reading_id, room_id, previous_units, current_units, units_consumed, baseline_missing, calculation)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			readingID,
			room.RoomID,
			room.PreviousUnits,
			room.CurrentUnits,
			room.UnitsConsumed,
			room.BaselineMissing,
			calculationOrEmpty(room.Calculation),
		).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) UpdateRoom(ctx context.Context, db *gorm.DB, room *readingdomain.ReadingRoom) error {
	return db.WithContext(ctx).Exec(
		`UPDATE reading_rooms
		 SET previous_units = ?, current_units = ?, units_consumed = ?, baseline_missing = ?, calculation = ?
		 WHERE reading_id = ? AND room_id = ?`,
		room.PreviousUnits,
		room.CurrentUnits,
		room.UnitsConsumed,
		room.BaselineMissing,
		calculationOrEmpty(room.Calculation),
		room.ReadingID,
		room.RoomID,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*readingdomain.MeterReading, error) {
	var reading readingdomain.MeterReading
	err := db.WithContext(ctx).Raw(
		`SELECT id, year, month, reading_date, notes, created_at, updated_at
		 FROM meter_readings WHERE id = ?`,
		id,
	).Scan(&reading).Error
	if err != nil {
		return nil, err
	}
	if reading.ID == 0 {
		return nil, nil
	}
	if err := r.loadRooms(ctx, db, []*readingdomain.MeterReading{&reading}); err != nil {
		return nil, err
	}
	return &reading, nil
}

func (r *repo) FindByPeriod(ctx context.Context, db *gorm.DB, year, month int) (*readingdomain.MeterReading, error) {
	var reading readingdomain.MeterReading
	err := db.WithContext(ctx).Raw(
		`SELECT id, year, month, reading_date, notes, created_at, updated_at
		 FROM meter_readings WHERE year = ? AND month = ?`,
		year,
		month,
	).Scan(&reading).Error
	if err != nil {
		return nil, err
	}
	if reading.ID == 0 {
		return nil, nil
	}
	if err := r.loadRooms(ctx, db, []*readingdomain.MeterReading{&reading}); err != nil {
		return nil, err
	}
	return &reading, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter readingdomain.ListFilter) ([]readingdomain.MeterReading, error) {
	stmt := db.WithContext(ctx).
		Table("meter_readings").
		Select("id, year, month, reading_date, notes, created_at, updated_at")
	if filter.RoomID != "" {
		stmt = stmt.Where("id IN (?)", db.Table("reading_rooms").Select("reading_id").Where("room_id = ?", filter.RoomID))
	}
	if filter.Year != nil {
		stmt = stmt.Where("year = ?", *filter.Year)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var readings []readingdomain.MeterReading
	if err := stmt.Order("year DESC, month DESC, reading_date DESC").Scan(&readings).Error; err != nil {
		return nil, err
	}

	ptrs := make([]*readingdomain.MeterReading, 0, len(readings))
	for i := range readings {
		ptrs = append(ptrs, &readings[i])
	}
	if err := r.loadRooms(ctx, db, ptrs); err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *repo) FindPrevious(ctx context.Context, db *gorm.DB, roomID string, year, month int) (*readingdomain.ReadingRoom, error) {
	var room readingdomain.ReadingRoom
	err := db.WithContext(ctx).Raw(
		`SELECT rr.reading_id, rr.room_id, rr.previous_units, rr.current_units, rr.units_consumed, rr.baseline_missing, rr.calculation
		 FROM reading_rooms rr
		 JOIN meter_readings mr ON mr.id = rr.reading_id
		 WHERE rr.room_id = ? AND (mr.year < ? OR (mr.year = ? AND mr.month < ?))
		 ORDER BY mr.year DESC, mr.month DESC, mr.reading_date DESC
		 LIMIT 1`,
		roomID,
		year,
		year,
		month,
	).Scan(&room).Error
	if err != nil {
		return nil, err
	}
	if room.ReadingID == 0 {
		return nil, nil
	}
	return &room, nil
}

func (r *repo) ListLater(ctx context.Context, db *gorm.DB, year, month int) ([]readingdomain.MeterReading, error) {
	var readings []readingdomain.MeterReading
	err := db.WithContext(ctx).Raw(
		`SELECT id, year, month, reading_date, notes, created_at, updated_at
		 FROM meter_readings
		 WHERE year > ? OR (year = ? AND month > ?)
		 ORDER BY year ASC, month ASC`,
		year,
		year,
		month,
	).Scan(&readings).Error
	if err != nil {
		return nil, err
	}
	return readings, nil
}

func (r *repo) loadRooms(ctx context.Context, db *gorm.DB, readings []*readingdomain.MeterReading) error {
	if len(readings) == 0 {
		return nil
	}
	ids := make([]snowflake.ID, 0, len(readings))
	byID := make(map[snowflake.ID]*readingdomain.MeterReading, len(readings))
	for _, reading := range readings {
		ids = append(ids, reading.ID)
		byID[reading.ID] = reading
		reading.Rooms = []readingdomain.ReadingRoom{}
	}

	var rooms []readingdomain.ReadingRoom
	err := db.WithContext(ctx).Raw(
		`SELECT reading_id, room_id, previous_units, current_units, units_consumed, baseline_missing, calculation
		 FROM reading_rooms WHERE reading_id IN ? ORDER BY room_id ASC`,
		ids,
	).Scan(&rooms).Error
	if err != nil {
		return err
	}
	for _, room := range rooms {
		if reading, ok := byID[room.ReadingID]; ok {
			reading.Rooms = append(reading.Rooms, room)
		}
	}
	return nil
}

// calculationOrEmpty keeps the column non-null; a NULL would not scan back
// into datatypes.JSON.
func calculationOrEmpty(j datatypes.JSON) datatypes.JSON {
	if len(j) == 0 {
		return datatypes.JSON("{}")
	}
	return j
}
