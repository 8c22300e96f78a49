package repository

import (
	"context"
	"testing"

	"github.com/comfortstays/pgbilling/pkg/db"
	"github.com/comfortstays/pgbilling/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type tenancy struct {
	ID     int64  `gorm:"primaryKey"`
	RoomID string `gorm:"type:text"`
	Days   int
}

func setupStore(t *testing.T) (*gorm.DB, Repository[tenancy]) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&tenancy{}))

	store := ProvideStore[tenancy](conn)
	ctx := context.Background()
	for _, row := range []tenancy{
		{ID: 1, RoomID: "room1", Days: 10},
		{ID: 2, RoomID: "room1", Days: 30},
		{ID: 3, RoomID: "room3", Days: 20},
	} {
		row := row
		require.NoError(t, store.Create(ctx, &row))
	}
	return conn, store
}

func TestFindFiltersAndSorts(t *testing.T) {
	_, store := setupStore(t)
	ctx := context.Background()

	rows, err := store.Find(ctx, &tenancy{RoomID: "room1"}, option.WithSortBy(option.QuerySortBy{
		Allow:   map[string]bool{"days": true},
		SortBy:  "days",
		OrderBy: "desc",
	}))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 30, rows[0].Days)
	assert.Equal(t, 10, rows[1].Days)

	rows, err = store.Find(ctx, nil, option.ApplyOperator(option.Condition{Field: "days", Operator: option.GTE, Value: 20}))
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestFindOneMissingReturnsNil(t *testing.T) {
	_, store := setupStore(t)

	row, err := store.FindOne(context.Background(), &tenancy{RoomID: "hall"})
	require.NoError(t, err)
	assert.Nil(t, row)

	row, err = store.FindOne(context.Background(), &tenancy{ID: 3})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "room3", row.RoomID)
}

func TestCount(t *testing.T) {
	_, store := setupStore(t)

	count, err := store.Count(context.Background(), &tenancy{RoomID: "room1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	count, err = store.Count(context.Background(), nil, option.ApplyOperator(option.Condition{Field: "days", Operator: option.LT, Value: 15}))
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestWithTrxRollsBack(t *testing.T) {
	conn, store := setupStore(t)
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := store.WithTrx(tx).Create(ctx, &tenancy{ID: 4, RoomID: "room3", Days: 5}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)

	count, err := store.Count(ctx, &tenancy{RoomID: "room3"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
