package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/comfortstays/pgbilling/internal/clock"
	"github.com/comfortstays/pgbilling/internal/config"
	occupancydomain "github.com/comfortstays/pgbilling/internal/occupancy/domain"
	occupancyrepository "github.com/comfortstays/pgbilling/internal/occupancy/repository"
	occupancyservice "github.com/comfortstays/pgbilling/internal/occupancy/service"
	"github.com/comfortstays/pgbilling/internal/proration"
	roomdomain "github.com/comfortstays/pgbilling/internal/room/domain"
	roomservice "github.com/comfortstays/pgbilling/internal/room/service"
	transactiondomain "github.com/comfortstays/pgbilling/internal/transaction/domain"
	"github.com/comfortstays/pgbilling/internal/transaction/repository"
	"github.com/comfortstays/pgbilling/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type transactionFixture struct {
	svc       transactiondomain.Service
	occupancy *occupancyservice.Service
	clock     *clock.FakeClock
}

func setupTransactionTest(t *testing.T, billingCfg config.BillingConfig) *transactionFixture {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&occupancydomain.Bed{},
		&occupancydomain.BedHistory{},
		&transactiondomain.Transaction{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	billing, err := config.NewStaticBillingConfig(billingCfg)
	require.NoError(t, err)
	rooms := roomservice.New(roomservice.Params{Billing: billing})
	fake := clock.NewFakeClock(time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC))

	occupancy := occupancyservice.New(occupancyservice.Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  occupancyrepository.Provide(),
		Rooms: rooms,
	})
	_, err = occupancy.SyncBeds(context.Background())
	require.NoError(t, err)

	svc := New(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fake,
		Billing: billing,
		Repo:    repository.Provide(),
		Beds:    occupancy,
		Rooms:   rooms,
	})
	return &transactionFixture{svc: svc, occupancy: occupancy, clock: fake}
}

// occupy places name on a bed with the given rent and deposit and returns the bed id.
func (f *transactionFixture) occupy(t *testing.T, roomID string, number int, name string, rent, deposit float64) string {
	t.Helper()
	beds, err := f.occupancy.ListBeds(context.Background(), roomID)
	require.NoError(t, err)
	for _, bed := range beds {
		if bed.BedNumber != number {
			continue
		}
		_, err := f.occupancy.AssignOccupant(context.Background(), occupancydomain.AssignRequest{
			BedID:        bed.ID.String(),
			OccupantName: name,
			Rent:         rent,
			Deposit:      deposit,
			CheckInDate:  date(2024, time.June, 1),
		})
		require.NoError(t, err)
		return bed.ID.String()
	}
	t.Fatalf("bed %d not found in %s", number, roomID)
	return ""
}

func (f *transactionFixture) vacantBed(t *testing.T, roomID string, number int) string {
	t.Helper()
	beds, err := f.occupancy.ListBeds(context.Background(), roomID)
	require.NoError(t, err)
	for _, bed := range beds {
		if bed.BedNumber == number {
			return bed.ID.String()
		}
	}
	t.Fatalf("bed %d not found in %s", number, roomID)
	return ""
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func amount(v float64) *float64 { return &v }

func TestCreatePrefillsAmountFromBed(t *testing.T) {
	f := setupTransactionTest(t, config.DefaultBillingConfig())
	ctx := context.Background()
	bed := f.occupy(t, "room1", 1, "Asha", 8000, 10000)

	rent, err := f.svc.Create(ctx, transactiondomain.CreateRequest{Type: "rent", BedID: bed})
	require.NoError(t, err)
	assert.Equal(t, 8000.0, rent.Amount)
	assert.Equal(t, transactiondomain.StatusCollected, rent.Status)
	assert.NotNil(t, rent.CollectedAt)
	assert.Equal(t, "Asha", rent.OccupantName)
	assert.Equal(t, "room1", rent.RoomID)
	assert.True(t, rent.Date.Equal(*date(2024, time.June, 15)))
	assert.Equal(t, 2024, rent.Year)
	assert.Equal(t, 5, rent.Month)

	deposit, err := f.svc.Create(ctx, transactiondomain.CreateRequest{
		Type:   " Deposit ",
		Status: "pending",
		BedID:  bed,
		Date:   date(2024, time.June, 2),
	})
	require.NoError(t, err)
	assert.Equal(t, 10000.0, deposit.Amount)
	assert.Equal(t, transactiondomain.StatusPending, deposit.Status)
	assert.Nil(t, deposit.CollectedAt)

	stored, err := f.svc.Get(ctx, deposit.ID.String())
	require.NoError(t, err)
	assert.Equal(t, transactiondomain.TypeDeposit, stored.Type)
	require.NotNil(t, stored.BedID)
	assert.Equal(t, bed, stored.BedID.String())
}

func TestCreateChangedAmountNeedsNote(t *testing.T) {
	f := setupTransactionTest(t, config.DefaultBillingConfig())
	ctx := context.Background()
	bed := f.occupy(t, "room3", 2, "Ravi", 8000, 8000)

	_, err := f.svc.Create(ctx, transactiondomain.CreateRequest{Type: "rent", BedID: bed, Amount: amount(7500)})
	assert.ErrorIs(t, err, transactiondomain.ErrNoteRequired)

	rent, err := f.svc.Create(ctx, transactiondomain.CreateRequest{
		Type:   "rent",
		BedID:  bed,
		Amount: amount(7500),
		Note:   " joined late ",
	})
	require.NoError(t, err)
	assert.Equal(t, 7500.0, rent.Amount)
	assert.Equal(t, "joined late", rent.Note)

	// The agreed amount needs no note.
	_, err = f.svc.Create(ctx, transactiondomain.CreateRequest{
		Type:   "rent",
		BedID:  bed,
		Amount: amount(8000),
		Date:   date(2024, time.June, 1),
	})
	require.NoError(t, err)
}

func TestCreateRejectsSecondCollectionSameDay(t *testing.T) {
	f := setupTransactionTest(t, config.DefaultBillingConfig())
	ctx := context.Background()
	bed := f.occupy(t, "hall", 1, "Kiran", 6500, 6500)

	_, err := f.svc.Create(ctx, transactiondomain.CreateRequest{Type: "rent", BedID: bed, Date: date(2024, time.June, 5)})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, transactiondomain.CreateRequest{Type: "rent", BedID: bed, Date: date(2024, time.June, 5)})
	assert.ErrorIs(t, err, transactiondomain.ErrDuplicateEntry)

	// A different type or day is a separate collection.
	_, err = f.svc.Create(ctx, transactiondomain.CreateRequest{Type: "deposit", BedID: bed, Date: date(2024, time.June, 5)})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, transactiondomain.CreateRequest{Type: "rent", BedID: bed, Date: date(2024, time.June, 6)})
	require.NoError(t, err)
}

func TestCreateValidation(t *testing.T) {
	f := setupTransactionTest(t, config.DefaultBillingConfig())
	ctx := context.Background()
	occupied := f.occupy(t, "room1", 1, "Asha", 8000, 8000)
	vacant := f.vacantBed(t, "room1", 2)
	free := f.occupy(t, "room1", 3, "Guest", 0, 0)

	cases := map[string]struct {
		req  transactiondomain.CreateRequest
		want error
	}{
		"unknown type":        {transactiondomain.CreateRequest{Type: "refund", Amount: amount(10)}, transactiondomain.ErrInvalidType},
		"unknown status":      {transactiondomain.CreateRequest{Type: "expense", Status: "void", Amount: amount(10)}, transactiondomain.ErrInvalidStatus},
		"rent without bed":    {transactiondomain.CreateRequest{Type: "rent"}, transactiondomain.ErrBedRequired},
		"rent on vacant bed":  {transactiondomain.CreateRequest{Type: "rent", BedID: vacant}, transactiondomain.ErrBedVacant},
		"unknown bed":         {transactiondomain.CreateRequest{Type: "rent", BedID: "999"}, occupancydomain.ErrNotFound},
		"bad bed id":          {transactiondomain.CreateRequest{Type: "rent", BedID: "bed-1"}, occupancydomain.ErrInvalidID},
		"expense no amount":   {transactiondomain.CreateRequest{Type: "expense"}, transactiondomain.ErrInvalidAmount},
		"negative amount":     {transactiondomain.CreateRequest{Type: "rent", BedID: occupied, Amount: amount(-1), Note: "x"}, transactiondomain.ErrInvalidAmount},
		"zero agreed rent":    {transactiondomain.CreateRequest{Type: "rent", BedID: free}, transactiondomain.ErrInvalidAmount},
		"zero expense amount": {transactiondomain.CreateRequest{Type: "expense", Amount: amount(0)}, transactiondomain.ErrInvalidAmount},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestListFilters(t *testing.T) {
	f := setupTransactionTest(t, config.DefaultBillingConfig())
	ctx := context.Background()
	asha := f.occupy(t, "room1", 1, "Asha", 8000, 8000)
	ravi := f.occupy(t, "room3", 1, "Ravi", 7000, 7000)

	for _, req := range []transactiondomain.CreateRequest{
		{Type: "rent", BedID: asha, Date: date(2024, time.June, 1)},
		{Type: "rent", BedID: ravi, Status: "overdue", Date: date(2024, time.June, 3)},
		{Type: "deposit", BedID: ravi, Date: date(2024, time.June, 3)},
		{Type: "rent", BedID: asha, Date: date(2024, time.May, 1)},
		{Type: "expense", Amount: amount(1500), Note: "electrician", Date: date(2024, time.June, 10)},
	} {
		_, err := f.svc.Create(ctx, req)
		require.NoError(t, err)
	}

	june := 5
	year := 2024
	all, err := f.svc.List(ctx, transactiondomain.ListRequest{Year: &year, Month: &june})
	require.NoError(t, err)
	require.Equal(t, 4, all.Count)
	assert.True(t, all.Transactions[0].Date.Equal(*date(2024, time.June, 10)))
	assert.Equal(t, 8000.0+7000+7000+1500, all.Total)

	rent, err := f.svc.List(ctx, transactiondomain.ListRequest{Type: "rent"})
	require.NoError(t, err)
	assert.Equal(t, 3, rent.Count)
	assert.Equal(t, 23000.0, rent.Total)

	overdue, err := f.svc.List(ctx, transactiondomain.ListRequest{Status: "overdue"})
	require.NoError(t, err)
	require.Equal(t, 1, overdue.Count)
	assert.Equal(t, "Ravi", overdue.Transactions[0].OccupantName)

	byBed, err := f.svc.List(ctx, transactiondomain.ListRequest{BedID: asha})
	require.NoError(t, err)
	assert.Equal(t, 2, byBed.Count)

	byRoom, err := f.svc.List(ctx, transactiondomain.ListRequest{RoomID: "room3"})
	require.NoError(t, err)
	assert.Equal(t, 2, byRoom.Count)

	limited, err := f.svc.List(ctx, transactiondomain.ListRequest{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, limited.Count)

	empty, err := f.svc.List(ctx, transactiondomain.ListRequest{Type: "expense", Status: "pending"})
	require.NoError(t, err)
	assert.NotNil(t, empty.Transactions)
	assert.Zero(t, empty.Count)

	bad := 12
	_, err = f.svc.List(ctx, transactiondomain.ListRequest{Month: &bad})
	assert.ErrorIs(t, err, proration.ErrInvalidMonth)
	_, err = f.svc.List(ctx, transactiondomain.ListRequest{Type: "refund"})
	assert.ErrorIs(t, err, transactiondomain.ErrInvalidType)
	_, err = f.svc.List(ctx, transactiondomain.ListRequest{RoomID: "attic"})
	assert.ErrorIs(t, err, roomdomain.ErrNotFound)
}

func TestSetStatusAndDelete(t *testing.T) {
	f := setupTransactionTest(t, config.DefaultBillingConfig())
	ctx := context.Background()
	bed := f.occupy(t, "room1", 1, "Asha", 8000, 8000)

	rent, err := f.svc.Create(ctx, transactiondomain.CreateRequest{Type: "rent", BedID: bed, Status: "pending"})
	require.NoError(t, err)

	f.clock.Advance(48 * time.Hour)
	collected, err := f.svc.SetStatus(ctx, rent.ID.String(), "Collected")
	require.NoError(t, err)
	assert.Equal(t, transactiondomain.StatusCollected, collected.Status)
	require.NotNil(t, collected.CollectedAt)
	assert.True(t, collected.CollectedAt.Equal(time.Date(2024, time.June, 17, 10, 0, 0, 0, time.UTC)))

	again, err := f.svc.SetStatus(ctx, rent.ID.String(), "collected")
	require.NoError(t, err)
	assert.True(t, again.CollectedAt.Equal(*collected.CollectedAt))

	overdue, err := f.svc.SetStatus(ctx, rent.ID.String(), "overdue")
	require.NoError(t, err)
	assert.Nil(t, overdue.CollectedAt)

	_, err = f.svc.SetStatus(ctx, rent.ID.String(), "lost")
	assert.ErrorIs(t, err, transactiondomain.ErrInvalidStatus)
	_, err = f.svc.SetStatus(ctx, "42", "collected")
	assert.ErrorIs(t, err, transactiondomain.ErrNotFound)

	require.NoError(t, f.svc.Delete(ctx, rent.ID.String()))
	assert.ErrorIs(t, f.svc.Delete(ctx, rent.ID.String()), transactiondomain.ErrNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, "x"), transactiondomain.ErrInvalidID)
	_, err = f.svc.Get(ctx, rent.ID.String())
	assert.ErrorIs(t, err, transactiondomain.ErrNotFound)
}

func TestSummaryProfitAndLoss(t *testing.T) {
	cfg := config.DefaultBillingConfig()
	cfg.FixedCosts = []config.FixedCost{
		{Name: "cook salary", Amount: 15000},
		{Name: "internet", Amount: 1000},
	}
	f := setupTransactionTest(t, cfg)
	ctx := context.Background()
	asha := f.occupy(t, "room1", 1, "Asha", 8000, 10000)
	ravi := f.occupy(t, "room3", 1, "Ravi", 8000, 8000)
	f.occupy(t, "hall", 1, "Kiran", 6500, 6500)

	for _, req := range []transactiondomain.CreateRequest{
		{Type: "rent", BedID: asha, Date: date(2024, time.June, 1)},
		{Type: "deposit", BedID: asha, Date: date(2024, time.June, 1)},
		{Type: "rent", BedID: ravi, Date: date(2024, time.June, 2)},
		{Type: "deposit", BedID: ravi, Status: "pending", Date: date(2024, time.June, 2)},
		{Type: "expense", Amount: amount(3000), Note: "groceries", Date: date(2024, time.June, 4)},
		{Type: "expense", Amount: amount(500), Status: "pending", Note: "gas", Date: date(2024, time.June, 9)},
		{Type: "rent", BedID: ravi, Date: date(2024, time.May, 2)},
	} {
		_, err := f.svc.Create(ctx, req)
		require.NoError(t, err)
	}

	summary, err := f.svc.Summary(ctx, 2024, 5)
	require.NoError(t, err)
	assert.Equal(t, "INR", summary.Currency)
	assert.Equal(t, 16000.0, summary.Rent)
	assert.Equal(t, 10000.0, summary.Deposits)
	assert.Equal(t, 26000.0, summary.Collections)
	assert.Equal(t, 8000.0, summary.Outstanding)
	assert.Equal(t, 3500.0, summary.Expenses)
	assert.Equal(t, 16000.0, summary.FixedTotal)
	assert.Len(t, summary.FixedCosts, 2)
	assert.Equal(t, 6500.0, summary.Net)
	assert.Equal(t, transactiondomain.ResultProfit, summary.Result)
	assert.Equal(t, 22500.0, summary.PotentialRent)
	require.Len(t, summary.ByType, 3)
	assert.Equal(t, transactiondomain.TypeDeposit, summary.ByType[0].Type)

	empty, err := f.svc.Summary(ctx, 2024, 0)
	require.NoError(t, err)
	assert.Zero(t, empty.Collections)
	assert.Equal(t, -16000.0, empty.Net)
	assert.Equal(t, transactiondomain.ResultLoss, empty.Result)
	assert.Empty(t, empty.ByType)

	_, err = f.svc.Summary(ctx, 2024, 12)
	assert.ErrorIs(t, err, proration.ErrInvalidMonth)
}
