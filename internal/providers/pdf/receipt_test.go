package pdf

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	chargedomain "github.com/comfortstays/pgbilling/internal/charge/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateReceipt(t *testing.T) {
	collected := time.Date(2024, time.July, 5, 0, 0, 0, 0, time.UTC)
	charge := chargedomain.Charge{
		ID:                 42,
		RoomID:             "room1",
		OccupantName:       "Asha",
		Year:               2024,
		Month:              5,
		UnitsConsumed:      50,
		TotalBill:          500,
		OccupancyDays:      30,
		TotalOccupancyDays: 40,
		FairShare:          375,
		DailyRatePerUnit:   12.5,
		AveragePerPerson:   250,
		Status:             chargedomain.StatusCollected,
		CollectedAt:        &collected,
		CreatedAt:          time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC),
	}

	reader, err := New().GenerateReceipt(context.Background(), ReceiptData{
		Charge:      charge,
		RoomName:    "Room 1 (Bottom)",
		Currency:    "INR",
		RatePerUnit: 10,
	})
	require.NoError(t, err)

	doc, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestGenerateReceiptCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().GenerateReceipt(ctx, ReceiptData{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLabels(t *testing.T) {
	assert.Equal(t, "June 2024", periodLabel(2024, 5))
	assert.Equal(t, "January 2025", periodLabel(2025, 0))
	assert.Equal(t, "INR 12.50", money("INR", 12.5))
	assert.Equal(t, "Payment pending", statusLabel(chargedomain.Charge{Status: chargedomain.StatusPending}))
}
