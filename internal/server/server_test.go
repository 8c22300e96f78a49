package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	chargedomain "github.com/comfortstays/pgbilling/internal/charge/domain"
	chargerepository "github.com/comfortstays/pgbilling/internal/charge/repository"
	chargeservice "github.com/comfortstays/pgbilling/internal/charge/service"
	"github.com/comfortstays/pgbilling/internal/clock"
	"github.com/comfortstays/pgbilling/internal/config"
	"github.com/comfortstays/pgbilling/internal/migration"
	occupancydomain "github.com/comfortstays/pgbilling/internal/occupancy/domain"
	occupancyrepository "github.com/comfortstays/pgbilling/internal/occupancy/repository"
	occupancyservice "github.com/comfortstays/pgbilling/internal/occupancy/service"
	"github.com/comfortstays/pgbilling/internal/providers/pdf"
	readingrepository "github.com/comfortstays/pgbilling/internal/reading/repository"
	readingservice "github.com/comfortstays/pgbilling/internal/reading/service"
	roomservice "github.com/comfortstays/pgbilling/internal/room/service"
	transactionrepository "github.com/comfortstays/pgbilling/internal/transaction/repository"
	transactionservice "github.com/comfortstays/pgbilling/internal/transaction/service"
	"github.com/comfortstays/pgbilling/pkg/db"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testAPI struct {
	engine    *gin.Engine
	db        *gorm.DB
	occupancy *occupancyservice.Service
}

func setupServerTest(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	billing, err := config.NewStaticBillingConfig(config.DefaultBillingConfig())
	require.NoError(t, err)
	rooms := roomservice.New(roomservice.Params{Billing: billing})
	fake := clock.NewFakeClock(time.Date(2024, time.July, 3, 8, 0, 0, 0, time.UTC))
	cfg := config.Config{Charges: config.ChargeConfig{MaxAttempts: 2, RetryBackoff: time.Millisecond}}

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

	readings := readingrepository.Provide()
	charges := chargeservice.New(chargeservice.Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    node,
		Clock:    fake,
		Config:   cfg,
		Repo:     chargerepository.Provide(),
		Readings: readings,
		Spans:    occupancy,
		Rooms:    rooms,
	})
	readingSvc := readingservice.New(readingservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fake,
		Repo:    readings,
		Charges: charges,
		Rooms:   rooms,
	})

	transactions := transactionservice.New(transactionservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fake,
		Billing: billing,
		Repo:    transactionrepository.Provide(),
		Beds:    occupancy,
		Rooms:   rooms,
	})

	srv := NewServer(ServerParams{
		Gin:            NewEngine(nil),
		Cfg:            cfg,
		RoomSvc:        rooms,
		OccupancySvc:   occupancy,
		ReadingSvc:     readingSvc,
		ChargeSvc:      charges,
		TransactionSvc: transactions,
		PDF:            pdf.New(),
	})
	return &testAPI{engine: srv.Engine(), db: conn, occupancy: occupancy}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) bedID(t *testing.T, roomID string, number int) string {
	t.Helper()
	beds, err := a.occupancy.ListBeds(context.Background(), roomID)
	require.NoError(t, err)
	for _, bed := range beds {
		if bed.BedNumber == number {
			return bed.ID.String()
		}
	}
	t.Fatalf("bed %d not found in %s", number, roomID)
	return ""
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Error
}

type readingView struct {
	ID    string `json:"id"`
	Rooms []struct {
		RoomID          string  `json:"room_id"`
		UnitsConsumed   float64 `json:"units_consumed"`
		TotalBill       float64 `json:"total_bill"`
		BaselineMissing bool    `json:"baseline_missing"`
	} `json:"rooms"`
	Charges []chargedomain.Charge `json:"charges"`
}

func TestHealth(t *testing.T) {
	api := setupServerTest(t)

	rec := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestBillingFlow(t *testing.T) {
	api := setupServerTest(t)

	rec := api.do(t, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 4)

	rec = api.do(t, http.MethodPut, "/api/beds/"+api.bedID(t, "room1", 1)+"/occupant", map[string]any{
		"occupant_name": "Asha",
		"check_in_date": "2024-05-01",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	bed2 := api.bedID(t, "room1", 2)
	rec = api.do(t, http.MethodPut, "/api/beds/"+bed2+"/occupant", map[string]any{
		"occupant_name": "Ravi",
		"check_in_date": "2024-06-01",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = api.do(t, http.MethodPost, "/api/beds/"+bed2+"/vacate", map[string]any{"check_out_date": "2024-06-10"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/rooms/room1/spans?year=2024&month=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	spans := decode[[]occupancydomain.SpanResponse](t, rec)
	require.Len(t, spans, 2)

	rec = api.do(t, http.MethodPost, "/api/readings", map[string]any{
		"year": 2024, "month": 4, "reading_date": "2024-05-31", "rooms": map[string]float64{"room1": 100},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/readings", map[string]any{
		"year": 2024, "month": 5, "reading_date": "2024-06-30", "rooms": map[string]float64{"room1": 150},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	june := decode[readingView](t, rec)
	require.Len(t, june.Rooms, 1)
	assert.Equal(t, 50.0, june.Rooms[0].UnitsConsumed)
	assert.Equal(t, 500.0, june.Rooms[0].TotalBill)
	require.Len(t, june.Charges, 2)

	shares := map[string]float64{}
	for _, charge := range june.Charges {
		shares[charge.OccupantName] = charge.FairShare
	}
	assert.InDelta(t, 375.0, shares["Asha"], 1e-9)
	assert.InDelta(t, 125.0, shares["Ravi"], 1e-9)

	rec = api.do(t, http.MethodGet, "/api/charges?year=2024&month=5&status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[[]chargedomain.Charge](t, rec)
	require.Len(t, pending, 2)

	rec = api.do(t, http.MethodPost, "/api/charges/"+pending[0].ID.String()+"/collect", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, chargedomain.StatusCollected, decode[chargedomain.Charge](t, rec).Status)

	rec = api.do(t, http.MethodGet, "/api/charges/"+pending[0].ID.String()+"/receipt", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	rec = api.do(t, http.MethodGet, "/api/billing/summary?year=2024&month=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[chargedomain.Summary](t, rec)
	assert.InDelta(t, 500.0, summary.Billed, 1e-9)
	assert.InDelta(t, 500.0, summary.Collected+summary.Pending, 1e-9)

	rec = api.do(t, http.MethodPut, "/api/readings/"+june.ID, map[string]any{"rooms": map[string]float64{"room1": 190}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[readingView](t, rec)
	assert.Equal(t, 90.0, edited.Rooms[0].UnitsConsumed)
	assert.Len(t, edited.Charges, 2)

	rec = api.do(t, http.MethodGet, "/api/charges?reading_id="+june.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]chargedomain.Charge](t, rec), 2)

	rec = api.do(t, http.MethodPost, "/api/readings/"+june.ID+"/recompute", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodGet, "/api/readings?room_id=room1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]readingView](t, rec), 2)
}

func TestErrorMapping(t *testing.T) {
	api := setupServerTest(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		kind   string
		code   string
	}{
		{"bad json", http.MethodPost, "/api/readings", "nope", http.StatusBadRequest, "validation_error", "invalid_request"},
		{"missing month", http.MethodPost, "/api/readings", map[string]any{"year": 2024}, http.StatusBadRequest, "validation_error", "required"},
		{"month out of range", http.MethodPost, "/api/readings", map[string]any{"year": 2024, "month": 12, "rooms": map[string]float64{"room1": 1}}, http.StatusBadRequest, "validation_error", "invalid_month"},
		{"non ac room", http.MethodPost, "/api/readings", map[string]any{"year": 2024, "month": 1, "rooms": map[string]float64{"hall": 1}}, http.StatusBadRequest, "validation_error", "room_not_ac_enabled"},
		{"negative units", http.MethodPost, "/api/readings", map[string]any{"year": 2024, "month": 1, "rooms": map[string]float64{"room1": -4}}, http.StatusBadRequest, "validation_error", "negative_units"},
		{"unknown reading", http.MethodGet, "/api/readings/123", nil, http.StatusNotFound, "not_found", "not_found"},
		{"bad reading id", http.MethodGet, "/api/readings/abc", nil, http.StatusBadRequest, "validation_error", "invalid_id"},
		{"unknown room", http.MethodGet, "/api/rooms/attic/beds", nil, http.StatusNotFound, "not_found", "not_found"},
		{"unknown charge", http.MethodPost, "/api/charges/55/collect", nil, http.StatusNotFound, "not_found", "not_found"},
		{"bad status", http.MethodGet, "/api/charges?status=void", nil, http.StatusBadRequest, "validation_error", "invalid_status"},
		{"summary without month", http.MethodGet, "/api/billing/summary?year=2024", nil, http.StatusBadRequest, "validation_error", "invalid_month"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := api.do(t, tc.method, tc.path, tc.body)
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			payload := decodeError(t, rec)
			assert.Equal(t, tc.kind, payload.Type)
			if len(payload.Errors) > 0 {
				assert.Equal(t, tc.code, payload.Errors[0].Code)
			} else {
				assert.Equal(t, tc.code, payload.Type)
			}
		})
	}
}

func TestConflicts(t *testing.T) {
	api := setupServerTest(t)

	body := map[string]any{"year": 2024, "month": 5, "rooms": map[string]float64{"room1": 10}}
	require.Equal(t, http.StatusCreated, api.do(t, http.MethodPost, "/api/readings", body).Code)
	rec := api.do(t, http.MethodPost, "/api/readings", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeError(t, rec).Type)

	rec = api.do(t, http.MethodPost, "/api/beds/"+api.bedID(t, "room3", 1)+"/vacate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestPersistenceFailureIsReported(t *testing.T) {
	api := setupServerTest(t)

	rec := api.do(t, http.MethodPut, "/api/beds/"+api.bedID(t, "room3", 1)+"/occupant", map[string]any{
		"occupant_name": "Meera",
		"check_in_date": "2024-01-01",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.NoError(t, api.db.Callback().Create().Before("gorm:create").Register("test:fail_charges", func(d *gorm.DB) {
		if d.Statement.Table == "prorated_charges" {
			_ = d.AddError(&pgconn.PgError{Code: "40001"})
		}
	}))

	rec = api.do(t, http.MethodPost, "/api/readings", map[string]any{
		"year": 2024, "month": 5, "rooms": map[string]float64{"room3": 40},
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "charges_inconsistent", decodeError(t, rec).Type)
}

func TestPreviewProration(t *testing.T) {
	api := setupServerTest(t)

	rec := api.do(t, http.MethodPost, "/api/proration/preview", map[string]any{
		"room_id":        "room1",
		"year":           2024,
		"month":          1,
		"units_consumed": 29,
		"spans": []map[string]any{
			{"occupant_id": "a", "check_in_date": "2024-01-10"},
			{"occupant_id": "b", "check_in_date": "2024-02-15", "check_out_date": "2024-02-29"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Data struct {
			TotalBill          float64 `json:"total_bill"`
			TotalOccupancyDays int     `json:"total_occupancy_days"`
			Shares             []struct {
				OccupantID    string  `json:"occupant_id"`
				OccupancyDays int     `json:"occupancy_days"`
				FairShare     float64 `json:"fair_share"`
			} `json:"shares"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 290.0, out.Data.TotalBill)
	assert.Equal(t, 44, out.Data.TotalOccupancyDays)
	require.Len(t, out.Data.Shares, 2)
	assert.Equal(t, 29, out.Data.Shares[0].OccupancyDays)
	assert.Equal(t, 15, out.Data.Shares[1].OccupancyDays)

	rec = api.do(t, http.MethodPost, "/api/proration/preview", map[string]any{
		"year": 2024, "month": 1, "total_bill": 10,
		"spans": []map[string]any{{"occupant_id": "a", "check_in_date": "2024-02-10", "check_out_date": "2024-02-01"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_span", decodeError(t, rec).Errors[0].Code)
}

type transactionView struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Status       string  `json:"status"`
	BedID        string  `json:"bed_id"`
	OccupantName string  `json:"occupant_name"`
	Amount       float64 `json:"amount"`
	Month        int     `json:"month"`
}

func TestTransactionFlow(t *testing.T) {
	api := setupServerTest(t)

	bed := api.bedID(t, "room2", 1)
	rec := api.do(t, http.MethodPut, "/api/beds/"+bed+"/occupant", map[string]any{
		"occupant_name": "Meera",
		"rent":          6500,
		"deposit":       6500,
		"check_in_date": "2024-07-01",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/transactions", map[string]any{"type": "rent", "bed_id": bed, "date": "2024-07-02"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rent := decode[transactionView](t, rec)
	assert.Equal(t, 6500.0, rent.Amount)
	assert.Equal(t, "collected", rent.Status)
	assert.Equal(t, "Meera", rent.OccupantName)
	assert.Equal(t, 6, rent.Month)

	rec = api.do(t, http.MethodPost, "/api/transactions", map[string]any{"type": "rent", "bed_id": bed, "date": "2024-07-02"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/transactions", map[string]any{"type": "deposit", "bed_id": bed, "amount": 5000})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "note_required_for_changed_amount", decodeError(t, rec).Errors[0].Code)

	rec = api.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"type": "deposit", "bed_id": bed, "amount": 5000, "note": "balance next month",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/transactions", map[string]any{
		"type": "expense", "status": "pending", "amount": 2000, "note": "plumber",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	expense := decode[transactionView](t, rec)

	rec = api.do(t, http.MethodPost, "/api/transactions", map[string]any{"type": "rent", "bed_id": api.bedID(t, "hall", 1)})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/transactions?type=rent&year=2024&month=6", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Transactions []transactionView `json:"transactions"`
		Total        float64           `json:"total"`
		Count        int               `json:"count"`
	}](t, rec)
	assert.Equal(t, 1, list.Count)
	assert.Equal(t, 6500.0, list.Total)

	rec = api.do(t, http.MethodGet, "/api/transactions/summary?year=2024&month=6", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[struct {
		Collections   float64 `json:"collections"`
		Expenses      float64 `json:"expenses"`
		FixedTotal    float64 `json:"fixed_total"`
		Net           float64 `json:"net"`
		Result        string  `json:"result"`
		PotentialRent float64 `json:"potential_rent"`
	}](t, rec)
	assert.Equal(t, 11500.0, summary.Collections)
	assert.Equal(t, 2000.0, summary.Expenses)
	assert.Equal(t, 15000.0, summary.FixedTotal)
	assert.Equal(t, -5500.0, summary.Net)
	assert.Equal(t, "loss", summary.Result)
	assert.Equal(t, 6500.0, summary.PotentialRent)

	rec = api.do(t, http.MethodPut, "/api/transactions/"+expense.ID+"/status", map[string]any{"status": "collected"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "collected", decode[transactionView](t, rec).Status)

	rec = api.do(t, http.MethodPut, "/api/transactions/"+expense.ID+"/status", map[string]any{"status": "void"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/transactions/"+rent.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = api.do(t, http.MethodGet, "/api/transactions/"+rent.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
