package service

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/comfortstays/pgbilling/internal/clock"
	"github.com/comfortstays/pgbilling/internal/config"
	obslogger "github.com/comfortstays/pgbilling/internal/observability/logger"
	"github.com/comfortstays/pgbilling/internal/observability/metrics"
	occupancydomain "github.com/comfortstays/pgbilling/internal/occupancy/domain"
	"github.com/comfortstays/pgbilling/internal/proration"
	roomdomain "github.com/comfortstays/pgbilling/internal/room/domain"
	transactiondomain "github.com/comfortstays/pgbilling/internal/transaction/domain"
	"github.com/comfortstays/pgbilling/pkg/db"
	"github.com/comfortstays/pgbilling/pkg/db/option"
	"github.com/comfortstays/pgbilling/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Billing *config.BillingConfigHolder
	Repo    transactiondomain.Repository
	Beds    occupancydomain.Service
	Rooms   roomdomain.Service
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	billing *config.BillingConfigHolder
	metrics *metrics.Metrics

	repo  transactiondomain.Repository
	store repository.Repository[transactiondomain.Transaction]
	beds  occupancydomain.Service
	rooms roomdomain.Service
}

func New(p Params) transactiondomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("transaction.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		billing: p.Billing,
		metrics: p.Metrics,

		repo:  p.Repo,
		store: repository.ProvideStore[transactiondomain.Transaction](p.DB),
		beds:  p.Beds,
		rooms: p.Rooms,
	}
}

// Create records a transaction. Rent and deposits must name an occupied bed;
// without an amount the bed's agreed rent or deposit is used, and a changed
// amount needs a note. One bed takes at most one collection of each type per
// day.
func (s *Service) Create(ctx context.Context, req transactiondomain.CreateRequest) (*transactiondomain.Transaction, error) {
	kind, err := parseType(req.Type)
	if err != nil {
		return nil, err
	}
	status := transactiondomain.StatusCollected
	if strings.TrimSpace(req.Status) != "" {
		if status, err = parseStatus(req.Status); err != nil {
			return nil, err
		}
	}
	if req.Amount != nil && !validAmount(*req.Amount) {
		return nil, transactiondomain.ErrInvalidAmount
	}

	day := clock.Today(s.clock)
	if req.Date != nil && !req.Date.IsZero() {
		day = proration.Day(*req.Date)
	}
	now := s.clock.Now().UTC()
	txn := &transactiondomain.Transaction{
		ID:        s.genID.Generate(),
		Type:      kind,
		Status:    status,
		Note:      strings.TrimSpace(req.Note),
		Date:      day,
		Year:      day.Year(),
		Month:     int(day.Month()) - 1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if status == transactiondomain.StatusCollected {
		txn.CollectedAt = &now
	}

	var bed *occupancydomain.Bed
	if bedID := strings.TrimSpace(req.BedID); bedID != "" {
		if bed, err = s.beds.GetBed(ctx, bedID); err != nil {
			return nil, err
		}
		txn.BedID = &bed.ID
		txn.RoomID = bed.RoomID
	}

	switch {
	case kind.IsCollection():
		if bed == nil {
			return nil, transactiondomain.ErrBedRequired
		}
		if !bed.IsOccupied {
			return nil, transactiondomain.ErrBedVacant
		}
		txn.OccupantID = bed.OccupantID.String()
		txn.OccupantName = bed.OccupantName

		agreed := bed.Rent
		if kind == transactiondomain.TypeDeposit {
			agreed = bed.Deposit
		}
		txn.Amount = agreed
		if req.Amount != nil {
			txn.Amount = *req.Amount
			if txn.Amount != agreed && txn.Note == "" {
				return nil, transactiondomain.ErrNoteRequired
			}
		}
	case req.Amount == nil:
		return nil, transactiondomain.ErrInvalidAmount
	default:
		txn.Amount = *req.Amount
	}
	if txn.Amount <= 0 {
		return nil, transactiondomain.ErrInvalidAmount
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if txn.BedID != nil && kind.IsCollection() {
			existing, err := s.repo.FindCollection(ctx, tx, *txn.BedID, kind, day)
			if err != nil {
				return err
			}
			if existing != nil {
				return transactiondomain.ErrDuplicateEntry
			}
		}
		if err := s.repo.Insert(ctx, tx, txn); err != nil {
			if db.IsDuplicateKeyErr(err) {
				return transactiondomain.ErrDuplicateEntry
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransaction(ctx, string(txn.Type), string(txn.Status), txn.Amount)
	s.log.Info("transaction recorded",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("type", string(txn.Type)),
		zap.String("status", string(txn.Status)),
		zap.String("room_id", txn.RoomID),
		zap.Float64("amount", txn.Amount),
		obslogger.Period(txn.Year, txn.Month),
	)
	return txn, nil
}

func (s *Service) Get(ctx context.Context, id string) (*transactiondomain.Transaction, error) {
	txnID, err := transactiondomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return nil, transactiondomain.ErrInvalidID
	}
	txn, err := s.repo.FindByID(ctx, s.db, txnID)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, transactiondomain.ErrNotFound
	}
	return txn, nil
}

// List returns matching transactions, newest first, with the sum of their
// amounts.
func (s *Service) List(ctx context.Context, req transactiondomain.ListRequest) (*transactiondomain.ListResponse, error) {
	filter := &transactiondomain.Transaction{}
	if strings.TrimSpace(req.Type) != "" {
		kind, err := parseType(req.Type)
		if err != nil {
			return nil, err
		}
		filter.Type = kind
	}
	if strings.TrimSpace(req.Status) != "" {
		status, err := parseStatus(req.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}
	if value := strings.TrimSpace(req.BedID); value != "" {
		bedID, err := occupancydomain.ParseID(value)
		if err != nil {
			return nil, occupancydomain.ErrInvalidID
		}
		filter.BedID = &bedID
	}
	if value := strings.TrimSpace(req.RoomID); value != "" {
		if _, err := s.rooms.Get(value); err != nil {
			return nil, err
		}
		filter.RoomID = value
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"date": true}, Default: "date"}),
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"id": true}, Default: "id"}),
		option.WithLimit(limit),
	}
	if req.Year != nil {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "year", Operator: option.EQ, Value: *req.Year}))
	}
	if req.Month != nil {
		if *req.Month < 0 || *req.Month > 11 {
			return nil, proration.ErrInvalidMonth
		}
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "month", Operator: option.EQ, Value: *req.Month}))
	}

	rows, err := s.store.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	resp := &transactiondomain.ListResponse{Transactions: make([]transactiondomain.Transaction, 0, len(rows))}
	for _, row := range rows {
		resp.Transactions = append(resp.Transactions, *row)
		resp.Total += row.Amount
	}
	resp.Count = len(resp.Transactions)
	return resp, nil
}

// SetStatus moves a transaction between collected, pending and overdue.
// Setting the current status again is a no-op.
func (s *Service) SetStatus(ctx context.Context, id string, value string) (*transactiondomain.Transaction, error) {
	status, err := parseStatus(value)
	if err != nil {
		return nil, err
	}
	txn, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn.Status == status {
		return txn, nil
	}

	now := s.clock.Now().UTC()
	var collectedAt *time.Time
	if status == transactiondomain.StatusCollected {
		collectedAt = &now
	}
	if err := s.repo.UpdateStatus(ctx, s.db, txn.ID, status, collectedAt, now); err != nil {
		return nil, err
	}

	s.log.Info("transaction status changed",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("from", string(txn.Status)),
		zap.String("to", string(status)),
	)
	txn.Status = status
	txn.CollectedAt = collectedAt
	txn.UpdatedAt = now
	return txn, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	txnID, err := transactiondomain.ParseID(strings.TrimSpace(id))
	if err != nil {
		return transactiondomain.ErrInvalidID
	}
	deleted, err := s.repo.Delete(ctx, s.db, txnID)
	if err != nil {
		return err
	}
	if deleted == 0 {
		return transactiondomain.ErrNotFound
	}
	s.log.Info("transaction deleted", zap.String("transaction_id", txnID.String()))
	return nil
}

// Summary is the month's profit and loss: collected rent and deposits less
// every expense of the month and the configured fixed costs. Unpaid rent and
// deposits are reported as outstanding and left out of the net.
func (s *Service) Summary(ctx context.Context, year, month int) (*transactiondomain.Summary, error) {
	if _, err := proration.NewPeriod(year, month); err != nil {
		return nil, err
	}
	totals, err := s.repo.SummarizeByType(ctx, s.db, year, month)
	if err != nil {
		return nil, err
	}

	summary := &transactiondomain.Summary{
		Year:       year,
		Month:      month,
		Currency:   s.rooms.Tariff().Currency,
		FixedCosts: []transactiondomain.FixedCost{},
		ByType:     []transactiondomain.TypeTotals{},
	}
	for _, t := range totals {
		summary.ByType = append(summary.ByType, t)
		switch t.Type {
		case transactiondomain.TypeRent:
			summary.Rent += t.Collected
			summary.Outstanding += t.Outstanding
		case transactiondomain.TypeDeposit:
			summary.Deposits += t.Collected
			summary.Outstanding += t.Outstanding
		case transactiondomain.TypeExpense:
			summary.Expenses += t.Collected + t.Outstanding
		}
	}
	summary.Collections = summary.Rent + summary.Deposits

	for _, cost := range s.billing.Get().FixedCosts {
		summary.FixedCosts = append(summary.FixedCosts, transactiondomain.FixedCost{Name: cost.Name, Amount: cost.Amount})
		summary.FixedTotal += cost.Amount
	}
	summary.Net = summary.Collections - summary.Expenses - summary.FixedTotal
	summary.Result = transactiondomain.ResultProfit
	if summary.Net < 0 {
		summary.Result = transactiondomain.ResultLoss
	}

	for _, room := range s.rooms.List() {
		beds, err := s.beds.ListBeds(ctx, room.ID)
		if err != nil {
			return nil, err
		}
		for _, bed := range beds {
			if bed.IsOccupied {
				summary.PotentialRent += bed.Rent
			}
		}
	}
	return summary, nil
}

func parseType(value string) (transactiondomain.Type, error) {
	switch kind := transactiondomain.Type(strings.ToLower(strings.TrimSpace(value))); kind {
	case transactiondomain.TypeRent, transactiondomain.TypeDeposit, transactiondomain.TypeExpense:
		return kind, nil
	default:
		return "", transactiondomain.ErrInvalidType
	}
}

func parseStatus(value string) (transactiondomain.Status, error) {
	switch status := transactiondomain.Status(strings.ToLower(strings.TrimSpace(value))); status {
	case transactiondomain.StatusCollected, transactiondomain.StatusPending, transactiondomain.StatusOverdue:
		return status, nil
	default:
		return "", transactiondomain.ErrInvalidStatus
	}
}

func validAmount(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
