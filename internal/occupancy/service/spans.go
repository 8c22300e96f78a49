package service

import (
	"context"

	occupancydomain "github.com/comfortstays/pgbilling/internal/occupancy/domain"
	"github.com/comfortstays/pgbilling/internal/proration"
	"gorm.io/gorm"
)

// SpansForRoom returns the tenures of current occupants and of past
// occupants who left on or after the first day of period.
func (s *Service) SpansForRoom(ctx context.Context, db *gorm.DB, roomID string, period proration.Period) ([]proration.Span, error) {
	beds, err := s.repo.ListOccupied(ctx, db, roomID)
	if err != nil {
		return nil, err
	}
	history, err := s.historyOverlapping(ctx, db, roomID, period)
	if err != nil {
		return nil, err
	}

	spans := make([]proration.Span, 0, len(beds)+len(history))
	for _, bed := range beds {
		spans = append(spans, spanFromBed(bed))
	}
	for _, entry := range history {
		spans = append(spans, spanFromHistory(*entry))
	}
	return spans, nil
}

func spanFromBed(bed occupancydomain.Bed) proration.Span {
	return proration.Span{
		OccupantID:   bed.OccupantID.String(),
		OccupantName: bed.OccupantName,
		BedID:        bed.ID.String(),
		CheckIn:      bed.CheckInDate,
		CheckOut:     bed.CheckOutDate,
	}
}

func spanFromHistory(entry occupancydomain.BedHistory) proration.Span {
	checkOut := entry.CheckOutDate
	return proration.Span{
		OccupantID:   entry.OccupantID.String(),
		OccupantName: entry.OccupantName,
		BedID:        entry.BedID.String(),
		CheckIn:      entry.CheckInDate,
		CheckOut:     &checkOut,
	}
}
