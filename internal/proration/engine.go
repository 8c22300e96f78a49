package proration

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// Span is the inclusive interval during which an occupant held a bed.
// A nil CheckIn means the occupant was present before any month under
// consideration; a nil CheckOut means the occupant is still there.
type Span struct {
	OccupantID   string     `json:"occupant_id"`
	OccupantName string     `json:"occupant_name,omitempty"`
	BedID        string     `json:"bed_id,omitempty"`
	CheckIn      *time.Time `json:"check_in_date,omitempty"`
	CheckOut     *time.Time `json:"check_out_date,omitempty"`
}

func (s Span) Validate() error {
	if s.CheckIn != nil && s.CheckOut != nil && Day(*s.CheckIn).After(Day(*s.CheckOut)) {
		return fmt.Errorf("%w: occupant %q checks out %s before checking in %s",
			ErrInvalidSpan,
			s.OccupantID,
			s.CheckOut.Format(time.DateOnly),
			s.CheckIn.Format(time.DateOnly),
		)
	}
	return nil
}

// OccupancyDaysInMonth counts the calendar days of p covered by span,
// both boundary days included. It never returns a negative value.
func OccupancyDaysInMonth(span Span, p Period) int {
	start, end, ok := clip(span, p)
	if !ok {
		return 0
	}
	return daysBetween(start, end) + 1
}

// clip returns the part of span inside p, or ok=false when they do not meet.
func clip(span Span, p Period) (start, end time.Time, ok bool) {
	monthStart, monthEnd := p.Start(), p.End()

	start = monthStart
	if span.CheckIn != nil {
		start = Day(*span.CheckIn)
	}
	end = monthEnd
	if span.CheckOut != nil {
		end = Day(*span.CheckOut)
	}

	if start.Before(monthStart) {
		start = monthStart
	}
	if end.After(monthEnd) {
		end = monthEnd
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// interval is an inclusive range of UTC days.
type interval struct {
	start, end time.Time
}

// unionDays counts the distinct days covered by ranges. Overlapping and
// adjacent ranges are joined before counting.
func unionDays(ranges []interval) int {
	sorted := slices.Clone(ranges)
	slices.SortFunc(sorted, func(a, b interval) int { return a.start.Compare(b.start) })

	days := 0
	cur := sorted[0]
	for _, next := range sorted[1:] {
		if !next.start.After(cur.end.AddDate(0, 0, 1)) {
			if next.end.After(cur.end) {
				cur.end = next.end
			}
			continue
		}
		days += daysBetween(cur.start, cur.end) + 1
		cur = next
	}
	return days + daysBetween(cur.start, cur.end) + 1
}

// Share is one occupant's portion of a room bill.
type Share struct {
	OccupantID    string  `json:"occupant_id"`
	OccupantName  string  `json:"occupant_name,omitempty"`
	BedID         string  `json:"bed_id,omitempty"`
	OccupancyDays int     `json:"occupancy_days"`
	FairShare     float64 `json:"fair_share"`
	DailyRate     float64 `json:"daily_rate"`
}

// FairCalculation is the day-weighted split of one room's bill for one month.
type FairCalculation struct {
	RoomID             string  `json:"room_id"`
	Year               int     `json:"year"`
	Month              int     `json:"month"`
	TotalBill          float64 `json:"total_bill"`
	TotalOccupancyDays int     `json:"total_occupancy_days"`
	DailyRatePerUnit   float64 `json:"daily_rate_per_unit"`
	// AveragePerPerson is an equal split kept for display; charges use FairShare.
	AveragePerPerson float64 `json:"average_per_person"`
	Shares           []Share `json:"shares"`
}

// ComputeFairDistribution splits totalBill across the occupants of roomID in
// proportion to the days each held a bed during the month. Spans that do not
// touch the month get no share. Spans of the same occupant are counted once
// per day they cover.
func ComputeFairDistribution(roomID string, year, month int, totalBill float64, spans []Span) (FairCalculation, error) {
	period, err := NewPeriod(year, month)
	if err != nil {
		return FairCalculation{}, err
	}
	if totalBill < 0 || math.IsNaN(totalBill) || math.IsInf(totalBill, 0) {
		return FairCalculation{}, fmt.Errorf("%w: %v", ErrNegativeBill, totalBill)
	}

	calc := FairCalculation{
		RoomID:    roomID,
		Year:      year,
		Month:     month,
		TotalBill: totalBill,
		Shares:    []Share{},
	}

	// Spans of one occupant collapse into one share over the union of their days.
	index := map[string]int{}
	var ranges [][]interval
	for _, span := range spans {
		if err := span.Validate(); err != nil {
			return FairCalculation{}, err
		}
		start, end, ok := clip(span, period)
		if !ok {
			continue
		}
		if span.OccupantID != "" {
			if i, ok := index[span.OccupantID]; ok {
				ranges[i] = append(ranges[i], interval{start, end})
				continue
			}
			index[span.OccupantID] = len(calc.Shares)
		}
		ranges = append(ranges, []interval{{start, end}})
		calc.Shares = append(calc.Shares, Share{
			OccupantID:   span.OccupantID,
			OccupantName: span.OccupantName,
			BedID:        span.BedID,
		})
	}
	for i := range calc.Shares {
		calc.Shares[i].OccupancyDays = unionDays(ranges[i])
	}

	for _, share := range calc.Shares {
		calc.TotalOccupancyDays += share.OccupancyDays
	}
	if calc.TotalOccupancyDays == 0 {
		return calc, nil
	}

	calc.DailyRatePerUnit = totalBill / float64(calc.TotalOccupancyDays)
	calc.AveragePerPerson = totalBill / float64(len(calc.Shares))
	for i := range calc.Shares {
		share := &calc.Shares[i]
		share.FairShare = float64(share.OccupancyDays) / float64(calc.TotalOccupancyDays) * totalBill
		share.DailyRate = share.FairShare / float64(share.OccupancyDays)
	}
	return calc, nil
}

// UnitsConsumed is the meter delta, clamped so a meter reset or a typo
// never produces a negative bill.
func UnitsConsumed(previousUnits, currentUnits float64) float64 {
	return math.Max(0, currentUnits-previousUnits)
}

func TotalBill(unitsConsumed, ratePerUnit float64) float64 {
	return unitsConsumed * ratePerUnit
}
