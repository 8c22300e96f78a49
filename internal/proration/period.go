package proration

import (
	"fmt"
	"time"
)

// Period is one billing month. Month is zero-based (0 = January) to match
// stored readings.
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func NewPeriod(year, month int) (Period, error) {
	if month < 0 || month > 11 {
		return Period{}, fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}
	if year < 1970 || year > 9999 {
		return Period{}, fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}
	return Period{Year: year, Month: month}, nil
}

// PeriodOf returns the billing month containing t.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month()) - 1}
}

// Start is the first calendar day of the month in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month+1), 1, 0, 0, 0, 0, time.UTC)
}

// End is the last calendar day of the month in UTC.
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, -1)
}

func (p Period) Days() int {
	return p.End().Day()
}

func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

func (p Period) Previous() Period {
	if p.Month == 0 {
		return Period{Year: p.Year - 1, Month: 11}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month+1)
}

// Day truncates t to its calendar day, expressed in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween counts whole days from a to b; both must be UTC midnights.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}
