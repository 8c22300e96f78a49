package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall time so checkout sweeps and default reading dates
// can be pinned in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

func New() Clock { return realClock{} }

var Module = fx.Module("clock", fx.Provide(New))

// Today returns the UTC calendar day containing now.
func Today(c Clock) time.Time {
	now := c.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
