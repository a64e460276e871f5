package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// DateOf truncates t to its calendar date, expressed as midnight UTC so
// dates from different sources compare with plain time comparisons.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar date in loc. Production code passes
// clockwork.NewRealClock(); tests pass a fake clock to pin the date.
func Today(clock clockwork.Clock, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(clock.Now().In(loc))
}
