package engagement

import (
	"time"

	"github.com/willpower-app/willpower/internal/domain"
)

// Clock supplies wall-clock time and the timezone calendar days are cut in.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// SystemClock returns a clock backed by time.Now in loc (UTC when nil).
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Now: time.Now, Location: loc}
}

// Today returns the current calendar day.
func (c Clock) Today() domain.Date {
	return domain.DateOf(c.now(), c.Location)
}

// Time returns the current instant.
func (c Clock) Time() time.Time {
	return c.now()
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}
