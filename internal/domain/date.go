package domain

import (
	"time"
)

// DateLayout is the storage format for calendar dates.
const DateLayout = "2006-01-02"

// Date is a calendar day ("YYYY-MM-DD") in the engine's configured timezone.
// The zero value means "absent".
type Date string

// DateOf returns the calendar day of t in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return Date(t.In(loc).Format(DateLayout))
}

// ParseDate validates s and returns it as a Date.
func ParseDate(s string) (Date, error) {
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", Wrap(KindValidation, ErrInvalidDate.Message, err)
	}
	return Date(s), nil
}

// IsZero reports whether the date is absent.
func (d Date) IsZero() bool { return d == "" }

// Time returns midnight UTC of the day. Only meaningful for day arithmetic.
func (d Date) Time() time.Time {
	t, _ := time.Parse(DateLayout, string(d))
	return t
}

// AddDays returns the date n days later (or earlier when n < 0).
func (d Date) AddDays(n int) Date {
	return Date(d.Time().AddDate(0, 0, n).Format(DateLayout))
}

// DaysUntil returns the number of whole calendar days from d to other.
// Negative when other is before d.
func (d Date) DaysUntil(other Date) int {
	// Both sides are UTC midnights so the division is exact across DST.
	return int(other.Time().Sub(d.Time()).Hours() / 24)
}

func (d Date) String() string { return string(d) }
