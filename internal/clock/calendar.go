package clock

import (
	"time"

	"gorm.io/datatypes"
)

// DayLayout is the wire format for calendar days.
const DayLayout = "2006-01-02"

// Calendar resolves "today" for the journal in a fixed timezone.
// Days are always stored as midnight UTC so that the same calendar day
// compares equal regardless of the timezone it was computed in.
type Calendar struct {
	Location *time.Location
	Now      func() time.Time
}

// New returns a Calendar for loc backed by the wall clock.
func New(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{Location: loc, Now: time.Now}
}

// Fixed returns a Calendar whose clock is frozen at t. Used by tests and
// by the provision command's --date flag.
func Fixed(t time.Time) Calendar {
	return Calendar{Location: t.Location(), Now: func() time.Time { return t }}
}

// Time returns the current instant.
func (c Calendar) Time() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Today returns the current calendar day in the calendar's timezone.
func (c Calendar) Today() datatypes.Date {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return DayOf(c.Time().In(loc))
}

// DayOf truncates t to its calendar day, normalised to UTC midnight.
func DayOf(t time.Time) datatypes.Date {
	y, m, d := t.Date()
	return datatypes.Date(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// ParseDay parses a YYYY-MM-DD string.
func ParseDay(s string) (datatypes.Date, error) {
	t, err := time.Parse(DayLayout, s)
	if err != nil {
		return datatypes.Date{}, err
	}
	return DayOf(t), nil
}

// FormatDay renders a day as YYYY-MM-DD.
func FormatDay(d datatypes.Date) string {
	return time.Time(d).UTC().Format(DayLayout)
}
