package domain

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
)

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start civil.Date
	End   civil.Date
}

// TrailingYear returns the 365 days ending yesterday relative to today.
func TrailingYear(today civil.Date) DateRange {
	end := today.AddDays(-1)
	return DateRange{Start: end.AddDays(-365), End: end}
}

// Validate reports an error when the range is inverted or unset.
func (r DateRange) Validate() error {
	if !r.Start.IsValid() || !r.End.IsValid() {
		return fmt.Errorf("invalid date range %s..%s", r.Start, r.End)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("date range end %s is before start %s", r.End, r.Start)
	}
	return nil
}

// Today returns the calendar date of t in its own location.
func Today(t time.Time) civil.Date {
	return civil.DateOf(t)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("ParseDate: %w", err)
	}
	return d, nil
}
