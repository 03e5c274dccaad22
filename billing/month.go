package billing

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidMonth is returned when a month key is not of the form YYYY-MM.
	ErrInvalidMonth = errors.New("invalid month")
	// ErrInvalidRange is returned when a timeline starts after it ends or
	// spans more than MaxTimelineMonths.
	ErrInvalidRange = errors.New("invalid month range")
)

// MaxTimelineMonths bounds the months a single timeline may lay out.
const MaxTimelineMonths = 600

// Month is a calendar month used as a ledger key.
type Month struct {
	Year  int
	Month time.Month
}

// ParseMonth accepts "YYYY-MM" and the unpadded "YYYY-M".
func ParseMonth(s string) (Month, error) {
	year, month, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || len(year) != 4 || len(month) == 0 || len(month) > 2 {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return Month{}, fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return Month{Year: y, Month: time.Month(m)}, nil
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Before reports whether m is chronologically before o.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// Next returns the following calendar month.
func (m Month) Next() Month {
	if m.Month == time.December {
		return Month{Year: m.Year + 1, Month: time.January}
	}
	return Month{Year: m.Year, Month: m.Month + 1}
}

// Timeline lists every month from start to end inclusive, in order.
func Timeline(start, end string) ([]string, error) {
	from, err := ParseMonth(start)
	if err != nil {
		return nil, err
	}
	to, err := ParseMonth(end)
	if err != nil {
		return nil, err
	}
	if to.Before(from) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, from, to)
	}
	span := (to.Year-from.Year)*12 + int(to.Month) - int(from.Month) + 1
	if span > MaxTimelineMonths {
		return nil, fmt.Errorf("%w: %s to %s spans %d months, more than %d", ErrInvalidRange, from, to, span, MaxTimelineMonths)
	}

	var months []string
	for m := from; !to.Before(m); m = m.Next() {
		months = append(months, m.String())
	}
	return months, nil
}
