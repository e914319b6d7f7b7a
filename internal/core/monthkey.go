package core

import (
	"fmt"
	"regexp"
	"time"
)

// MonthKey identifies a calendar month in YYYY-MM form. Summaries are keyed
// by it so "this month" and "previous month" are direct lookups, never range
// scans.
type MonthKey struct {
	Year  int
	Month time.Month
}

var monthKeyPattern = regexp.MustCompile(`^(\d{4})-(0[1-9]|1[0-2])$`)

// ErrInvalidMonthKey is returned for anything that is not a strict YYYY-MM
// string. Malformed input fails fast; there is no silent default month.
var ErrInvalidMonthKey = fmt.Errorf("month must be in YYYY-MM form")

// ParseMonthKey validates and parses a YYYY-MM string.
func ParseMonthKey(s string) (MonthKey, error) {
	m := monthKeyPattern.FindStringSubmatch(s)
	if m == nil {
		return MonthKey{}, fmt.Errorf("%w: %q", ErrInvalidMonthKey, s)
	}
	var year, month int
	fmt.Sscanf(m[1], "%d", &year)
	fmt.Sscanf(m[2], "%d", &month)
	return MonthKey{Year: year, Month: time.Month(month)}, nil
}

// MonthKeyFor returns the key of the month containing t.
func MonthKeyFor(t time.Time) MonthKey {
	y, m, _ := t.UTC().Date()
	return MonthKey{Year: y, Month: m}
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// Prev returns the preceding calendar month.
func (k MonthKey) Prev() MonthKey {
	if k.Month == time.January {
		return MonthKey{Year: k.Year - 1, Month: time.December}
	}
	return MonthKey{Year: k.Year, Month: k.Month - 1}
}

// Next returns the following calendar month.
func (k MonthKey) Next() MonthKey {
	if k.Month == time.December {
		return MonthKey{Year: k.Year + 1, Month: time.January}
	}
	return MonthKey{Year: k.Year, Month: k.Month + 1}
}

// Bounds returns the month's date range as [start, end) start-of-day times,
// end being the first day of the following month.
func (k MonthKey) Bounds() (start, end time.Time) {
	start = time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

// IsZero reports whether the key is the zero value.
func (k MonthKey) IsZero() bool {
	return k.Year == 0 && k.Month == 0
}
