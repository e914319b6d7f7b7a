package core

import (
	"testing"
	"time"
)

func TestNextOccurrenceSimpleSteps(t *testing.T) {
	tests := []struct {
		name      string
		date      time.Time
		frequency Frequency
		interval  int
		want      time.Time
	}{
		{
			name:      "daily",
			date:      NewDate(2024, time.March, 10),
			frequency: Daily,
			interval:  1,
			want:      NewDate(2024, time.March, 11),
		},
		{
			name:      "daily with interval",
			date:      NewDate(2024, time.March, 10),
			frequency: Daily,
			interval:  5,
			want:      NewDate(2024, time.March, 15),
		},
		{
			name:      "weekly",
			date:      NewDate(2024, time.January, 1),
			frequency: Weekly,
			interval:  1,
			want:      NewDate(2024, time.January, 8),
		},
		{
			name:      "bi-weekly",
			date:      NewDate(2024, time.January, 1),
			frequency: BiWeekly,
			interval:  1,
			want:      NewDate(2024, time.January, 15),
		},
		{
			name:      "bi-weekly with interval doubles the fortnight",
			date:      NewDate(2024, time.January, 1),
			frequency: BiWeekly,
			interval:  2,
			want:      NewDate(2024, time.January, 29),
		},
		{
			name:      "monthly mid-month",
			date:      NewDate(2024, time.March, 10),
			frequency: Monthly,
			interval:  1,
			want:      NewDate(2024, time.April, 10),
		},
		{
			name:      "quarterly crosses year boundary",
			date:      NewDate(2024, time.November, 5),
			frequency: Quarterly,
			interval:  1,
			want:      NewDate(2025, time.February, 5),
		},
		{
			name:      "yearly plain",
			date:      NewDate(2024, time.June, 15),
			frequency: Yearly,
			interval:  1,
			want:      NewDate(2025, time.June, 15),
		},
		{
			name:      "zero interval treated as one",
			date:      NewDate(2024, time.March, 10),
			frequency: Daily,
			interval:  0,
			want:      NewDate(2024, time.March, 11),
		},
		{
			name:      "unknown frequency falls back to monthly",
			date:      NewDate(2024, time.March, 10),
			frequency: Frequency("fortnightly"),
			interval:  1,
			want:      NewDate(2024, time.April, 10),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextOccurrence(tt.date, tt.frequency, tt.interval)
			if !got.Equal(tt.want) {
				t.Errorf("NextOccurrence() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNextOccurrenceNormalizesTimeOfDay(t *testing.T) {
	noon := time.Date(2024, time.March, 10, 12, 30, 45, 0, time.UTC)
	got := NextOccurrence(noon, Daily, 1)
	want := NewDate(2024, time.March, 11)
	if !got.Equal(want) {
		t.Errorf("NextOccurrence() = %v, want start of day %v", got, want)
	}
}

func TestNextOccurrenceMonthEndStickiness(t *testing.T) {
	// A monthly rule landing on Jan 31 must keep landing on the last day of
	// every subsequent month, including after being clamped by February.
	date := NewDate(2023, time.January, 31)
	want := []time.Time{
		NewDate(2023, time.February, 28),
		NewDate(2023, time.March, 31),
		NewDate(2023, time.April, 30),
		NewDate(2023, time.May, 31),
		NewDate(2023, time.June, 30),
		NewDate(2023, time.July, 31),
		NewDate(2023, time.August, 31),
		NewDate(2023, time.September, 30),
		NewDate(2023, time.October, 31),
		NewDate(2023, time.November, 30),
		NewDate(2023, time.December, 31),
		NewDate(2024, time.January, 31),
		NewDate(2024, time.February, 29), // leap year
		NewDate(2024, time.March, 31),
	}

	for i, w := range want {
		date = NextOccurrence(date, Monthly, 1)
		if !date.Equal(w) {
			t.Fatalf("step %d: got %v, want %v", i+1, date, w)
		}
	}
}

func TestNextOccurrenceMonthlyClampWithoutStick(t *testing.T) {
	// Day 30 does not exist in February: clamp to Feb 28, which is itself a
	// month end, so the sequence sticks to month ends from there on.
	date := NewDate(2023, time.January, 30)

	date = NextOccurrence(date, Monthly, 1)
	if want := NewDate(2023, time.February, 28); !date.Equal(want) {
		t.Fatalf("got %v, want %v", date, want)
	}
	date = NextOccurrence(date, Monthly, 1)
	if want := NewDate(2023, time.March, 31); !date.Equal(want) {
		t.Fatalf("got %v, want %v", date, want)
	}
}

func TestNextOccurrenceQuarterlyMonthEnd(t *testing.T) {
	date := NewDate(2023, time.November, 30)
	want := []time.Time{
		NewDate(2024, time.February, 29),
		NewDate(2024, time.May, 31),
		NewDate(2024, time.August, 31),
		NewDate(2024, time.November, 30),
	}
	for i, w := range want {
		date = NextOccurrence(date, Quarterly, 1)
		if !date.Equal(w) {
			t.Fatalf("step %d: got %v, want %v", i+1, date, w)
		}
	}
}

func TestNextOccurrenceYearlyLeapDay(t *testing.T) {
	// Feb 29 clamps to Feb 28 in non-leap years and returns to Feb 29 when
	// the leap day comes around again.
	date := NewDate(2024, time.February, 29)
	want := []time.Time{
		NewDate(2025, time.February, 28),
		NewDate(2026, time.February, 28),
		NewDate(2027, time.February, 28),
		NewDate(2028, time.February, 29),
	}
	for i, w := range want {
		date = NextOccurrence(date, Yearly, 1)
		if !date.Equal(w) {
			t.Fatalf("year %d: got %v, want %v", i+1, date, w)
		}
	}
}

func TestNextOccurrenceNeverProducesInvalidDates(t *testing.T) {
	// Repeated application from every day of a leap January must always
	// yield a real calendar date (time.Date would silently roll over an
	// invalid one, shifting the day of month).
	for day := 1; day <= 31; day++ {
		date := NewDate(2024, time.January, day)
		for step := 0; step < 48; step++ {
			next := NextOccurrence(date, Monthly, 1)
			if !next.After(date) {
				t.Fatalf("day %d step %d: %v does not advance past %v", day, step, next, date)
			}
			if next.Day() > lastDayOfMonth(next.Year(), next.Month()) {
				t.Fatalf("day %d step %d: invalid date %v", day, step, next)
			}
			date = next
		}
	}
}

func TestWindow(t *testing.T) {
	today := NewDate(2024, time.June, 15)
	w := NewWindow(today, 3, 12)

	if want := NewDate(2024, time.March, 15); !w.Lower.Equal(want) {
		t.Errorf("Lower = %v, want %v", w.Lower, want)
	}
	if want := NewDate(2025, time.June, 15); !w.Upper.Equal(want) {
		t.Errorf("Upper = %v, want %v", w.Upper, want)
	}

	if !w.Contains(today) {
		t.Error("window should contain today")
	}
	if w.Contains(w.Upper) {
		t.Error("upper bound is exclusive")
	}
	if !w.Contains(w.Lower) {
		t.Error("lower bound is inclusive")
	}
}
