package core

import "time"

// NextOccurrence advances date by one recurrence step and returns the result
// normalized to start of day.
//
// Month-based steps (monthly, quarterly and the fallback default) keep two
// promises that make repeated application safe from any valid date:
//
//   - if the input date is the last day of its month, the result is the last
//     day of the target month, so a rule that once landed on a month end
//     keeps landing on month ends (Jan 31 -> Feb 28 -> Mar 31 -> ...);
//   - if the input day of month does not exist in the target month, the
//     result clamps to the target month's last day.
//
// Yearly steps apply the same last-day rule, which is what turns
// Feb 29 2024 into Feb 28 2025..2027 and back into Feb 29 2028.
func NextOccurrence(date time.Time, frequency Frequency, interval int) time.Time {
	if interval < 1 {
		interval = 1
	}
	date = StartOfDay(date)

	switch frequency {
	case Daily:
		return StartOfDay(date.AddDate(0, 0, interval))
	case Weekly:
		return StartOfDay(date.AddDate(0, 0, 7*interval))
	case BiWeekly:
		return StartOfDay(date.AddDate(0, 0, 14*interval))
	case Monthly:
		return addMonthsClamped(date, interval)
	case Quarterly:
		return addMonthsClamped(date, 3*interval)
	case Yearly:
		return addMonthsClamped(date, 12*interval)
	default:
		// Unknown frequencies are not user-facing; storage rejects them on
		// write. Treat as monthly rather than looping forever on the same
		// date.
		return addMonthsClamped(date, interval)
	}
}

// addMonthsClamped implements the month-arithmetic half of the step table.
// time.AddDate is unusable here: Jan 31 + 1 month rolls over to Mar 2/3
// instead of clamping to the end of February.
func addMonthsClamped(date time.Time, months int) time.Time {
	year, month, day := date.Date()

	total := int(month) - 1 + months
	targetYear := year + total/12
	targetMonth := time.Month(total%12 + 1)

	targetDay := day
	last := lastDayOfMonth(targetYear, targetMonth)
	if day == lastDayOfMonth(year, month) || targetDay > last {
		targetDay = last
	}

	return time.Date(targetYear, targetMonth, targetDay, 0, 0, 0, 0, time.UTC)
}

// lastDayOfMonth returns the number of days in the given month. Day zero of
// the following month is the trailing day of this one.
func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Window is the bounded date range within which instances are materialized:
// [Lower, Upper) around a reference day. Rules are unbounded sequences, so
// each expansion only writes this rolling slice and re-expands it as the
// reference day advances.
type Window struct {
	Lower time.Time
	Upper time.Time
}

// NewWindow builds the generation window around today: pastMonths back
// (inclusive) and futureMonths forward (exclusive).
func NewWindow(today time.Time, pastMonths, futureMonths int) Window {
	today = StartOfDay(today)
	return Window{
		Lower: today.AddDate(0, -pastMonths, 0),
		Upper: today.AddDate(0, futureMonths, 0),
	}
}

// Contains reports whether d falls inside the window.
func (w Window) Contains(d time.Time) bool {
	return !d.Before(w.Lower) && d.Before(w.Upper)
}
