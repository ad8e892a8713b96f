package subscription

import "time"

type Recurrence string

const (
	RecurrenceMonthly   Recurrence = "monthly"
	RecurrenceQuarterly Recurrence = "quarterly"
	RecurrenceAnnual    Recurrence = "annual"
	RecurrenceNone      Recurrence = "none"
)

// Months is the length of one billing period. Unknown values bill monthly.
func (r Recurrence) Months() int {
	switch r {
	case RecurrenceQuarterly:
		return 3
	case RecurrenceAnnual:
		return 12
	default:
		return 1
	}
}

// IsRecurring is false for one-time purchases.
func (r Recurrence) IsRecurring() bool {
	return r != "" && r != RecurrenceNone
}

// ComputeEndDate advances start by exactly one billing period using calendar
// months. When the start day does not exist in the target month the result is
// clamped to that month's last day (Jan 31 -> Feb 28/29, Feb 29 -> Feb 28 next
// year). Clock time and location are preserved.
func ComputeEndDate(start time.Time, r Recurrence) time.Time {
	return addMonthsClamped(start, r.Months())
}

func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	firstOfTarget := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	ty, tm, _ := firstOfTarget.Date()

	if last := daysIn(ty, tm); day > last {
		day = last
	}
	return time.Date(ty, tm, day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
