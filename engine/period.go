package engine

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - The unit of spend-cap enforcement
// =============================================================================

// Period is a (month, year) pair. Budgets are allocated per period and the
// committed amount is always computed for a period, never globally.
//
// The period of an approval is resolved at decision time, not submission
// time: an application submitted in March and approved in April debits the
// April budget.
type Period struct {
	Month time.Month
	Year  int
}

// PeriodOf returns the period containing the given instant.
func PeriodOf(t time.Time) Period {
	u := t.UTC()
	return Period{Month: u.Month(), Year: u.Year()}
}

// Start returns the first instant of the period (inclusive).
func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the next period (exclusive bound).
func (p Period) End() time.Time {
	return p.Start().AddDate(0, 1, 0)
}

// Contains returns true if t falls within the period [Start, End).
func (p Period) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(p.Start()) && u.Before(p.End())
}

// Next returns the following period.
func (p Period) Next() Period { return PeriodOf(p.End()) }

// Previous returns the preceding period.
func (p Period) Previous() Period { return PeriodOf(p.Start().AddDate(0, -1, 0)) }

// IsValid reports whether the pair denotes a real calendar month.
func (p Period) IsValid() bool {
	return p.Month >= time.January && p.Month <= time.December && p.Year > 0
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}
