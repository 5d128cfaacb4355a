/*
date.go - Day-granularity calendar types

PURPOSE:
  Reservations live on whole school days, never clock times. Date is a
  small value type that makes day arithmetic and comparison explicit and
  keeps time-of-day (and time zones) out of the ledger entirely.

KEY TYPES:
  - Date:     One calendar day (year, month, day)
  - MonthKey: One calendar month (year, month) - the statistics bucket

WIRE FORMAT:
  Dates marshal as "YYYY-MM-DD". MonthKey renders as "YYYY-MM".

SEE ALSO:
  - types.go: Slot embeds a Date
  - stats.go: Monthly aggregation keyed by MonthKey
*/
package reserve

import (
	"fmt"
	"time"
)

// DateLayout is the wire and storage format for Date.
const DateLayout = "2006-01-02"

// =============================================================================
// DATE
// =============================================================================

// Date is one calendar day. The zero value is invalid and reads as
// 0000-00-00; use IsZero to detect it.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// NewDate builds a Date from components. Components are normalized the
// way time.Date normalizes them (month 13 rolls into the next year).
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// DateOf truncates a time.Time to its calendar day.
func DateOf(t time.Time) Date {
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Today returns the current calendar day in local time.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Time converts the date to a time.Time at midnight UTC.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// String renders "YYYY-MM-DD".
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Equal reports whether two dates name the same day.
func (d Date) Equal(o Date) bool {
	return d.Year == o.Year && d.Month == o.Month && d.Day == o.Day
}

// Before reports whether d falls strictly before o.
func (d Date) Before(o Date) bool {
	if d.Year != o.Year {
		return d.Year < o.Year
	}
	if d.Month != o.Month {
		return d.Month < o.Month
	}
	return d.Day < o.Day
}

// After reports whether d falls strictly after o.
func (d Date) After(o Date) bool {
	return o.Before(d)
}

// AddDays returns the date n days later (or earlier for negative n).
func (d Date) AddDays(n int) Date {
	return DateOf(d.Time().AddDate(0, 0, n))
}

// Weekday returns the day of week.
func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

// IsWeekend reports whether d is a Saturday or Sunday.
func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// MonthKey returns the month bucket this date belongs to.
func (d Date) MonthKey() MonthKey {
	return MonthKey{Year: d.Year, Month: d.Month}
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// MONTH KEY
// =============================================================================

// MonthKey names one calendar month; the statistics aggregation bucket.
type MonthKey struct {
	Year  int
	Month time.Month
}

// NewMonthKey validates year/month and builds a MonthKey.
func NewMonthKey(year, month int) (MonthKey, error) {
	if month < 1 || month > 12 {
		return MonthKey{}, fmt.Errorf("invalid month %d: must be 1..12", month)
	}
	if year < 1 {
		return MonthKey{}, fmt.Errorf("invalid year %d", year)
	}
	return MonthKey{Year: year, Month: time.Month(month)}, nil
}

// String renders "YYYY-MM".
func (m MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// First returns the first day of the month.
func (m MonthKey) First() Date {
	return NewDate(m.Year, m.Month, 1)
}

// Next returns the following month.
func (m MonthKey) Next() MonthKey {
	if m.Month == time.December {
		return MonthKey{Year: m.Year + 1, Month: time.January}
	}
	return MonthKey{Year: m.Year, Month: m.Month + 1}
}

// Contains reports whether d falls inside the month.
func (m MonthKey) Contains(d Date) bool {
	return d.Year == m.Year && d.Month == m.Month
}

// Days returns the number of calendar days in the month.
func (m MonthKey) Days() int {
	return m.Next().First().Time().Add(-time.Hour).Day()
}
