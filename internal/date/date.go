// Package date implements the calendar-day partition key used throughout
// the store. A Date formats as YYYY-MM-DD, sorts chronologically and
// supports day arithmetic, so a contiguous daily series can be indexed by
// subtraction instead of searching.
package date

import (
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/xtxerr/dossier/internal/errors"
)

const readFormat = "2006-1-2" // lenient: accepts 2024-1-2 as well as 2024-01-02

// Format is the canonical ISO-8601 representation.
const Format = "2006-01-02"

// Day is the duration of one calendar day.
const Day = 24 * time.Hour

// Date is a calendar day with no time-of-day component.
// The zero value is not a valid day; see IsZero.
type Date struct {
	y int
	m time.Month
	d int
}

// New returns a normalized Date for the given year, month, and day.
// Out-of-range values roll over the way time.Date does.
func New(year int, month time.Month, day int) Date {
	d := Date{year, month, day}
	d.y, d.m, d.d = d.Time().Date()
	return d
}

// Of returns the calendar day of t in t's location.
func Of(t time.Time) Date { return New(t.Date()) }

// Today returns the current local date.
func Today() Date { return Of(time.Now()) }

// Parse parses a Date. It is lenient and accepts "2024-1-2".
func Parse(s string) (Date, error) {
	t, err := time.Parse(readFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("date %q, want format %q: %w", s, Format, errors.ErrInvalidDate)
	}
	return Of(t), nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Date {
	d, err := Parse(s)
	if err != nil {
		panic(err.Error())
	}
	return d
}

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// IsZero reports whether d is the zero Date.
func (d Date) IsZero() bool { return d == Date{} }

// Year returns the year.
func (d Date) Year() int { return d.y }

// Month returns the month.
func (d Date) Month() time.Month { return d.m }

// Day returns the day of the month.
func (d Date) Day() int { return d.d }

// Add returns the date i days after d (before, for negative i).
func (d Date) Add(i int) Date { return New(d.y, d.m, d.d+i) }

// Next returns the following day.
func (d Date) Next() Date { return d.Add(1) }

// Prev returns the preceding day.
func (d Date) Prev() Date { return d.Add(-1) }

// Sub returns the number of days from x to d.
func (d Date) Sub(x Date) int {
	return int(d.Time().Sub(x.Time()) / Day)
}

// Before reports whether d is before x.
func (d Date) Before(x Date) bool { return d.Compare(x) < 0 }

// After reports whether d is after x.
func (d Date) After(x Date) bool { return d.Compare(x) > 0 }

// Compare returns -1, 0 or +1, suitable for slices.SortFunc.
func (d Date) Compare(x Date) int {
	switch {
	case d.y != x.y:
		return cmp(d.y, x.y)
	case d.m != x.m:
		return cmp(int(d.m), int(x.m))
	default:
		return cmp(d.d, x.d)
	}
}

func cmp(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string { return d.Time().Format(Format) }

// MarshalText implements encoding.TextMarshaler, which also makes Date
// usable as a JSON object key.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON encodes the date as a JSON string.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a date from a JSON string.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

var (
	_ json.Marshaler   = (*Date)(nil)
	_ json.Unmarshaler = (*Date)(nil)
)

// Range yields every day from from to to, both inclusive.
// Nothing is yielded when to is before from.
func Range(from, to Date) iter.Seq[Date] {
	return func(yield func(Date) bool) {
		for d := from; !d.After(to); d = d.Next() {
			if !yield(d) {
				return
			}
		}
	}
}

// Sort sorts dates in ascending order in place.
func Sort(dates []Date) {
	slices.SortFunc(dates, Date.Compare)
}

// Max returns the latest of the given dates, or the zero Date when empty.
func Max(dates ...Date) Date {
	var m Date
	for _, d := range dates {
		if m.IsZero() || d.After(m) {
			m = d
		}
	}
	return m
}
