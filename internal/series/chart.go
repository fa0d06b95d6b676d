// Package series implements contiguous daily value series and the
// operations used to reconcile raw chart fragments: trimming, splicing,
// detrending and rounding.
package series

import (
	"fmt"
	"sync"

	"github.com/xtxerr/dossier/internal/date"
)

// Chart is a contiguous daily series ending at End. Values[i] belongs to
// Start().Add(i); date lookup is index arithmetic.
//
// Derived views (Trim, From, Until) are memoized per instance, so a Chart
// must not be mutated after its first view is taken and must be passed by
// pointer.
type Chart struct {
	End    date.Date `json:"end"`
	Values []float64 `json:"values"`

	mu    sync.Mutex
	views map[viewKey]*Chart
}

type viewKey struct {
	op string
	at date.Date
	f  float64
}

// New creates a chart. The chart takes ownership of values.
func New(end date.Date, values []float64) *Chart {
	return &Chart{End: end, Values: values}
}

// Len returns the number of days covered.
func (c *Chart) Len() int { return len(c.Values) }

// Start returns the date of the first value. For an empty chart this is
// the day after End.
func (c *Chart) Start() date.Date { return c.End.Add(-(len(c.Values) - 1)) }

// Date returns the date of Values[i].
func (c *Chart) Date(i int) date.Date { return c.Start().Add(i) }

// Index returns the position of d, which may be outside [0, Len).
func (c *Chart) Index(d date.Date) int { return d.Sub(c.Start()) }

// At returns the value on d.
func (c *Chart) At(d date.Date) (float64, bool) {
	i := c.Index(d)
	if i < 0 || i >= len(c.Values) {
		return 0, false
	}
	return c.Values[i], true
}

// First returns the first value. The chart must not be empty.
func (c *Chart) First() float64 { return c.Values[0] }

// Last returns the last value. The chart must not be empty.
func (c *Chart) Last() float64 { return c.Values[len(c.Values)-1] }

// Contains reports whether d lies within [Start, End].
func (c *Chart) Contains(d date.Date) bool {
	_, ok := c.At(d)
	return ok
}

func (c *Chart) String() string {
	return fmt.Sprintf("chart[%s..%s, %d days]", c.Start(), c.End, len(c.Values))
}

func (c *Chart) view(key viewKey, build func() *Chart) *Chart {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v, ok := c.views[key]; ok {
		return v
	}
	v := build()
	if c.views == nil {
		c.views = make(map[viewKey]*Chart)
	}
	c.views[key] = v
	return v
}

// From returns the part of the chart dated d or later.
func (c *Chart) From(d date.Date) *Chart {
	return c.view(viewKey{op: "from", at: d}, func() *Chart {
		i := c.Index(d)
		switch {
		case i <= 0:
			return c
		case i >= len(c.Values):
			return New(c.End, nil)
		}
		return New(c.End, clone(c.Values[i:]))
	})
}

// Until returns the part of the chart dated d or earlier.
func (c *Chart) Until(d date.Date) *Chart {
	return c.view(viewKey{op: "until", at: d}, func() *Chart {
		i := c.Index(d)
		switch {
		case i >= len(c.Values)-1:
			return c
		case i < 0:
			return New(c.Start().Prev(), nil)
		}
		return New(d, clone(c.Values[:i+1]))
	})
}

// Trim removes the two degenerate runs a scraped chart carries: a leading
// run of equal values (tracking had not started) collapses to its last
// element, and a trailing run of sentinel values (tracking stopped)
// collapses to its first element. The trimmed chart keeps the end date of
// the scrape and its start follows from the remaining length. If neither
// run is present the chart itself is returned.
func (c *Chart) Trim(sentinel float64) *Chart {
	return c.view(viewKey{op: "trim", f: sentinel}, func() *Chart {
		v := c.Values
		n := len(v)
		if n < 2 {
			return c
		}

		first := 0
		for first < n-1 && v[first] == v[first+1] {
			first++
		}
		last := n - 1
		for last > 0 && v[last] == sentinel && v[last-1] == sentinel {
			last--
		}
		if last < first {
			last = first
		}
		if first == 0 && last == n-1 {
			return c
		}
		return New(c.End, clone(v[first:last+1]))
	})
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
