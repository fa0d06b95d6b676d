package assembly

import (
	"fmt"
	"math"

	"github.com/xtxerr/dossier/internal/date"
)

// Result is the outcome of Validate: either Valid or Invalid.
type Result interface {
	isResult()
}

// Valid means the record passed every check.
type Valid struct{}

// Invalid carries the first failed check.
type Invalid struct {
	Reason string
}

func (Valid) isResult()   {}
func (Invalid) isResult() {}

func invalid(format string, args ...any) Result {
	return Invalid{Reason: fmt.Sprintf(format, args...)}
}

// Validate checks a compiled record.
func Validate(rec *Investor) Result {
	switch {
	case rec == nil:
		return invalid("missing record")
	case rec.Name == "":
		return invalid("missing name")
	case rec.CustomerID <= 0:
		return invalid("missing customer id")
	case rec.Chart == nil || rec.Chart.Len() == 0:
		return invalid("empty chart")
	case len(rec.Detrended) != rec.Chart.Len():
		return invalid("detrended chart has %d values, chart has %d", len(rec.Detrended), rec.Chart.Len())
	case len(rec.Stats) == 0:
		return invalid("no statistics")
	}

	for i, v := range rec.Chart.Values {
		if v < 0 || math.IsNaN(v) {
			return invalid("chart value %v on %s", v, rec.Chart.Date(i))
		}
	}
	for i, v := range rec.Detrended {
		if v < 0 || math.IsNaN(v) {
			return invalid("detrended value %v on %s", v, rec.Chart.Date(i))
		}
	}
	for d, mirrors := range rec.Mirrors {
		for _, m := range mirrors {
			if !(m.Value > 0) {
				return invalid("mirror %d on %s has non-positive value %v", m.CustomerID, d, m.Value)
			}
		}
	}

	if reason := checkBracketing(rec.Chart.Start(), rec.Chart.End, keys(rec.Stats)); reason != "" {
		return invalid("statistics %s", reason)
	}
	if reason := checkBracketing(rec.Chart.Start(), rec.Chart.End, keys(rec.Mirrors)); reason != "" {
		return invalid("mirrors %s", reason)
	}
	return Valid{}
}

// checkBracketing allows at most one snapshot date on either side of
// [start, end].
func checkBracketing(start, end date.Date, dates []date.Date) string {
	var before, after int
	for _, d := range dates {
		switch {
		case d.Before(start):
			before++
		case d.After(end):
			after++
		}
	}
	if before > 1 || after > 1 {
		return fmt.Sprintf("reach %d dates before and %d after the chart range", before, after)
	}
	return ""
}

func keys[V any](m map[date.Date]V) []date.Date {
	out := make([]date.Date, 0, len(m))
	for d := range m {
		out = append(out, d)
	}
	return out
}
