package series

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/xtxerr/dossier/config"
	"github.com/xtxerr/dossier/internal/errors"
)

// Round rounds v half away from zero to the given number of decimals.
func Round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// Stitch joins raw chart fragments, newest first, into one continuous
// series. The newest fragment, trimmed, is the working series. Each older
// fragment is trimmed and, while it still overlaps the working start,
// contributes the values strictly before that start, rescaled so the
// series is continuous at the boundary and rounded to two decimals.
// Stitching stops at the first gap or at a fragment the working series
// already covers.
func Stitch(newestFirst []*Chart, sentinel float64) (*Chart, error) {
	if len(newestFirst) == 0 {
		return nil, errors.NewNoData("chart")
	}

	work := newestFirst[0].Trim(sentinel)
	if work.Len() == 0 {
		return work, nil
	}

	for _, raw := range newestFirst[1:] {
		start := work.Start()
		if raw.End.Before(start) {
			break
		}
		older := raw.Trim(sentinel)
		if older.Len() == 0 || older.End.Before(start) {
			break
		}
		if !older.Start().Before(start) {
			break
		}

		anchor, _ := older.At(start)
		if anchor == 0 {
			return nil, errors.NewValidationFailed("chart",
				fmt.Sprintf("fragment ending %s has zero value at splice date %s", raw.End, start))
		}
		scale := decimal.NewFromFloat(work.First()).Div(decimal.NewFromFloat(anchor))

		prefix := older.Until(start.Prev()).Values
		values := make([]float64, 0, len(prefix)+work.Len())
		for _, p := range prefix {
			f, _ := decimal.NewFromFloat(p).Mul(scale).Round(config.ChartDecimals).Float64()
			values = append(values, f)
		}
		values = append(values, work.Values...)
		work = New(work.End, values)
	}
	return work, nil
}

// Detrend removes the exponential trend from a strictly positive series.
// A least-squares line is fitted to ln(v[i]) against i and the slope is
// divided out around the midpoint, so the level stays near the original.
func Detrend(values []float64) ([]float64, error) {
	n := len(values)
	out := make([]float64, n)
	if n == 0 {
		return out, nil
	}

	logs := make([]float64, n)
	for i, v := range values {
		if !(v > 0) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("index %d: value %v is not positive: %w", i, v, errors.ErrDetrendFailure)
		}
		logs[i] = math.Log(v)
	}

	mid := float64(n-1) / 2
	var meanLog float64
	for _, l := range logs {
		meanLog += l
	}
	meanLog /= float64(n)

	var num, den float64
	for i, l := range logs {
		dx := float64(i) - mid
		num += dx * (l - meanLog)
		den += dx * dx
	}
	var slope float64
	if den > 0 {
		slope = num / den
	}

	for i, v := range values {
		d := v * math.Exp(-slope*(float64(i)-mid))
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			return nil, fmt.Errorf("index %d: value %v detrended to %v: %w", i, v, d, errors.ErrDetrendFailure)
		}
		out[i] = d
	}
	return out, nil
}
