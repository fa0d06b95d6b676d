// Package aggregate computes distribution summaries of daily chart returns.
package aggregate

import (
	"math"
	"sync"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/xtxerr/dossier/internal/series"
)

// DefaultAccuracy is the relative accuracy of the percentile sketch.
const DefaultAccuracy = 0.01

// Summary describes the distribution of daily returns over a chart.
type Summary struct {
	Days        int     `json:"days"`
	Mean        float64 `json:"mean"`
	StdDev      float64 `json:"stdDev"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	P05         float64 `json:"p05"`
	P50         float64 `json:"p50"`
	P95         float64 `json:"p95"`
	UpShare     float64 `json:"upShare"`
	TotalReturn float64 `json:"totalReturn"`
}

// Accumulator maintains running statistics over daily returns, with
// percentiles from a DDSketch.
type Accumulator struct {
	mu sync.Mutex

	count int64
	up    int64
	sum   float64
	sumSq float64
	min   float64
	max   float64
	// growth is the compounded product of (1 + r).
	growth float64

	sketch *ddsketch.DDSketch
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return NewAccumulatorWithAccuracy(DefaultAccuracy)
}

// NewAccumulatorWithAccuracy creates an accumulator with custom percentile
// accuracy. Percentiles are omitted if the sketch cannot be created.
func NewAccumulatorWithAccuracy(accuracy float64) *Accumulator {
	a := &Accumulator{
		min:    math.MaxFloat64,
		max:    -math.MaxFloat64,
		growth: 1,
	}
	sketch, err := ddsketch.NewDefaultDDSketch(accuracy)
	if err == nil {
		a.sketch = sketch
	}
	return a
}

// Add adds one daily return.
func (a *Accumulator) Add(r float64) {
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.count++
	a.sum += r
	a.sumSq += r * r
	a.growth *= 1 + r
	if r > 0 {
		a.up++
	}
	if r < a.min {
		a.min = r
	}
	if r > a.max {
		a.max = r
	}
	if a.sketch != nil {
		a.sketch.Add(r)
	}
}

// Count returns the number of returns added.
func (a *Accumulator) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// Merge combines another accumulator into this one.
func (a *Accumulator) Merge(other *Accumulator) {
	if other == nil || other == a {
		return
	}

	other.mu.Lock()
	defer other.mu.Unlock()
	if other.count == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.count += other.count
	a.up += other.up
	a.sum += other.sum
	a.sumSq += other.sumSq
	a.growth *= other.growth
	if other.min < a.min {
		a.min = other.min
	}
	if other.max > a.max {
		a.max = other.max
	}
	if a.sketch != nil && other.sketch != nil {
		if err := a.sketch.MergeWith(other.sketch); err != nil {
			a.sketch = nil
		}
	}
}

// Result returns the summary. Values are rounded to six decimals so the
// stored record is stable across recompiles.
func (a *Accumulator) Result() Summary {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Summary{Days: int(a.count)}
	if a.count == 0 {
		return s
	}

	n := float64(a.count)
	mean := a.sum / n
	variance := a.sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}

	s.Mean = round(mean)
	s.StdDev = round(math.Sqrt(variance))
	s.Min = round(a.min)
	s.Max = round(a.max)
	s.UpShare = round(float64(a.up) / n)
	s.TotalReturn = round(a.growth - 1)

	if a.sketch != nil {
		p05, _ := a.sketch.GetValueAtQuantile(0.05)
		p50, _ := a.sketch.GetValueAtQuantile(0.50)
		p95, _ := a.sketch.GetValueAtQuantile(0.95)
		s.P05, s.P50, s.P95 = round(p05), round(p50), round(p95)
	}
	return s
}

func round(v float64) float64 {
	return series.Round(v, 6)
}

// DailyReturns returns v[i]/v[i-1] - 1 for consecutive values. Days whose
// previous value is zero are skipped.
func DailyReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			continue
		}
		out = append(out, values[i]/values[i-1]-1)
	}
	return out
}

// Summarize returns the daily-return summary of a chart, or nil if the
// chart has fewer than two values.
func Summarize(c *series.Chart) *Summary {
	returns := DailyReturns(c.Values)
	if len(returns) == 0 {
		return nil
	}
	a := NewAccumulator()
	for _, r := range returns {
		a.Add(r)
	}
	s := a.Result()
	return &s
}
