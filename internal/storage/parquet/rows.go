package parquet

import (
	"github.com/xtxerr/dossier/internal/assembly"
	"github.com/xtxerr/dossier/internal/date"
)

// ChartRow is one day of an investor chart.
type ChartRow struct {
	Investor  string  `parquet:"investor"`
	Date      string  `parquet:"date"`
	Value     float64 `parquet:"value"`
	Detrended float64 `parquet:"detrended"`
}

// SummaryRow is the daily-return summary of one investor.
type SummaryRow struct {
	Investor    string  `parquet:"investor"`
	CustomerID  int64   `parquet:"customer_id"`
	Start       string  `parquet:"start"`
	End         string  `parquet:"end"`
	Days        int64   `parquet:"days"`
	Mean        float64 `parquet:"mean"`
	StdDev      float64 `parquet:"std_dev"`
	Min         float64 `parquet:"min"`
	Max         float64 `parquet:"max"`
	P05         float64 `parquet:"p05"`
	P50         float64 `parquet:"p50"`
	P95         float64 `parquet:"p95"`
	UpShare     float64 `parquet:"up_share"`
	TotalReturn float64 `parquet:"total_return"`
}

// ChartRows converts the chart of rec into rows, oldest first.
func ChartRows(rec *assembly.Investor) []ChartRow {
	if rec == nil || rec.Chart == nil {
		return nil
	}
	rows := make([]ChartRow, rec.Chart.Len())
	for i, v := range rec.Chart.Values {
		rows[i] = ChartRow{
			Investor: rec.Name,
			Date:     rec.Chart.Date(i).String(),
			Value:    v,
		}
		if i < len(rec.Detrended) {
			rows[i].Detrended = rec.Detrended[i]
		}
	}
	return rows
}

// SummaryRowOf converts the summary of rec. ok is false when rec has no
// summary.
func SummaryRowOf(rec *assembly.Investor) (row SummaryRow, ok bool) {
	if rec == nil || rec.Summary == nil || rec.Chart == nil {
		return SummaryRow{}, false
	}
	s := rec.Summary
	return SummaryRow{
		Investor:    rec.Name,
		CustomerID:  rec.CustomerID,
		Start:       rec.Chart.Start().String(),
		End:         rec.Chart.End.String(),
		Days:        int64(s.Days),
		Mean:        s.Mean,
		StdDev:      s.StdDev,
		Min:         s.Min,
		Max:         s.Max,
		P05:         s.P05,
		P50:         s.P50,
		P95:         s.P95,
		UpShare:     s.UpShare,
		TotalReturn: s.TotalReturn,
	}, true
}

// Day parses the Date column.
func (r ChartRow) Day() (date.Date, error) {
	return date.Parse(r.Date)
}
