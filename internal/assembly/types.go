// Package assembly compiles the raw dated snapshots of an investor into
// one validated record and keeps a compiled copy with staleness detection.
package assembly

import (
	"github.com/xtxerr/dossier/internal/aggregate"
	"github.com/xtxerr/dossier/internal/date"
	"github.com/xtxerr/dossier/internal/series"
)

// Asset kinds. The stored name is "<investor>.<kind>".
const (
	KindChart    = "chart"
	KindMirrors  = "mirrors"
	KindStats    = "stats"
	KindCompiled = "compiled"
)

// AssetName returns the store name of an investor asset.
func AssetName(investor, kind string) string {
	return investor + "." + kind
}

// Mirror is one position in an investor's copy portfolio. Value is the
// allocated amount and must be positive.
type Mirror struct {
	CustomerID int64   `json:"customerId"`
	UserName   string  `json:"userName"`
	Value      float64 `json:"value"`
	NetProfit  float64 `json:"netProfit"`
}

// Stats is a scraped performance statistics snapshot.
type Stats struct {
	CustomerID             int64   `json:"customerId"`
	FullName               string  `json:"fullName,omitempty"`
	Gain                   float64 `json:"gain"`
	DailyGain              float64 `json:"dailyGain"`
	RiskScore              int     `json:"riskScore"`
	Copiers                int     `json:"copiers"`
	MaxDrawdown            float64 `json:"maxDrawdown"`
	WeeksSinceRegistration int     `json:"weeksSinceRegistration"`
	Verified               bool    `json:"verified"`
}

// Investor is the compiled record of one investor.
type Investor struct {
	Name       string                 `json:"name"`
	FullName   string                 `json:"fullName,omitempty"`
	CustomerID int64                  `json:"customerId"`
	Chart      *series.Chart          `json:"chart"`
	Detrended  []float64              `json:"detrended"`
	Mirrors    map[date.Date][]Mirror `json:"mirrors"`
	Stats      map[date.Date]Stats    `json:"stats"`
	Summary    *aggregate.Summary     `json:"summary,omitempty"`
}

// Listing is one entry of the investor directory.
type Listing struct {
	Name       string `json:"name"`
	CustomerID int64  `json:"customerId"`
}

// Directory lists the tracked investors. The scraper rewrites it at the
// store root whenever the set changes.
type Directory struct {
	Investors []Listing `json:"investors"`
	Updated   date.Date `json:"updated"`
}

// Names returns the investor names in directory order.
func (d Directory) Names() []string {
	names := make([]string, len(d.Investors))
	for i, l := range d.Investors {
		names[i] = l.Name
	}
	return names
}
