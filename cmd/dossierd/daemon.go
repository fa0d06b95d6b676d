package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xtxerr/dossier/internal/logging"
	"github.com/xtxerr/dossier/internal/manager"
)

// daemon runs the refresh loop and serves its state over HTTP.
type daemon struct {
	manager  *manager.Manager
	interval time.Duration
	logger   *slog.Logger

	mu   sync.RWMutex
	last *refreshStatus

	refreshes *prometheus.CounterVec
	duration  prometheus.Histogram
}

// refreshStatus is the outcome of the most recent refresh.
type refreshStatus struct {
	Finished  time.Time     `json:"finished"`
	Duration  time.Duration `json:"duration"`
	Investors int           `json:"investors"`
	Compiled  int           `json:"compiled"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Stale     bool          `json:"directoryStale"`
	Error     string        `json:"error,omitempty"`
}

// investorStatus is one entry of the /investors listing.
type investorStatus struct {
	Name                string     `json:"name"`
	Health              string     `json:"health"`
	LastError           string     `json:"lastError,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	Compiles            int64      `json:"compiles"`
	Failures            int64      `json:"failures"`
	LastRun             *time.Time `json:"lastRun,omitempty"`
	LastSuccess         *time.Time `json:"lastSuccess,omitempty"`
}

func newDaemon(m *manager.Manager, interval time.Duration, reg prometheus.Registerer) *daemon {
	d := &daemon{
		manager:  m,
		interval: interval,
		logger:   logging.Component("daemon"),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dossier",
			Subsystem: "daemon",
			Name:      "refreshes_total",
			Help:      "Refresh runs by result",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dossier",
			Subsystem: "daemon",
			Name:      "refresh_duration_seconds",
			Help:      "Duration of refresh runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	health := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "dossier",
		Subsystem: "daemon",
		Name:      "investors",
		Help:      "Tracked investors by health state",
	}, []string{"health"})
	reg.MustRegister(d.refreshes, d.duration, &healthCollector{states: m.States(), gauge: health})
	return d
}

// healthCollector reports the health counts at scrape time.
type healthCollector struct {
	states *manager.StateManager
	gauge  *prometheus.GaugeVec
}

func (c *healthCollector) Describe(ch chan<- *prometheus.Desc) { c.gauge.Describe(ch) }

func (c *healthCollector) Collect(ch chan<- prometheus.Metric) {
	c.gauge.Reset()
	for _, h := range []string{manager.HealthStateUnknown, manager.HealthStateUp, manager.HealthStateDegraded, manager.HealthStateDown} {
		c.gauge.WithLabelValues(h).Set(0)
	}
	for h, n := range c.states.CountByHealthState() {
		c.gauge.WithLabelValues(h).Set(float64(n))
	}
	c.gauge.Collect(ch)
}

// run refreshes immediately and then on every tick until ctx is done.
func (d *daemon) run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		d.refresh(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *daemon) refresh(ctx context.Context) {
	began := time.Now()
	result, err := d.manager.Refresh(ctx)
	elapsed := time.Since(began)
	d.duration.Observe(elapsed.Seconds())

	status := &refreshStatus{Finished: time.Now(), Duration: elapsed}
	if result != nil {
		status.Investors = result.Investors
		status.Compiled = result.Compiled
		status.Skipped = result.Skipped
		status.Failed = result.Failed
		status.Stale = result.DirectoryStale
	}
	if err != nil {
		status.Error = err.Error()
		d.refreshes.WithLabelValues("error").Inc()
		if ctx.Err() == nil {
			d.logger.Error("refresh failed", "error", err)
		}
	} else {
		d.refreshes.WithLabelValues("ok").Inc()
	}

	d.mu.Lock()
	d.last = status
	d.mu.Unlock()
}

func (d *daemon) lastRefresh() *refreshStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// handler serves /metrics, /healthz and /investors.
func (d *daemon) handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", d.handleHealth)
	mux.HandleFunc("/investors", d.handleInvestors)
	return mux
}

// handleHealth answers 503 until the first refresh succeeded and whenever
// the most recent one failed.
func (d *daemon) handleHealth(w http.ResponseWriter, _ *http.Request) {
	last := d.lastRefresh()
	code := http.StatusOK
	if last == nil || last.Error != "" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"refresh": last,
		"health":  d.manager.States().CountByHealthState(),
	})
}

func (d *daemon) handleInvestors(w http.ResponseWriter, _ *http.Request) {
	states := d.manager.States().GetAll()
	out := make([]investorStatus, 0, len(states))
	for _, s := range states {
		compiles, failures := s.GetCounts()
		run, success, _ := s.GetTimestamps()
		out = append(out, investorStatus{
			Name:                s.Name,
			Health:              s.GetHealthState(),
			LastError:           s.GetLastError(),
			ConsecutiveFailures: s.GetConsecutiveFailures(),
			Compiles:            compiles,
			Failures:            failures,
			LastRun:             run,
			LastSuccess:         success,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
