package monitoring

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics for reconstruction runs,
// nowcasts and the wind cache. A nil *Collector is valid and records
// nothing, so callers can leave metrics unwired.
type Collector struct {
	gatherer prometheus.Gatherer

	Runs           prometheus.Counter
	RunDurations   prometheus.Histogram
	TracksLastRun  prometheus.Gauge
	Matches        prometheus.Counter
	UnmatchedHours prometheus.Counter
	Nowcasts       *prometheus.CounterVec
	WindCache      *prometheus.CounterVec
}

// NewCollector registers the metrics against reg, defaulting to the global
// registry when reg is nil. Registering twice against the same registry
// returns the already registered collectors.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Runs, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconstruction_runs_total",
		Help: "Number of track reconstruction runs.",
	})); err != nil {
		return nil, err
	}
	if c.RunDurations, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconstruction_duration_seconds",
		Help:    "Wall time spent reconstructing tracks.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	})); err != nil {
		return nil, err
	}
	if c.TracksLastRun, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "reconstruction_tracks",
		Help: "Number of tracks produced by the most recent run.",
	})); err != nil {
		return nil, err
	}
	if c.Matches, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconstruction_matches_total",
		Help: "Accepted frame-to-frame matches across all runs.",
	})); err != nil {
		return nil, err
	}
	if c.UnmatchedHours, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reconstruction_unmatched_hours_total",
		Help: "Hours that yielded no usable positions, across all runs.",
	})); err != nil {
		return nil, err
	}
	if c.Nowcasts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "nowcast_predictions_total",
		Help: "Nowcast requests, labeled by the method that produced them.",
	}, []string{"method"})); err != nil {
		return nil, err
	}
	if c.WindCache, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "wind_cache_lookups_total",
		Help: "Wind cache lookups, labeled hit or miss.",
	}, []string{"result"})); err != nil {
		return nil, err
	}

	return c, nil
}

// ObserveRun records the outcome of one reconstruction run.
func (c *Collector) ObserveRun(tracks, matches, unmatchedHours int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Runs.Inc()
	c.RunDurations.Observe(elapsed.Seconds())
	c.TracksLastRun.Set(float64(tracks))
	c.Matches.Add(float64(matches))
	c.UnmatchedHours.Add(float64(unmatchedHours))
}

// ObserveNowcast counts one nowcast request. method is "wind",
// "velocity" or "none".
func (c *Collector) ObserveNowcast(method string) {
	if c == nil {
		return
	}
	c.Nowcasts.WithLabelValues(method).Inc()
}

// ObserveWindCache counts one cache lookup.
func (c *Collector) ObserveWindCache(hit bool) {
	if c == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	c.WindCache.WithLabelValues(result).Inc()
}

// Handler exposes the registry as a /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector already registered with incompatible type %T", are.ExistingCollector)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
