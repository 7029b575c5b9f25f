package obs

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var defaultBucketsMillis = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500}

// HTTPMetrics bundles the request-level collectors every route shares.
type HTTPMetrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
	InFlight prometheus.Gauge
}

// NewHTTPMetrics builds and registers the HTTP collectors. Buckets are
// latency boundaries in milliseconds; an empty slice selects the defaults.
// Registering against an already-populated registry reuses the existing
// collectors, which keeps tests that share a process from panicking.
func NewHTTPMetrics(namespace string, buckets []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if len(buckets) == 0 {
		buckets = defaultBucketsMillis
	} else {
		sort.Float64s(buckets)
	}

	reqTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests served, labelled by method, route and status.",
	}, []string{"method", "route", "status"})
	if c, ok := register(reg, reqTotal).(*prometheus.CounterVec); ok {
		reqTotal = c
	}

	reqDur := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_ms",
		Help:      "Request latency in milliseconds.",
		Buckets:   buckets,
	}, []string{"method", "route"})
	if h, ok := register(reg, reqDur).(*prometheus.HistogramVec); ok {
		reqDur = h
	}

	inFlight := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_in_flight_requests",
		Help:      "Requests currently being handled.",
	})
	if g, ok := register(reg, inFlight).(prometheus.Gauge); ok {
		inFlight = g
	}

	return &HTTPMetrics{ReqTotal: reqTotal, ReqDur: reqDur, InFlight: inFlight}
}

// register adds the collector to reg, returning the previously registered
// collector when there is one. Any other registration failure panics: a
// misconfigured registry is a programming error.
func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
		return are.ExistingCollector
	}
	panic(err)
}

// ParseBucketsCSV parses "5,10,50" style boundary lists. Entries that are not
// positive numbers are skipped rather than rejected.
func ParseBucketsCSV(csv string) []float64 {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	var out []float64
	for _, part := range strings.Split(csv, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || v <= 0 {
			continue
		}
		out = append(out, v)
	}
	return out
}

// DurationMillis converts a duration to fractional milliseconds.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
