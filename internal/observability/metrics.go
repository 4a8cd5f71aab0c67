package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConfigRequests counts remote config resolutions by outcome:
	// webview, app, poisoned, error.
	ConfigRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launch_config_requests_total",
			Help: "Remote config resolutions by outcome",
		}, []string{"outcome"},
	)
	AttributionRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "launch_attribution_retries_total",
		Help: "Server-side conversion data fetches",
	})
	ProbeChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "launch_probe_checks_total",
			Help: "Connectivity probe results",
		}, []string{"result"},
	)
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stub_requests_total",
			Help: "Total stub endpoint requests",
		}, []string{"code"},
	)
	Latency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stub_request_duration_seconds",
		Help:    "Stub request latency seconds",
		Buckets: prometheus.DefBuckets,
	})
	InFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stub_in_flight",
		Help: "In-flight stub HTTP requests",
	})
)

func init() {
	prometheus.MustRegister(ConfigRequests, AttributionRetries, ProbeChecks, RequestsTotal, Latency, InFlight)
}

func MetricsHandler() http.Handler { return promhttp.Handler() }

type rec struct {
	http.ResponseWriter
	code int
}

func (r *rec) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func Measure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		InFlight.Inc()
		defer InFlight.Dec()

		rr := &rec{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rr, r)

		Latency.Observe(time.Since(start).Seconds())
		RequestsTotal.WithLabelValues(strconv.Itoa(rr.code)).Inc()
	})
}
