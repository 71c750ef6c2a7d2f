package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "requests_total",
		Help:      "Requests handled, by resolved route and response status.",
	}, []string{"route", "status"})

	rejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Name:      "rejections_total",
		Help:      "Requests rejected before forwarding, by reason.",
	}, []string{"route", "reason"})

	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gateway",
		Name:      "upstream_duration_seconds",
		Help:      "Time spent waiting on the backend, by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	snapshotVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Name:      "route_snapshot_version",
		Help:      "Version of the active route snapshot.",
	})
)

// Rejection reasons.
const (
	ReasonRateLimit   = "rate_limit"
	ReasonCircuitOpen = "circuit_open"
	ReasonAuth        = "auth"
	ReasonBadRoute    = "bad_route"
)

// ObserveRequest records one completed request.
func ObserveRequest(route string, status int) {
	requestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// ObserveRejection records a request stopped before forwarding.
func ObserveRejection(route, reason string) {
	rejectionsTotal.WithLabelValues(route, reason).Inc()
}

// ObserveUpstream records backend call latency.
func ObserveUpstream(route string, elapsed time.Duration) {
	upstreamDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// SetSnapshotVersion tracks the active route snapshot version.
func SetSnapshotVersion(version int64) {
	snapshotVersion.Set(float64(version))
}

// Handler serves the prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
