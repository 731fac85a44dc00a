package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Refresh outcomes
const (
	OutcomeRotated     = "rotated"
	OutcomeRejected    = "rejected"
	OutcomeUnavailable = "unavailable"
)

// Recorder owns the auth and HTTP collectors. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	gatherer prometheus.Gatherer

	tokensIssued       prometheus.Counter
	refreshTotal       *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	revocations        prometheus.Counter

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New registers all collectors on reg. Passing a fresh prometheus.NewRegistry
// keeps tests isolated from the default registry.
func New(reg *prometheus.Registry) *Recorder {
	r := &Recorder{
		gatherer: reg,
		tokensIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Access/refresh token pairs issued.",
		}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_refresh_total",
			Help: "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_validation_failures_total",
			Help: "Rejected tokens by reason.",
		}, []string{"reason"}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "auth_revocations_total",
			Help: "Refresh token revocations.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		r.tokensIssued,
		r.refreshTotal,
		r.validationFailures,
		r.revocations,
		r.httpRequestsTotal,
		r.httpRequestDuration,
	)
	return r
}

func (r *Recorder) TokenIssued() {
	if r == nil {
		return
	}
	r.tokensIssued.Inc()
}

func (r *Recorder) Refresh(outcome string) {
	if r == nil {
		return
	}
	r.refreshTotal.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ValidationFailed(reason string) {
	if r == nil {
		return
	}
	r.validationFailures.WithLabelValues(reason).Inc()
}

func (r *Recorder) Revoked() {
	if r == nil {
		return
	}
	r.revocations.Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}

// Middleware measures request count and latency per route template.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if r == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		// unmatched routes would otherwise explode label cardinality
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		r.httpRequestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		r.httpRequestsTotal.WithLabelValues(c.Request.Method, route, status).Inc()
	}
}
