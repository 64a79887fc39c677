package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

const unmatchedRoute = "unmatched"

// Collectors are labelled by the matched route template, never the raw path,
// so /blood-test/:test_id stays one series however many ids are requested.
var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dogblood",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	requestSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dogblood",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		// Uploads block on extraction, the model and rendering.
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"route", "method"})

	responseBytes = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "dogblood",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response body size.",
		Buckets:   prometheus.ExponentialBuckets(128, 4, 9),
	}, []string{"route"})

	inflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "dogblood",
		Subsystem: "http",
		Name:      "inflight_requests",
		Help:      "Requests currently being served.",
	})

	rateLimited = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dogblood",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected with 429, by reason.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestSeconds, responseBytes, inflight, rateLimited)
}

// Metrics records request count, latency, and response size per route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		inflight.Inc()
		began := time.Now()
		defer inflight.Dec()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		method := c.Request.Method
		requestsTotal.WithLabelValues(route, method, strconv.Itoa(c.Writer.Status())).Inc()
		requestSeconds.WithLabelValues(route, method).Observe(time.Since(began).Seconds())
		if n := c.Writer.Size(); n >= 0 {
			responseBytes.WithLabelValues(route).Observe(float64(n))
		}
	}
}
