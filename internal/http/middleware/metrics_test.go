package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/blood-test/:test_id", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	route := requestsTotal.WithLabelValues("/api/blood-test/:test_id", "GET", "200")
	miss := requestsTotal.WithLabelValues(unmatchedRoute, "GET", "404")
	beforeRoute, beforeMiss := testutil.ToFloat64(route), testutil.ToFloat64(miss)

	for _, p := range []string{"/api/blood-test/a", "/api/blood-test/b", "/elsewhere"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	if got := testutil.ToFloat64(route) - beforeRoute; got != 2 {
		t.Fatalf("route delta=%v want 2", got)
	}
	if got := testutil.ToFloat64(miss) - beforeMiss; got != 1 {
		t.Fatalf("unmatched delta=%v want 1", got)
	}
	if v := testutil.ToFloat64(inflight); v != 0 {
		t.Fatalf("inflight=%v want 0", v)
	}
}

type verdictLimiter struct{ err error }

func (f verdictLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, 0, f.err
}

func TestRateLimit_CountsRejectionsByReason(t *testing.T) {
	denied := rateLimited.WithLabelValues(reasonDenied)
	broken := rateLimited.WithLabelValues(reasonLimiterError)
	beforeDenied, beforeBroken := testutil.ToFloat64(denied), testutil.ToFloat64(broken)

	hit(limitedRouter(verdictLimiter{}), nil)
	hit(limitedRouter(verdictLimiter{err: errors.New("redis down")}), nil)

	if got := testutil.ToFloat64(denied) - beforeDenied; got != 1 {
		t.Fatalf("denied delta=%v want 1", got)
	}
	if got := testutil.ToFloat64(broken) - beforeBroken; got != 1 {
		t.Fatalf("limiter error delta=%v want 1", got)
	}
}
