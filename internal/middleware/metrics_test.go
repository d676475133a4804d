package middleware

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics()

	if err := m.Register(reg); err != nil {
		t.Fatalf("first Register() failed: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Error("second Register() on the same registry should fail")
	}
}

func TestMetrics_RateLimitCounters(t *testing.T) {
	m := NewMetrics()

	m.IncRateLimitRequests("/diary", "user")
	m.IncRateLimitRequests("/diary", "user")
	m.IncRateLimitRequests("/room", "ip")
	m.IncRateLimitBlocked("/diary", "user")
	m.IncRateLimitRedisErrors()

	if got := testutil.ToFloat64(m.rateLimitRequests.WithLabelValues("/diary", "user")); got != 2 {
		t.Errorf("rate_limit_requests_total{/diary,user} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.rateLimitRequests.WithLabelValues("/room", "ip")); got != 1 {
		t.Errorf("rate_limit_requests_total{/room,ip} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rateLimitBlocked.WithLabelValues("/diary", "user")); got != 1 {
		t.Errorf("rate_limit_blocked_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.rateLimitRedisErrors); got != 1 {
		t.Errorf("rate_limit_redis_errors_total = %v, want 1", got)
	}
}
