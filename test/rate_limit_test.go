//go:build integration_test

package test

import (
	"net/http"
	"net/http/httptest"
	"strconv"

	"github.com/desacikupa/umkmdesa/internal/middleware"
	"github.com/desacikupa/umkmdesa/internal/telemetry/metrics"
	"github.com/desacikupa/umkmdesa/pkg"
	pkgtesting "github.com/desacikupa/umkmdesa/pkg/testing"

	"github.com/go-redis/redis_rate/v9"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func (s *IntegrationTestSuite) TestRateLimitWithRedis() {
	ctx, rdb := pkgtesting.GetRedisClientAndCtx(s.T(), "localhost", s.redisPort)
	limiter := redis_rate.NewLimiter(rdb)
	s.Require().NoError(limiter.Reset(ctx, "login-it:10.0.0.7"))

	clientIPs, err := pkg.NewClientIPResolver(nil)
	s.Require().NoError(err)

	metricsManager := metrics.NewTestManager()
	handler := middleware.RateLimit(limiter, clientIPs, "login-it", 3, metricsManager)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = ip + ":40000"
		// untrusted peer, ignored
		req.Header.Set("X-Forwarded-For", "192.0.2.200")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		return rr
	}

	for i := 0; i < 3; i++ {
		s.Equal(http.StatusOK, send("10.0.0.7").Code, "request %d", i)
	}

	rr := send("10.0.0.7")
	s.Equal(http.StatusTooManyRequests, rr.Code)
	retryAfter, err := strconv.Atoi(rr.Header().Get("Retry-After"))
	s.Require().NoError(err)
	s.GreaterOrEqual(retryAfter, 1)
	s.Equal(float64(1), testutil.ToFloat64(metricsManager.CounterRateLimitedRequests))

	// other clients keep their own budget
	s.Require().NoError(limiter.Reset(ctx, "login-it:10.0.0.8"))
	s.Equal(http.StatusOK, send("10.0.0.8").Code)
}
