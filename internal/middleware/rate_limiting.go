package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"

	"github.com/desacikupa/umkmdesa/internal/telemetry/metrics"
	"github.com/desacikupa/umkmdesa/pkg"

	"github.com/go-redis/redis_rate/v9"
	log "github.com/sirupsen/logrus"
)

type RequestRateLimiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
}

type ClientIPReader interface {
	ClientIP(r *http.Request) (string, error)
}

// RateLimit limits requests per client IP within the given router name.
func RateLimit(
	rateLimiter RequestRateLimiter,
	clientIPs ClientIPReader,
	routerName string,
	allowedPerMin int,
	metricsManager *metrics.Manager,
) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			ip, err := clientIPs.ClientIP(r)
			if err != nil {
				log.Warnf("rate limit [%s], read user ip: %s", routerName, err)
				ip = "unknown"
			}

			res, err := rateLimiter.Allow(
				r.Context(),
				routerName+":"+ip,
				redis_rate.PerMinute(allowedPerMin),
			)
			if err != nil {
				log.Errorf("rate limit [%s]: %s", routerName, err)
				pkg.WriteJSONError(w, "rate limit internal error", http.StatusInternalServerError)
				return
			}

			if res.Allowed > 0 {
				next.ServeHTTP(w, r)
				return
			}

			if metricsManager != nil {
				metricsManager.CounterRateLimitedRequests.Inc()
			}

			retryAfter := int(math.Ceil(res.RetryAfter.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			log.Tracef("rate limit [%s] hit by [%s], retry after %ds", routerName, ip, retryAfter)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			pkg.WriteJSONError(w, "Terlalu banyak percobaan, coba lagi nanti", http.StatusTooManyRequests)
		})
	}
}
