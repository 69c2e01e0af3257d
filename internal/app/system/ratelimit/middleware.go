package ratelimit

import (
	"math"
	"net/http"
	"strconv"

	"github.com/dalemusser/cohorthub/internal/app/system/apperr"
	"github.com/dalemusser/cohorthub/internal/app/system/metrics"
	"github.com/dalemusser/cohorthub/internal/app/system/respond"
	"go.uber.org/zap"
)

// Middleware limits requests per client IP under scope. A limiter error
// lets the request through. trustProxy is passed to ClientIP.
func Middleware(l Limiter, scope string, trustProxy bool, m *metrics.Metrics, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r, trustProxy)
			res, err := l.Allow(r.Context(), scope+":"+ip)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.String("scope", scope), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			if res.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := int(math.Ceil(res.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			m.IncRateLimited(scope)
			logger.Info("request rate limited", zap.String("scope", scope), zap.String("ip", ip))
			respond.Error(w, r, logger, apperr.New(apperr.RateLimited, "too many requests; please slow down").
				WithDetail("retry_after_seconds", retry))
		})
	}
}
