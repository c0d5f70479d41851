package handlers

import (
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/medassist/api/internal/platform/httpx"
	"github.com/medassist/api/internal/platform/keyvalue"
	"github.com/medassist/api/internal/platform/requestctx"
)

// rateLimit guards one endpoint with a fixed window keyed on the client IP.
// Limiter failures fail open so the store going down never locks users out.
func rateLimit(limiter *keyvalue.RateLimiter, endpoint string, max int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			allowed, err := limiter.Allow(ctx, clientIP(r), endpoint, max, window)
			if err != nil {
				requestctx.Logger(ctx).Warn("rate limiter unavailable", zap.Error(err))
			}
			if !allowed {
				httpx.WriteError(ctx, w, httpx.CodeError(httpx.CodeRateLimited, "too many requests, slow down"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
