package api

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/dunamismax/pixeltools/internal/ratelimit"
)

// uploadCostUnit is how many request body bytes cost one extra token on
// POST /v1/transform.
const uploadCostUnit = 1 << 20

// RateLimiter charges a request's cost against a per-subject budget.
type RateLimiter interface {
	Take(ctx context.Context, subject string, cost int64) (ratelimit.Decision, error)
}

// withRateLimit meters mutating /v1 calls per caller and route. Limiter
// outages fail open.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !shouldRateLimit(r) {
			next.ServeHTTP(w, r)
			return
		}

		route := routeLabel(r.URL.Path)
		subject := s.rateLimitSubject(r, route)
		decision, err := s.rateLimiter.Take(r.Context(), subject, requestCost(r))
		if err != nil {
			s.logger.Printf("rate limiter unavailable subject=%s err=%v", subject, err)
			next.ServeHTTP(w, r)
			return
		}

		writeRateLimitHeaders(w.Header(), decision)
		if !decision.Allowed {
			s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitSubject(r *http.Request, route string) string {
	user := s.userID(r)
	if user == "" {
		user = "anonymous"
	}
	return user + ":" + route
}

// writeRateLimitHeaders sets X-RateLimit-* and, on refusal, Retry-After in
// whole seconds rounded up to at least one.
func writeRateLimitHeaders(h http.Header, d ratelimit.Decision) {
	if d.Limit > 0 {
		h.Set("X-RateLimit-Limit", strconv.FormatInt(d.Limit, 10))
	}
	h.Set("X-RateLimit-Remaining", strconv.FormatInt(d.Remaining, 10))
	if !d.Allowed {
		h.Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(d.RetryAfter.Seconds())))))
	}
}

func shouldRateLimit(r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return false
	}
	return strings.HasPrefix(r.URL.Path, "/v1/")
}

// requestCost charges inline transforms by upload size; everything else costs one token.
func requestCost(r *http.Request) int64 {
	if !strings.HasPrefix(r.URL.Path, "/v1/transform") || r.ContentLength <= 0 {
		return 1
	}
	return 1 + r.ContentLength/uploadCostUnit
}
