package httpadapter

import (
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitMiddleware applies a process-wide token bucket. Answer requests
// fan out into several LLM calls each, so the bucket is deliberately global
// rather than per-client.
func rateLimitMiddleware(next http.Handler, rps float64, burst int) http.Handler {
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// backpressureMiddleware caps concurrent requests. A request waits up to
// maxWait for a slot, then is shed with 503 so the answer pipeline never
// queues unbounded work behind a slow model.
func backpressureMiddleware(next http.Handler, maxInFlight int, maxWait time.Duration) http.Handler {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}
	if maxWait <= 0 {
		maxWait = 100 * time.Millisecond
	}
	slots := make(chan struct{}, maxInFlight)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timer := time.NewTimer(maxWait)
		defer timer.Stop()

		select {
		case slots <- struct{}{}:
			defer func() { <-slots }()
			next.ServeHTTP(w, r)
		case <-timer.C:
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "server overloaded, retry later"})
		case <-r.Context().Done():
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "request cancelled while queued"})
		}
	})
}
