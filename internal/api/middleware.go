package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"tickerpay/internal/logging"
)

// Logger wraps a handler with request logging.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)

		// Balance polling is too frequent to log at info.
		ev := logging.HTTP.Info()
		if r.URL.Path == "/info" && wrapped.status == http.StatusOK {
			ev = logging.HTTP.Debug()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", wrapped.status).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// CORSConfig lists the browser origins allowed to call the gateway. Empty
// allows any origin.
type CORSConfig struct {
	AllowedOrigins []string
}

func (c CORSConfig) allow(origin string) (string, bool) {
	if len(c.AllowedOrigins) == 0 {
		return "*", true
	}
	for _, o := range c.AllowedOrigins {
		if o == origin {
			return origin, true
		}
	}
	return "", false
}

// CORS sets the allowed origin and answers preflights without reaching the
// handler.
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if allowed, ok := cfg.allow(r.Header.Get("Origin")); ok {
				h.Set("Access-Control-Allow-Origin", allowed)
				if allowed != "*" {
					h.Add("Vary", "Origin")
				}
			}

			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

// RateLimitConfig holds per-client limits. Payment-request issuance has its
// own, stricter bucket.
type RateLimitConfig struct {
	RequestsPerSecond        float64
	BurstSize                int
	PaymentRequestsPerMinute float64
	PaymentBurstSize         int
	// TrustProxy takes the client address from X-Forwarded-For or X-Real-IP.
	// Only enable behind a proxy that sets them.
	TrustProxy bool
	// IdleTimeout drops a client's buckets after this long without requests.
	IdleTimeout time.Duration
}

// DefaultRateLimitConfig returns the default limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond:        10,
		BurstSize:                20,
		PaymentRequestsPerMinute: 20,
		PaymentBurstSize:         5,
		IdleTimeout:              10 * time.Minute,
	}
}

type routeClass int

const (
	generalRoute routeClass = iota
	paymentRoute
)

func classify(r *http.Request) routeClass {
	if r.Method == http.MethodPost && r.URL.Path == "/l402/payment-request" {
		return paymentRoute
	}
	return generalRoute
}

type clientKey struct {
	ip    string
	class routeClass
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet holds one token bucket per client and route class.
type limiterSet struct {
	limits map[routeClass]rate.Limit
	bursts map[routeClass]int
	idle   time.Duration

	mu        sync.Mutex
	buckets   map[clientKey]*bucket
	lastSweep time.Time
}

func newLimiterSet(cfg RateLimitConfig) *limiterSet {
	return &limiterSet{
		limits: map[routeClass]rate.Limit{
			generalRoute: rate.Limit(cfg.RequestsPerSecond),
			paymentRoute: rate.Limit(cfg.PaymentRequestsPerMinute / 60),
		},
		bursts: map[routeClass]int{
			generalRoute: cfg.BurstSize,
			paymentRoute: cfg.PaymentBurstSize,
		},
		idle:    cfg.IdleTimeout,
		buckets: make(map[clientKey]*bucket),
	}
}

func (s *limiterSet) allow(key clientKey, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.idle > 0 && now.Sub(s.lastSweep) >= s.idle {
		s.sweepLocked(now)
	}

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(s.limits[key.class], s.bursts[key.class])}
		s.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (s *limiterSet) sweepLocked(now time.Time) {
	for k, b := range s.buckets {
		if now.Sub(b.lastSeen) >= s.idle {
			delete(s.buckets, k)
		}
	}
	s.lastSweep = now
}

func (s *limiterSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// RateLimit rejects clients that exceed their bucket with 429.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	limiters := newLimiterSet(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, cfg.TrustProxy)
			if !limiters.allow(clientKey{ip: ip, class: classify(r)}, time.Now()) {
				logging.HTTP.Warn().Str("ip", ip).Str("method", r.Method).Str("path", r.URL.Path).Msg("rate limit exceeded")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP returns the address a request is accounted to.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
