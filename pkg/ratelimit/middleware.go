package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// Config tunes the auth endpoint limits. All limits are per client IP.
type Config struct {
	// Mutating auth endpoints (POST /signup, /signin, /forgot-password,
	// /reset-password): these guess credentials, trigger emails, or
	// write passwords.
	SensitiveCapacity   int
	SensitiveRefillRate float64

	// Everything else served by the auth router.
	GeneralCapacity   int
	GeneralRefillRate float64

	// BucketTTL is how long an idle client's buckets stay in memory.
	BucketTTL time.Duration
}

// DefaultConfig allows 5 sensitive requests per minute and 100 general
// requests per minute per IP.
func DefaultConfig() *Config {
	return &Config{
		SensitiveCapacity:   5,
		SensitiveRefillRate: 5.0 / 60.0,
		GeneralCapacity:     100,
		GeneralRefillRate:   100.0 / 60.0,
		BucketTTL:           time.Hour,
	}
}

// sensitiveRoutes are the POST endpoints that send email or change
// credentials.
var sensitiveRoutes = map[string]bool{
	"/signup":          true,
	"/signin":          true,
	"/forgot-password": true,
	"/reset-password":  true,
}

// Middleware applies per-IP token bucket limits to the auth routes.
type Middleware struct {
	config    *Config
	sensitive *KeyedLimiter
	general   *KeyedLimiter
}

// NewMiddleware creates the rate limiting middleware.
func NewMiddleware(config *Config) *Middleware {
	if config == nil {
		config = DefaultConfig()
	}
	return &Middleware{
		config:    config,
		sensitive: NewKeyedLimiter(config.SensitiveCapacity, config.SensitiveRefillRate, config.BucketTTL),
		general:   NewKeyedLimiter(config.GeneralCapacity, config.GeneralRefillRate, config.BucketTTL),
	}
}

// Close stops both limiters' cleanup goroutines.
func (m *Middleware) Close() {
	m.sensitive.Close()
	m.general.Close()
}

// Handler is the chi-compatible middleware function.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)

		limiter := m.general
		if r.Method == http.MethodPost && sensitiveRoutes[r.URL.Path] {
			limiter = m.sensitive
		}

		if !limiter.Allow(ip) {
			slog.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "60")
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP extracts the client address, honoring X-Forwarded-For from a
// fronting proxy.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
