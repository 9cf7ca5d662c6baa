package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

// Config holds rate limiting configuration
type Config struct {
	// Global rate limiting across all callers
	GlobalEnabled    bool
	GlobalCapacity   int     // Max burst
	GlobalRefillRate float64 // Requests per second

	// Per-IP rate limiting
	PerIPEnabled    bool
	PerIPCapacity   int
	PerIPRefillRate float64

	// Per-subject rate limiting for authenticated requests
	PerUserEnabled    bool
	PerUserCapacity   int
	PerUserRefillRate float64

	// Endpoint-specific limits keyed by "METHOD /path"
	EndpointLimits map[string]EndpointLimit

	// How long to keep inactive buckets in memory
	BucketTTL time.Duration

	// Include X-RateLimit headers in responses
	IncludeHeaders bool
}

// EndpointLimit defines rate limits for a specific endpoint
type EndpointLimit struct {
	Capacity   int
	RefillRate float64
}

// DefaultConfig returns defaults tuned for the OAuth2 surface: generous
// global and per-IP limits, with tighter per-IP limits on the endpoints
// that mint or redeem codes.
func DefaultConfig() *Config {
	return &Config{
		// Global: 1000 requests per minute
		GlobalEnabled:    true,
		GlobalCapacity:   1000,
		GlobalRefillRate: 1000.0 / 60.0,

		// Per-IP: 100 requests per minute
		PerIPEnabled:    true,
		PerIPCapacity:   100,
		PerIPRefillRate: 100.0 / 60.0,

		// Per-subject: 200 requests per minute
		PerUserEnabled:    true,
		PerUserCapacity:   200,
		PerUserRefillRate: 200.0 / 60.0,

		BucketTTL: 1 * time.Hour,

		IncludeHeaders: true,

		// The token endpoint is polled by device and CIBA clients, so its
		// limit stays above the grant poll intervals. Authorization
		// endpoints mint codes and get a tighter budget.
		EndpointLimits: map[string]EndpointLimit{
			"POST /oauth2/token": {
				Capacity:   60,
				RefillRate: 60.0 / 60.0,
			},
			"POST /oauth2/device_authorization": {
				Capacity:   10,
				RefillRate: 10.0 / 60.0,
			},
			"POST /oauth2/bc-authorize": {
				Capacity:   10,
				RefillRate: 10.0 / 60.0,
			},
		},
	}
}

// Middleware holds the rate limiting middleware state
type Middleware struct {
	config           *Config
	globalLimiter    *RateLimiter
	ipLimiter        *RateLimiter
	userLimiter      *RateLimiter
	endpointLimiters map[string]*RateLimiter
}

// NewMiddleware creates a new rate limiting middleware
func NewMiddleware(config *Config) *Middleware {
	if config == nil {
		config = DefaultConfig()
	}

	m := &Middleware{
		config:           config,
		endpointLimiters: make(map[string]*RateLimiter),
	}

	if config.GlobalEnabled {
		m.globalLimiter = NewRateLimiter(config.GlobalCapacity, config.GlobalRefillRate, config.BucketTTL)
	}
	if config.PerIPEnabled {
		m.ipLimiter = NewRateLimiter(config.PerIPCapacity, config.PerIPRefillRate, config.BucketTTL)
	}
	if config.PerUserEnabled {
		m.userLimiter = NewRateLimiter(config.PerUserCapacity, config.PerUserRefillRate, config.BucketTTL)
	}
	for endpoint, limit := range config.EndpointLimits {
		m.endpointLimiters[endpoint] = NewRateLimiter(limit.Capacity, limit.RefillRate, config.BucketTTL)
	}

	return m
}

// Handler returns the rate limiting middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.config.GlobalEnabled && !m.globalLimiter.Allow("global") {
			m.rateLimitExceeded(w, r, "global")
			return
		}

		ip := getClientIP(r)
		if m.config.PerIPEnabled && ip != "" && !m.ipLimiter.Allow(ip) {
			m.rateLimitExceeded(w, r, "ip")
			return
		}

		userID := getUserID(r)
		if m.config.PerUserEnabled && userID != "" && !m.userLimiter.Allow(userID) {
			m.rateLimitExceeded(w, r, "user")
			return
		}

		// Endpoint limits are per IP so one noisy client cannot exhaust
		// the endpoint for everyone.
		endpointKey := r.Method + " " + r.URL.Path
		if limiter, exists := m.endpointLimiters[endpointKey]; exists {
			if !limiter.Allow(ip + ":" + endpointKey) {
				m.rateLimitExceeded(w, r, "endpoint")
				return
			}
		}

		if m.config.IncludeHeaders {
			m.addRateLimitHeaders(w, ip, userID)
		}

		next.ServeHTTP(w, r)
	})
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, limitType string) {
	slog.Warn("Rate limit exceeded",
		"type", limitType,
		"ip", getClientIP(r),
		"user", getUserID(r),
		"path", r.URL.Path,
		"method", r.Method,
	)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintf(w, `{"error":"rate_limit_exceeded","message":"Too many requests. Please try again later.","type":%q}`, limitType)
}

func (m *Middleware) addRateLimitHeaders(w http.ResponseWriter, ip, userID string) {
	if m.config.PerIPEnabled && ip != "" {
		w.Header().Set("X-RateLimit-Limit-IP", fmt.Sprintf("%d", m.config.PerIPCapacity))
	}
	if m.config.PerUserEnabled && userID != "" {
		w.Header().Set("X-RateLimit-Limit-User", fmt.Sprintf("%d", m.config.PerUserCapacity))
	}
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, take the first one
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "IP:port"
	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}

// getUserID extracts the authenticated subject from JWT claims, if any.
func getUserID(r *http.Request) string {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims == nil {
		return ""
	}

	if sub, ok := claims["sub"].(string); ok && sub != "" {
		return sub
	}
	if id, ok := claims["id"].(string); ok && id != "" {
		return id
	}
	return ""
}

// Reset refills the per-IP and per-subject buckets for a key.
func (m *Middleware) Reset(key string) {
	if m.ipLimiter != nil {
		m.ipLimiter.Reset(key)
	}
	if m.userLimiter != nil {
		m.userLimiter.Reset(key)
	}
}
