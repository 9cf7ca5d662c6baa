package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTokenBucket_AllowsBurst(t *testing.T) {
	tb := NewTokenBucket(3, 1.0)

	for i := 0; i < 3; i++ {
		if !tb.Allow() {
			t.Errorf("Request %d within burst capacity should be allowed", i+1)
		}
	}
	if tb.Allow() {
		t.Error("Request beyond burst capacity should be denied")
	}
}

func TestTokenBucket_Refills(t *testing.T) {
	tb := NewTokenBucket(1, 100.0)

	if !tb.Allow() {
		t.Fatal("First request should be allowed")
	}
	if tb.Allow() {
		t.Fatal("Bucket should be empty")
	}

	time.Sleep(50 * time.Millisecond)

	if !tb.Allow() {
		t.Error("Bucket should have refilled")
	}
}

func TestTokenBucket_Reset(t *testing.T) {
	tb := NewTokenBucket(2, 0.001)

	tb.Allow()
	tb.Allow()
	if tb.Allow() {
		t.Fatal("Bucket should be empty")
	}

	tb.Reset()
	if !tb.Allow() {
		t.Error("Reset should refill the bucket")
	}
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, 0.001, 0)

	if !rl.Allow("ip1") {
		t.Fatal("First request for ip1 should be allowed")
	}
	if rl.Allow("ip1") {
		t.Error("Second request for ip1 should be denied")
	}
	if !rl.Allow("ip2") {
		t.Error("ip2 has its own bucket and should be allowed")
	}
}

func TestMiddleware_EndpointLimit(t *testing.T) {
	config := DefaultConfig()
	config.GlobalEnabled = false
	config.PerIPEnabled = false
	config.PerUserEnabled = false
	config.EndpointLimits = map[string]EndpointLimit{
		"POST /oauth2/device_authorization": {Capacity: 2, RefillRate: 0.001},
	}
	m := NewMiddleware(config)

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(path string) int {
		r := httptest.NewRequest(http.MethodPost, path, nil)
		r.RemoteAddr = "203.0.113.7:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	if code := do("/oauth2/device_authorization"); code != http.StatusOK {
		t.Errorf("First request: expected 200, got %d", code)
	}
	if code := do("/oauth2/device_authorization"); code != http.StatusOK {
		t.Errorf("Second request: expected 200, got %d", code)
	}
	if code := do("/oauth2/device_authorization"); code != http.StatusTooManyRequests {
		t.Errorf("Third request: expected 429, got %d", code)
	}

	// Unlimited endpoints are unaffected
	if code := do("/oauth2/token"); code != http.StatusOK {
		t.Errorf("Unthrottled endpoint: expected 200, got %d", code)
	}
}

func TestMiddleware_PerIPLimit(t *testing.T) {
	config := DefaultConfig()
	config.GlobalEnabled = false
	config.PerUserEnabled = false
	config.PerIPCapacity = 1
	config.PerIPRefillRate = 0.001
	config.EndpointLimits = nil
	m := NewMiddleware(config)

	handler := m.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(ip string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/flows", nil)
		r.Header.Set("X-Forwarded-For", ip)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	if w := do("198.51.100.1"); w.Code != http.StatusOK {
		t.Errorf("First request: expected 200, got %d", w.Code)
	}
	w := do("198.51.100.1")
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Second request: expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After")
	}

	if w := do("198.51.100.2"); w.Code != http.StatusOK {
		t.Errorf("Different IP: expected 200, got %d", w.Code)
	}
}
