package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

// TestRateLimitByIP_EnforcesLimit verifies the per-IP request limit
func TestRateLimitByIP_EnforcesLimit(t *testing.T) {
	config := RateLimitConfig{RequestsPerMinute: 5}
	limited := RateLimitByIP(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		recorder := httptest.NewRecorder()
		limited.ServeHTTP(recorder, req)

		if recorder.Code != http.StatusOK {
			t.Errorf("request %d failed with status %d, expected 200", i+1, recorder.Code)
		}
	}

	// 6th request should be rate limited
	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "192.0.2.10:4000"
	recorder := httptest.NewRecorder()
	limited.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusTooManyRequests {
		t.Errorf("expected status %d, got %d", http.StatusTooManyRequests, recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", ct)
	}
	if ra := recorder.Header().Get("Retry-After"); ra != "60" {
		t.Errorf("expected Retry-After 60, got %q", ra)
	}
}

// TestRateLimitByIP_IsolatesClientBuckets verifies separate limits per IP
func TestRateLimitByIP_IsolatesClientBuckets(t *testing.T) {
	config := RateLimitConfig{RequestsPerMinute: 3}
	limited := RateLimitByIP(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// First client exhausts its bucket
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.RemoteAddr = "192.0.2.20:4000"
		recorder := httptest.NewRecorder()
		limited.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Errorf("client A request %d failed", i+1)
		}
	}

	// Second client is unaffected
	req := httptest.NewRequest("POST", "/auth/login", nil)
	req.RemoteAddr = "192.0.2.21:4000"
	recorder := httptest.NewRecorder()
	limited.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("client B should have an independent bucket, got status %d", recorder.Code)
	}
}

// TestRateLimitByIP_ManyDistinctClients verifies the limiter keeps distinct
// buckets under a wider key space
func TestRateLimitByIP_ManyDistinctClients(t *testing.T) {
	config := RateLimitConfig{RequestsPerMinute: 1}
	limited := RateLimitByIP(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 50; i++ {
		req := httptest.NewRequest("POST", "/auth/login", nil)
		req.RemoteAddr = fmt.Sprintf("198.51.100.%d:4000", i+1)
		recorder := httptest.NewRecorder()
		limited.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Errorf("client %d should get one request through, got %d", i+1, recorder.Code)
		}
	}
}
