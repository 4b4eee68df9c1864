package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forgelabs-ai/mediaforge-backend/pkg/config"
)

func TestUserRateLimitLocalFallback(t *testing.T) {
	cfg := config.RateLimitConfig{GenerateWindow: time.Minute, GenerateLimit: 2}
	userID := uuid.NewString()

	calls := 0
	handler := UserRateLimit(cfg, nil, testLoggerMW())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil)
		req = req.WithContext(WithUserID(req.Context(), userID))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		wantStatus := http.StatusOK
		if i == 2 {
			wantStatus = http.StatusTooManyRequests
		}
		if rec.Code != wantStatus {
			t.Fatalf("request %d: status = %d, want %d", i, rec.Code, wantStatus)
		}
	}
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
}

func TestUserRateLimitIsPerUser(t *testing.T) {
	cfg := config.RateLimitConfig{GenerateWindow: time.Minute, GenerateLimit: 1}
	handler := UserRateLimit(cfg, nil, testLoggerMW())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil)
		req = req.WithContext(WithUserID(req.Context(), uuid.NewString()))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("distinct users must not share windows, got %d", rec.Code)
		}
	}
}

func TestLocalWindowsSweepExpiredEntries(t *testing.T) {
	windows := newLocalWindows()
	if !windows.allow("u1", 1, time.Nanosecond) {
		t.Fatal("first request should pass")
	}
	time.Sleep(2 * time.Millisecond)
	// The expired window is swept, so the same key starts fresh.
	if !windows.allow("u1", 1, time.Minute) {
		t.Fatal("expired window must reset")
	}
	if len(windows.entries) != 1 {
		t.Fatalf("entries = %d, want 1 after sweep", len(windows.entries))
	}
}

func TestUserRateLimitDisabledWithoutConfig(t *testing.T) {
	handler := UserRateLimit(config.RateLimitConfig{}, nil, testLoggerMW())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 20; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/generate", nil)
		req = req.WithContext(WithUserID(req.Context(), "u1"))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("disabled limiter must pass everything, got %d", rec.Code)
		}
	}
}
