package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

// mockCounter implements cache.Counter for testing.
type mockCounter struct {
	counts   map[string]int64
	resetAt  time.Time
	errOnInc error
}

func newMockCounter() *mockCounter {
	return &mockCounter{
		counts:  make(map[string]int64),
		resetAt: time.Now().Add(60 * time.Second),
	}
}

func (m *mockCounter) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	if m.errOnInc != nil {
		return 0, time.Time{}, m.errOnInc
	}
	m.counts[key] += delta
	return m.counts[key], m.resetAt, nil
}

func (m *mockCounter) GetCount(ctx context.Context, key string) (int64, error) {
	return m.counts[key], nil
}

func (m *mockCounter) Reset(ctx context.Context, key string) error {
	delete(m.counts, key)
	return nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestConfigApplyDefaults(t *testing.T) {
	tests := []struct {
		name     string
		input    Config
		expected Config
	}{
		{
			name:     "empty config gets defaults",
			input:    Config{},
			expected: Config{Prefix: "ratelimit", RequestsPerWindow: 100, Window: time.Minute},
		},
		{
			name:     "partial config gets partial defaults",
			input:    Config{Prefix: "login", RequestsPerWindow: 10},
			expected: Config{Prefix: "login", RequestsPerWindow: 10, Window: time.Minute},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.input
			c.ApplyDefaults()
			if c != tt.expected {
				t.Errorf("got %+v, want %+v", c, tt.expected)
			}
		})
	}
}

func TestLimiter_BlocksRequestsOverLimit(t *testing.T) {
	counter := newMockCounter()
	handler := New(counter, Config{Prefix: "login", RequestsPerWindow: 2}, nil).Wrap(okHandler())

	for i := 1; i <= 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/auth/login", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("request %d: expected status 200, got %d", i, rec.Code)
		}
		if got, want := rec.Header().Get("X-RateLimit-Remaining"), strconv.Itoa(2-i); got != want {
			t.Errorf("request %d: X-RateLimit-Remaining = %q, want %q", i, got, want)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/auth/login", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("request 3: expected status 429, got %d", rec.Code)
	}

	if rec.Header().Get("X-RateLimit-Limit") != "2" || rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("unexpected limit headers: %v", rec.Header())
	}

	val, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || val < 1 {
		t.Errorf("expected positive Retry-After, got %q", rec.Header().Get("Retry-After"))
	}

	var envelope struct {
		Error struct {
			ReasonCode string `json:"reason_code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if envelope.Error.ReasonCode != "rate_limited" {
		t.Errorf("expected reason_code 'rate_limited', got '%s'", envelope.Error.ReasonCode)
	}

	// httptest requests come from 192.0.2.1.
	if counter.counts["login:192.0.2.1"] != 3 {
		t.Errorf("unexpected counter keys: %v", counter.counts)
	}
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	counter := newMockCounter()
	limiter := New(counter, Config{RequestsPerWindow: 1}, nil).WithKeyFunc(func(r *http.Request) string {
		return r.Header.Get("X-Client")
	})
	handler := limiter.Wrap(okHandler())

	for _, client := range []string{"a", "b"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Client", client)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("client %s: expected 200, got %d", client, rec.Code)
		}
	}
}

func TestLimiter_FailsOpen(t *testing.T) {
	counter := newMockCounter()
	counter.errOnInc = errors.New("cache down")
	handler := New(counter, Config{RequestsPerWindow: 1}, nil).Wrap(okHandler())

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("expected request through on cache error, got %d", rec.Code)
		}
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.1.2.3:5555"
	if got := ClientIP(r); got != "10.1.2.3" {
		t.Errorf("ClientIP = %q", got)
	}
	r.RemoteAddr = "10.1.2.3"
	if got := ClientIP(r); got != "10.1.2.3" {
		t.Errorf("ClientIP without port = %q", got)
	}
}
