package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireActor(t *testing.T) {
	var seen Actor
	h := RequireActor("doctor", "admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set(UserIDHeader, "p-1")
	req.Header.Set(RoleHeader, "patient")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set(UserIDHeader, "d-1")
	req.Header.Set(RoleHeader, "Doctor")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if seen.ID != "d-1" || seen.Role != "doctor" {
		t.Fatalf("unexpected actor %+v", seen)
	}
}

func TestWithRequestIDEchoesHeader(t *testing.T) {
	h := Chain(okHandler(), WithRequestID)
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Header().Get(RequestIDHeader) != "req-42" {
		t.Fatalf("expected request id to be echoed, got %q", rw.Header().Get(RequestIDHeader))
	}

	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "http://example.com", nil))
	if rw.Header().Get(RequestIDHeader) == "" {
		t.Fatal("expected generated request id")
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	h := rl.Middleware()(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
		req.Header.Set(UserIDHeader, "p-1")
		rw := httptest.NewRecorder()
		h.ServeHTTP(rw, req)
		codes = append(codes, rw.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}

	now = now.Add(2 * time.Minute)
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.Header.Set(UserIDHeader, "p-1")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", rw.Code)
	}
}

func TestRedisRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rl := NewRedisRateLimiter(rdb, 1, time.Minute, "test")
	h := rl.Middleware(nil, false)(okHandler())

	first := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "http://example.com", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(first, req)
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	h.ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
}

func TestWithCORS(t *testing.T) {
	h := WithCORS(CORSPolicy{
		AllowedOrigins: []string{"https://app.docbook.local"},
		AllowedMethods: []string{"GET", "POST"},
		MaxAge:         time.Minute,
	})(okHandler())

	req := httptest.NewRequest(http.MethodOptions, "http://example.com/api/v1/appointments", nil)
	req.Header.Set("Origin", "https://app.docbook.local")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusNoContent {
		t.Fatalf("expected preflight 204, got %d", rw.Code)
	}
	if got := rw.Header().Get("Access-Control-Allow-Origin"); got != "https://app.docbook.local" {
		t.Fatalf("unexpected allow origin %q", got)
	}
	if got := rw.Header().Get("Access-Control-Max-Age"); got != "60" {
		t.Fatalf("unexpected max age %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.com/api/v1/appointments", nil)
	req.Header.Set("Origin", "https://evil.example")
	rw = httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	if rw.Code != http.StatusOK || rw.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unknown origins must pass through without cors headers, got %d %q", rw.Code, rw.Header().Get("Access-Control-Allow-Origin"))
	}
}
