package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func corsHandler(origins []string) http.Handler {
	return CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCORSWildcardEchoesOrigin(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/api/support/open", nil)
	req.Header.Set("Origin", "https://marketplace.example.com")
	rec := httptest.NewRecorder()
	corsHandler([]string{"*"}).ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://marketplace.example.com" {
		t.Errorf("expected origin to be echoed, got %q", got)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), headerSessionID) {
		t.Errorf("session header must be allowed, got %q", rec.Header().Get("Access-Control-Allow-Headers"))
	}
	if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
		t.Error("wildcard matches must not allow credentials")
	}
}

func TestCORSExplicitOriginAllowsCredentials(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://wisio.example.com")
	rec := httptest.NewRecorder()
	corsHandler([]string{"https://wisio.example.com"}).ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("explicit origins should allow credentials")
	}
}

func TestCORSUnknownOriginGetsNoHeaders(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	corsHandler([]string{"https://wisio.example.com"}).ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("unknown origins must not receive CORS headers")
	}
}

func TestCORSPreflightShortCircuits(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodOptions, "/api/support/option", nil)
	req.Header.Set("Origin", "https://wisio.example.com")
	rec := httptest.NewRecorder()

	var reachedNext bool
	handler := CORS([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reachedNext = true
	}))
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("preflight should return 200, got %d", rec.Code)
	}
	if reachedNext {
		t.Error("preflight must not reach the next handler")
	}
}
