package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"idurar.org/internal/domain"
	"idurar.org/internal/obs"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestRateLimitRejectsBurst(t *testing.T) {
	h := RateLimit(okHandler, 2, 1)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/branch/list", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/branch/list", nil)
	req.RemoteAddr = "10.0.0.1:5556"
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
	var env map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env["message"] != "Too many requests, please try again later" {
		t.Fatalf("unexpected body %v", env)
	}

	other := httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/branch/list", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	h.ServeHTTP(other, req)
	if other.Code != http.StatusOK {
		t.Fatalf("separate client must have its own bucket, got %d", other.Code)
	}
}

func TestLoggingJSONRecordsRequest(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := obs.SetLogger(zap.New(core))
	defer restore()

	h := RequestID(LoggingJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))
	req := httptest.NewRequest(http.MethodPost, "/api/role/create", nil)
	req.Header.Set(requestIDHeader, "req-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	entries := logs.FilterMessage("request_complete").All()
	if len(entries) != 1 {
		t.Fatalf("expected one access log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-123" || fields["method"] != http.MethodPost || fields["status"] != int64(http.StatusTeapot) {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := CORS(okHandler, []string{"https://app.example.com"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "https://app.example.com")
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Fatalf("unexpected allow origin %q", got)
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/api/login", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	h.ServeHTTP(rec, req)
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("foreign origin must not be allowed, got %q", got)
	}
}

func TestMaxBodyBytes(t *testing.T) {
	h := MaxBodyBytes(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var v map[string]any
		if err := decodeJSON(r, &v); err != nil {
			writeFailure(w, r, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}), 16)

	rec := httptest.NewRecorder()
	body := `{"name":"` + strings.Repeat("x", 64) + `"}`
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/branch/create", strings.NewReader(body)))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestWriteFailureMapping(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	restore := obs.SetLogger(zap.New(core))
	defer restore()

	cases := []struct {
		err     error
		status  int
		message string
	}{
		{fmt.Errorf("%w: API key is required", domain.ErrUnauthenticated), http.StatusUnauthorized, "API key is required"},
		{fmt.Errorf("%w: User role not found", domain.ErrForbidden), http.StatusForbidden, "User role not found"},
		{fmt.Errorf("lookup: %w", fmt.Errorf("%w: Branch not found", domain.ErrNotFound)), http.StatusNotFound, "Branch not found"},
		{domain.ErrInvalidSignature, http.StatusBadRequest, "Invalid signature"},
		{errors.New("connection reset by peer"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeFailure(rec, httptest.NewRequest(http.MethodGet, "/x", nil), tc.err)
		if rec.Code != tc.status {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.status, rec.Code)
		}
		var env map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env["success"] != false || env["result"] != nil || env["message"] != tc.message {
			t.Fatalf("%v: unexpected envelope %v", tc.err, env)
		}
		if strings.Contains(rec.Body.String(), "connection reset") {
			t.Fatal("internal error text leaked")
		}
	}
	if logs.Len() != 1 {
		t.Fatalf("expected only the internal error to be logged, got %d", logs.Len())
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":   {"abc", true},
		"bearer  abc ": {"abc", true},
		"Bearer ":      {"", false},
		"Basic abc":    {"", false},
		"":             {"", false},
	}
	for header, want := range cases {
		token, ok := extractBearerToken(header)
		if token != want.token || ok != want.ok {
			t.Fatalf("%q: got (%q, %v), want (%q, %v)", header, token, ok, want.token, want.ok)
		}
	}
}
