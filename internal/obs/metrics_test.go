package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func testRoutes() *Routes {
	return NewRoutes(
		"GET /healthz",
		"GET /metrics",
		"GET /api/branch/read/{id}",
		"GET /api/branch/list",
		"POST /api/apiKey/regenerate/{id}",
		"POST /api/stripe/webhook",
		"POST /api/stripe/create-payment-intent",
		"not-a-pattern",
	)
}

func TestRoutesCanonical(t *testing.T) {
	routes := testRoutes()
	cases := map[string]string{
		"":                                  OtherPath,
		"/":                                 OtherPath,
		"/metrics":                          "/metrics",
		"/api/branch/read/01HZX":            "/api/branch/read/:id",
		"/api/branch/read/":                 OtherPath,
		"/api/apiKey/regenerate/01HZX":      "/api/apiKey/regenerate/:id",
		"/api/branch/list":                  "/api/branch/list",
		"/api/branch/list?page=2":           "/api/branch/list",
		"/api/stripe/webhook":               "/api/stripe/webhook",
		"/api/branch/read/01HZX/extra":      OtherPath,
		"/api/stripe/create-payment-intent": "/api/stripe/create-payment-intent",
		"/api/unknown/01HZX":                OtherPath,
		"/wp-admin/setup-config.php":        OtherPath,
	}
	for input, expected := range cases {
		if got := routes.Canonical(input); got != expected {
			t.Fatalf("Canonical(%q)=%q, want %q", input, got, expected)
		}
	}
	var none *Routes
	if got := none.Canonical("/api/branch/list"); got != OtherPath {
		t.Fatalf("nil routes must label %q, got %q", OtherPath, got)
	}
}

func TestInstrumentPassesStatusThrough(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}), testRoutes())
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/branch/read/x", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rr.Code)
	}
}

func TestInstrumentCollapsesUnknownPaths(t *testing.T) {
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}), testRoutes())
	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, OtherPath, "404"))
	for _, p := range []string{"/scan/1", "/scan/2", "/api/branch/read/a/b"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, OtherPath, "404"))
	if after-before != 3 {
		t.Fatalf("expected 3 requests under %q, got %v", OtherPath, after-before)
	}
}
