// Package httpapi exposes the ERP core over HTTP/JSON.
package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"idurar.org/internal/auth"
	"idurar.org/internal/branch"
	"idurar.org/internal/obs"
	"idurar.org/internal/payments"
	"idurar.org/internal/stream"
)

const serviceName = "idurar-erp"

// ReadyProbe reports readiness; a nil DB is always ready.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the services the API routes to.
type Deps struct {
	Resolver *auth.Resolver
	Sessions *auth.Sessions
	Keys     *auth.KeyManager
	Roles    *auth.RoleManager
	Branches *branch.Manager
	Payments *payments.Engine
	Stream   *stream.Stream
	Ready    ReadyProbe
}

// API is the HTTP layer.
type API struct {
	mux            *http.ServeMux
	deps           Deps
	version        string
	rateBurst      int
	ratePerSec     int
	maxBodyBytes   int64
	allowedOrigins []string
	heartbeat      time.Duration
	patterns       []string
}

// Option configures an API.
type Option func(*API)

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst = burst
			a.ratePerSec = perSecond
		}
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithAllowedOrigins lists CORS origins; "*" allows any.
func WithAllowedOrigins(origins []string) Option {
	return func(a *API) { a.allowedOrigins = origins }
}

// WithHeartbeat sets the SSE keep-alive interval.
func WithHeartbeat(d time.Duration) Option {
	return func(a *API) {
		if d > 0 {
			a.heartbeat = d
		}
	}
}

func New(deps Deps, version string, opts ...Option) (*API, error) {
	if deps.Resolver == nil {
		return nil, errors.New("credential resolver is required")
	}
	a := &API{
		mux:          http.NewServeMux(),
		deps:         deps,
		version:      version,
		rateBurst:    100,
		ratePerSec:   50,
		maxBodyBytes: 1 << 20,
		heartbeat:    15 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a, nil
}

func (a *API) routes() {
	a.handle("GET /healthz", http.HandlerFunc(a.Healthz))
	a.handle("GET /readyz", http.HandlerFunc(a.Ready))
	a.handle("GET /metrics", obs.Handler())

	a.handle("POST /api/login", http.HandlerFunc(a.login))
	a.handle("POST /api/stripe/webhook", http.HandlerFunc(a.stripeWebhook))

	a.protect("POST /api/branch/create", auth.PermSettingsEdit, a.createBranch)
	a.protect("GET /api/branch/read/{id}", auth.PermSettingsView, a.readBranch)
	a.protect("PATCH /api/branch/update/{id}", auth.PermSettingsEdit, a.updateBranch)
	a.protect("DELETE /api/branch/delete/{id}", auth.PermSettingsEdit, a.deleteBranch)
	a.protect("GET /api/branch/list", auth.PermSettingsView, a.listBranches)
	a.protect("GET /api/branch/default", auth.PermSettingsView, a.defaultBranch)

	a.protect("POST /api/apiKey/create", auth.PermSettingsEdit, a.createAPIKey)
	a.protect("GET /api/apiKey/read/{id}", auth.PermSettingsView, a.readAPIKey)
	a.protect("GET /api/apiKey/list", auth.PermSettingsView, a.listAPIKeys)
	a.protect("POST /api/apiKey/regenerate/{id}", auth.PermSettingsEdit, a.regenerateAPIKey)
	a.protect("POST /api/apiKey/revoke/{id}", auth.PermSettingsEdit, a.revokeAPIKey)

	a.protect("POST /api/admin/create", auth.PermAdminCreate, a.createAdmin)

	a.protect("POST /api/role/create", auth.PermAdminEdit, a.createRole)
	a.protect("GET /api/role/read/{id}", auth.PermAdminView, a.readRole)
	a.protect("PATCH /api/role/update/{id}", auth.PermAdminEdit, a.updateRole)
	a.protect("DELETE /api/role/delete/{id}", auth.PermAdminDelete, a.deleteRole)
	a.protect("GET /api/role/list", auth.PermAdminView, a.listRoles)
	a.protect("GET /api/role/permissions", auth.PermAdminView, a.listPermissions)
	a.protect("POST /api/role/assign", auth.PermAdminEdit, a.assignRole)

	a.protect("POST /api/invoice/create", auth.PermInvoiceCreate, a.createInvoice)
	a.protect("GET /api/invoice/read/{id}", auth.PermInvoiceView, a.readInvoice)

	a.protect("POST /api/payment/create", auth.PermPaymentCreate, a.createPayment)
	a.protect("GET /api/payment/read/{id}", auth.PermPaymentView, a.readPayment)
	a.protect("GET /api/payment/stream", auth.PermPaymentView, a.Stream)
	a.protect("POST /api/stripe/create-payment-intent", auth.PermPaymentCreate, a.createPaymentIntent)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})
}

// handle registers h and records its pattern for metric labels.
func (a *API) handle(pattern string, h http.Handler) {
	a.patterns = append(a.patterns, pattern)
	a.mux.Handle(pattern, h)
}

// Handler returns the root handler with the middleware chain applied.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = SecurityHeaders(h)
	h = CORS(h, a.allowedOrigins)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h, obs.NewRoutes(a.patterns...))
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.deps.Ready.Check(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}
