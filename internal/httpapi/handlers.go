package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/sdalgetty/funnel-app-sub003/api/spec"
	"github.com/sdalgetty/funnel-app-sub003/internal/account"
	"github.com/sdalgetty/funnel-app-sub003/internal/audit"
	"github.com/sdalgetty/funnel-app-sub003/internal/identity"
	"github.com/sdalgetty/funnel-app-sub003/internal/obs"
	"github.com/sdalgetty/funnel-app-sub003/internal/stream"
)

// ReadyProbe — readiness check (e.g. DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API — HTTP layer over the identity services.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	accounts      account.Store
	invitations   *identity.InvitationService
	impersonation *identity.Controller
	resolver      *identity.Resolver
	auditLog      *audit.Log
	stream        *stream.Stream
}

// Deps bundles the services the HTTP layer exposes.
type Deps struct {
	Accounts      account.Store
	Invitations   *identity.InvitationService
	Impersonation *identity.Controller
	Resolver      *identity.Resolver
	AuditLog      *audit.Log
	Stream        *stream.Stream
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:           http.NewServeMux(),
		readyProbe:    rp,
		version:       version,
		accounts:      deps.Accounts,
		invitations:   deps.Invitations,
		impersonation: deps.Impersonation,
		resolver:      deps.Resolver,
		auditLog:      deps.AuditLog,
		stream:        deps.Stream,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// auth
	a.mux.HandleFunc("/v1/auth/signup", a.handleSignup)
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/auth/signout", a.handleSignout)

	// identity
	a.mux.HandleFunc("/v1/me", a.handleMe)
	a.mux.HandleFunc("/v1/identity/switch", a.handleIdentitySwitch)
	a.mux.HandleFunc("/v1/identity/self", a.handleIdentitySelf)

	// shares
	a.mux.HandleFunc("/v1/shares", a.handleSharesCollection)
	a.mux.HandleFunc("/v1/shares/", a.handleShareResource)
	a.mux.HandleFunc("/v1/shares/accept", a.handleShareAccept)

	// impersonation
	a.mux.HandleFunc("/v1/impersonation", a.handleImpersonation)
	a.mux.HandleFunc("/v1/impersonation/touch", a.handleImpersonationTouch)

	// account data
	a.mux.HandleFunc("/v1/profile", a.handleProfile)
	a.mux.HandleFunc("/v1/accounts/", a.handleAccountResource)

	// audit
	a.mux.HandleFunc("/v1/access-log", a.handleAccessLog)
	a.mux.HandleFunc("/v1/access-log/stream", a.StreamAccessLog)

	// OpenAPI YAML
	a.mux.HandleFunc("/openapi.yaml", a.OpenAPISpec)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "funnel-identity-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
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

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "funnel-identity-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	_, _ = w.Write(spec.OpenAPI)
}
