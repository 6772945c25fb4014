// Package httpapi wires C1-C7 into the inbound HTTP surface: login,
// refresh, logout, the transparent proxy, and the admin/health routes.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"graphscopeproxy/internal/config"
	"graphscopeproxy/internal/obs"
	"graphscopeproxy/internal/proxy"
	"graphscopeproxy/internal/scope"
	"graphscopeproxy/internal/scopecache"
	"graphscopeproxy/internal/token"
)

// UpstreamProber is the thin reachability check /admin/health?deep=true
// performs against the configured Graph base URL.
type UpstreamProber interface {
	Probe(ctx context.Context) error
}

// API holds every wired component and builds the route mux.
type API struct {
	mux *http.ServeMux

	cfg      config.Config
	builder  *scope.Builder
	cache    scopecache.Cache
	tokens   *token.Service
	proxy    *proxy.Proxy
	upstream UpstreamProber

	rateBurst     int
	ratePerSecond int
}

// New wires the components into an API and builds its route mux.
func New(cfg config.Config, builder *scope.Builder, cache scopecache.Cache, tokens *token.Service, p *proxy.Proxy, upstream UpstreamProber) *API {
	a := &API{
		cfg:           cfg,
		builder:       builder,
		cache:         cache,
		tokens:        tokens,
		proxy:         p,
		upstream:      upstream,
		rateBurst:     20,
		ratePerSecond: 10,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", a.handleLogin)
	mux.HandleFunc("/auth/refresh", a.handleRefresh)
	mux.HandleFunc("/auth/logout", a.handleLogout)
	mux.HandleFunc("/admin/health", a.handleHealth)
	mux.HandleFunc("/admin/refresh/", a.handleAdminRefresh)
	mux.Handle("/metrics", obs.Handler())
	mux.HandleFunc("/v1.0/", a.handleProxy("v1.0"))
	mux.HandleFunc("/beta/", a.handleProxy("beta"))
	a.mux = mux

	return a
}

// Handler returns the fully wrapped http.Handler for the server, wrapping
// the ambient middleware stack innermost-first so RequestID ends up
// outermost and RateLimit innermost.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	h = MaxBodyBytes(h, maxRequestBodyBytes)
	h = obs.Instrument(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = Recover(h)
	h = RequestID(h)
	return h
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	resp := map[string]any{"status": "ok"}
	if r.URL.Query().Get("deep") == "true" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		upstreamStatus := "ok"
		if a.upstream != nil {
			if err := a.upstream.Probe(ctx); err != nil {
				upstreamStatus = "degraded"
			}
		}
		cacheStatus := "ok"
		if _, _, err := a.cache.Get(ctx, "__health__"); err != nil {
			cacheStatus = "degraded"
		}
		resp["upstream"] = upstreamStatus
		resp["cache"] = cacheStatus
	}
	writeJSON(w, http.StatusOK, resp)
}

// compareAdminKey reports whether candidate matches the configured admin
// key hash. A missing hash always rejects.
func (a *API) compareAdminKey(candidate string) bool {
	if a.cfg.AdminKeyHash == "" || candidate == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.cfg.AdminKeyHash), []byte(candidate)) == nil
}
