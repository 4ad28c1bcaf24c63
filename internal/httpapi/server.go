// Package httpapi implements Carbon's HTTP admin and data-plane surface:
// health, login/logout, the cache read/write/delete routes, the admin
// cache-lifecycle routes, and the /events SSE stream.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/carbonlabs/carbon/internal/auth"
	"github.com/carbonlabs/carbon/internal/dataplane"
	"github.com/carbonlabs/carbon/internal/eventbus"
	"github.com/carbonlabs/carbon/internal/registry"
	"github.com/carbonlabs/carbon/pkg/middleware"
)

// Server holds the dependencies every handler needs.
type Server struct {
	dataPlane *dataplane.DataPlane
	registry  *registry.Registry
	bus       *eventbus.Bus
	gate      *auth.AuthGate
	log       *zap.Logger
}

// NewServer builds a Server wired to the given components.
func NewServer(dp *dataplane.DataPlane, reg *registry.Registry, bus *eventbus.Bus, gate *auth.AuthGate, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{dataPlane: dp, registry: reg, bus: bus, gate: gate, log: log}
}

// Router builds the chi router: public routes, a general per-principal
// token bucket, and the data-plane/admin routes behind RequireAuth.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger(s.log))

	limiter := middleware.NewTokenBucket(50, 100)
	r.Use(func(next http.Handler) http.Handler {
		return middleware.RateLimitMiddleware(next, limiter, middleware.KeyByPrincipal)
	})

	r.Get("/health", s.health)
	r.Post("/auth/login", s.login)
	r.Post("/auth/logout", s.logout)

	r.Route("/cache/{cache}/{key}", func(r chi.Router) {
		r.With(s.requireAuth(auth.PermCacheWrite)).Put("/", s.putCache)
		r.With(s.requireAuth(auth.PermCacheRead)).Get("/", s.getCache)
		r.With(s.requireAuth(auth.PermCacheWrite)).Delete("/", s.deleteCache)
	})

	r.Route("/admin/caches", func(r chi.Router) {
		r.With(s.requireAuth(auth.PermCacheAdmin)).Post("/", s.createCache)
		r.With(s.requireAuth(auth.PermCacheAdmin)).Get("/", s.listCaches)
		r.With(s.requireAuth(auth.PermCacheAdmin)).Get("/{name}", s.describeCache)
		r.With(s.requireAuth(auth.PermCacheAdmin)).Delete("/{name}", s.dropCache)
	})

	r.With(s.requireAuth("")).Get("/events", s.events)

	return r
}

func (s *Server) requireAuth(perm auth.Permission) func(http.Handler) http.Handler {
	return RequireAuth(s.gate, perm)
}
