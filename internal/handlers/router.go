package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/medassist/api/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	basePath    string
	middlewares []func(http.Handler) http.Handler
	health      *HealthHandlers

	auth       RouteRegistrar
	medicines  RouteRegistrar
	pharmacies RouteRegistrar
	users      RouteRegistrar
	orders     RouteRegistrar
	payments   RouteRegistrar
	pharmacist RouteRegistrar
	driver     RouteRegistrar
	admin      RouteRegistrar
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultAPIPrefix = "/api/v1"
	defaultTimeout   = 60 * time.Second
)

// NewRouter constructs the chi router with shared middleware and the role
// scoped route groups.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		basePath: defaultAPIPrefix,
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Timeout(defaultTimeout),
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	r := chi.NewRouter()

	if cfg.health == nil {
		cfg.health = NewHealthHandlers()
	}

	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("route_not_found", fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	r.Route(cfg.basePath, func(api chi.Router) {
		mount := func(path string, registrar RouteRegistrar) {
			api.Route(path, func(group chi.Router) {
				if registrar != nil {
					registrar(group)
					return
				}
				group.HandleFunc("/*", func(w http.ResponseWriter, req *http.Request) {
					httpx.WriteError(req.Context(), w, httpx.NewError("not_implemented", "endpoint not implemented", http.StatusNotImplemented))
				})
			})
		}

		mount("/auth", cfg.auth)
		mount("/medicines", cfg.medicines)
		mount("/pharmacies", cfg.pharmacies)
		mount("/users", cfg.users)
		mount("/orders", cfg.orders)
		mount("/payments", cfg.payments)
		mount("/pharmacist", cfg.pharmacist)
		mount("/driver", cfg.driver)
		mount("/admin", cfg.admin)
	})

	return r
}

// WithMiddlewares appends additional global middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithHealthHandlers overrides the handlers serving /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithAuthRoutes configures the /auth group.
func WithAuthRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.auth = reg }
}

// WithMedicineRoutes configures the /medicines group.
func WithMedicineRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.medicines = reg }
}

// WithPharmacyRoutes configures the /pharmacies group.
func WithPharmacyRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.pharmacies = reg }
}

// WithUserRoutes configures the /users group.
func WithUserRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.users = reg }
}

// WithOrderRoutes configures the /orders group.
func WithOrderRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.orders = reg }
}

// WithPaymentRoutes configures the /payments group.
func WithPaymentRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.payments = reg }
}

// WithPharmacistRoutes configures the /pharmacist group.
func WithPharmacistRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.pharmacist = reg }
}

// WithDriverRoutes configures the /driver group.
func WithDriverRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.driver = reg }
}

// WithAdminRoutes configures the /admin group.
func WithAdminRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) { cfg.admin = reg }
}
