package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Strob0t/CircuitForge/internal/adapter/otel"
	"github.com/Strob0t/CircuitForge/internal/middleware"
)

// RouterOptions configures the middleware stack built by NewRouter.
type RouterOptions struct {
	CORSOrigins []string
	ServiceName string
	Telemetry   bool // wrap requests in otelhttp spans
}

// NewRouter returns a chi router with the standard middleware stack and all
// routes mounted.
func NewRouter(opts RouterOptions, h *Handlers) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger)
	r.Use(chimw.Recoverer)
	r.Use(CORS(opts.CORSOrigins))
	r.Use(SecurityHeaders)
	if opts.Telemetry {
		r.Use(otel.HTTPMiddleware(opts.ServiceName, "/updates", "/api/updates"))
	}

	MountRoutes(r, h)
	return r
}

// MountRoutes registers all routes on r, both at the root and under /api
// where the browser client expects them.
func MountRoutes(r chi.Router, h *Handlers) {
	mount := func(r chi.Router) {
		r.Post("/compile", h.Compile)
		r.Get("/updates", h.Updates)
		if h.Stream != nil {
			r.Method(http.MethodGet, "/updates/ws", h.Stream)
		}
		r.Get("/health", h.Health)
		if h.Parts != nil {
			r.Get("/parts/search", h.SearchParts)
		}
	}

	mount(r)
	r.Route("/api", mount)
}
