package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/cash-console-bfa/internal/domain"
	"github.com/boddenberg/cash-console-bfa/internal/infra/observability"
	"github.com/boddenberg/cash-console-bfa/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Options tune the HTTP surface.
type Options struct {
	// CookieSecure marks the session cookie Secure (HTTPS only).
	CookieSecure bool
	// LoginRateLimit caps login attempts per client IP per minute; 0 disables it.
	LoginRateLimit int
	// Ready reports whether dependencies such as the session store are reachable.
	Ready func(ctx context.Context) error
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(console *service.Console, opts Options, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(console))
	r.Get("/readyz", readyzHandler(opts.Ready))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	if console == nil {
		return r
	}

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. Session
		// =============================================
		r.Route("/session", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if opts.LoginRateLimit > 0 {
					r.Use(httprate.LimitByIP(opts.LoginRateLimit, time.Minute))
				}
				r.Post("/login", loginHandler(console, opts.CookieSecure, logger))
			})
			r.Group(func(r chi.Router) {
				r.Use(SessionMiddleware(console, logger))
				r.Get("/", sessionInfoHandler(console))
				r.Post("/logout", logoutHandler(console, opts.CookieSecure, logger))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(SessionMiddleware(console, logger))

			// =============================================
			// 2. Cash day reconciliation
			// =============================================
			r.Route("/cash-day", func(r chi.Router) {
				r.Get("/", getCashDayHandler(console, logger))
				r.Put("/filters", setFiltersHandler(console, logger))
				r.Delete("/messages", dismissMessagesHandler(console, logger))
				r.Post("/open", openDayHandler(console, logger))
				r.Post("/movements", createMovementHandler(console, logger))
				r.Post("/movements/{id}/void", voidMovementHandler(console, logger))
				r.Post("/close", closeDayHandler(console, logger))
			})

			// =============================================
			// 3. Point of sale
			// =============================================
			r.Route("/pos", func(r chi.Router) {
				r.Get("/products", searchProductsHandler(console, logger))
				r.Get("/cart", getCartHandler(console))
				r.Delete("/cart", clearCartHandler(console))
				r.Post("/cart/items", addCartItemHandler(console, logger))
				r.Put("/cart/items/{productId}", setCartQuantityHandler(console, logger))
				r.Delete("/cart/items/{productId}", removeCartItemHandler(console, logger))
				r.Post("/checkout", checkoutHandler(console, logger))
				r.Get("/sales", listSalesHandler(console, logger))
				r.Post("/sales/{id}/void", voidSaleHandler(console, logger))
			})
		})
	})

	return r
}

// ============================================================
// Probes
// ============================================================

func healthzHandler(console *service.Console) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := domain.HealthStatus{Status: "healthy", Services: []domain.ServiceHealth{}}
		if console != nil {
			state := console.Breaker()
			svc := domain.ServiceHealth{
				Name:        "backend",
				Status:      "healthy",
				Detail:      "circuit " + state,
				LastChecked: time.Now().UTC().Format(time.RFC3339),
			}
			if state == "open" {
				svc.Status = "unhealthy"
				status.Status = "degraded"
			}
			status.Services = append(status.Services, svc)
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func readyzHandler(ready func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			if err := ready(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
