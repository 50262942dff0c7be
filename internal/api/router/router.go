package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/wellness-booking/internal/archive"
	"github.com/wolfman30/wellness-booking/internal/availability"
	"github.com/wolfman30/wellness-booking/internal/bookings"
	"github.com/wolfman30/wellness-booking/internal/credits"
	httpmiddleware "github.com/wolfman30/wellness-booking/internal/http/middleware"
	"github.com/wolfman30/wellness-booking/internal/http/respond"
	"github.com/wolfman30/wellness-booking/internal/identity"
	"github.com/wolfman30/wellness-booking/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger              *logging.Logger
	CreditsHandler      *credits.Handler
	AvailabilityHandler *availability.Handler
	BookingsHandler     *bookings.Handler
	ArchiveHandler      *archive.Handler
	JWTSecret           string
	MetricsHandler      http.Handler
	CORSAllowedOrigins  []string

	// HealthCheck reports backing store health; nil means always healthy.
	HealthCheck func(ctx context.Context) error

	// WriteLimiter throttles booking writes per actor (optional).
	WriteLimiter *httpmiddleware.RateLimiter
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	// Public endpoints
	r.Group(func(public chi.Router) {
		public.Get("/health", healthHandler(cfg.HealthCheck))
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Authenticated user endpoints
	r.Route("/api/v1", func(api chi.Router) {
		api.Use(httpmiddleware.Authenticate(cfg.JWTSecret))

		if cfg.CreditsHandler != nil {
			api.Route("/credits", func(r chi.Router) {
				r.Get("/", cfg.CreditsHandler.ListCredits)
				r.Get("/balance", cfg.CreditsHandler.GetBalance)
				r.Get("/transactions", cfg.CreditsHandler.ListTransactions)
				r.Post("/quote", cfg.CreditsHandler.QuoteCancellation)
			})
		}
		if cfg.AvailabilityHandler != nil {
			api.Route("/availability", func(r chi.Router) {
				r.Post("/check", cfg.AvailabilityHandler.Check)
				r.Post("/slots", cfg.AvailabilityHandler.Slots)
			})
		}
		if cfg.BookingsHandler != nil {
			api.Route("/appointments", func(r chi.Router) {
				r.Get("/", cfg.BookingsHandler.List)
				r.Get("/{appointmentID}", cfg.BookingsHandler.Get)
				r.Group(func(w chi.Router) {
					if cfg.WriteLimiter != nil {
						w.Use(cfg.WriteLimiter.Middleware)
					}
					w.Post("/", cfg.BookingsHandler.Book)
					w.Post("/{appointmentID}/cancel", cfg.BookingsHandler.Cancel)
					w.Post("/{appointmentID}/reschedule", cfg.BookingsHandler.Reschedule)
				})
			})
		}
	})

	// Admin endpoints
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.Authenticate(cfg.JWTSecret))
		admin.Use(httpmiddleware.RequireRole(identity.RoleAdmin))

		if cfg.CreditsHandler != nil {
			admin.Route("/users/{userID}/credits", func(r chi.Router) {
				r.Post("/", cfg.CreditsHandler.AdminGrant)
				r.Get("/", cfg.CreditsHandler.AdminListCredits)
				r.Get("/balance", cfg.CreditsHandler.AdminBalance)
				r.Get("/transactions", cfg.CreditsHandler.AdminTransactions)
			})
			admin.Post("/credits/expire", cfg.CreditsHandler.AdminExpire)
		}
		if cfg.ArchiveHandler != nil {
			admin.Post("/ledger/archive", cfg.ArchiveHandler.ArchiveMonth)
		}
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				respond.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
				return
			}
		}
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
