// Package router assembles the HTTP surface from the domain handlers.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hanyusok/calldoc-reservation-sub000/internal/availability"
	httpmiddleware "github.com/hanyusok/calldoc-reservation-sub000/internal/http/middleware"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/identity"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/ledger"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/payments"
	"github.com/hanyusok/calldoc-reservation-sub000/internal/scheduling"
	"github.com/hanyusok/calldoc-reservation-sub000/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger       *logging.Logger
	Availability *availability.Handler
	Scheduling   *scheduling.Handler
	Payments     *payments.Handler
	Ledger       *ledger.Handler
	Webhook      *payments.WebhookHandler

	JWTSecret          string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	RateLimitPerSec    float64
	RateLimitBurst     int
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}
	if cfg.RateLimitPerSec > 0 {
		r.Use(httpmiddleware.RateLimit(cfg.RateLimitPerSec, cfg.RateLimitBurst))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.Webhook != nil {
			public.Post("/webhooks/gateway", cfg.Webhook.HandleGatewayEvent)
		}
		if cfg.Availability != nil {
			public.Get("/api/slots", cfg.Availability.Slots)
		}
	})

	// Authenticated API.
	r.Group(func(api chi.Router) {
		api.Use(identity.Authenticate(cfg.JWTSecret))

		if cfg.Scheduling != nil {
			api.Route("/api/appointments", func(r chi.Router) {
				r.With(identity.RequireRole(identity.RolePatient)).Post("/", cfg.Scheduling.Book)
				r.With(identity.RequireRole(identity.RolePatient)).Get("/", cfg.Scheduling.List)
				r.Get("/{id}", cfg.Scheduling.Get)
				r.Post("/{id}/cancel", cfg.Scheduling.Cancel)

				r.Group(func(staff chi.Router) {
					staff.Use(identity.RequireRole(identity.RolePractitioner, identity.RoleOperator))
					staff.Post("/{id}/fee", cfg.Scheduling.SetFee)
					staff.Post("/{id}/complete", cfg.Scheduling.Complete)
					staff.Post("/{id}/reject", cfg.Scheduling.Reject)
				})

				if cfg.Payments != nil {
					r.With(identity.RequireRole(identity.RolePatient)).Post("/{id}/pay", cfg.Payments.PayFromBalance)
				}
			})
		}

		if cfg.Payments != nil {
			api.With(identity.RequireRole(identity.RolePatient)).Post("/api/payments/confirm", cfg.Payments.ConfirmExternal)
		}

		if cfg.Ledger != nil {
			api.Route("/api/balance", func(r chi.Router) {
				r.Get("/", cfg.Ledger.Balance)
				r.Post("/topup", cfg.Ledger.TopUp)
				r.Get("/entries", cfg.Ledger.Entries)
			})
		}

		if cfg.Availability != nil {
			api.Route("/api/schedule", func(r chi.Router) {
				r.Use(identity.RequireRole(identity.RolePractitioner, identity.RoleOperator))
				r.Put("/template", cfg.Availability.SetWeeklyTemplate)
				r.Put("/overrides", cfg.Availability.SetDateOverride)
				r.Delete("/overrides", cfg.Availability.ClearDateOverride)
			})
		}
	})

	return r
}
