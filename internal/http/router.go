package http

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dailygrain/server/internal/auth"
	"github.com/dailygrain/server/internal/http/handlers"
	"github.com/dailygrain/server/internal/middleware"
	"github.com/dailygrain/server/internal/repo"
)

// NewRouter wires all routes.
func NewRouter(
	webhookHandler *handlers.WebhookHandler,
	digestHandler *handlers.DigestHandler,
	authHandler *handlers.AuthHandler,
	dashboardHandler *handlers.DashboardHandler,
	jwtService *auth.JWTService,
	users repo.UserStore,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/", webhookHandler.HandleRoot)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/webhook", func(r chi.Router) {
		r.Post("/sms", webhookHandler.HandleSMS)
		r.Get("/health", webhookHandler.HandleHealth)
	})

	r.Post("/internal/digest/run", digestHandler.HandleRun)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/request_code", authHandler.HandleRequestCode)
		r.Post("/auth/verify", authHandler.HandleVerifyCode)

		// Protected routes (require valid JWT)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(jwtService, users))
			r.Get("/me", dashboardHandler.HandleMe)
			r.Get("/habits", dashboardHandler.HandleListHabits)
		})
	})

	return r
}
