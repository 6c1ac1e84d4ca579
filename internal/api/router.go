// Package api exposes the poller state over HTTP
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/nmslite/snmppoller/internal/auth"
	"github.com/nmslite/snmppoller/internal/middleware"
)

// Dependencies wires the router. DB and Metrics are optional.
type Dependencies struct {
	Auth    *auth.Service
	Targets TargetSource
	Values  ValueSource
	DB      Pinger
	Metrics http.Handler
	Logger  *slog.Logger
}

// NewRouter creates and configures the API router
func NewRouter(deps Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "api")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logger(logger))

	healthHandler := NewHealthHandler(deps.DB, deps.Targets)
	authHandler := NewAuthHandler(deps.Auth)
	targetHandler := NewTargetHandler(deps.Targets, deps.Values)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(deps.Auth))

			r.Route("/targets", func(r chi.Router) {
				r.Get("/", targetHandler.List)
				r.Get("/{name}", targetHandler.Get)
				r.Get("/{name}/values", targetHandler.Values)
			})
		})
	})

	return r
}

func sendError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	middleware.SendError(w, r, status, code, message, details)
}
