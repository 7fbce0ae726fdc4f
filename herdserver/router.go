// Copyright 2026 Eliton Melo
// SPDX-License-Identifier: Apache-2.0

package herdserver

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/elitonnmelo/faceboi-app/internal/auth"
)

// Options configures the router.
type Options struct {
	Storage Storage
	Auth    *JWTAuth
	Logger  *slog.Logger

	// Registry defaults to a fresh prometheus registry per router.
	Registry *prometheus.Registry
}

// NewRouter builds the herd API router. Every /api route requires a
// bearer token; the owner id from its `sub` claim scopes all storage
// access.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	metrics := NewMetrics(registry)
	handlers := NewHandlers(opts.Storage, logger, metrics)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(opts.Auth, logger))

		r.Post("/animals", handlers.HandleCreateAnimal)
		r.Get("/animals", handlers.HandleListAnimals)
		r.Patch("/animals/{id}", handlers.HandleUpdateAnimal)
		r.Delete("/animals/{id}", handlers.HandleDeleteAnimal)
		r.Get("/animals/{id}/events", handlers.HandleListEvents)
		r.Post("/events", handlers.HandleCreateEvent)
	})

	return r
}

func authMiddleware(jwtAuth *JWTAuth, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := jwtAuth.ClaimsFromRequest(r)
			if err != nil {
				logger.Debug("rejected request", "path", r.URL.Path, "error", err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"authentication_failed","message":"valid bearer token required"}`))
				return
			}
			ctx := auth.SetOwnerID(r.Context(), claims.Subject)
			ctx = auth.SetDeviceID(ctx, claims.DeviceID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
