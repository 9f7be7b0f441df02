// Package api exposes the billing ledger and the royalty gate over HTTP.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a chi router serving h. Every route except /health
// requires a bearer token signed with secret.
func NewRouter(h *Handler, secret []byte) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(secret))

		if h.ledger != nil {
			r.Get("/account", h.handleGetAccount)
			r.Post("/deposits", h.handleDeposit)
			r.Post("/withdrawals/unused", h.handleWithdrawUnused)
			r.Post("/withdrawals/provider", h.handleProviderWithdraw)
			r.Post("/withdrawals/royalty", h.handleWithdrawRoyalty)

			r.Post("/usage", h.handleApplyUsage)
			r.Get("/usage/quote", h.handleQuoteUsage)

			r.Get("/providers", h.handleListProviders)
			r.Post("/providers", h.handleRegisterProvider)
			r.Get("/providers/{address}", h.handleGetProvider)
			r.Put("/providers/me/tiers", h.handleSetTiers)
			r.Delete("/providers/me", h.handleUnregisterProvider)

			r.Get("/platform", h.handleGetPlatform)
			r.Get("/events", h.handleListEvents)
		}

		if h.gate != nil {
			r.Route("/royalty", func(r chi.Router) {
				r.Get("/config", h.handleGetRoyaltyConfig)
				r.Put("/splits", h.handleSetSplits)
				r.Get("/tokens/{id}", h.handleGetRoyaltyToken)
				r.Get("/tokens/{id}/quote", h.handleQuoteRoyalty)
				r.Put("/tokens/{id}/owner", h.handleSetRoyaltyOwner)
				r.Put("/tokens/{id}/price", h.handleSetRoyaltyPrice)
				r.Get("/events", h.handleListRoyaltyEvents)
			})
		}
	})

	return r
}
