package handlers

import (
	"net/http"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/malbeclabs/airdrop/api/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router returns the HTTP handler for the API.
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if h.cfg.SentryEnabled {
		// Repanic hands the panic back to Recoverer after it is reported.
		r.Use(sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle)
	}
	r.Use(metrics.Middleware)

	origins := h.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Get("/version", h.GetVersion)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(h.cfg.RequestTimeout))
		if h.limiter != nil {
			r.Use(RateLimitMiddleware(h.limiter))
		}

		r.Get("/airdrops", h.ListAirdrops)
		r.Get("/airdrops/{id}", h.GetAirdrop)
		r.Get("/airdrops/{id}/claimants/{address}", h.GetClaimant)
		r.Get("/tokens/{mint}", h.GetToken)
		r.Get("/prices", h.GetPrice)
	})

	return r
}
