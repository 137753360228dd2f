// EventLedger - Partitioned Append-Only Event Log
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/eventledger

// Package api is the HTTP surface over the engine: a thin chi adapter that
// decodes requests, calls internal/ledger, and translates typed errors to
// status codes and stable error bodies.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/eventledger/internal/config"
	"github.com/tomtom215/eventledger/internal/ledger"
	"github.com/tomtom215/eventledger/internal/store"
)

// Router builds the HTTP handler tree.
type Router struct {
	handler *Handler
	cfg     config.ServerConfig
}

// NewRouter creates the HTTP surface over the engine.
func NewRouter(svc *ledger.Service, st store.Store, cfg config.ServerConfig) *Router {
	return &Router{
		handler: NewHandler(svc, st),
		cfg:     cfg,
	}
}

// Setup wires all routes and middleware.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: router.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         86400,
	}))

	r.Route("/healthz", func(r chi.Router) {
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/streams", func(r chi.Router) {
		if router.cfg.RateLimitReqs > 0 {
			r.Use(httprate.LimitByRealIP(router.cfg.RateLimitReqs, router.cfg.RateLimitWindow))
		}
		r.Use(PrometheusMetrics)

		r.Post("/", router.handler.CreateStream)
		r.Get("/", router.handler.ListStreams)

		r.Route("/{stream_id}", func(r chi.Router) {
			r.Get("/", router.handler.GetStream)
			r.Delete("/", router.handler.DeleteStream)
			r.Post("/events", router.handler.Publish)

			r.Route("/subscriptions", func(r chi.Router) {
				r.Post("/", router.handler.CreateSubscription)
				r.Route("/{subscription_id}", func(r chi.Router) {
					r.Delete("/", router.handler.DeleteSubscription)
					r.Get("/poll", router.handler.Poll)
					r.Post("/commit", router.handler.Commit)
				})
			})

			r.Route("/compacted", func(r chi.Router) {
				r.Get("/", router.handler.ListCompacted)
				r.Get("/{key}", router.handler.GetCompacted)
			})
		})
	})

	return r
}
