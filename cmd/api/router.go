package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xavierca1/lead-relay/internal/infra/http/handlers"
	"github.com/xavierca1/lead-relay/internal/infra/http/middleware"
)

type routes struct {
	Leads          *handlers.LeadHandler
	Deliveries     *handlers.DeliveryHandler
	Health         *handlers.HealthHandler
	AllowedOrigins []string
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: rt.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Post("/leads", rt.Leads.CreateLead)
	r.Get("/leads/{id}", rt.Leads.GetLead)

	r.Route("/deliveries", func(r chi.Router) {
		r.Get("/stats", rt.Deliveries.Stats)
		r.Get("/failed", rt.Deliveries.ListFailed)
		r.Get("/{id}", rt.Deliveries.GetDelivery)
		r.Post("/{id}/retry", rt.Deliveries.Retry)
	})
	r.Post("/test-delivery", rt.Deliveries.TestDelivery)

	r.Get("/health", rt.Health.Handle)
	r.Handle("/metrics", promhttp.Handler())

	return r
}
