package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	CORSOrigins []string
	StaticDir   string
	// Push serves /ws when set.
	Push http.Handler
	// Metrics serves /metrics on the API port when set.
	Metrics http.Handler
}

func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.GetHealth)
	r.Get("/healthz", h.GetHealthz)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))
		r.Get("/buses", h.GetBuses)
		r.Get("/buses/{id}", h.GetBus)
		r.Get("/bus/{id}/route", h.GetBusRoute)
		r.Get("/nearby-buses", h.GetNearbyBuses)
		r.Post("/recommend-routes", h.PostRecommendRoutes)
		r.Get("/routes", h.GetRoutes)
	})

	r.Get("/gtfs-rt/vehicle-positions", h.GetVehiclePositionsFeed)

	if opts.Push != nil {
		r.Handle("/ws", opts.Push)
	}
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}
	if opts.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(opts.StaticDir)))
	}
	return r
}
