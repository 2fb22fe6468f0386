package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/routekit/pkg/routekit"
)

// setupRouter puts the admin endpoints in front of the gateway. Every path
// the admin routes do not claim goes to the app's dispatcher.
func setupRouter(app *routekit.App, metricsPath string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimiddleware.Heartbeat("/healthz"))

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		stats, err := app.Stats(r.Context())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})
	r.Get("/stats/metrics", app.MetricsHandler())

	r.Handle(metricsPath, promhttp.HandlerFor(app.Gatherer(), promhttp.HandlerOpts{}))

	r.Mount("/", app.Handler())

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
