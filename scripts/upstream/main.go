// Upstream is a demo target for exercising the gateway's proxy route. It
// serves /health for the health checker and /items for traffic, with
// optional latency and failure injection to trip breakers and skew
// least-response balancing.
//
// Usage:
//
//	go run ./scripts/upstream -port 8081
//	go run ./scripts/upstream -port 8082 -latency 50ms -fail-rate 0.3
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angeloszaimis/routekit/pkg/logger"
)

type item struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Served string `json:"served_by"`
}

func main() {
	var (
		port     = flag.Int("port", 8081, "port to listen on")
		latency  = flag.Duration("latency", 0, "delay added to every /items response")
		failRate = flag.Float64("fail-rate", 0, "fraction of /items requests answered with 500")
	)
	flag.Parse()

	log := logger.New("debug", false, "dev")
	name := fmt.Sprintf("upstream-%d", *port)

	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/items", func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				if *latency > 0 {
					time.Sleep(*latency)
				}
				if *failRate > 0 && rand.Float64() < *failRate {
					log.Warn("Injected failure", slog.String("path", req.URL.Path))
					http.Error(w, "injected failure", http.StatusInternalServerError)
					return
				}
				log.Debug("Request served",
					slog.String("method", req.Method),
					slog.String("path", req.URL.Path),
					slog.String("request_id", req.Header.Get("X-Request-Id")))
				next.ServeHTTP(w, req)
			})
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, item{ID: chi.URLParam(req, "id"), Name: "item", Served: name})
		})

		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var in item
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
				http.Error(w, "invalid json", http.StatusBadRequest)
				return
			}
			in.ID = uuid.NewString()
			in.Served = name
			writeJSON(w, http.StatusCreated, in)
		})
	})

	addr := fmt.Sprintf(":%d", *port)
	log.Info("Starting upstream", slog.String("addr", addr), slog.String("name", name))
	if err := http.ListenAndServe(addr, r); err != nil {
		log.Error("Upstream failed", slog.Any("err", err))
		os.Exit(1)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
