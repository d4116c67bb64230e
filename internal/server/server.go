package server

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config carries everything the HTTP surface needs.
type Config struct {
	Hub      *Hub
	Store    SessionStore
	Controls SessionControls
	Ingester ChunkIngester
	Status   StatusHooks
	Registry prometheus.Gatherer
	Logger   *slog.Logger
}

// Handler assembles the full route table: the bidirectional websocket, the
// read-only session API and the Prometheus scrape endpoint.
func Handler(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	registerWSRoute(mux, cfg.Hub, cfg.Controls, cfg.Ingester, logger)
	registerAPIRoutes(mux, cfg.Store, cfg.Status)

	gatherer := cfg.Registry
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}
