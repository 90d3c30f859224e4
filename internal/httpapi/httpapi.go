// Package httpapi exposes the keeper daemon's player-facing REST/WebSocket
// surface and the operator-facing catalog reload route (spec.md §6,
// SPEC_FULL.md §9), routed with gorilla/mux the way
// r3e-network-service_layer's cmd/gateway wires its own API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ai-trpg/keeper/internal/bootstrap"
	"github.com/ai-trpg/keeper/internal/dicehub"
	"github.com/ai-trpg/keeper/internal/errors"
	redisclient "github.com/ai-trpg/keeper/internal/redis"
	"github.com/ai-trpg/keeper/internal/stores"
	"github.com/ai-trpg/keeper/internal/turn"
)

// Config holds the handler's dependencies.
type Config struct {
	Bootstrap    *bootstrap.Bootstrapper
	Orchestrator *turn.Orchestrator
	Sheets       *stores.SheetStore
	Sessions     *stores.SessionStore
	History      *stores.HistoryStore
	Hub          *dicehub.Hub
	Redis        redisclient.Client
	Registry     *prometheus.Registry
}

// Validate ensures all required dependencies are present.
func (c *Config) Validate() error {
	vb := errors.NewValidationBuilder()
	if c.Bootstrap == nil {
		vb.RequiredField("Bootstrap")
	}
	if c.Orchestrator == nil {
		vb.RequiredField("Orchestrator")
	}
	if c.Sheets == nil {
		vb.RequiredField("Sheets")
	}
	if c.Sessions == nil {
		vb.RequiredField("Sessions")
	}
	if c.Hub == nil {
		vb.RequiredField("Hub")
	}
	if c.Redis == nil {
		vb.RequiredField("Redis")
	}
	return vb.Build()
}

// handler bundles the keeper daemon's HTTP endpoints.
type handler struct {
	bootstrap    *bootstrap.Bootstrapper
	orchestrator *turn.Orchestrator
	sheets       *stores.SheetStore
	sessions     *stores.SessionStore
	history      *stores.HistoryStore
	hub          *dicehub.Hub
	redis        redisclient.Client
}

// NewRouter builds the gorilla/mux router serving the keeper daemon's full
// HTTP/WebSocket surface.
func NewRouter(cfg Config) (*mux.Router, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	h := &handler{
		bootstrap:    cfg.Bootstrap,
		orchestrator: cfg.Orchestrator,
		sheets:       cfg.Sheets,
		sessions:     cfg.Sessions,
		history:      cfg.History,
		hub:          cfg.Hub,
		redis:        cfg.Redis,
	}

	router := mux.NewRouter()
	router.Use(loggingMiddleware)
	router.Use(recoveryMiddleware)

	router.HandleFunc("/health", h.health).Methods(http.MethodGet)
	router.HandleFunc("/api/character_entered", h.characterEntered).Methods(http.MethodPost)
	router.HandleFunc("/api/chat", h.chat).Methods(http.MethodPost)
	router.HandleFunc("/api/character_data", h.characterData).Methods(http.MethodGet)
	router.HandleFunc("/api/character_sheet/{id}", h.characterSheet).Methods(http.MethodGet)
	router.HandleFunc("/api/session_state/{id}", h.sessionState).Methods(http.MethodGet)
	router.HandleFunc("/admin/reload_catalog", h.reloadCatalog).Methods(http.MethodPost)
	router.HandleFunc("/ws/dice", h.hub.ServeWS)

	if cfg.Registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	return router, nil
}

const requestTimeout = 20 * time.Second

func withRequestTimeout(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}
