package app

import (
	"context"

	"github.com/dokzlo13/dimmerd/internal/api"
	"github.com/dokzlo13/dimmerd/internal/config"
	"github.com/dokzlo13/dimmerd/internal/eventbus"
	"github.com/dokzlo13/dimmerd/internal/ledger"
	"github.com/dokzlo13/dimmerd/internal/queue"
	"github.com/dokzlo13/dimmerd/internal/storage"
)

// APIService serves the HTTP command API and the websocket event stream.
type APIService struct {
	Hub    *api.Hub
	Server *api.Server
}

// NewAPIService builds the server. l may be nil when the ledger is disabled.
func NewAPIService(cfg *config.Config, q *queue.Queue, store storage.StateStore, l *ledger.Ledger, bus *eventbus.Bus) *APIService {
	var history api.History
	if l != nil {
		history = l
	}

	hub := api.NewHub(bus)
	server := api.NewServer(api.Config{
		Addr:            api.Addr(cfg.HTTP.Host, cfg.HTTP.Port),
		RateLimitRPS:    cfg.HTTP.RateLimitRPS,
		RateLimitBurst:  cfg.HTTP.RateLimitBurst,
		AuroraWait:      cfg.HTTP.AuroraWait.Duration(),
		ShutdownTimeout: cfg.ShutdownTimeout.Duration(),
	}, q, store, history, hub)

	return &APIService{Hub: hub, Server: server}
}

// Run serves until ctx is cancelled.
func (s *APIService) Run(ctx context.Context) error {
	return s.Server.Run(ctx)
}
