package app

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dokzlo13/dimmerd/internal/config"
	"github.com/dokzlo13/dimmerd/internal/db"
	"github.com/dokzlo13/dimmerd/internal/eventbus"
	"github.com/dokzlo13/dimmerd/internal/ledger"
	"github.com/dokzlo13/dimmerd/internal/light"
	"github.com/dokzlo13/dimmerd/internal/storage"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB     *db.DB
	Ledger *ledger.Ledger
	Bus    *eventbus.Bus

	// Persisted fixture state
	Store *storage.Store
	State storage.StateStore

	// High-level services, nil when disabled
	Fixture *FixtureService
	Input   *InputService
	API     *APIService
	Cleanup *LedgerService

	done chan struct{}
	err  error
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Store = storage.NewStore(database.DB)

	switch cfg.State.Backend {
	case config.BackendFile:
		s.State = storage.NewFileStateStore(cfg.State.Path)
	default:
		s.State = storage.NewSQLiteStateStore(s.Store)
	}

	if cfg.Ledger.Enabled {
		s.Ledger = ledger.New(database.DB)
		s.Cleanup = NewLedgerService(cfg, s.Ledger)
	}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	s.Fixture, err = NewFixtureService(cfg, s.State, s.Ledger, s.Bus)
	if err != nil {
		s.Close()
		return nil, err
	}

	if cfg.Input.Enabled {
		s.Input, err = NewInputService(cfg, s.Fixture.Queue, s.Bus)
		if err != nil {
			s.Close()
			return nil, err
		}
	}

	if cfg.HTTP.Enabled {
		s.API = NewAPIService(cfg, s.Fixture.Queue, s.State, s.Ledger, s.Bus)
	}

	return s, nil
}

// Start launches every enabled service. The onFatalError callback is called
// when a service stops with an error; the remaining services are cancelled.
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	if err := s.Fixture.Start(); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Fixture.Run(ctx) })
	if s.Input != nil {
		g.Go(func() error { return s.Input.Run(ctx) })
	} else {
		log.Info().Msg("Knob input is disabled")
	}
	if s.API != nil {
		g.Go(func() error { return s.API.Run(ctx) })
	} else {
		log.Info().Msg("HTTP API is disabled")
	}
	if s.Cleanup != nil {
		g.Go(func() error { return s.Cleanup.Run(ctx) })
	}

	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := g.Wait(); err != nil {
			s.err = err
			onFatalError(err)
		}
	}()
	return nil
}

// ResetState overwrites the persisted state with the defaults.
func (s *Services) ResetState() error {
	if err := s.State.Save(light.DefaultState()); err != nil {
		return eris.Wrap(err, "failed to reset state")
	}
	return nil
}

// Stop waits up to the shutdown timeout for the services started by Start
// to return, then releases all resources. The context passed to Start must
// already be cancelled.
func (s *Services) Stop() error {
	var err error
	if s.done != nil {
		select {
		case <-s.done:
			err = s.err
		case <-time.After(s.cfg.ShutdownTimeout.Duration()):
			err = eris.New("timed out waiting for services to stop")
		}
	}
	s.Close()
	return err
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Fixture != nil {
		s.Fixture.Close()
	}
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration())
		s.Bus.Close(ctx)
		cancel()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
