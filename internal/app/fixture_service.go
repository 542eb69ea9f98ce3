package app

import (
	"context"
	"io"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/aurora"
	"github.com/dokzlo13/dimmerd/internal/config"
	"github.com/dokzlo13/dimmerd/internal/eventbus"
	"github.com/dokzlo13/dimmerd/internal/fade"
	"github.com/dokzlo13/dimmerd/internal/ledger"
	"github.com/dokzlo13/dimmerd/internal/light"
	"github.com/dokzlo13/dimmerd/internal/pwm"
	"github.com/dokzlo13/dimmerd/internal/queue"
	"github.com/dokzlo13/dimmerd/internal/storage"
)

// startupSource tags the restore command enqueued at boot.
const startupSource = "startup"

// FixtureService owns the PWM driver, the command queue and the fade engine.
type FixtureService struct {
	cfg    *config.Config
	store  storage.StateStore
	ledger *ledger.Ledger
	bus    *eventbus.Bus

	Queue  *queue.Queue
	Driver pwm.Driver
	Engine *fade.Engine
	closer io.Closer
}

// NewFixtureService connects the PWM driver. l may be nil when the ledger
// is disabled.
func NewFixtureService(cfg *config.Config, store storage.StateStore, l *ledger.Ledger, bus *eventbus.Bus) (*FixtureService, error) {
	s := &FixtureService{
		cfg:    cfg,
		store:  store,
		ledger: l,
		bus:    bus,
		Queue:  queue.New(cfg.Engine.QueueSize),
	}

	switch cfg.Hardware.Driver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory PWM driver, no hardware will be driven")
		s.Driver = pwm.NewMemory()
	default:
		pins := pwm.Pins{
			light.Red:   cfg.Hardware.Pins.Red,
			light.Green: cfg.Hardware.Pins.Green,
			light.Blue:  cfg.Hardware.Pins.Blue,
			light.White: cfg.Hardware.Pins.White,
		}
		driver, err := pwm.NewPigpio(cfg.Hardware.Address, pins, cfg.Hardware.Frequency, cfg.Hardware.Timeout.Duration())
		if err != nil {
			return nil, eris.Wrap(err, "failed to initialize pwm driver")
		}
		s.Driver = driver
		s.closer = driver
	}

	return s, nil
}

// Start loads the persisted state, builds the engine and queues the restore
// of that state onto the hardware.
func (s *FixtureService) Start() error {
	initial, err := storage.LoadOrDefault(s.store, s.cfg.State.CreateIfMissing)
	if err != nil {
		return eris.Wrap(err, "failed to load fixture state")
	}

	gen := aurora.New(
		aurora.WithMaxAttempts(s.cfg.Engine.AuroraMaxAttempts),
		aurora.WithScanLimit(s.cfg.Engine.AuroraScanLimit),
	)

	opts := []fade.Option{
		fade.WithPollInterval(s.cfg.Engine.PollInterval.Duration()),
		fade.WithIntervals(s.cfg.Engine.Intervals),
		fade.WithPublisher(s.bus),
	}
	if s.ledger != nil {
		opts = append(opts, fade.WithRecorder(s.ledger))
	}
	s.Engine = fade.New(s.Queue, s.Driver, s.store, gen, initial, opts...)

	restore := light.RestoreCommand(initial, s.cfg.Timings.Startup.Options())
	if err := s.Queue.Push(queue.Synthetic(restore, startupSource)); err != nil {
		return eris.Wrap(err, "failed to queue startup restore")
	}

	log.Info().
		Bool("on", initial.On).
		Int("power", initial.Power).
		Int("preset", initial.PresetIdx).
		Msg("Restoring fixture state")
	return nil
}

// Run drives the engine until ctx is cancelled.
func (s *FixtureService) Run(ctx context.Context) error {
	if s.Engine == nil {
		return eris.New("fixture service not started")
	}
	return s.Engine.Run(ctx)
}

// Close rejects further commands and releases the driver.
func (s *FixtureService) Close() {
	s.Queue.Close()
	if s.closer != nil {
		if err := s.closer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close pwm driver")
		}
	}
}
