package app

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/dokzlo13/dimmerd/internal/config"
	"github.com/dokzlo13/dimmerd/internal/gpio"
	"github.com/dokzlo13/dimmerd/internal/input"
)

// InputService wires the GPIO reader to the gesture controller.
type InputService struct {
	Controller *input.Controller
	reader     *gpio.Reader
}

// NewInputService opens the button and encoder pins.
func NewInputService(cfg *config.Config, sink input.Sink, publisher input.Publisher) (*InputService, error) {
	controller := input.NewController(inputTimings(cfg), sink, input.WithPublisher(publisher))

	reader, err := gpio.Open(gpio.Config{
		ButtonPin: cfg.Input.ButtonPin,
		ClockPin:  cfg.Input.ClockPin,
		DataPin:   cfg.Input.DataPin,
		Debounce:  cfg.Input.Debounce.Duration(),
	}, controller)
	if err != nil {
		return nil, eris.Wrap(err, "failed to open input pins")
	}

	return &InputService{Controller: controller, reader: reader}, nil
}

// Run processes input until ctx is cancelled or a pin fails.
func (s *InputService) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Controller.Run(ctx) })
	g.Go(func() error { return s.reader.Run(ctx) })
	return g.Wait()
}

// inputTimings maps config onto gesture timings. Unset gesture windows keep
// their defaults.
func inputTimings(cfg *config.Config) input.Timings {
	t := input.DefaultTimings()
	if d := cfg.Input.HoldTime.Duration(); d > 0 {
		t.HoldTime = d
	}
	if d := cfg.Input.DoubleClickTime.Duration(); d > 0 {
		t.DoubleClickTime = d
	}
	if d := cfg.Input.KnobTimeout.Duration(); d > 0 {
		t.KnobTimeout = d
	}
	t.Switch = cfg.Timings.Switch.Options()
	t.Preset = cfg.Timings.Preset.Options()
	t.Rotate = cfg.Timings.Rotate.Options()
	t.Preview = cfg.Timings.Preview.Options()
	return t
}
