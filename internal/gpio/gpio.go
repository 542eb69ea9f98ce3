// Package gpio reads the push button and rotary encoder wired to the
// Raspberry Pi header.
package gpio

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// DefaultDebounce is the software debounce window for both inputs.
const DefaultDebounce = 5 * time.Millisecond

// edgeTimeout bounds each wait so cancellation is observed promptly.
const edgeTimeout = 100 * time.Millisecond

// ErrPinNotFound is returned when a configured pin name does not exist.
var ErrPinNotFound = eris.New("gpio pin not found")

// Handler receives debounced input events.
type Handler interface {
	Press()
	Release()
	Rotate(direction int)
}

// Pin is the subset of gpio.PinIn the reader needs.
type Pin interface {
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
}

// Config names the pins and debounce window.
type Config struct {
	ButtonPin string
	ClockPin  string
	DataPin   string
	Debounce  time.Duration
}

// Reader watches the button and encoder pins and forwards events to a Handler.
type Reader struct {
	button   Pin
	clock    Pin
	data     Pin
	debounce time.Duration
	handler  Handler
	now      func() time.Time
}

// Open initializes the host drivers and configures the pins: the button and
// encoder pins are pulled up, so a pressed button or closed contact reads low.
func Open(cfg Config, handler Handler) (*Reader, error) {
	if _, err := host.Init(); err != nil {
		return nil, eris.Wrap(err, "failed to initialize periph host")
	}

	button, err := openPin(cfg.ButtonPin, gpio.BothEdges)
	if err != nil {
		return nil, err
	}
	clock, err := openPin(cfg.ClockPin, gpio.BothEdges)
	if err != nil {
		return nil, err
	}
	data, err := openPin(cfg.DataPin, gpio.NoEdge)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("button", cfg.ButtonPin).
		Str("clock", cfg.ClockPin).
		Str("data", cfg.DataPin).
		Dur("debounce", cfg.Debounce).
		Msg("GPIO input configured")

	return NewReader(button, clock, data, cfg.Debounce, handler), nil
}

func openPin(name string, edge gpio.Edge) (gpio.PinIO, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, eris.Wrapf(ErrPinNotFound, "pin %q", name)
	}
	if err := p.In(gpio.PullUp, edge); err != nil {
		return nil, eris.Wrapf(err, "failed to configure pin %s", name)
	}
	return p, nil
}

// NewReader builds a reader over already configured pins.
func NewReader(button, clock, data Pin, debounce time.Duration, handler Handler) *Reader {
	return &Reader{
		button:   button,
		clock:    clock,
		data:     data,
		debounce: debounce,
		handler:  handler,
		now:      time.Now,
	}
}

// Run watches both inputs until ctx is cancelled.
func (r *Reader) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.watchButton(ctx) })
	g.Go(func() error { return r.watchEncoder(ctx) })
	return g.Wait()
}

func (r *Reader) watchButton(ctx context.Context) error {
	pressed := r.button.Read() == gpio.Low
	var last time.Time

	for ctx.Err() == nil {
		if !r.button.WaitForEdge(edgeTimeout) {
			continue
		}
		now := r.now()
		if !last.IsZero() && now.Sub(last) < r.debounce {
			continue
		}
		level := r.button.Read() == gpio.Low
		if level == pressed {
			continue
		}
		pressed = level
		last = now

		if pressed {
			r.handler.Press()
		} else {
			r.handler.Release()
		}
	}
	return nil
}

// watchEncoder decodes the quadrature signal on every falling clock edge:
// data still high means the clock led, which is a clockwise detent.
func (r *Reader) watchEncoder(ctx context.Context) error {
	clk := r.clock.Read()
	var last time.Time

	for ctx.Err() == nil {
		if !r.clock.WaitForEdge(edgeTimeout) {
			continue
		}
		level := r.clock.Read()
		if level == clk {
			continue
		}
		clk = level
		if clk != gpio.Low {
			continue
		}

		now := r.now()
		if !last.IsZero() && now.Sub(last) < r.debounce {
			continue
		}
		last = now

		if r.data.Read() == gpio.High {
			r.handler.Rotate(1)
		} else {
			r.handler.Rotate(-1)
		}
	}
	return nil
}
