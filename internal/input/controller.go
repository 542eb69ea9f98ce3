package input

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/eventbus"
	"github.com/dokzlo13/dimmerd/internal/light"
)

const eventBuffer = 64

// Source is the queue source recorded for commands produced by the knob.
const Source = "input"

// Sink accepts commands for the fade engine.
type Sink interface {
	Enqueue(cmd light.Command, source string) (uuid.UUID, error)
}

// Publisher receives recognized gestures.
type Publisher interface {
	Publish(event eventbus.Event)
}

// Scheduler runs f once after d. The returned function cancels it.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) (stop func() bool)
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

type eventKind int

const (
	eventPress eventKind = iota
	eventRelease
	eventRotate
	eventFire
)

type event struct {
	kind       eventKind
	direction  int
	timer      Timer
	generation uint64
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithScheduler replaces the wall-clock timer scheduler.
func WithScheduler(s Scheduler) ControllerOption {
	return func(c *Controller) { c.scheduler = s }
}

// WithPublisher publishes every recognized gesture.
func WithPublisher(p Publisher) ControllerOption {
	return func(c *Controller) { c.publisher = p }
}

// Controller owns a Machine on a single goroutine. Button, encoder and timer
// callbacks only post events to it.
type Controller struct {
	machine   *Machine
	sink      Sink
	publisher Publisher
	scheduler Scheduler

	events chan event
	done   chan struct{}
	stops  [timerCount]func() bool
}

// NewController creates a controller. Call Run to start processing events.
func NewController(timings Timings, sink Sink, opts ...ControllerOption) *Controller {
	c := &Controller{
		sink:      sink,
		scheduler: realScheduler{},
		events:    make(chan event, eventBuffer),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.machine = NewMachine(timings, c.arm)
	return c
}

// Press reports the button going down.
func (c *Controller) Press() { c.post(event{kind: eventPress}) }

// Release reports the button going up.
func (c *Controller) Release() { c.post(event{kind: eventRelease}) }

// Rotate reports one encoder detent; positive is clockwise.
func (c *Controller) Rotate(direction int) {
	c.post(event{kind: eventRotate, direction: direction})
}

// Run processes events until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	log.Info().Msg("Input controller started")
	defer func() {
		close(c.done)
		for i, stop := range c.stops {
			if stop != nil {
				stop()
				c.stops[i] = nil
			}
		}
		log.Info().Msg("Input controller stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-c.events:
			c.handle(ev)
		}
	}
}

func (c *Controller) post(ev event) {
	select {
	case <-c.done:
	case c.events <- ev:
	default:
		log.Warn().Int("kind", int(ev.kind)).Msg("Input event buffer full, dropping event")
	}
}

func (c *Controller) handle(ev event) {
	var out Output
	switch ev.kind {
	case eventPress:
		out = c.machine.Press()
	case eventRelease:
		out = c.machine.Release()
	case eventRotate:
		out = c.machine.Rotate(ev.direction)
	case eventFire:
		out = c.machine.Fire(ev.timer, ev.generation)
	}
	if out.Gesture == "" {
		return
	}

	log.Debug().
		Str("gesture", string(out.Gesture)).
		Str("mode", c.machine.Mode().String()).
		Int("commands", len(out.Commands)).
		Msg("Input gesture")

	for _, cmd := range out.Commands {
		if _, err := c.sink.Enqueue(cmd, Source); err != nil {
			log.Warn().Err(err).Str("kind", string(cmd.Kind())).Msg("Failed to enqueue input command")
		}
	}

	if c.publisher != nil {
		c.publisher.Publish(eventbus.Event{
			Type: eventbus.EventGesture,
			Data: map[string]any{
				"gesture": string(out.Gesture),
				"mode":    c.machine.Mode().String(),
			},
		})
	}
}

// arm is the Machine's timer hook. It runs on the Run goroutine.
func (c *Controller) arm(t Timer, generation uint64, d time.Duration) {
	if stop := c.stops[t]; stop != nil {
		stop()
	}
	c.stops[t] = c.scheduler.AfterFunc(d, func() {
		c.post(event{kind: eventFire, timer: t, generation: generation})
	})
}
