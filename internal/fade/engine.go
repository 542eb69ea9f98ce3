// Package fade runs the single consumer that turns queued commands into
// animated duty-cycle changes.
package fade

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/eventbus"
	"github.com/dokzlo13/dimmerd/internal/ledger"
	"github.com/dokzlo13/dimmerd/internal/light"
	"github.com/dokzlo13/dimmerd/internal/pwm"
	"github.com/dokzlo13/dimmerd/internal/queue"
	"github.com/dokzlo13/dimmerd/internal/storage"
)

// DefaultPollInterval is how long the idle loop waits between queue polls
// when no wake-up arrives.
const DefaultPollInterval = 100 * time.Millisecond

const minStepWait = time.Millisecond

// ErrCommandPanicked is replied to a waiting caller when applying its command
// panicked.
var ErrCommandPanicked = eris.New("command processing panicked")

// Recorder receives the outcome of every processed command.
type Recorder interface {
	Append(eventType ledger.EventType, rec ledger.Record) error
}

// Publisher receives state change notifications.
type Publisher interface {
	Publish(event eventbus.Event)
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithPollInterval sets the idle poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

// WithIntervals sets the number of easing steps per fade.
func WithIntervals(n int) Option {
	return func(e *Engine) { e.curve = NewCurve(n) }
}

// WithRecorder records command outcomes.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithPublisher publishes state changes.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// Engine owns the target state. Only the goroutine running Run mutates it.
type Engine struct {
	queue     *queue.Queue
	driver    pwm.Driver
	store     storage.StateStore
	generator light.ColourGenerator

	clock        Clock
	curve        Curve
	pollInterval time.Duration
	recorder     Recorder
	publisher    Publisher

	mu      sync.RWMutex
	target  light.State
	written [light.ChannelCount]int
}

// New creates an engine starting from the given target state.
func New(q *queue.Queue, driver pwm.Driver, store storage.StateStore, gen light.ColourGenerator, initial light.State, opts ...Option) *Engine {
	e := &Engine{
		queue:        q,
		driver:       driver,
		store:        store,
		generator:    gen,
		clock:        realClock{},
		curve:        NewCurve(DefaultIntervals),
		pollInterval: DefaultPollInterval,
		target:       initial.Clone(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Target returns a copy of the current in-memory target.
func (e *Engine) Target() light.State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.target.Clone()
}

// Run consumes the queue until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().
		Int("intervals", e.curve.Intervals()).
		Dur("poll_interval", e.pollInterval).
		Msg("Fade engine started")
	defer log.Info().Msg("Fade engine stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}
		if e.step(ctx) {
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case <-e.queue.Ready():
		case <-e.clock.After(e.pollInterval):
		}
	}
}

// step processes the head of the queue. Returns false if the queue was empty.
func (e *Engine) step(ctx context.Context) bool {
	env, ok := e.queue.TryPop()
	if !ok {
		return false
	}
	e.process(ctx, env)
	return true
}

func (e *Engine) process(ctx context.Context, env queue.Envelope) {
	cmd := env.Command
	opts := cmd.CommandOptions()
	logger := log.With().
		Str("command_id", env.ID.String()).
		Str("kind", string(cmd.Kind())).
		Str("origin", env.Origin.String()).
		Str("source", env.Source).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Command processing panicked")
			env.Reply(ErrCommandPanicked)
			e.record(ledger.EventCommandFailed, env, map[string]any{"error": fmt.Sprint(r)})
		}
	}()

	logger.Debug().
		Dur("fade", opts.FadeTime).
		Dur("post_delay", opts.PostDelay).
		Bool("flash", opts.Flash).
		Msg("Processing command")

	start := e.readDuties(logger)
	before := e.Target()

	next, err := light.Apply(before, cmd, e.generator)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to apply command")
		env.Reply(err)
		e.record(ledger.EventCommandFailed, env, map[string]any{"error": err.Error()})
		e.publish(eventbus.EventCommandFailed, map[string]any{
			"command_id": env.ID.String(),
			"kind":       string(cmd.Kind()),
			"error":      err.Error(),
		})
		return
	}
	e.setTarget(next)
	env.Reply(nil)

	target := light.TargetDuty(next)
	if !e.animate(ctx, start, target, opts.FadeTime) {
		logger.Debug().Msg("Fade aborted")
		if opts.Flash {
			// An interrupted preview never becomes the base of later commands.
			e.setTarget(before)
		}
		e.record(ledger.EventCommandAborted, env, nil)
		return
	}
	e.snap(logger, target)
	e.sleep(ctx, opts.PostDelay)

	switch {
	case next.Aurora != nil && e.queue.Empty():
		if ctx.Err() != nil {
			return
		}
		if err := e.queue.Push(queue.Synthetic(cmd, "aurora")); err != nil {
			logger.Warn().Err(err).Msg("Failed to continue aurora")
		}
		e.record(ledger.EventCommandCompleted, env, statePayload(next))
	case opts.Flash:
		if ctx.Err() != nil {
			return
		}
		if !e.queue.Empty() {
			// The pending command fades away from the preview on its own.
			e.setTarget(before)
			e.record(ledger.EventCommandCompleted, env, statePayload(next))
			break
		}
		revert := light.RestoreCommand(before, light.Options{FadeTime: opts.FadeTime})
		if err := e.queue.Push(queue.Synthetic(revert, "flash")); err != nil {
			logger.Warn().Err(err).Msg("Failed to schedule flash revert")
		}
		e.record(ledger.EventCommandCompleted, env, statePayload(next))
	default:
		e.persist(logger, env, next)
	}

	logger.Info().
		Bool("on", next.On).
		Int("power", next.Power).
		Int("preset", next.PresetIdx).
		Ints("duty", target[:]).
		Msg("Command completed")
}

// animate eases every channel from start to target over fade. Returns false
// if the fade was interrupted by cancellation or a newer command.
func (e *Engine) animate(ctx context.Context, start, target [light.ChannelCount]int, fade time.Duration) bool {
	if fade <= 0 {
		return true
	}

	wait := fade / time.Duration(e.curve.Intervals())
	if wait < minStepWait {
		wait = minStepWait
	}

	began := e.clock.Now()
	last := -1
	for {
		if e.interrupted(ctx) {
			return false
		}

		f := float64(e.clock.Now().Sub(began)) / float64(fade)
		i := e.curve.Step(f)
		if i != last {
			var duty [light.ChannelCount]int
			for c := range duty {
				duty[c] = e.curve.Duty(start[c], target[c], i)
			}
			e.write(duty, false)
			last = i
		}
		if f >= 1 {
			return true
		}

		select {
		case <-ctx.Done():
		case <-e.queue.Ready():
		case <-e.clock.After(wait):
		}
	}
}

func (e *Engine) interrupted(ctx context.Context) bool {
	return ctx.Err() != nil || !e.queue.Empty()
}

// sleep waits for d or until ctx is cancelled.
func (e *Engine) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-e.clock.After(d):
	}
}

// readDuties reads the applied duty cycles back from the driver. A channel
// that cannot be read falls back to the value last written to it.
func (e *Engine) readDuties(logger zerolog.Logger) [light.ChannelCount]int {
	var duty [light.ChannelCount]int
	for i, ch := range light.Channels {
		v, err := e.driver.DutyCycle(ch)
		if err != nil {
			logger.Warn().Err(err).Str("channel", ch.String()).Msg("Failed to read duty cycle, using last written value")
			v = e.written[i]
		}
		duty[i] = v
	}
	e.written = duty
	return duty
}

func (e *Engine) snap(logger zerolog.Logger, target [light.ChannelCount]int) {
	if err := e.write(target, true); err != nil {
		logger.Error().Err(err).Msg("Failed to write target duty cycle")
	}
}

// write sets every channel. Unless force is set, channels already at the
// requested duty are skipped.
func (e *Engine) write(duty [light.ChannelCount]int, force bool) error {
	var firstErr error
	for i, ch := range light.Channels {
		if !force && e.written[i] == duty[i] {
			continue
		}
		if err := e.driver.SetDutyCycle(ch, duty[i]); err != nil {
			log.Debug().Err(err).Str("channel", ch.String()).Int("duty", duty[i]).Msg("Failed to set duty cycle")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		e.written[i] = duty[i]
	}
	return firstErr
}

func (e *Engine) setTarget(s light.State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.target = s.Clone()
}

func (e *Engine) persist(logger zerolog.Logger, env queue.Envelope, s light.State) {
	persisted := s.Persistable()
	if err := e.store.Save(persisted); err != nil {
		logger.Error().Err(err).Msg("Failed to persist state")
		e.record(ledger.EventCommandFailed, env, map[string]any{"error": err.Error()})
		return
	}
	payload := statePayload(persisted)
	e.record(ledger.EventCommandCompleted, env, payload)
	e.publish(eventbus.EventStateChanged, payload)
}

func (e *Engine) record(eventType ledger.EventType, env queue.Envelope, payload map[string]any) {
	if e.recorder == nil {
		return
	}
	err := e.recorder.Append(eventType, ledger.Record{
		CommandID: env.ID.String(),
		Kind:      string(env.Command.Kind()),
		Origin:    env.Origin.String(),
		Source:    env.Source,
		Payload:   payload,
	})
	if err != nil {
		log.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to record ledger entry")
	}
}

func (e *Engine) publish(eventType eventbus.EventType, data map[string]any) {
	if e.publisher == nil {
		return
	}
	e.publisher.Publish(eventbus.Event{Type: eventType, Data: data})
}

func statePayload(s light.State) map[string]any {
	presets := make([]map[string]any, 0, light.PresetCount)
	for _, c := range s.Presets {
		presets = append(presets, colourPayload(c))
	}
	return map[string]any{
		"on":        s.On,
		"power":     s.Power,
		"presetIdx": s.PresetIdx,
		"presets":   presets,
		"aurora":    s.Aurora != nil,
	}
}

func colourPayload(c light.Colour) map[string]any {
	return map[string]any{
		"red":   c.Red,
		"green": c.Green,
		"blue":  c.Blue,
		"white": c.White,
	}
}
