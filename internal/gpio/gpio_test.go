package gpio

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"periph.io/x/conn/v3/gpio"
)

type fakePin struct {
	mu    sync.Mutex
	level gpio.Level
	edges chan gpio.Level
}

func newFakePin(level gpio.Level) *fakePin {
	return &fakePin{level: level, edges: make(chan gpio.Level, 16)}
}

func (p *fakePin) Read() gpio.Level {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

func (p *fakePin) Set(l gpio.Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = l
}

func (p *fakePin) WaitForEdge(timeout time.Duration) bool {
	select {
	case l := <-p.edges:
		p.Set(l)
		return true
	case <-time.After(timeout):
		return false
	}
}

type recorder struct {
	events chan string
}

func (r *recorder) Press()   { r.events <- "press" }
func (r *recorder) Release() { r.events <- "release" }
func (r *recorder) Rotate(direction int) {
	if direction > 0 {
		r.events <- "cw"
	} else {
		r.events <- "ccw"
	}
}

func (r *recorder) next(t *testing.T) string {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(time.Second):
		t.Fatal("no input event")
		return ""
	}
}

func (r *recorder) none(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.events:
		t.Fatalf("unexpected input event %q", e)
	case <-time.After(50 * time.Millisecond):
	}
}

// steppedNow returns each value in turn, repeating the last one.
func steppedNow(offsets ...time.Duration) func() time.Time {
	var mu sync.Mutex
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	i := 0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		off := offsets[min(i, len(offsets)-1)]
		i++
		return base.Add(off)
	}
}

func run(t *testing.T, r *Reader) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return cancel, done
}

func shutdown(t *testing.T, cancel context.CancelFunc, done <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reader did not stop")
	}
}

func TestReader_Button(t *testing.T) {
	defer goleak.VerifyNone(t)

	button := newFakePin(gpio.High)
	rec := &recorder{events: make(chan string, 16)}
	r := NewReader(button, newFakePin(gpio.High), newFakePin(gpio.High), 0, rec)
	cancel, done := run(t, r)

	button.edges <- gpio.Low
	assert.Equal(t, "press", rec.next(t))
	button.edges <- gpio.Low
	rec.none(t)
	button.edges <- gpio.High
	assert.Equal(t, "release", rec.next(t))

	shutdown(t, cancel, done)
}

func TestReader_ButtonDebounce(t *testing.T) {
	defer goleak.VerifyNone(t)

	button := newFakePin(gpio.High)
	rec := &recorder{events: make(chan string, 16)}
	r := NewReader(button, newFakePin(gpio.High), newFakePin(gpio.High), DefaultDebounce, rec)
	r.now = steppedNow(0, time.Millisecond, 2*time.Millisecond, 20*time.Millisecond)
	cancel, done := run(t, r)

	for _, l := range []gpio.Level{gpio.Low, gpio.High, gpio.Low, gpio.High} {
		button.edges <- l
	}
	assert.Equal(t, "press", rec.next(t))
	assert.Equal(t, "release", rec.next(t))
	rec.none(t)

	shutdown(t, cancel, done)
}

func TestReader_Encoder(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newFakePin(gpio.High)
	data := newFakePin(gpio.High)
	rec := &recorder{events: make(chan string, 16)}
	r := NewReader(newFakePin(gpio.High), clock, data, 0, rec)
	cancel, done := run(t, r)

	clock.edges <- gpio.Low
	assert.Equal(t, "cw", rec.next(t))
	clock.edges <- gpio.High
	rec.none(t)

	data.Set(gpio.Low)
	clock.edges <- gpio.Low
	assert.Equal(t, "ccw", rec.next(t))

	shutdown(t, cancel, done)
}
