// Package pwm abstracts the duty-cycle outputs of the fixture.
package pwm

import (
	"sync"

	"github.com/rotisserie/eris"

	"github.com/dokzlo13/dimmerd/internal/light"
	"github.com/dokzlo13/dimmerd/internal/utils"
)

// ErrUnknownChannel is returned for a channel outside red..white.
var ErrUnknownChannel = eris.New("unknown channel")

// Driver reads and writes per-channel duty cycles in [0, 255]. The value read
// back is the hardware's, not a cached copy of the last write.
type Driver interface {
	DutyCycle(ch light.Channel) (int, error)
	SetDutyCycle(ch light.Channel, duty int) error
}

// Pins maps each channel to a GPIO number.
type Pins map[light.Channel]int

func validChannel(ch light.Channel) bool {
	return ch >= light.Red && ch <= light.White
}

// Memory is an in-process driver used for dry runs and tests.
type Memory struct {
	mu      sync.Mutex
	duty    [light.ChannelCount]int
	writes  int
	readErr error
}

// NewMemory creates a Memory driver with every channel at zero.
func NewMemory() *Memory {
	return &Memory{}
}

// DutyCycle returns the stored duty of ch.
func (m *Memory) DutyCycle(ch light.Channel) (int, error) {
	if !validChannel(ch) {
		return 0, ErrUnknownChannel
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.duty[ch], nil
}

// SetDutyCycle stores duty, clamped to [0, 255].
func (m *Memory) SetDutyCycle(ch light.Channel, duty int) error {
	if !validChannel(ch) {
		return ErrUnknownChannel
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duty[ch] = utils.Clamp(duty, 0, light.MaxDuty)
	m.writes++
	return nil
}

// Snapshot returns all four duties.
func (m *Memory) Snapshot() [light.ChannelCount]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.duty
}

// Writes returns the number of SetDutyCycle calls so far.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// Set overwrites all four duties, as an external change to the hardware would.
func (m *Memory) Set(duty [light.ChannelCount]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duty = duty
}

// FailReads makes DutyCycle return err until called again with nil.
func (m *Memory) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}
