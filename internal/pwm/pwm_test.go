package pwm

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/dimmerd/internal/light"
)

func TestMemoryDriver(t *testing.T) {
	m := NewMemory()

	require.NoError(t, m.SetDutyCycle(light.Red, 300))
	require.NoError(t, m.SetDutyCycle(light.White, -4))
	require.NoError(t, m.SetDutyCycle(light.Blue, 77))

	red, err := m.DutyCycle(light.Red)
	require.NoError(t, err)
	assert.Equal(t, 255, red)
	assert.Equal(t, [light.ChannelCount]int{255, 0, 77, 0}, m.Snapshot())
	assert.Equal(t, 3, m.Writes())

	_, err = m.DutyCycle(light.Channel(9))
	assert.ErrorIs(t, err, ErrUnknownChannel)

	boom := errors.New("bus error")
	m.FailReads(boom)
	_, err = m.DutyCycle(light.Red)
	assert.ErrorIs(t, err, boom)
}

// fakeDaemon speaks the pigpiod socket protocol for the handful of commands
// the driver uses.
type fakeDaemon struct {
	mu       sync.Mutex
	duty     map[uint32]uint32
	pwmPins  map[uint32]bool
	commands []uint32
	ln       net.Listener
}

func newFakeDaemon(t *testing.T) *fakeDaemon {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	d := &fakeDaemon{
		duty:    make(map[uint32]uint32),
		pwmPins: make(map[uint32]bool),
		ln:      ln,
	}
	go d.serve()
	t.Cleanup(func() { _ = ln.Close() })
	return d
}

func (d *fakeDaemon) serve() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		go d.handle(conn)
	}
}

func (d *fakeDaemon) handle(conn net.Conn) {
	defer conn.Close()
	var req [frameSize]byte
	for {
		if _, err := io.ReadFull(conn, req[:]); err != nil {
			return
		}
		cmd := binary.LittleEndian.Uint32(req[0:])
		p1 := binary.LittleEndian.Uint32(req[4:])
		p2 := binary.LittleEndian.Uint32(req[8:])

		var res int32
		d.mu.Lock()
		d.commands = append(d.commands, cmd)
		switch cmd {
		case cmdPWM:
			d.duty[p1] = p2
			d.pwmPins[p1] = true
		case cmdGDC:
			if d.pwmPins[p1] {
				res = int32(d.duty[p1])
			} else {
				res = codeNotPWM
			}
		case cmdPRS:
			res = int32(p2)
		}
		d.mu.Unlock()

		resp := req
		binary.LittleEndian.PutUint32(resp[12:], uint32(res))
		if _, err := conn.Write(resp[:]); err != nil {
			return
		}
	}
}

func TestPigpioRoundTrip(t *testing.T) {
	d := newFakeDaemon(t)
	pins := Pins{light.Red: 26, light.Green: 19, light.Blue: 13, light.White: 6}

	p, err := NewPigpio(d.ln.Addr().String(), pins, 800, time.Second)
	require.NoError(t, err)
	defer p.Close()

	// Pins never written report zero instead of an error.
	duty, err := p.DutyCycle(light.Green)
	require.NoError(t, err)
	assert.Equal(t, 0, duty)

	require.NoError(t, p.SetDutyCycle(light.Green, 128))
	duty, err = p.DutyCycle(light.Green)
	require.NoError(t, err)
	assert.Equal(t, 128, duty)

	require.NoError(t, p.SetDutyCycle(light.Red, 999))
	duty, err = p.DutyCycle(light.Red)
	require.NoError(t, err)
	assert.Equal(t, 255, duty)

	d.mu.Lock()
	assert.Equal(t, uint32(128), d.duty[19])
	assert.Contains(t, d.commands, uint32(cmdModes))
	assert.Contains(t, d.commands, uint32(cmdPFS))
	d.mu.Unlock()
}

func TestPigpioReconnects(t *testing.T) {
	d := newFakeDaemon(t)
	pins := Pins{light.Red: 26, light.Green: 19, light.Blue: 13, light.White: 6}

	p, err := NewPigpio(d.ln.Addr().String(), pins, 0, time.Second)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Close())
	require.NoError(t, p.SetDutyCycle(light.Blue, 10))
	duty, err := p.DutyCycle(light.Blue)
	require.NoError(t, err)
	assert.Equal(t, 10, duty)
}

func TestPigpioRequiresAllPins(t *testing.T) {
	_, err := NewPigpio("127.0.0.1:1", Pins{light.Red: 1}, 0, time.Second)
	assert.Error(t, err)
}
