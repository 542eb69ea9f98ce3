package pwm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/dimmerd/internal/light"
	"github.com/dokzlo13/dimmerd/internal/utils"
)

// pigpiod socket command numbers.
const (
	cmdModes = 0
	cmdPWM   = 5
	cmdPRS   = 6
	cmdPFS   = 7
	cmdGDC   = 83

	modeOutput = 1

	// PI_NOT_PWM_GPIO: the pin has not been driven with PWM yet.
	codeNotPWM = -92

	frameSize = 16
)

// PigpioError is a negative status returned by the daemon.
type PigpioError struct {
	Cmd  uint32
	Code int32
}

func (e *PigpioError) Error() string {
	return fmt.Sprintf("pigpio command %d failed with code %d", e.Cmd, e.Code)
}

// Pigpio drives PWM outputs through a pigpiod daemon over its socket
// interface. Connections are re-established after I/O errors.
type Pigpio struct {
	addr      string
	pins      Pins
	frequency int
	timeout   time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewPigpio creates a driver for the daemon at addr and configures every pin
// as a PWM output with range 255.
func NewPigpio(addr string, pins Pins, frequency int, timeout time.Duration) (*Pigpio, error) {
	for _, ch := range light.Channels {
		if _, ok := pins[ch]; !ok {
			return nil, eris.Errorf("no pin configured for %s", ch)
		}
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}

	p := &Pigpio{
		addr:      addr,
		pins:      pins,
		frequency: frequency,
		timeout:   timeout,
	}
	if err := p.configure(); err != nil {
		p.Close()
		return nil, err
	}

	log.Info().Str("addr", addr).Int("frequency", frequency).Msg("Connected to pigpio daemon")
	return p, nil
}

func (p *Pigpio) configure() error {
	for _, ch := range light.Channels {
		pin := uint32(p.pins[ch])
		if _, err := p.command(cmdModes, pin, modeOutput); err != nil {
			return eris.Wrapf(err, "failed to set %s pin %d to output", ch, pin)
		}
		if p.frequency > 0 {
			if _, err := p.command(cmdPFS, pin, uint32(p.frequency)); err != nil {
				return eris.Wrapf(err, "failed to set %s pwm frequency", ch)
			}
		}
		if _, err := p.command(cmdPRS, pin, light.MaxDuty); err != nil {
			return eris.Wrapf(err, "failed to set %s pwm range", ch)
		}
	}
	return nil
}

// DutyCycle reads the current duty of ch from the daemon.
func (p *Pigpio) DutyCycle(ch light.Channel) (int, error) {
	pin, ok := p.pins[ch]
	if !ok {
		return 0, ErrUnknownChannel
	}

	res, err := p.command(cmdGDC, uint32(pin), 0)
	if err != nil {
		var perr *PigpioError
		if errors.As(err, &perr) && perr.Code == codeNotPWM {
			return 0, nil
		}
		return 0, eris.Wrapf(err, "failed to read %s duty cycle", ch)
	}
	return utils.Clamp(int(res), 0, light.MaxDuty), nil
}

// SetDutyCycle writes duty, clamped to [0, 255], to ch.
func (p *Pigpio) SetDutyCycle(ch light.Channel, duty int) error {
	pin, ok := p.pins[ch]
	if !ok {
		return ErrUnknownChannel
	}

	duty = utils.Clamp(duty, 0, light.MaxDuty)
	if _, err := p.command(cmdPWM, uint32(pin), uint32(duty)); err != nil {
		return eris.Wrapf(err, "failed to write %s duty cycle", ch)
	}
	return nil
}

// Close drops the daemon connection.
func (p *Pigpio) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *Pigpio) command(cmd, p1, p2 uint32) (int32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		conn, err := net.DialTimeout("tcp", p.addr, p.timeout)
		if err != nil {
			return 0, eris.Wrapf(err, "failed to connect to pigpio at %s", p.addr)
		}
		p.conn = conn
	}

	var frame [frameSize]byte
	binary.LittleEndian.PutUint32(frame[0:], cmd)
	binary.LittleEndian.PutUint32(frame[4:], p1)
	binary.LittleEndian.PutUint32(frame[8:], p2)

	if err := p.conn.SetDeadline(time.Now().Add(p.timeout)); err != nil {
		p.dropLocked()
		return 0, eris.Wrap(err, "failed to set pigpio deadline")
	}
	if _, err := p.conn.Write(frame[:]); err != nil {
		p.dropLocked()
		return 0, eris.Wrap(err, "failed to write pigpio command")
	}

	var resp [frameSize]byte
	if _, err := io.ReadFull(p.conn, resp[:]); err != nil {
		p.dropLocked()
		return 0, eris.Wrap(err, "failed to read pigpio response")
	}

	res := int32(binary.LittleEndian.Uint32(resp[12:]))
	if res < 0 {
		return res, &PigpioError{Cmd: cmd, Code: res}
	}
	return res, nil
}

func (p *Pigpio) dropLocked() {
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}
