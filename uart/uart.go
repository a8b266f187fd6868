// Package uart is a 1-Wire master built on a serial port, following
// Maxim application note 214 (Using a UART to Implement a 1-Wire Bus Master).
// See: https://www.analog.com/en/resources/technical-articles/using-a-uart-to-implement-a-1wire-bus-master.html
//
// The UART produces the slot timings: at 9600 baud a single 0xF0 character is
// a reset pulse, at 115200 baud every character is one time slot. 0xFF is a
// write-1 (or read) slot and 0x00 a write-0 slot. Each transmitted character
// is echoed back on RX, and a device answering 0 pulls part of the echo low.
//
// Wiring needs TX and RX joined through an open-drain buffer or a diode.
package uart

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/mklimuk/owtemp"
	"github.com/tarm/serial"
	"golang.org/x/sync/semaphore"
)

const (
	ResetBaud = 9600
	SlotBaud  = 115200

	resetPulse byte = 0xF0
	slotOne    byte = 0xFF
	slotZero   byte = 0x00

	DefaultReadTimeout = time.Second
	DefaultLockTimeout = time.Second
)

// Port is the part of *serial.Port the adapter uses.
type Port interface {
	io.ReadWriteCloser
	Flush() error
}

// Opener opens device at the given baud rate.
type Opener func(device string, baud int) (Port, error)

// SerialOpener opens ports with github.com/tarm/serial, 8N1.
func SerialOpener(readTimeout time.Duration) Opener {
	return func(device string, baud int) (Port, error) {
		port, err := serial.OpenPort(&serial.Config{
			Name:        device,
			Baud:        baud,
			ReadTimeout: readTimeout,
			Size:        serial.DefaultSize,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
		})
		if err != nil {
			return nil, err
		}
		return port, nil
	}
}

type Opts struct {
	LockTimeout time.Duration
	Opener      Opener
}

type Opt func(*Opts)

func WithLockTimeout(timeout time.Duration) Opt {
	return func(o *Opts) {
		o.LockTimeout = timeout
	}
}

func WithOpener(opener Opener) Opt {
	return func(o *Opts) {
		o.Opener = opener
	}
}

// Adapter is a 1-Wire bus on a serial port.
type Adapter struct {
	device string
	port   Port
	sem    *semaphore.Weighted
	config Opts
}

var _ owtemp.Transactor = &Adapter{}

// New opens device at the slot baud rate.
func New(device string, opts ...Opt) (*Adapter, error) {
	config := Opts{
		LockTimeout: DefaultLockTimeout,
		Opener:      SerialOpener(DefaultReadTimeout),
	}
	for _, opt := range opts {
		opt(&config)
	}
	port, err := config.Opener(device, SlotBaud)
	if err != nil {
		return nil, fmt.Errorf("uart: could not open %s: %w: %w", device, owtemp.ErrBusInitFailed, err)
	}
	return &Adapter{
		device: device,
		port:   port,
		sem:    semaphore.NewWeighted(1),
		config: config,
	}, nil
}

func (a *Adapter) String() string {
	return "uart(" + a.device + ")"
}

func (a *Adapter) Close() error {
	err := a.sem.Acquire(context.Background(), 1)
	if err != nil {
		return err
	}
	defer a.sem.Release(1)
	if a.port == nil {
		return nil
	}
	err = a.port.Close()
	a.port = nil
	return err
}

// Transact implements owtemp.Transactor.
func (a *Adapter) Transact(ctx context.Context, fn func(c owtemp.Conn) error) error {
	lctx, cancel := context.WithTimeout(ctx, a.config.LockTimeout)
	defer cancel()
	err := a.sem.Acquire(lctx, 1)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("could not acquire bus lock", "bus", a.device, "op", "transaction", "timeout", a.config.LockTimeout)
		return fmt.Errorf("uart: transaction: %w", owtemp.ErrLockTimeout)
	}
	defer a.sem.Release(1)
	if a.port == nil {
		return fmt.Errorf("uart: %s is closed", a.device)
	}
	return fn(&session{a: a})
}

// session is the owtemp.Conn handed out while the lock is held.
type session struct {
	a *Adapter
}

// Reset reopens the port at the reset baud rate and sends one 0xF0. An
// unchanged echo means nobody answered with a presence pulse.
func (s *session) Reset() (owtemp.Presence, error) {
	a := s.a
	err := a.port.Close()
	if err != nil {
		return owtemp.NoDevice, fmt.Errorf("uart: could not close port: %w", err)
	}
	a.port = nil
	echo, resetErr := a.resetAt(ResetBaud)
	port, err := a.config.Opener(a.device, SlotBaud)
	if err != nil {
		return owtemp.NoDevice, fmt.Errorf("uart: could not reopen %s: %w", a.device, err)
	}
	a.port = port
	if resetErr != nil {
		return owtemp.NoDevice, resetErr
	}
	if echo == resetPulse {
		return owtemp.NoDevice, nil
	}
	return owtemp.DevicePresent, nil
}

func (a *Adapter) resetAt(baud int) (byte, error) {
	port, err := a.config.Opener(a.device, baud)
	if err != nil {
		return 0, fmt.Errorf("uart: could not open %s for reset: %w", a.device, err)
	}
	defer port.Close()
	_ = port.Flush()
	_, err = port.Write([]byte{resetPulse})
	if err != nil {
		return 0, fmt.Errorf("uart: could not send reset: %w", err)
	}
	var echo [1]byte
	_, err = io.ReadFull(port, echo[:])
	if err != nil {
		return 0, fmt.Errorf("uart: no reset echo: %w", err)
	}
	return echo[0], nil
}

// slots sends one character per slot and returns the echoes.
func (s *session) slots(out []byte) ([]byte, error) {
	port := s.a.port
	_ = port.Flush()
	_, err := port.Write(out)
	if err != nil {
		return nil, fmt.Errorf("uart: could not write slots: %w", err)
	}
	echo := make([]byte, len(out))
	_, err = io.ReadFull(port, echo)
	if err != nil {
		return nil, fmt.Errorf("uart: could not read back slots: %w", err)
	}
	return echo, nil
}

// WriteByte sends value LSB first. The echo must match what was sent,
// otherwise something else drove the wire.
func (s *session) WriteByte(value byte) error {
	out := make([]byte, 8)
	for i := range out {
		out[i] = slotZero
		if value>>i&0x01 == 0x01 {
			out[i] = slotOne
		}
	}
	echo, err := s.slots(out)
	if err != nil {
		return err
	}
	for i := range out {
		if echo[i] != out[i] {
			return fmt.Errorf("uart: echo %#02x for bit %d of %#02x: %w", echo[i], i, value, owtemp.ErrDataCorrupt)
		}
	}
	return nil
}

// ReadByte runs eight read slots. Any echo other than 0xFF is a 0 bit.
func (s *session) ReadByte() (byte, error) {
	out := []byte{slotOne, slotOne, slotOne, slotOne, slotOne, slotOne, slotOne, slotOne}
	echo, err := s.slots(out)
	if err != nil {
		return 0, err
	}
	var value byte
	for i, e := range echo {
		if e == slotOne {
			value |= 0x01 << i
		}
	}
	return value, nil
}

func (s *session) Write(p []byte) error {
	for _, b := range p {
		err := s.WriteByte(b)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *session) Read(p []byte) error {
	for i := range p {
		b, err := s.ReadByte()
		if err != nil {
			return err
		}
		p[i] = b
	}
	return nil
}

func (s *session) SendROMCommand(cmd owtemp.ROMCommand) error {
	code, err := cmd.Code()
	if err != nil {
		return fmt.Errorf("uart: %w", err)
	}
	return s.WriteByte(code)
}
