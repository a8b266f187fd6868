// Package ds2482 is a 1-Wire master running on a Maxim DS2482-100 I2C bridge.
// The chip generates the slot timings itself, so the host only has to issue
// byte-level commands and poll the status register.
// See: https://www.analog.com/media/en/technical-documentation/data-sheets/DS2482-100.pdf
package ds2482

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/owtemp"
	"github.com/mklimuk/owtemp/owctx"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultAddress     byte = 0x18
	DefaultLockTimeout      = time.Second
	// DefaultPollTimeout bounds a single 1-Wire cycle. The first status read
	// always happens, however slow the I2C transport is.
	DefaultPollTimeout = 3 * time.Millisecond
)

const (
	cmdDeviceReset = 0xF0
	cmdSetReadPtr  = 0xE1
	cmdWriteConfig = 0xD2
	cmd1WReset     = 0xB4
	cmd1WWriteByte = 0xA5
	cmd1WReadByte  = 0x96

	regStatus = 0xF0
	regData   = 0xE1
	regConfig = 0xC3

	statusBusy     = 0x01
	statusPresence = 0x02
	statusShort    = 0x04
	statusLogic    = 0x08
	statusRST      = 0x10

	configActivePullup = 0x01
)

var (
	ErrInvalidAddress = errors.New("ds2482: address not supported by device")
	ErrBusShorted     = errors.New("ds2482: 1-wire bus is shorted")
	ErrPollTimeout    = errors.New("ds2482: timeout waiting for bus cycle to finish")
)

type Opts struct {
	Address       byte
	LockTimeout   time.Duration
	PollTimeout   time.Duration
	PassivePullup bool
}

type Opt func(*Opts)

// WithAddress selects the chip by its AD1/AD0 strapping, 0x18 to 0x1B.
func WithAddress(address byte) Opt {
	return func(o *Opts) {
		o.Address = address
	}
}

func WithLockTimeout(timeout time.Duration) Opt {
	return func(o *Opts) {
		o.LockTimeout = timeout
	}
}

func WithPollTimeout(timeout time.Duration) Opt {
	return func(o *Opts) {
		o.PollTimeout = timeout
	}
}

// WithPassivePullup leaves the wire to the resistor only, for short stubs.
func WithPassivePullup(passive bool) Opt {
	return func(o *Opts) {
		o.PassivePullup = passive
	}
}

// Bridge is a DS2482-100 seen as an owtemp.Transactor.
type Bridge struct {
	bus    owtemp.I2CBus
	sem    *semaphore.Weighted
	config Opts
}

var _ owtemp.Transactor = &Bridge{}

// New resets the chip and writes its configuration register.
func New(ctx context.Context, bus owtemp.I2CBus, opts ...Opt) (*Bridge, error) {
	config := Opts{
		Address:     DefaultAddress,
		LockTimeout: DefaultLockTimeout,
		PollTimeout: DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Address < 0x18 || config.Address > 0x1B {
		return nil, fmt.Errorf("%w: %#02x", ErrInvalidAddress, config.Address)
	}
	b := &Bridge{
		bus:    bus,
		sem:    semaphore.NewWeighted(1),
		config: config,
	}
	err := b.init(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", owtemp.ErrBusInitFailed, err)
	}
	return b, nil
}

func (b *Bridge) init(ctx context.Context) error {
	err := b.write(ctx, cmdDeviceReset)
	if err != nil {
		return fmt.Errorf("ds2482: error while resetting: %w", err)
	}
	status, err := b.read(ctx)
	if err != nil {
		return fmt.Errorf("ds2482: error while reading status register: %w", err)
	}
	if status&statusRST == 0 {
		return fmt.Errorf("ds2482: invalid status register value %#02x after reset", status)
	}
	cfg := b.configByte()
	err = b.write(ctx, cmdWriteConfig, cfg|^cfg<<4)
	if err != nil {
		return fmt.Errorf("ds2482: error while writing device config register: %w", err)
	}
	// the read pointer is left on the configuration register, upper nibble reads 0
	readback, err := b.read(ctx)
	if err != nil {
		return fmt.Errorf("ds2482: error while reading device config register: %w", err)
	}
	if readback != cfg {
		return fmt.Errorf("ds2482: failure to write device config register, wrote %#02x got %#02x back", cfg, readback)
	}
	return nil
}

func (b *Bridge) configByte() byte {
	if b.config.PassivePullup {
		return 0
	}
	return configActivePullup
}

func (b *Bridge) String() string {
	return fmt.Sprintf("DS2482-100(%#02x)", b.config.Address)
}

func (b *Bridge) write(ctx context.Context, p ...byte) error {
	return b.bus.WriteToAddr(ctx, b.config.Address, p)
}

// read returns the register the read pointer is on.
func (b *Bridge) read(ctx context.Context) (byte, error) {
	var buf [1]byte
	err := b.bus.ReadFromAddr(ctx, b.config.Address, buf[:])
	return buf[0], err
}

// waitIdle polls the status register until the 1-Wire cycle is over and
// returns the last status read.
func (b *Bridge) waitIdle(ctx context.Context) (byte, error) {
	deadline := time.Now().Add(b.config.PollTimeout)
	for {
		status, err := b.read(ctx)
		if err != nil {
			return 0, fmt.Errorf("ds2482: could not read status: %w", err)
		}
		if status&statusBusy == 0 {
			return status, nil
		}
		if time.Now().After(deadline) {
			return 0, ErrPollTimeout
		}
		select {
		case <-ctx.Done():
			return 0, fmt.Errorf("ds2482: waiting for bus cycle: %w", ctx.Err())
		case <-time.After(b.config.PollTimeout / 10):
		}
	}
}

// Transact implements owtemp.Transactor.
func (b *Bridge) Transact(ctx context.Context, fn func(c owtemp.Conn) error) error {
	lctx, cancel := context.WithTimeout(ctx, b.config.LockTimeout)
	defer cancel()
	err := b.sem.Acquire(lctx, 1)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Error("could not acquire bus lock", "bus", b.String(), "op", "transaction", "timeout", b.config.LockTimeout)
		return fmt.Errorf("ds2482: transaction: %w", owtemp.ErrLockTimeout)
	}
	defer b.sem.Release(1)
	err = fn(&session{ctx: ctx, b: b})
	if errors.Is(err, owtemp.ErrBusBusy) {
		relErr := b.bus.Release(ctx)
		if relErr != nil {
			slog.Warn("could not release i2c bus", "bus", b.String(), "error", relErr)
		}
	}
	return err
}

type session struct {
	ctx context.Context
	b   *Bridge
}

func (s *session) Reset() (owtemp.Presence, error) {
	err := s.b.write(s.ctx, cmd1WReset)
	if err != nil {
		return owtemp.NoDevice, fmt.Errorf("ds2482: could not issue reset: %w", err)
	}
	status, err := s.b.waitIdle(s.ctx)
	if err != nil {
		return owtemp.NoDevice, err
	}
	if status&statusShort != 0 {
		return owtemp.NoDevice, ErrBusShorted
	}
	presence := owtemp.NoDevice
	if status&statusPresence != 0 {
		presence = owtemp.DevicePresent
	}
	if owctx.IsTrace(s.ctx) {
		slog.Debug("reset", "bus", s.b.String(), "presence", presence)
	}
	return presence, nil
}

func (s *session) WriteByte(value byte) error {
	err := s.b.write(s.ctx, cmd1WWriteByte, value)
	if err != nil {
		return fmt.Errorf("ds2482: could not write %#02x: %w", value, err)
	}
	_, err = s.b.waitIdle(s.ctx)
	return err
}

func (s *session) ReadByte() (byte, error) {
	err := s.b.write(s.ctx, cmd1WReadByte)
	if err != nil {
		return 0, fmt.Errorf("ds2482: could not issue read: %w", err)
	}
	_, err = s.b.waitIdle(s.ctx)
	if err != nil {
		return 0, err
	}
	err = s.b.write(s.ctx, cmdSetReadPtr, regData)
	if err != nil {
		return 0, fmt.Errorf("ds2482: could not select data register: %w", err)
	}
	value, err := s.b.read(s.ctx)
	if err != nil {
		return 0, fmt.Errorf("ds2482: could not read data register: %w", err)
	}
	return value, nil
}

func (s *session) Write(p []byte) error {
	for _, v := range p {
		err := s.WriteByte(v)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *session) Read(p []byte) error {
	for i := range p {
		v, err := s.ReadByte()
		if err != nil {
			return err
		}
		p[i] = v
	}
	return nil
}

func (s *session) SendROMCommand(cmd owtemp.ROMCommand) error {
	code, err := cmd.Code()
	if err != nil {
		return fmt.Errorf("ds2482: %w", err)
	}
	return s.WriteByte(code)
}
