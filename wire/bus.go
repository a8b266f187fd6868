// Package wire drives a 1-Wire bus by bit-banging a single GPIO line.
//
// The primitives (Reset, WriteBit, ReadBit and the byte helpers built on
// them) take the bus lock per call. Nothing stops a second caller from
// slipping a slot in between two bits of someone else's byte, so callers that
// share a bus should use Begin or Transact, which hold the lock for a whole
// reset-command-data sequence.
package wire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mklimuk/owtemp"
	"github.com/mklimuk/owtemp/gpio"
	"github.com/mklimuk/owtemp/owctx"
	"golang.org/x/sync/semaphore"
	pgpio "periph.io/x/conn/v3/gpio"
)

const DefaultLockTimeout = time.Second

// Delayer waits for slot timings. Implementations must not yield the
// processor: a slot that stretches past its window is read wrongly by the device.
type Delayer interface {
	Delay(d time.Duration)
}

type spinDelayer struct{}

func (spinDelayer) Delay(d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}

type Opts struct {
	Name        string
	LineConfig  owtemp.LineConfig
	LockTimeout time.Duration
	Delayer     Delayer
}

type Opt func(*Opts)

func WithName(name string) Opt {
	return func(o *Opts) {
		o.Name = name
	}
}

// WithLineConfig overrides the default open-drain, no pull, no edge setup.
func WithLineConfig(cfg owtemp.LineConfig) Opt {
	return func(o *Opts) {
		o.LineConfig = cfg
	}
}

func WithLockTimeout(timeout time.Duration) Opt {
	return func(o *Opts) {
		o.LockTimeout = timeout
	}
}

func WithDelayer(d Delayer) Opt {
	return func(o *Opts) {
		o.Delayer = d
	}
}

// Bus is a 1-Wire master on one GPIO line.
type Bus struct {
	line   owtemp.Line
	sem    *semaphore.Weighted
	config Opts
}

var _ owtemp.Transactor = &Bus{}

// New configures line and returns a bus ready for use. The line is left
// released (idle high).
func New(line owtemp.Line, opts ...Opt) (*Bus, error) {
	config := Opts{
		Name:        "gpio",
		LineConfig:  owtemp.DefaultLineConfig(),
		LockTimeout: DefaultLockTimeout,
		Delayer:     spinDelayer{},
	}
	for _, opt := range opts {
		opt(&config)
	}
	err := line.Configure(config.LineConfig)
	if err != nil {
		if errors.Is(err, owtemp.ErrInvalidPin) || errors.Is(err, owtemp.ErrConfigurationFailed) {
			return nil, fmt.Errorf("wire: %w", err)
		}
		return nil, fmt.Errorf("wire: %w: %w", owtemp.ErrConfigurationFailed, err)
	}
	err = line.Set(pgpio.High)
	if err != nil {
		return nil, fmt.Errorf("wire: could not release line: %w: %w", owtemp.ErrConfigurationFailed, err)
	}
	return &Bus{
		line:   line,
		sem:    semaphore.NewWeighted(1),
		config: config,
	}, nil
}

// Open looks up pin in the periph.io registry and builds a bus on it.
func Open(pin string, opts ...Opt) (*Bus, error) {
	line, err := gpio.Open(pin)
	if err != nil {
		return nil, fmt.Errorf("wire: %w", err)
	}
	return New(line, append([]Opt{WithName(pin)}, opts...)...)
}

func (b *Bus) acquire(ctx context.Context, op string) error {
	lctx, cancel := context.WithTimeout(ctx, b.config.LockTimeout)
	defer cancel()
	err := b.sem.Acquire(lctx, 1)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	slog.Error("could not acquire bus lock", "bus", b.config.Name, "op", op, "timeout", b.config.LockTimeout)
	return fmt.Errorf("wire: %s: %w", op, owtemp.ErrLockTimeout)
}

func (b *Bus) release() {
	b.sem.Release(1)
}

func (b *Bus) delay(d time.Duration) {
	b.config.Delayer.Delay(d)
}

// Reset sends a reset pulse and samples the presence window.
func (b *Bus) Reset(ctx context.Context) (owtemp.Presence, error) {
	err := b.acquire(ctx, "reset")
	if err != nil {
		return owtemp.NoDevice, err
	}
	presence, err := b.resetPulse()
	b.release()
	if err != nil {
		return owtemp.NoDevice, err
	}
	b.delay(resetRecovery)
	trace(ctx, "reset", "presence", presence)
	return presence, nil
}

// WriteBit sends one write slot.
func (b *Bus) WriteBit(ctx context.Context, bit bool) error {
	err := b.acquire(ctx, "write bit")
	if err != nil {
		return err
	}
	defer b.release()
	return b.writeSlot(bit)
}

// ReadBit runs one read slot. A device signals 0 by holding the line low
// through the sampling point.
func (b *Bus) ReadBit(ctx context.Context) (bool, error) {
	err := b.acquire(ctx, "read bit")
	if err != nil {
		return false, err
	}
	defer b.release()
	return b.readSlot()
}

func trace(ctx context.Context, msg string, args ...any) {
	if !owctx.IsTrace(ctx) {
		return
	}
	slog.Debug("wire: "+msg, args...)
}
