// Package ds18b20 talks to a single Maxim DS18B20 digital thermometer.
// See: https://www.analog.com/media/en/technical-documentation/data-sheets/DS18B20.pdf
//
// Every operation is one bus transaction: reset, SKIP_ROM, a function command
// and its data phase. Only one device may be connected to the bus.
//
// Usage: open with Open (GPIO pin) or New (any owtemp.Transactor), then call
// ReadTemperature(ctx).
package ds18b20

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/mklimuk/owtemp"
	"github.com/mklimuk/owtemp/wire"
)

type Opts struct {
	ValidateCRC bool
	Clock       clockwork.Clock
	BusOpts     []wire.Opt
}

type Opt func(*Opts)

// WithCRCValidation makes scratchpad reads check the CRC byte. A mismatch is
// reported as owtemp.ErrDataCorrupt and an all-ones read as
// owtemp.ErrDeviceNotResponding. Validation is off by default.
func WithCRCValidation(enabled bool) Opt {
	return func(o *Opts) {
		o.ValidateCRC = enabled
	}
}

// WithClock replaces the clock used to wait for conversions.
func WithClock(clock clockwork.Clock) Opt {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// WithBusOpts passes options to the bus created by Open.
func WithBusOpts(opts ...wire.Opt) Opt {
	return func(o *Opts) {
		o.BusOpts = append(o.BusOpts, opts...)
	}
}

type Dev struct {
	bus    owtemp.Transactor
	config Opts

	mx         sync.Mutex
	resolution Resolution
	scratchpad Scratchpad
	cancel     context.CancelFunc
	done       chan struct{}
}

// Open creates a bit-banged bus on pin and initializes the device on it.
func Open(ctx context.Context, pin string, res Resolution, opts ...Opt) (*Dev, error) {
	config := buildOpts(opts)
	bus, err := wire.Open(pin, config.BusOpts...)
	if err != nil {
		return nil, fmt.Errorf("ds18b20: %w: %w", owtemp.ErrBusInitFailed, err)
	}
	return New(ctx, bus, res, opts...)
}

// New stores res, pushes it to the device with a scratchpad write and reads
// the scratchpad back.
func New(ctx context.Context, bus owtemp.Transactor, res Resolution, opts ...Opt) (*Dev, error) {
	if !res.Valid() {
		return nil, fmt.Errorf("ds18b20: %w: %d", owtemp.ErrInvalidResolution, int(res))
	}
	d := &Dev{
		bus:        bus,
		config:     buildOpts(opts),
		resolution: res,
		scratchpad: PowerOnScratchpad,
	}
	err := d.WriteScratchpad(ctx)
	if err != nil {
		return nil, fmt.Errorf("ds18b20: could not configure resolution: %w", err)
	}
	spad, err := d.ReadScratchpad(ctx)
	if err != nil {
		return nil, fmt.Errorf("ds18b20: could not read scratchpad: %w", err)
	}
	if spad.Resolution() != res {
		slog.Warn("device did not take the requested resolution", "requested", res, "configured", spad.Resolution())
	}
	return d, nil
}

func buildOpts(opts []Opt) Opts {
	config := Opts{
		Clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return config
}

func (d *Dev) String() string {
	return "DS18B20(" + d.Resolution().String() + ")"
}

func (d *Dev) Resolution() Resolution {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.resolution
}

// SetResolution writes the new configuration to the scratchpad. The previous
// resolution is kept if the write fails.
func (d *Dev) SetResolution(ctx context.Context, res Resolution) error {
	if !res.Valid() {
		return fmt.Errorf("ds18b20: %w: %d", owtemp.ErrInvalidResolution, int(res))
	}
	d.mx.Lock()
	prev := d.resolution
	d.resolution = res
	d.mx.Unlock()
	err := d.WriteScratchpad(ctx)
	if err != nil {
		d.mx.Lock()
		d.resolution = prev
		d.mx.Unlock()
		return err
	}
	return nil
}

// transact runs reset, SKIP_ROM and cmd in one bus transaction, followed by
// the data phase in fn (if any).
func (d *Dev) transact(ctx context.Context, cmd Command, fn func(c owtemp.Conn) error) error {
	code, err := cmd.Code()
	if err != nil {
		return err
	}
	err = d.bus.Transact(ctx, func(c owtemp.Conn) error {
		presence, err := c.Reset()
		if err != nil {
			return fmt.Errorf("reset failed: %w", err)
		}
		if presence != owtemp.DevicePresent {
			return owtemp.ErrDeviceNotResponding
		}
		err = c.SendROMCommand(owtemp.SkipROM)
		if err != nil {
			return fmt.Errorf("could not send rom command: %w", err)
		}
		err = c.WriteByte(code)
		if err != nil {
			return fmt.Errorf("could not send function command: %w", err)
		}
		if fn == nil {
			return nil
		}
		return fn(c)
	})
	if err != nil {
		return fmt.Errorf("ds18b20: %s: %w", cmd, err)
	}
	return nil
}

// WriteScratchpad clears TH and TL and writes the configuration byte for the
// current resolution.
func (d *Dev) WriteScratchpad(ctx context.Context) error {
	cfg, err := d.Resolution().ConfigByte()
	if err != nil {
		return err
	}
	return d.transact(ctx, WriteScratchpad, func(c owtemp.Conn) error {
		return c.Write([]byte{0x00, 0x00, cfg})
	})
}

// ReadScratchpad reads all nine bytes and replaces the stored copy.
func (d *Dev) ReadScratchpad(ctx context.Context) (Scratchpad, error) {
	var spad Scratchpad
	err := d.transact(ctx, ReadScratchpad, func(c owtemp.Conn) error {
		return c.Read(spad[:])
	})
	if err != nil {
		return spad, err
	}
	if d.config.ValidateCRC && !spad.CRCValid() {
		if spad.blank() {
			return spad, fmt.Errorf("ds18b20: scratchpad read all ones: %w", owtemp.ErrDeviceNotResponding)
		}
		return spad, fmt.Errorf("ds18b20: incorrect scratchpad crc %#02x: %w", spad[8], owtemp.ErrDataCorrupt)
	}
	d.mx.Lock()
	d.scratchpad = spad
	d.mx.Unlock()
	return spad, nil
}

// CopyScratchpad persists TH, TL and the configuration to EEPROM.
func (d *Dev) CopyScratchpad(ctx context.Context) error {
	return d.transact(ctx, CopyScratchpad, nil)
}

// StartConversion triggers a conversion and waits the worst-case conversion
// time for the current resolution. The bus is free during the wait.
func (d *Dev) StartConversion(ctx context.Context) error {
	err := d.transact(ctx, ConvertT, nil)
	if err != nil {
		return err
	}
	select {
	case <-d.config.Clock.After(d.Resolution().ConversionTime()):
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ds18b20: conversion wait interrupted: %w", ctx.Err())
	}
}

// ReadTemperature converts and returns the temperature in degrees Celsius.
func (d *Dev) ReadTemperature(ctx context.Context) (float64, error) {
	err := d.StartConversion(ctx)
	if err != nil {
		return 0, err
	}
	spad, err := d.ReadScratchpad(ctx)
	if err != nil {
		return 0, err
	}
	return spad.Temperature(d.Resolution()), nil
}

// LastTemperature decodes the stored scratchpad without touching the bus.
func (d *Dev) LastTemperature() float64 {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.scratchpad.Temperature(d.resolution)
}

// DumpScratchpad returns the scratchpad as last read from the device.
func (d *Dev) DumpScratchpad() Scratchpad {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.scratchpad
}
