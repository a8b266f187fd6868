// Package i2c opens a host I2C bus through periph.io.
package i2c

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/owtemp"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

var _ owtemp.I2CBus = &GenericBus{}

type GenericBus struct {
	name string
	bus  i2c.BusCloser
}

// NewGenericBus opens the named bus ("/dev/i2c-1", "I2C1" or "" for the first
// one registered).
func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("i2c: could not init host: %w: %w", owtemp.ErrBusInitFailed, err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("host driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("i2c: could not open bus %q: %w: %w", dev, owtemp.ErrBusInitFailed, err)
	}
	return &GenericBus{name: bus.String(), bus: bus}, nil
}

// NewBus wraps an already opened periph bus.
func NewBus(bus i2c.BusCloser) *GenericBus {
	return &GenericBus{name: bus.String(), bus: bus}
}

func (b *GenericBus) String() string {
	return b.name
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.bus.Tx(uint16(address), nil, buffer)
	if err != nil {
		return fmt.Errorf("i2c: could not read from %#02x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.bus.Tx(uint16(address), buffer, nil)
	if err != nil {
		return fmt.Errorf("i2c: could not write to %#02x: %w", address, err)
	}
	return nil
}

// Release is a no-op: the kernel driver ends every transfer with a stop condition.
func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
