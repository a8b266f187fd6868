package wire

import (
	"context"
	"fmt"

	"github.com/mklimuk/owtemp"
)

type slotIO interface {
	writeBit(bit bool) error
	readBit() (bool, error)
}

// writeByte sends value least significant bit first. It stops at the first
// failed slot so a half-sent byte is never padded with made-up bits.
func writeByte(s slotIO, value byte) error {
	for i := 0; i < 8; i++ {
		err := s.writeBit(value>>i&0x01 == 0x01)
		if err != nil {
			return fmt.Errorf("could not write bit %d of %#02x: %w", i, value, err)
		}
	}
	return nil
}

func readByte(s slotIO) (byte, error) {
	var value byte
	for i := 0; i < 8; i++ {
		bit, err := s.readBit()
		if err != nil {
			return 0, fmt.Errorf("could not read bit %d: %w", i, err)
		}
		if bit {
			value |= 0x01 << i
		}
	}
	return value, nil
}

// perBit routes every slot through the public, individually locked primitives.
type perBit struct {
	ctx context.Context
	bus *Bus
}

func (p perBit) writeBit(bit bool) error {
	return p.bus.WriteBit(p.ctx, bit)
}

func (p perBit) readBit() (bool, error) {
	return p.bus.ReadBit(p.ctx)
}

// WriteByteContext sends value LSB first, locking the bus once per bit.
func (b *Bus) WriteByteContext(ctx context.Context, value byte) error {
	err := writeByte(perBit{ctx: ctx, bus: b}, value)
	if err != nil {
		return fmt.Errorf("wire: %w", err)
	}
	trace(ctx, "byte written", "value", fmt.Sprintf("%#02x", value))
	return nil
}

// ReadByteContext reads 8 bits LSB first, locking the bus once per bit.
func (b *Bus) ReadByteContext(ctx context.Context) (byte, error) {
	value, err := readByte(perBit{ctx: ctx, bus: b})
	if err != nil {
		return 0, fmt.Errorf("wire: %w", err)
	}
	trace(ctx, "byte read", "value", fmt.Sprintf("%#02x", value))
	return value, nil
}

func (b *Bus) SendROMCommand(ctx context.Context, cmd owtemp.ROMCommand) error {
	code, err := cmd.Code()
	if err != nil {
		return fmt.Errorf("wire: %w", err)
	}
	return b.WriteByteContext(ctx, code)
}
