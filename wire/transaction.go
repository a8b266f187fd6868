package wire

import (
	"context"
	"errors"
	"fmt"

	"github.com/mklimuk/owtemp"
)

var ErrTransactionClosed = errors.New("wire: transaction already closed")

// Transaction holds the bus lock from Begin until Close. Slots issued through
// it are never interleaved with other callers.
//
// A Transaction is meant to be used by one goroutine.
type Transaction struct {
	ctx    context.Context
	bus    *Bus
	closed bool
}

var _ owtemp.Conn = &Transaction{}

// Begin waits (at most the lock timeout) for exclusive access to the bus.
// Callers must Close the returned transaction; prefer Transact which does it
// for you.
func (b *Bus) Begin(ctx context.Context) (*Transaction, error) {
	err := b.acquire(ctx, "transaction")
	if err != nil {
		return nil, err
	}
	return &Transaction{ctx: ctx, bus: b}, nil
}

// Transact runs fn inside a transaction and releases the bus on every path
// out of it, panics included.
func (b *Bus) Transact(ctx context.Context, fn func(c owtemp.Conn) error) error {
	tx, err := b.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Close() }()
	return fn(tx)
}

// Close releases the bus. It is safe to call more than once.
func (t *Transaction) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.bus.release()
	return nil
}

func (t *Transaction) writeBit(bit bool) error {
	if t.closed {
		return ErrTransactionClosed
	}
	return t.bus.writeSlot(bit)
}

func (t *Transaction) readBit() (bool, error) {
	if t.closed {
		return false, ErrTransactionClosed
	}
	return t.bus.readSlot()
}

func (t *Transaction) Reset() (owtemp.Presence, error) {
	if t.closed {
		return owtemp.NoDevice, ErrTransactionClosed
	}
	presence, err := t.bus.resetPulse()
	if err != nil {
		return owtemp.NoDevice, err
	}
	t.bus.delay(resetRecovery)
	trace(t.ctx, "reset", "presence", presence)
	return presence, nil
}

func (t *Transaction) WriteBit(bit bool) error {
	return t.writeBit(bit)
}

func (t *Transaction) ReadBit() (bool, error) {
	return t.readBit()
}

func (t *Transaction) WriteByte(value byte) error {
	err := writeByte(t, value)
	if err != nil {
		return fmt.Errorf("wire: %w", err)
	}
	trace(t.ctx, "byte written", "value", fmt.Sprintf("%#02x", value))
	return nil
}

func (t *Transaction) ReadByte() (byte, error) {
	value, err := readByte(t)
	if err != nil {
		return 0, fmt.Errorf("wire: %w", err)
	}
	trace(t.ctx, "byte read", "value", fmt.Sprintf("%#02x", value))
	return value, nil
}

func (t *Transaction) Write(p []byte) error {
	for _, b := range p {
		err := t.WriteByte(b)
		if err != nil {
			return err
		}
	}
	return nil
}

// Read fills p with bytes read from the bus.
func (t *Transaction) Read(p []byte) error {
	for i := range p {
		b, err := t.ReadByte()
		if err != nil {
			return err
		}
		p[i] = b
	}
	return nil
}

func (t *Transaction) SendROMCommand(cmd owtemp.ROMCommand) error {
	code, err := cmd.Code()
	if err != nil {
		return fmt.Errorf("wire: %w", err)
	}
	return t.WriteByte(code)
}
