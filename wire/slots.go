package wire

import (
	"fmt"
	"time"

	"github.com/mklimuk/owtemp"
	"periph.io/x/conn/v3/gpio"
)

// Slot timings. These are fixed by the protocol and shared with every device
// on the wire.
const (
	write1Low     = 6 * time.Microsecond
	write1Wait    = 64 * time.Microsecond
	write0Low     = 60 * time.Microsecond
	write0Wait    = 10 * time.Microsecond
	readLow       = write1Low
	readWait      = 9 * time.Microsecond
	readRecovery  = 55 * time.Microsecond
	resetLow      = 480 * time.Microsecond
	presenceWait  = 70 * time.Microsecond
	resetRecovery = 410 * time.Microsecond
)

func (b *Bus) pull() error {
	err := b.line.Set(gpio.Low)
	if err != nil {
		return fmt.Errorf("wire: could not pull line low: %w", err)
	}
	return nil
}

func (b *Bus) letGo() error {
	err := b.line.Set(gpio.High)
	if err != nil {
		return fmt.Errorf("wire: could not release line: %w", err)
	}
	return nil
}

// resetPulse holds the line low for the reset period, releases it and samples
// the presence window. The caller owns the lock and the recovery wait.
func (b *Bus) resetPulse() (owtemp.Presence, error) {
	err := b.pull()
	if err != nil {
		return owtemp.NoDevice, err
	}
	b.delay(resetLow)
	err = b.letGo()
	if err != nil {
		return owtemp.NoDevice, err
	}
	b.delay(presenceWait)
	level := b.line.Get()
	err = b.readErr()
	if err != nil {
		return owtemp.NoDevice, err
	}
	if level == gpio.Low {
		return owtemp.DevicePresent, nil
	}
	return owtemp.NoDevice, nil
}

// readErr collects the error of the last Get from lines that can fail a read.
func (b *Bus) readErr() error {
	if re, ok := b.line.(owtemp.ReadErrorer); ok {
		return re.Err()
	}
	return nil
}

func (b *Bus) writeSlot(bit bool) error {
	low, wait := write0Low, write0Wait
	if bit {
		low, wait = write1Low, write1Wait
	}
	err := b.pull()
	if err != nil {
		return err
	}
	b.delay(low)
	err = b.letGo()
	if err != nil {
		return err
	}
	b.delay(wait)
	return nil
}

func (b *Bus) readSlot() (bool, error) {
	err := b.pull()
	if err != nil {
		return false, err
	}
	b.delay(readLow)
	err = b.letGo()
	if err != nil {
		return false, err
	}
	b.delay(readWait)
	bit := b.line.Get() == gpio.High
	b.delay(readRecovery)
	err = b.readErr()
	if err != nil {
		return false, err
	}
	return bit, nil
}
