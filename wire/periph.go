package wire

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/owtemp"
	"periph.io/x/conn/v3/onewire"
)

// Bus can be handed to periph.io drivers that expect an onewire.Bus.
var _ onewire.Bus = &Bus{}

func (b *Bus) String() string {
	return "wire(" + b.config.Name + ")"
}

// Halt implements conn.Resource.
func (b *Bus) Halt() error {
	return nil
}

// Tx implements onewire.Bus: reset, write w, then read len(r) bytes, all
// under one lock.
//
// A bit-banged line cannot source a strong pull-up, so parasite powered
// devices are not supported and power is only logged.
func (b *Bus) Tx(w, r []byte, power onewire.Pullup) error {
	return b.Transact(context.Background(), func(c owtemp.Conn) error {
		presence, err := c.Reset()
		if err != nil {
			return err
		}
		if presence != owtemp.DevicePresent {
			return fmt.Errorf("wire: %w", owtemp.ErrDeviceNotResponding)
		}
		err = c.Write(w)
		if err != nil {
			return err
		}
		err = c.Read(r)
		if err != nil {
			return err
		}
		if power == onewire.StrongPullup {
			slog.Debug("strong pull-up requested but not available, line left released", "bus", b.config.Name)
		}
		return nil
	})
}

// Search implements onewire.Bus. Enumerating several devices is not supported
// on this bus: use SKIP_ROM with a single device.
func (b *Bus) Search(alarmOnly bool) ([]onewire.Address, error) {
	return nil, fmt.Errorf("wire: %w", owtemp.ErrSearchUnsupported)
}
