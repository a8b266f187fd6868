// Package gpio provides owtemp.Line implementations on top of real GPIO
// stacks.
package gpio

import (
	"fmt"
	"log/slog"

	"github.com/mklimuk/owtemp"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

var _ owtemp.Line = &PeriphLine{}

var hostInit = host.Init

// PeriphLine drives a periph.io pin. Open-drain is emulated the usual way:
// low is an output driving low, high switches the pin to input and lets the
// external pull-up raise the wire.
type PeriphLine struct {
	pin gpio.PinIO
	cfg owtemp.LineConfig
}

// Open initializes the periph.io host drivers and looks the pin up by name
// (e.g. "GPIO4"). Unknown names fail with owtemp.ErrInvalidPin.
func Open(name string) (*PeriphLine, error) {
	state, err := hostInit()
	if err != nil {
		return nil, fmt.Errorf("%w: could not init host: %w", owtemp.ErrConfigurationFailed, err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %q", owtemp.ErrInvalidPin, name)
	}
	return NewPeriphLine(pin), nil
}

func NewPeriphLine(pin gpio.PinIO) *PeriphLine {
	return &PeriphLine{pin: pin, cfg: owtemp.DefaultLineConfig()}
}

func (l *PeriphLine) String() string {
	return l.pin.String()
}

func (l *PeriphLine) Configure(cfg owtemp.LineConfig) error {
	l.cfg = cfg
	err := l.release()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", owtemp.ErrConfigurationFailed, l.pin, err)
	}
	return nil
}

func (l *PeriphLine) Set(level gpio.Level) error {
	if level == gpio.Low {
		return l.pin.Out(gpio.Low)
	}
	return l.release()
}

func (l *PeriphLine) Get() gpio.Level {
	return l.pin.Read()
}

func (l *PeriphLine) release() error {
	if l.cfg.Drive == owtemp.DrivePushPull {
		return l.pin.Out(gpio.High)
	}
	return l.pin.In(l.cfg.Pull, l.cfg.Edge)
}
