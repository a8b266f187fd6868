package gpio

import (
	"fmt"
	"log/slog"

	"github.com/mklimuk/owtemp"
	"periph.io/x/conn/v3/gpio"
)

// DigitalReadWriter is the part of a gobot platform adaptor the line needs.
// gobot switches a pin to input on DigitalRead and to output on DigitalWrite.
type DigitalReadWriter interface {
	DigitalRead(id string) (int, error)
	DigitalWrite(id string, val byte) error
}

var _ owtemp.Line = &GobotLine{}

// GobotLine drives a pin of a gobot board adaptor. Slot timing depends on the
// adaptor's GPIO backend; sysfs based ones are usually too slow for the
// 6µs write-1 pulse.
type GobotLine struct {
	io      DigitalReadWriter
	pin     string
	cfg     owtemp.LineConfig
	readErr error
}

var _ owtemp.ReadErrorer = &GobotLine{}

func NewGobotLine(io DigitalReadWriter, pin string) *GobotLine {
	return &GobotLine{io: io, pin: pin, cfg: owtemp.DefaultLineConfig()}
}

func (l *GobotLine) Configure(cfg owtemp.LineConfig) error {
	if l.pin == "" {
		return fmt.Errorf("%w: empty pin id", owtemp.ErrInvalidPin)
	}
	if cfg.Pull != gpio.Float || cfg.Edge != gpio.NoEdge {
		slog.Warn("pull and edge settings are not applied to gobot pins", "pin", l.pin, "pull", cfg.Pull, "edge", cfg.Edge)
	}
	l.cfg = cfg
	err := l.release()
	if err != nil {
		return fmt.Errorf("%w: pin %s: %w", owtemp.ErrConfigurationFailed, l.pin, err)
	}
	return nil
}

func (l *GobotLine) Set(level gpio.Level) error {
	if err := l.Err(); err != nil {
		return err
	}
	if level == gpio.Low {
		return l.io.DigitalWrite(l.pin, 0)
	}
	return l.release()
}

// Get reads the pin. A read error is reported as High, the idle level of a
// released wire, and kept until Err or the next Set returns it.
func (l *GobotLine) Get() gpio.Level {
	v, err := l.io.DigitalRead(l.pin)
	if err != nil {
		slog.Error("could not read gobot pin", "pin", l.pin, "error", err)
		l.readErr = fmt.Errorf("gobot: read of pin %s failed: %w: %w", l.pin, owtemp.ErrDataCorrupt, err)
		return gpio.High
	}
	return v != 0
}

// Err returns the last read error and clears it.
func (l *GobotLine) Err() error {
	err := l.readErr
	l.readErr = nil
	return err
}

func (l *GobotLine) release() error {
	if l.cfg.Drive == owtemp.DrivePushPull {
		return l.io.DigitalWrite(l.pin, 1)
	}
	_, err := l.io.DigitalRead(l.pin)
	return err
}
