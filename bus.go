package owtemp

import (
	"context"
	"errors"

	"periph.io/x/conn/v3/gpio"
)

var (
	ErrInvalidPin          = errors.New("invalid gpio pin")
	ErrConfigurationFailed = errors.New("gpio configuration failed")
	// ErrLockTimeout is transient: the bus was busy for longer than the lock bound.
	// The whole operation can be retried.
	ErrLockTimeout         = errors.New("could not acquire bus lock in time")
	ErrDeviceNotResponding = errors.New("device did not answer reset with a presence pulse")
	ErrDataCorrupt         = errors.New("data corrupted on the wire")
	ErrBusInitFailed       = errors.New("bus initialization failed")
	ErrInvalidResolution   = errors.New("invalid resolution")
	ErrInvalidCommand      = errors.New("invalid command code")
	ErrSearchUnsupported   = errors.New("rom search is not supported")
)

type DriveMode byte

const (
	DriveOpenDrain DriveMode = iota
	DrivePushPull
)

func (m DriveMode) String() string {
	switch m {
	case DriveOpenDrain:
		return "OPEN_DRAIN"
	case DrivePushPull:
		return "PUSH_PULL"
	default:
		return "UNKNOWN"
	}
}

// LineConfig describes how the bus pin is set up before the first slot.
type LineConfig struct {
	Drive DriveMode `yaml:"drive"`
	Pull  gpio.Pull `yaml:"pull"`
	Edge  gpio.Edge `yaml:"edge"`
}

// DefaultLineConfig is an open-drain output with no internal pull and
// interrupts disabled. An external pull-up resistor is expected on the wire.
func DefaultLineConfig() LineConfig {
	return LineConfig{
		Drive: DriveOpenDrain,
		Pull:  gpio.Float,
		Edge:  gpio.NoEdge,
	}
}

// Line is the single GPIO the bus is wired to.
//
// Set(gpio.Low) pulls the wire down, Set(gpio.High) releases it (open-drain)
// and Get samples the wire.
type Line interface {
	Configure(cfg LineConfig) error
	Set(level gpio.Level) error
	Get() gpio.Level
}

// ReadErrorer is implemented by lines whose Get can fail. Err returns the
// last read error and clears it.
type ReadErrorer interface {
	Err() error
}

type Presence int

const (
	NoDevice Presence = iota
	DevicePresent
)

func (p Presence) String() string {
	if p == DevicePresent {
		return "present"
	}
	return "no device"
}

// Conn is exclusive access to the bus for the length of one transaction.
type Conn interface {
	Reset() (Presence, error)
	WriteByte(value byte) error
	ReadByte() (byte, error)
	Write(p []byte) error
	Read(p []byte) error
	SendROMCommand(cmd ROMCommand) error
}

// Transactor runs fn with the bus held. The bus is released when fn returns,
// whatever the outcome.
type Transactor interface {
	Transact(ctx context.Context, fn func(c Conn) error) error
}
