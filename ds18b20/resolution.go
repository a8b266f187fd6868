package ds18b20

import (
	"fmt"
	"time"

	"github.com/mklimuk/owtemp"
)

// Resolution is the number of significant bits of a temperature reading.
type Resolution int

const (
	Resolution9Bit  Resolution = 9
	Resolution10Bit Resolution = 10
	Resolution11Bit Resolution = 11
	Resolution12Bit Resolution = 12
)

// ParseResolution validates a bit count coming from flags or configuration.
func ParseResolution(bits int) (Resolution, error) {
	r := Resolution(bits)
	if !r.Valid() {
		return 0, fmt.Errorf("ds18b20: %w: %d bits (expected 9 to 12)", owtemp.ErrInvalidResolution, bits)
	}
	return r, nil
}

func (r Resolution) Valid() bool {
	return r >= Resolution9Bit && r <= Resolution12Bit
}

func (r Resolution) String() string {
	return fmt.Sprintf("%d-bit", int(r))
}

// ConfigByte is the configuration register value selecting r.
func (r Resolution) ConfigByte() (byte, error) {
	switch r {
	case Resolution9Bit:
		return 0x1F, nil
	case Resolution10Bit:
		return 0x3F, nil
	case Resolution11Bit:
		return 0x5F, nil
	case Resolution12Bit:
		return 0x7F, nil
	}
	return 0, fmt.Errorf("ds18b20: %w: %d", owtemp.ErrInvalidResolution, int(r))
}

// ConversionTime is the worst-case conversion duration at r, datasheet p.6.
func (r Resolution) ConversionTime() time.Duration {
	switch r {
	case Resolution9Bit:
		return 94 * time.Millisecond
	case Resolution10Bit:
		return 188 * time.Millisecond
	case Resolution11Bit:
		return 375 * time.Millisecond
	default:
		return 750 * time.Millisecond
	}
}

// Mask keeps the bits of the temperature LSB that are defined at r.
func (r Resolution) Mask() byte {
	if !r.Valid() {
		return 0xFF
	}
	return 0xFF << (Resolution12Bit - r)
}

// resolutionFromConfig decodes R1/R0 of the configuration register.
func resolutionFromConfig(cfg byte) Resolution {
	return Resolution9Bit + Resolution(cfg>>5&0x03)
}
