package ds18b20

import (
	"fmt"
	"strings"

	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
)

// ScratchpadSize is the number of bytes returned by READ_SCRATCHPAD, CRC included.
const ScratchpadSize = 9

// Scratchpad is the device's volatile memory as read from the wire:
// temperature LSB and MSB, TH, TL, configuration, three reserved bytes and
// the CRC.
type Scratchpad [ScratchpadSize]byte

// PowerOnScratchpad is what a device holds before its first conversion.
var PowerOnScratchpad = Scratchpad{0x50, 0x05, 0x4B, 0x46, 0x7F, 0xFF, 0x0C, 0x10, 0x1C}

// raw combines the temperature bytes into the signed 1/16°C count, discarding
// the LSB bits that are undefined at res.
func (s Scratchpad) raw(res Resolution) int16 {
	lsb := s[0] & res.Mask()
	return int16(uint16(s[1])<<8 | uint16(lsb))
}

// Temperature decodes the reading in degrees Celsius.
func (s Scratchpad) Temperature(res Resolution) float64 {
	return float64(s.raw(res)) / 16
}

// PhysicTemperature decodes the reading as a periph.io temperature.
func (s Scratchpad) PhysicTemperature(res Resolution) physic.Temperature {
	return physic.Temperature(s.raw(res))*physic.Kelvin/16 + physic.ZeroCelsius
}

// TH is the high alarm trigger, also usable as a user byte.
func (s Scratchpad) TH() int8 {
	return int8(s[2])
}

// TL is the low alarm trigger, also usable as a user byte.
func (s Scratchpad) TL() int8 {
	return int8(s[3])
}

func (s Scratchpad) Config() byte {
	return s[4]
}

// Resolution is the resolution selected by the configuration register.
func (s Scratchpad) Resolution() Resolution {
	return resolutionFromConfig(s[4])
}

func (s Scratchpad) CRCValid() bool {
	return onewire.CheckCRC(s[:])
}

// blank reports a scratchpad read from an idle wire.
func (s Scratchpad) blank() bool {
	for _, b := range s {
		if b != 0xFF {
			return false
		}
	}
	return true
}

// String formats the bytes in hex, in wire order.
func (s Scratchpad) String() string {
	parts := make([]string, len(s))
	for i, b := range s {
		parts[i] = fmt.Sprintf("%02x", b)
	}
	return strings.Join(parts, " ")
}
