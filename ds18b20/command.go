package ds18b20

import (
	"fmt"

	"github.com/mklimuk/owtemp"
)

// Command is a DS18B20 function command, sent after the ROM command.
type Command byte

const (
	ConvertT        Command = 0x44
	WriteScratchpad Command = 0x4E
	ReadScratchpad  Command = 0xBE
	CopyScratchpad  Command = 0x48
)

func (c Command) Valid() bool {
	switch c {
	case ConvertT, WriteScratchpad, ReadScratchpad, CopyScratchpad:
		return true
	}
	return false
}

func (c Command) String() string {
	switch c {
	case ConvertT:
		return "CONVERT_T"
	case WriteScratchpad:
		return "WRITE_SCRATCHPAD"
	case ReadScratchpad:
		return "READ_SCRATCHPAD"
	case CopyScratchpad:
		return "COPY_SCRATCHPAD"
	default:
		return fmt.Sprintf("CMD(%#02x)", byte(c))
	}
}

func (c Command) Code() (byte, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("ds18b20: %w: %#02x", owtemp.ErrInvalidCommand, byte(c))
	}
	return byte(c), nil
}
