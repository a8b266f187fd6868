package owtemp

import "fmt"

// ROMCommand selects which devices on the bus answer the function command
// that follows.
type ROMCommand byte

const (
	ReadROM   ROMCommand = 0x33
	SearchROM ROMCommand = 0xF0
	MatchROM  ROMCommand = 0x55
	SkipROM   ROMCommand = 0xCC
)

func (c ROMCommand) Valid() bool {
	switch c {
	case ReadROM, SearchROM, MatchROM, SkipROM:
		return true
	}
	return false
}

func (c ROMCommand) String() string {
	switch c {
	case ReadROM:
		return "READ_ROM"
	case SearchROM:
		return "SEARCH_ROM"
	case MatchROM:
		return "MATCH_ROM"
	case SkipROM:
		return "SKIP_ROM"
	default:
		return fmt.Sprintf("ROM(%#02x)", byte(c))
	}
}

// Code returns the byte sent on the wire. It fails for anything outside the
// known command set.
func (c ROMCommand) Code() (byte, error) {
	if !c.Valid() {
		return 0, fmt.Errorf("%w: %#02x", ErrInvalidCommand, byte(c))
	}
	return byte(c), nil
}
