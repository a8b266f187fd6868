package sim

import (
	"math"
	"sync"
	"time"

	"github.com/mklimuk/owtemp"
	"periph.io/x/conn/v3/onewire"
)

const (
	cmdWriteScratchpad byte = 0x4E
	cmdReadScratchpad  byte = 0xBE
	cmdCopyScratchpad  byte = 0x48
	cmdConvert         byte = 0x44
)

type thermState int

const (
	stateIdle thermState = iota
	stateROM
	stateFunction
	stateWriteData
	stateTransmit
)

// DefaultROM is the 64-bit registration number of a simulated DS18B20,
// family code first.
var DefaultROM = [8]byte{0x28, 0xAC, 0x41, 0x0E, 0x07, 0x00, 0x00, 0x74}

// Thermometer models a DS18B20 on the wire: SKIP_ROM and READ_ROM, scratchpad
// write/read/copy and temperature conversion.
type Thermometer struct {
	mx          sync.Mutex
	present     bool
	corrupt     bool
	temperature float64
	rom         [8]byte
	scratchpad  [9]byte
	eeprom      [3]byte
	state       thermState
	rx          byte
	rxBits      int
	data        []byte
	tx          []bool
	conversions int
	copies      int
	commands    []byte
}

// NewThermometer returns a device in its power-on state: the scratchpad holds
// the 85°C reset value and the configuration selects 12 bits.
func NewThermometer(temperature float64) *Thermometer {
	t := &Thermometer{
		present:     true,
		temperature: temperature,
		eeprom:      [3]byte{0x4B, 0x46, 0x7F},
	}
	t.rom = DefaultROM
	t.rom[7] = onewire.CalcCRC(t.rom[:7])
	t.scratchpad = [9]byte{0x50, 0x05, 0x4B, 0x46, 0x7F, 0xFF, 0x0C, 0x10}
	t.seal()
	return t
}

func (t *Thermometer) seal() {
	t.scratchpad[8] = onewire.CalcCRC(t.scratchpad[:8])
}

func (t *Thermometer) Reset() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.tx = nil
	t.rx, t.rxBits = 0, 0
	if !t.present {
		t.state = stateIdle
		return false
	}
	t.state = stateROM
	return true
}

func (t *Thermometer) SlotStart() bool {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.state == stateTransmit && len(t.tx) > 0 && !t.tx[0]
}

func (t *Thermometer) SlotEnd(low time.Duration) {
	t.mx.Lock()
	defer t.mx.Unlock()
	switch t.state {
	case stateTransmit:
		if len(t.tx) > 0 {
			t.tx = t.tx[1:]
		}
		if len(t.tx) == 0 {
			t.state = stateIdle
		}
	case stateROM, stateFunction, stateWriteData:
		if low < SampleAt {
			t.rx |= 0x01 << t.rxBits
		}
		t.rxBits++
		if t.rxBits == 8 {
			b := t.rx
			t.rx, t.rxBits = 0, 0
			t.receive(b)
		}
	}
}

func (t *Thermometer) receive(b byte) {
	switch t.state {
	case stateROM:
		switch owtemp.ROMCommand(b) {
		case owtemp.SkipROM:
			t.state = stateFunction
		case owtemp.ReadROM:
			t.transmit(t.rom[:])
		default:
			t.state = stateIdle
		}
	case stateFunction:
		t.commands = append(t.commands, b)
		switch b {
		case cmdWriteScratchpad:
			t.data = t.data[:0]
			t.state = stateWriteData
		case cmdReadScratchpad:
			spad := t.scratchpad
			if t.corrupt {
				spad[8] ^= 0xFF
			}
			t.transmit(spad[:])
		case cmdCopyScratchpad:
			copy(t.eeprom[:], t.scratchpad[2:5])
			t.copies++
			t.state = stateIdle
		case cmdConvert:
			t.convert()
			t.state = stateIdle
		default:
			t.state = stateIdle
		}
	case stateWriteData:
		t.data = append(t.data, b)
		if len(t.data) == 3 {
			t.scratchpad[2] = t.data[0]
			t.scratchpad[3] = t.data[1]
			// only R1/R0 are writable in the configuration register
			t.scratchpad[4] = t.data[2]&0x60 | 0x1F
			t.seal()
			t.state = stateIdle
		}
	}
}

func (t *Thermometer) transmit(p []byte) {
	t.tx = t.tx[:0]
	for _, b := range p {
		for i := 0; i < 8; i++ {
			t.tx = append(t.tx, b>>i&0x01 == 0x01)
		}
	}
	t.state = stateTransmit
}

func (t *Thermometer) convert() {
	bits := 9 + int(t.scratchpad[4]>>5&0x03)
	raw := uint16(int16(math.Round(t.temperature * 16)))
	raw &^= 1<<(12-bits) - 1
	t.scratchpad[0] = byte(raw)
	t.scratchpad[1] = byte(raw >> 8)
	t.seal()
	t.conversions++
}

func (t *Thermometer) SetTemperature(celsius float64) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.temperature = celsius
}

// SetPresent disconnects (false) or reconnects the device.
func (t *Thermometer) SetPresent(present bool) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.present = present
}

// CorruptCRC makes the device send a wrong CRC byte on scratchpad reads.
func (t *Thermometer) CorruptCRC(corrupt bool) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.corrupt = corrupt
}

func (t *Thermometer) Scratchpad() [9]byte {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.scratchpad
}

// EEPROM returns the persisted TH, TL and configuration bytes.
func (t *Thermometer) EEPROM() [3]byte {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.eeprom
}

func (t *Thermometer) ROM() [8]byte {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.rom
}

func (t *Thermometer) Conversions() int {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.conversions
}

func (t *Thermometer) Copies() int {
	t.mx.Lock()
	defer t.mx.Unlock()
	return t.copies
}

// Commands lists the function commands received, oldest first.
func (t *Thermometer) Commands() []byte {
	t.mx.Lock()
	defer t.mx.Unlock()
	res := make([]byte, len(t.commands))
	copy(res, t.commands)
	return res
}
