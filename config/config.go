// Package config holds the settings of the owtemp command: which bus driver to
// use, where the thermometer is wired and how to read it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mklimuk/owtemp"
	"gopkg.in/yaml.v3"
)

type Driver string

const (
	// DriverPeriph bit-bangs a GPIO through periph.io.
	DriverPeriph Driver = "periph"
	// DriverGobot bit-bangs a digital pin of a gobot board adaptor.
	DriverGobot Driver = "gobot"
	// DriverUART runs the bus on a serial port.
	DriverUART Driver = "uart"
	// DriverDS2482 talks to a DS2482-100 bridge over I2C.
	DriverDS2482 Driver = "ds2482"
	// DriverSim runs against a simulated thermometer.
	DriverSim Driver = "sim"
)

// I2CBusMCP2221 as i2c_bus selects the USB adapter instead of a host bus.
const I2CBusMCP2221 = "mcp2221"

var ErrInvalidConfig = errors.New("invalid configuration")

type Sim struct {
	Temperature float64 `yaml:"temperature"`
}

type Config struct {
	Driver      Driver        `yaml:"driver"`
	Pin         string        `yaml:"pin"`
	SerialPort  string        `yaml:"serial_port"`
	I2CBus      string        `yaml:"i2c_bus"`
	I2CAddress  int           `yaml:"i2c_address"`
	Resolution  int           `yaml:"resolution"`
	LockTimeout time.Duration `yaml:"lock_timeout"`
	ValidateCRC bool          `yaml:"validate_crc"`
	Interval    time.Duration `yaml:"interval"`
	Sim         Sim           `yaml:"sim"`
}

func Default() Config {
	return Config{
		Driver:      DriverPeriph,
		Pin:         "GPIO4",
		SerialPort:  "/dev/ttyUSB0",
		I2CBus:      "/dev/i2c-1",
		I2CAddress:  0x18,
		Resolution:  12,
		LockTimeout: time.Second,
		Interval:    5 * time.Second,
		Sim:         Sim{Temperature: 21.5},
	}
}

// Load reads the YAML file at path on top of the defaults. Unknown keys are
// rejected.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: could not open %s: %w", path, err)
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	err = cfg.Validate()
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Driver {
	case DriverPeriph, DriverGobot:
		if c.Pin == "" {
			return fmt.Errorf("%w: %w: pin is required for the %s driver", ErrInvalidConfig, owtemp.ErrInvalidPin, c.Driver)
		}
	case DriverUART:
		if c.SerialPort == "" {
			return fmt.Errorf("%w: serial_port is required for the uart driver", ErrInvalidConfig)
		}
	case DriverDS2482:
		if c.I2CBus == "" {
			return fmt.Errorf("%w: i2c_bus is required for the ds2482 driver", ErrInvalidConfig)
		}
		if c.I2CAddress < 0x18 || c.I2CAddress > 0x1B {
			return fmt.Errorf("%w: i2c_address %#02x out of the 0x18-0x1b range", ErrInvalidConfig, c.I2CAddress)
		}
	case DriverSim:
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrInvalidConfig, c.Driver)
	}
	if c.Resolution < 9 || c.Resolution > 12 {
		return fmt.Errorf("%w: %w: %d bits", ErrInvalidConfig, owtemp.ErrInvalidResolution, c.Resolution)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("%w: lock_timeout must be positive", ErrInvalidConfig)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// YAML renders the configuration as it would be written to a file.
func (c Config) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	err := enc.Encode(c)
	if err != nil {
		return nil, fmt.Errorf("config: could not encode: %w", err)
	}
	err = enc.Close()
	if err != nil {
		return nil, fmt.Errorf("config: could not encode: %w", err)
	}
	return buf.Bytes(), nil
}
