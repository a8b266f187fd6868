package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mklimuk/owtemp"
	"github.com/mklimuk/owtemp/adapter"
	"github.com/mklimuk/owtemp/config"
	"github.com/mklimuk/owtemp/ds18b20"
	"github.com/mklimuk/owtemp/ds2482"
	"github.com/mklimuk/owtemp/gpio"
	"github.com/mklimuk/owtemp/i2c"
	"github.com/mklimuk/owtemp/owctx"
	"github.com/mklimuk/owtemp/sim"
	"github.com/mklimuk/owtemp/uart"
	"github.com/mklimuk/owtemp/wire"
	"github.com/urfave/cli/v2"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"
)

// loadConfig reads the configuration file, if any, and applies the global
// flags on top of it.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		var err error
		cfg, err = config.Load(path)
		if err != nil {
			return cfg, err
		}
	}
	if c.IsSet("driver") {
		cfg.Driver = config.Driver(c.String("driver"))
	}
	if c.IsSet("pin") {
		cfg.Pin = c.String("pin")
	}
	if c.IsSet("port") {
		cfg.SerialPort = c.String("port")
	}
	if c.IsSet("i2c-bus") {
		cfg.I2CBus = c.String("i2c-bus")
	}
	if c.IsSet("i2c-address") {
		cfg.I2CAddress = c.Int("i2c-address")
	}
	if c.IsSet("resolution") {
		cfg.Resolution = c.Int("resolution")
	}
	return cfg, cfg.Validate()
}

func commandContext(c *cli.Context) context.Context {
	return owctx.SetTrace(c.Context, c.Bool("trace"))
}

// openBus builds the bus for the configured driver. The returned function
// releases it.
func openBus(ctx context.Context, cfg config.Config) (owtemp.Transactor, func(), error) {
	noop := func() {}
	switch cfg.Driver {
	case config.DriverPeriph:
		bus, err := wire.Open(cfg.Pin, wire.WithLockTimeout(cfg.LockTimeout))
		if err != nil {
			return nil, noop, err
		}
		return bus, noop, nil
	case config.DriverGobot:
		npi := nanopi.NewNeoAdaptor()
		err := npi.DigitalPinsAdaptor.Connect()
		if err != nil {
			return nil, noop, fmt.Errorf("adaptor connect error: %w", err)
		}
		release := func() {
			err := npi.DigitalPinsAdaptor.Finalize()
			if err != nil {
				slog.Warn("could not finalize adaptor", "error", err)
			}
		}
		bus, err := wire.New(gpio.NewGobotLine(npi, cfg.Pin),
			wire.WithName("nanopi:"+cfg.Pin),
			wire.WithLockTimeout(cfg.LockTimeout))
		if err != nil {
			release()
			return nil, noop, err
		}
		return bus, release, nil
	case config.DriverUART:
		a, err := uart.New(cfg.SerialPort, uart.WithLockTimeout(cfg.LockTimeout))
		if err != nil {
			return nil, noop, err
		}
		return a, func() {
			err := a.Close()
			if err != nil {
				slog.Warn("could not close serial port", "port", cfg.SerialPort, "error", err)
			}
		}, nil
	case config.DriverDS2482:
		return openBridge(ctx, cfg)
	case config.DriverSim:
		line := sim.NewLine(sim.NewThermometer(cfg.Sim.Temperature))
		bus, err := wire.New(line, wire.WithDelayer(line), wire.WithName("sim"), wire.WithLockTimeout(cfg.LockTimeout))
		if err != nil {
			return nil, noop, err
		}
		return bus, noop, nil
	}
	return nil, noop, fmt.Errorf("unknown driver %q", cfg.Driver)
}

// openBridge reaches the DS2482 either through a host I2C bus or through the
// MCP2221 USB adapter.
func openBridge(ctx context.Context, cfg config.Config) (owtemp.Transactor, func(), error) {
	noop := func() {}
	var bus owtemp.I2CBus
	release := noop
	if cfg.I2CBus == config.I2CBusMCP2221 {
		bus = adapter.NewMCP2221(adapter.HIDOpener(-1))
	} else {
		generic, err := i2c.NewGenericBus(cfg.I2CBus)
		if err != nil {
			return nil, noop, err
		}
		bus = generic
		release = func() {
			err := generic.Close()
			if err != nil {
				slog.Warn("could not close i2c bus", "bus", cfg.I2CBus, "error", err)
			}
		}
	}
	bridge, err := ds2482.New(ctx, bus,
		ds2482.WithAddress(byte(cfg.I2CAddress)),
		ds2482.WithLockTimeout(cfg.LockTimeout))
	if err != nil {
		release()
		return nil, noop, err
	}
	return bridge, release, nil
}

func openDevice(ctx context.Context, cfg config.Config) (*ds18b20.Dev, func(), error) {
	res, err := ds18b20.ParseResolution(cfg.Resolution)
	if err != nil {
		return nil, func() {}, err
	}
	bus, release, err := openBus(ctx, cfg)
	if err != nil {
		return nil, release, fmt.Errorf("%w: %w", owtemp.ErrBusInitFailed, err)
	}
	slog.Debug("bus ready", "driver", cfg.Driver, "bus", fmt.Sprint(bus))
	dev, err := ds18b20.New(ctx, bus, res, ds18b20.WithCRCValidation(cfg.ValidateCRC))
	if err != nil {
		release()
		return nil, func() {}, err
	}
	return dev, release, nil
}
