package main

import (
	"os/signal"
	"syscall"

	"github.com/mklimuk/owtemp/cmd/owtemp/console"
	"github.com/urfave/cli/v2"
)

var temperatureCmd = cli.Command{
	Name:    "temperature",
	Aliases: []string{"temp"},
	Usage:   "convert and read the temperature",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "watch",
			Aliases: []string{"w"},
			Usage:   "keep reading until interrupted",
		},
		&cli.DurationFlag{
			Name:  "interval",
			Usage: "time between readings when watching (default from config)",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "invalid configuration: %s", console.Red(err))
		}
		ctx := commandContext(c)
		dev, release, err := openDevice(ctx, cfg)
		if err != nil {
			return console.Fail(err, "device initialization error")
		}
		defer release()

		if !c.Bool("watch") && !c.IsSet("interval") {
			temp, err := dev.ReadTemperature(ctx)
			if err != nil {
				return console.Fail(err, "error getting temperature read")
			}
			console.Printf("%s %s\n", console.PictoThermometer, console.Celsius(temp))
			return nil
		}

		interval := cfg.Interval
		if c.IsSet("interval") {
			interval = c.Duration("interval")
		}
		readings, err := dev.SenseContinuous(interval)
		if err != nil {
			return console.Fail(err, "could not start reading")
		}
		defer func() { _ = dev.Halt() }()
		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		console.Infof("reading every %s, press Ctrl+C to stop", interval)
		for {
			select {
			case <-ctx.Done():
				return nil
			case e, ok := <-readings:
				if !ok {
					return nil
				}
				console.Printf("%s %s\n", console.PictoThermometer, console.Celsius(e.Temperature.Celsius()))
			}
		}
	},
}
