package main

import (
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	chlog "github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/urfave/cli/v2"
)

var version string
var commit string
var date string

func main() {
	os.Exit(run())
}

func run() int {
	app := cli.NewApp()
	app.Name = "owtemp"
	app.EnableBashCompletion = true
	app.Version = fmt.Sprintf("%s-%s-%s", version, date, commit)
	app.Usage = "DS18B20 thermometer on a 1-Wire bus"
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "YAML configuration file",
			EnvVars: []string{"OWTEMP_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "driver",
			Usage: "bus driver: periph, gobot, uart, ds2482 or sim",
		},
		&cli.StringFlag{
			Name:  "pin",
			Usage: "GPIO the bus is wired to (periph name, or gobot board pin)",
		},
		&cli.StringFlag{
			Name:  "port",
			Usage: "serial port for the uart driver",
		},
		&cli.StringFlag{
			Name:  "i2c-bus",
			Usage: "I2C bus of the ds2482 driver, or mcp2221 for the USB adapter",
		},
		&cli.IntFlag{
			Name:  "i2c-address",
			Usage: "I2C address of the DS2482 (0x18-0x1b)",
		},
		&cli.IntFlag{
			Name:  "resolution",
			Usage: "temperature resolution in bits (9-12)",
		},
		&cli.BoolFlag{
			Name:  "verbose",
			Usage: "enable verbose logging",
		},
		&cli.BoolFlag{
			Name:  "trace",
			Usage: "log every bus reset and byte (implies --verbose)",
		},
	}
	app.Before = func(ctx *cli.Context) error {
		charm := chlog.NewWithOptions(os.Stdout, chlog.Options{
			ReportCaller:    true,
			ReportTimestamp: true,
			TimeFormat:      time.DateTime,
		})
		charm.SetColorProfile(termenv.TrueColor)
		charm.SetLevel(chlog.InfoLevel)
		if ctx.Bool("verbose") || ctx.Bool("trace") {
			charm.SetLevel(chlog.DebugLevel)
		}
		slog.SetDefault(slog.New(charm))
		return nil
	}
	app.Commands = cli.Commands{
		&temperatureCmd,
		&presenceCmd,
		&scratchpadCmd,
		&configCmd,
		&mcp2221Cmd,
	}
	err := app.Run(os.Args)
	if err != nil {
		var exerr cli.ExitCoder
		if errors.As(err, &exerr) {
			log.Printf("unexpected error: %v", err)
			return exerr.ExitCode()
		}
		return 1
	}
	return 0
}
