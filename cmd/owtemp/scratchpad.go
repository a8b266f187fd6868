package main

import (
	"fmt"

	"github.com/mklimuk/owtemp/cmd/owtemp/console"
	"github.com/mklimuk/owtemp/ds18b20"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var scratchpadCmd = cli.Command{
	Name:    "scratchpad",
	Aliases: []string{"spad"},
	Usage:   "inspect and program the device scratchpad",
	Subcommands: cli.Commands{
		&scratchpadDumpCmd,
		&scratchpadWriteCmd,
		&scratchpadCopyCmd,
	},
}

type scratchpadView struct {
	Bytes       string  `yaml:"bytes"`
	Temperature float64 `yaml:"temperature"`
	TH          int8    `yaml:"th"`
	TL          int8    `yaml:"tl"`
	Config      string  `yaml:"config"`
	Resolution  string  `yaml:"resolution"`
	CRCValid    bool    `yaml:"crc_valid"`
}

func viewOf(spad ds18b20.Scratchpad, res ds18b20.Resolution) scratchpadView {
	return scratchpadView{
		Bytes:       spad.String(),
		Temperature: spad.Temperature(res),
		TH:          spad.TH(),
		TL:          spad.TL(),
		Config:      fmt.Sprintf("%#02x", spad.Config()),
		Resolution:  spad.Resolution().String(),
		CRCValid:    spad.CRCValid(),
	}
}

var scratchpadDumpCmd = cli.Command{
	Name:  "dump",
	Usage: "read the scratchpad and print it as YAML",
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
		_, err = dev.ReadScratchpad(ctx)
		if err != nil {
			return console.Fail(err, "could not read scratchpad")
		}
		out, err := yaml.Marshal(viewOf(dev.DumpScratchpad(), dev.Resolution()))
		if err != nil {
			return console.Exit(1, "could not encode scratchpad: %s", console.Red(err))
		}
		console.Write(out)
		return nil
	},
}

var scratchpadWriteCmd = cli.Command{
	Name:  "write",
	Usage: "write the configured resolution to the scratchpad",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "invalid configuration: %s", console.Red(err))
		}
		ctx := commandContext(c)
		// opening the device already writes the scratchpad
		dev, release, err := openDevice(ctx, cfg)
		if err != nil {
			return console.Fail(err, "could not write scratchpad")
		}
		defer release()
		spad, err := dev.ReadScratchpad(ctx)
		if err != nil {
			return console.Fail(err, "could not read back scratchpad")
		}
		if spad.Resolution() != dev.Resolution() {
			return console.Exit(1, "device reports %s after writing %s", console.Red(spad.Resolution()), dev.Resolution())
		}
		console.PInfof(console.PictoNotebook, "resolution set to %s", console.White(dev.Resolution()))
		return nil
	},
}

var scratchpadCopyCmd = cli.Command{
	Name:  "copy",
	Usage: "persist TH, TL and configuration to EEPROM",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "do not ask for confirmation",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "invalid configuration: %s", console.Red(err))
		}
		if !c.Bool("yes") {
			ok, err := console.Confirm("EEPROM has limited write cycles, copy scratchpad?")
			if err != nil {
				return console.Exit(1, "could not read answer: %s", console.Red(err))
			}
			if !ok {
				console.PInfof(console.PictoStop, "aborted")
				return nil
			}
		}
		ctx := commandContext(c)
		dev, release, err := openDevice(ctx, cfg)
		if err != nil {
			return console.Fail(err, "device initialization error")
		}
		defer release()
		err = dev.CopyScratchpad(ctx)
		if err != nil {
			return console.Fail(err, "could not copy scratchpad")
		}
		console.PInfof(console.PictoFloppy, "scratchpad copied to EEPROM (%s)", console.White(dev.Resolution()))
		return nil
	},
}
