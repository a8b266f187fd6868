package main

import (
	"github.com/mklimuk/owtemp"
	"github.com/mklimuk/owtemp/cmd/owtemp/console"
	"github.com/urfave/cli/v2"
)

var presenceCmd = cli.Command{
	Name:  "presence",
	Usage: "reset the bus and report whether a device answered",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "invalid configuration: %s", console.Red(err))
		}
		bus, release, err := openBus(commandContext(c), cfg)
		if err != nil {
			return console.Fail(err, "bus initialization error")
		}
		defer release()
		var presence owtemp.Presence
		err = bus.Transact(commandContext(c), func(conn owtemp.Conn) error {
			presence, err = conn.Reset()
			return err
		})
		if err != nil {
			return console.Fail(err, "reset failed")
		}
		if presence != owtemp.DevicePresent {
			console.PInfof(console.PictoGhost, "%s on %s", console.Yellow(presence), cfg.Driver)
			return console.Exit(1, "")
		}
		console.PInfof(console.PictoPin, "device %s on %s", console.Green(presence), cfg.Driver)
		return nil
	},
}
