package main

import (
	"context"

	"github.com/mklimuk/owtemp/adapter"
	"github.com/mklimuk/owtemp/cmd/owtemp/console"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

var mcp2221Cmd = cli.Command{
	Name:  "mcp2221",
	Usage: "inspect the USB to I2C adapter used by the ds2482 driver",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:  "id",
			Usage: "adapter index when more than one is attached",
			Value: -1,
		},
	},
	Subcommands: cli.Commands{
		{
			Name:  "status",
			Usage: "print the I2C engine status",
			Action: adapterAction(func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
				return a.Status(ctx)
			}),
		},
		{
			Name:  "release",
			Usage: "cancel the current I2C transfer and free the bus",
			Action: adapterAction(func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error) {
				return a.ReleaseBus(ctx)
			}),
		},
	},
}

func adapterAction(fn func(ctx context.Context, a *adapter.MCP2221) (*adapter.MCP2221Status, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		a := adapter.NewMCP2221(adapter.HIDOpener(c.Int("id")))
		status, err := fn(commandContext(c), a)
		if err != nil {
			return console.Exit(1, "adapter communication error: %s", console.Red(err))
		}
		out, err := yaml.Marshal(status)
		if err != nil {
			return console.Exit(1, "encoding error: %s", console.Red(err))
		}
		console.Write(out)
		return nil
	}
}
