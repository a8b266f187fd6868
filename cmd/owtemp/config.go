package main

import (
	"github.com/mklimuk/owtemp/cmd/owtemp/console"
	"github.com/urfave/cli/v2"
)

var configCmd = cli.Command{
	Name:  "config",
	Usage: "print the effective configuration",
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return console.Exit(1, "invalid configuration: %s", console.Red(err))
		}
		out, err := cfg.YAML()
		if err != nil {
			return console.Exit(1, "%s", console.Red(err))
		}
		console.Write(out)
		return nil
	},
}
