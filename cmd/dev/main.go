package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/mklimuk/owtemp/cmd/dev/cmd"
)

func main() {
	var debug bool
	root := &cobra.Command{
		Use:   "dev",
		Short: "build and test helper for owtemp",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := log.InfoLevel
			if debug {
				level = log.DebugLevel
			}
			charm := log.NewWithOptions(os.Stderr, log.Options{
				ReportTimestamp: true,
				TimeFormat:      time.TimeOnly,
				Prefix:          "owtemp-dev",
				Level:           level,
			})
			charm.SetColorProfile(termenv.TrueColor)
			slog.SetDefault(slog.New(charm))
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.AddCommand(
		cmd.BuildCmd(),
		cmd.ChangelogCmd(),
		cmd.TestCmd(),
		cmd.LintCmd(),
		cmd.IntegrationTestCmd(),
	)
	if err := root.Execute(); err != nil {
		slog.Error("dev command failed", "error", err)
		os.Exit(1)
	}
}
