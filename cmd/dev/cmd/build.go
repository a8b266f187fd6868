package cmd

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/gophertribe/devtool/build"
	"github.com/spf13/cobra"
)

// board is a GOOS/GOARCH pair owtemp is usually deployed on.
type board struct {
	os   string
	arch string
}

var boards = map[string]board{
	"rpi":    {os: "linux", arch: "arm"},
	"nanopi": {os: "linux", arch: "arm64"},
	"host":   {os: runtime.GOOS, arch: runtime.GOARCH},
}

func BuildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the owtemp cli for a board",
		RunE: func(cmd *cobra.Command, args []string) error {
			name := cmd.Flag("board").Value.String()
			target, ok := boards[name]
			if !ok {
				return fmt.Errorf("unknown board %q", name)
			}
			version := cmd.Flag("version").Value.String()
			usb, err := cmd.Flags().GetBool("usb")
			if err != nil {
				return fmt.Errorf("could not get usb flag: %w", err)
			}
			out := fmt.Sprintf("dist/owtemp-%s-%s", target.os, target.arch)
			// the MCP2221 adapter goes through hidapi, which needs cgo and
			// therefore a native toolchain for the board
			native := target.os == runtime.GOOS && target.arch == runtime.GOARCH
			if !usb || native {
				slog.Info("building", "board", name, "out", out, "usb", usb)
				return build.GoBuild(out, "./cmd/owtemp", build.GoBuildOpts{
					Version:       version,
					InjectVersion: true,
					ConfigPackage: "main",
					EnableCgo:     usb,
					Arch:          target.arch,
					OS:            target.os,
				})
			}
			noCache, err := cmd.Flags().GetBool("no-cache")
			if err != nil {
				return fmt.Errorf("could not get no-cache flag: %w", err)
			}
			slog.Info("building in docker", "board", name)
			return build.Docker(cmd.Context(), fmt.Sprintf("./dev-%s-%s", target.os, target.arch), []string{"build", "--version", version, "--board", "host", "--usb"}, build.DockerBuildOpts{
				NoCache: noCache,
				Image:   "gophertribe/gobuild:1.25-bookworm",
			})
		},
	}
	cmd.Flags().Bool("no-cache", false, "do not use cache when building in docker")
	cmd.Flags().Bool("usb", false, "include the MCP2221 USB adapter (requires cgo)")
	cmd.Flags().String("version", "latest", "version of the cli")
	cmd.Flags().String("board", "host", "target board: host, rpi or nanopi")
	return cmd
}
