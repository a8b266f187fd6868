package cmd

import (
	"fmt"

	"github.com/gophertribe/devtool/test"
	"github.com/spf13/cobra"
)

func qualityCmd(use, short, what string, run func() error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run()
			if err != nil {
				return fmt.Errorf("failed to run %s: %w", what, err)
			}
			return nil
		},
	}
}

// TestCmd runs the unit tests. Bus and device tests run on the simulated
// wire, no hardware needed.
func TestCmd() *cobra.Command {
	return qualityCmd("test", "Run tests", "tests", test.Test)
}

func LintCmd() *cobra.Command {
	return qualityCmd("lint", "Run linting", "linting", test.Lint)
}

// IntegrationTestCmd runs the suite with TEST_INTEGRATION_ENABLED set, which
// adds ds18b20 tests against a thermometer wired to the host (OWTEMP_PIN,
// GPIO4 by default).
func IntegrationTestCmd() *cobra.Command {
	return qualityCmd("integration-test", "Run integration testing", "integration testing", test.Integ)
}
