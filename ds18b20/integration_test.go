package ds18b20

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpen_LiveDevice needs a DS18B20 wired to the host. Set
// TEST_INTEGRATION_ENABLED to run it and OWTEMP_PIN to pick the GPIO
// (GPIO4 by default).
func TestOpen_LiveDevice(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION_ENABLED") == "" {
		t.Skip("TEST_INTEGRATION_ENABLED not set, skipping live device test")
	}
	pin := os.Getenv("OWTEMP_PIN")
	if pin == "" {
		pin = "GPIO4"
	}
	ctx := context.Background()
	dev, err := Open(ctx, pin, Resolution9Bit, WithCRCValidation(true))
	require.NoError(t, err)
	defer func() { _ = dev.Halt() }()
	assert.Equal(t, Resolution9Bit, dev.DumpScratchpad().Resolution())

	temp, err := dev.ReadTemperature(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, temp, -55.0)
	assert.LessOrEqual(t, temp, 125.0)
	// 9-bit readings are multiples of 0.5°C
	assert.Zero(t, temp*2-float64(int(temp*2)))
}
