package gpio

import (
	"errors"
	"testing"

	"github.com/mklimuk/owtemp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestPeriphLine_OpenDrain(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO4", Num: 4, L: gpio.High}
	line := NewPeriphLine(pin)
	require.NoError(t, line.Configure(owtemp.DefaultLineConfig()))
	assert.Equal(t, gpio.Float, pin.P)

	require.NoError(t, line.Set(gpio.Low))
	assert.Equal(t, gpio.Low, line.Get())

	// a device holding the wire is seen through the released input
	require.NoError(t, line.Set(gpio.High))
	assert.Equal(t, gpio.Float, pin.P)
	assert.Equal(t, gpio.Low, line.Get())

	pin.Lock()
	pin.L = gpio.High
	pin.Unlock()
	assert.Equal(t, gpio.High, line.Get())
}

func TestPeriphLine_PushPull(t *testing.T) {
	pin := &gpiotest.Pin{N: "GPIO17", Num: 17}
	line := NewPeriphLine(pin)
	cfg := owtemp.LineConfig{Drive: owtemp.DrivePushPull, Pull: gpio.PullUp, Edge: gpio.NoEdge}
	require.NoError(t, line.Configure(cfg))
	assert.Equal(t, gpio.High, line.Get())
	require.NoError(t, line.Set(gpio.Low))
	assert.Equal(t, gpio.Low, line.Get())
	require.NoError(t, line.Set(gpio.High))
	assert.Equal(t, gpio.High, line.Get())
}

func TestPeriphLine_ConfigureFailure(t *testing.T) {
	// gpiotest rejects edge detection without an edge channel
	pin := &gpiotest.Pin{N: "GPIO5", Num: 5}
	line := NewPeriphLine(pin)
	cfg := owtemp.DefaultLineConfig()
	cfg.Edge = gpio.FallingEdge
	err := line.Configure(cfg)
	assert.True(t, errors.Is(err, owtemp.ErrConfigurationFailed))
}

type mockPins struct {
	mock.Mock
}

func (m *mockPins) DigitalRead(id string) (int, error) {
	args := m.Called(id)
	return args.Int(0), args.Error(1)
}

func (m *mockPins) DigitalWrite(id string, val byte) error {
	args := m.Called(id, val)
	return args.Error(0)
}

func TestGobotLine(t *testing.T) {
	pins := new(mockPins)
	line := NewGobotLine(pins, "7")

	pins.On("DigitalRead", "7").Return(1, nil).Once()
	require.NoError(t, line.Configure(owtemp.DefaultLineConfig()))

	pins.On("DigitalWrite", "7", byte(0)).Return(nil).Once()
	require.NoError(t, line.Set(gpio.Low))

	pins.On("DigitalRead", "7").Return(0, nil).Twice()
	require.NoError(t, line.Set(gpio.High))
	assert.Equal(t, gpio.Low, line.Get())

	pins.AssertExpectations(t)
}

func TestGobotLine_PushPull(t *testing.T) {
	pins := new(mockPins)
	line := NewGobotLine(pins, "7")
	pins.On("DigitalWrite", "7", byte(1)).Return(nil)
	require.NoError(t, line.Configure(owtemp.LineConfig{Drive: owtemp.DrivePushPull, Pull: gpio.Float}))
	require.NoError(t, line.Set(gpio.High))
	pins.AssertNumberOfCalls(t, "DigitalWrite", 2)
}

func TestGobotLine_Errors(t *testing.T) {
	err := NewGobotLine(new(mockPins), "").Configure(owtemp.DefaultLineConfig())
	assert.True(t, errors.Is(err, owtemp.ErrInvalidPin))

	pins := new(mockPins)
	pins.On("DigitalRead", "99").Return(0, errors.New("not a valid pin"))
	line := NewGobotLine(pins, "99")
	err = line.Configure(owtemp.DefaultLineConfig())
	assert.True(t, errors.Is(err, owtemp.ErrConfigurationFailed))
	assert.Equal(t, gpio.High, line.Get())
}

func TestOpen_HostInitFailure(t *testing.T) {
	defer func(init func() (*driverreg.State, error)) { hostInit = init }(hostInit)
	hostInit = func() (*driverreg.State, error) {
		return nil, errors.New("no gpio chip")
	}
	_, err := Open("GPIO4")
	require.Error(t, err)
	assert.True(t, errors.Is(err, owtemp.ErrConfigurationFailed))
	assert.Contains(t, err.Error(), "no gpio chip")
}

func TestGobotLine_ReadErrorSurfaces(t *testing.T) {
	pins := new(mockPins)
	line := NewGobotLine(pins, "7")
	pins.On("DigitalRead", "7").Return(0, errors.New("i/o error")).Once()
	assert.Equal(t, gpio.High, line.Get())

	err := line.Set(gpio.Low)
	require.Error(t, err)
	assert.True(t, errors.Is(err, owtemp.ErrDataCorrupt))
	pins.AssertNotCalled(t, "DigitalWrite", "7", byte(0))

	// reported once
	assert.NoError(t, line.Err())
	pins.On("DigitalWrite", "7", byte(0)).Return(nil).Once()
	assert.NoError(t, line.Set(gpio.Low))
	pins.AssertExpectations(t)
}
