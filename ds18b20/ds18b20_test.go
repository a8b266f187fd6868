package ds18b20

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mklimuk/owtemp"
	"github.com/mklimuk/owtemp/sim"
	"github.com/mklimuk/owtemp/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"
)

func newSimDev(t *testing.T, therm *sim.Thermometer, res Resolution, opts ...Opt) (*Dev, clockwork.FakeClock) {
	t.Helper()
	line := sim.NewLine(therm)
	bus, err := wire.New(line, wire.WithDelayer(line))
	require.NoError(t, err)
	clock := clockwork.NewFakeClock()
	dev, err := New(context.Background(), bus, res, append([]Opt{WithClock(clock)}, opts...)...)
	require.NoError(t, err)
	return dev, clock
}

// converting runs fn and advances the clock past the conversion wait it
// blocks on.
func converting(clock clockwork.FakeClock, wait time.Duration, fn func() error) error {
	errc := make(chan error, 1)
	go func() {
		errc <- fn()
	}()
	clock.BlockUntil(1)
	clock.Advance(wait)
	return <-errc
}

func TestNew_ConfiguresResolution(t *testing.T) {
	therm := sim.NewThermometer(20)
	dev, _ := newSimDev(t, therm, Resolution9Bit)
	assert.Equal(t, Resolution9Bit, dev.Resolution())
	assert.Equal(t, byte(0x1F), therm.Scratchpad()[4])
	assert.Equal(t, []byte{0x4E, 0xBE}, therm.Commands())
	assert.Equal(t, Scratchpad(therm.Scratchpad()), dev.DumpScratchpad())
	assert.Equal(t, Resolution9Bit, dev.DumpScratchpad().Resolution())
	assert.Equal(t, "DS18B20(9-bit)", dev.String())
	// nothing converted yet, the stored reading is the power-on value
	assert.Equal(t, 85.0, dev.LastTemperature())
}

func TestNew_InvalidResolution(t *testing.T) {
	_, err := New(context.Background(), &mockBus{}, Resolution(8))
	assert.True(t, errors.Is(err, owtemp.ErrInvalidResolution))
}

func TestNew_DeviceAbsent(t *testing.T) {
	therm := sim.NewThermometer(20)
	therm.SetPresent(false)
	line := sim.NewLine(therm)
	bus, err := wire.New(line, wire.WithDelayer(line))
	require.NoError(t, err)
	_, err = New(context.Background(), bus, Resolution12Bit)
	assert.True(t, errors.Is(err, owtemp.ErrDeviceNotResponding))
}

func TestOpen_InvalidPin(t *testing.T) {
	_, err := Open(context.Background(), "NO_SUCH_PIN", Resolution12Bit)
	require.Error(t, err)
	assert.True(t, errors.Is(err, owtemp.ErrBusInitFailed))
}

func TestReadTemperature(t *testing.T) {
	tests := []struct {
		given    float64
		res      Resolution
		expected float64
	}{
		{21.5, Resolution12Bit, 21.5},
		{25.0625, Resolution12Bit, 25.0625},
		{-10.125, Resolution12Bit, -10.125},
		{0, Resolution12Bit, 0},
		{21.3, Resolution9Bit, 21.0},
		{21.3, Resolution10Bit, 21.25},
		{-1.0, Resolution11Bit, -1.0},
		{125, Resolution12Bit, 125},
		{-55, Resolution9Bit, -55},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v@%s", test.given, test.res), func(t *testing.T) {
			therm := sim.NewThermometer(test.given)
			dev, clock := newSimDev(t, therm, test.res)
			var temp float64
			err := converting(clock, test.res.ConversionTime(), func() error {
				var err error
				temp, err = dev.ReadTemperature(context.Background())
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, test.expected, temp)
			assert.Equal(t, test.expected, dev.LastTemperature())
			assert.Equal(t, 1, therm.Conversions())
			assert.Equal(t, []byte{0x4E, 0xBE, 0x44, 0xBE}, therm.Commands())
		})
	}
}

func TestStartConversion_Delay(t *testing.T) {
	line := sim.NewLine(sim.NewThermometer(20))
	bus, err := wire.New(line, wire.WithDelayer(line))
	require.NoError(t, err)
	dev, err := New(context.Background(), bus, Resolution9Bit)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, dev.StartConversion(context.Background()))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 94*time.Millisecond)
	assert.Less(t, elapsed, 94*time.Millisecond+50*time.Millisecond)
}

func TestStartConversion_WaitsFullTable(t *testing.T) {
	for _, res := range []Resolution{Resolution9Bit, Resolution10Bit, Resolution11Bit, Resolution12Bit} {
		t.Run(res.String(), func(t *testing.T) {
			dev, clock := newSimDev(t, sim.NewThermometer(20), res)
			errc := make(chan error, 1)
			go func() {
				errc <- dev.StartConversion(context.Background())
			}()
			clock.BlockUntil(1)
			clock.Advance(res.ConversionTime() - time.Millisecond)
			select {
			case err := <-errc:
				t.Fatalf("conversion returned early: %v", err)
			case <-time.After(20 * time.Millisecond):
			}
			clock.Advance(time.Millisecond)
			require.NoError(t, <-errc)
		})
	}
}

func TestStartConversion_Canceled(t *testing.T) {
	dev, clock := newSimDev(t, sim.NewThermometer(20), Resolution12Bit)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- dev.StartConversion(ctx)
	}()
	clock.BlockUntil(1)
	cancel()
	err := <-errc
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestReadTemperature_DeviceGone(t *testing.T) {
	therm := sim.NewThermometer(20)
	dev, _ := newSimDev(t, therm, Resolution12Bit)
	therm.SetPresent(false)
	// fails before the conversion wait, so the fake clock is never needed
	_, err := dev.ReadTemperature(context.Background())
	assert.True(t, errors.Is(err, owtemp.ErrDeviceNotResponding))
	assert.Equal(t, 0, therm.Conversions())
}

func TestSetResolution(t *testing.T) {
	therm := sim.NewThermometer(21.3)
	dev, clock := newSimDev(t, therm, Resolution12Bit)
	require.NoError(t, dev.SetResolution(context.Background(), Resolution10Bit))
	assert.Equal(t, Resolution10Bit, dev.Resolution())
	assert.Equal(t, byte(0x3F), therm.Scratchpad()[4])

	var temp float64
	err := converting(clock, Resolution10Bit.ConversionTime(), func() error {
		var err error
		temp, err = dev.ReadTemperature(context.Background())
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 21.25, temp)

	err = dev.SetResolution(context.Background(), Resolution(13))
	assert.True(t, errors.Is(err, owtemp.ErrInvalidResolution))
	assert.Equal(t, Resolution10Bit, dev.Resolution())
}

func TestSetResolution_KeepsPreviousOnFailure(t *testing.T) {
	bus := &mockBus{err: fmt.Errorf("wire: %w", owtemp.ErrLockTimeout)}
	dev := &Dev{bus: bus, config: buildOpts(nil), resolution: Resolution11Bit}
	err := dev.SetResolution(context.Background(), Resolution9Bit)
	assert.True(t, errors.Is(err, owtemp.ErrLockTimeout))
	assert.Equal(t, Resolution11Bit, dev.Resolution())
}

func TestCopyScratchpad(t *testing.T) {
	therm := sim.NewThermometer(20)
	dev, _ := newSimDev(t, therm, Resolution11Bit)
	require.NoError(t, dev.CopyScratchpad(context.Background()))
	assert.Equal(t, [3]byte{0x00, 0x00, 0x5F}, therm.EEPROM())
	assert.Equal(t, 1, therm.Copies())
}

func TestReadScratchpad_CRC(t *testing.T) {
	t.Run("not validated by default", func(t *testing.T) {
		therm := sim.NewThermometer(20)
		dev, _ := newSimDev(t, therm, Resolution12Bit)
		therm.CorruptCRC(true)
		spad, err := dev.ReadScratchpad(context.Background())
		require.NoError(t, err)
		assert.False(t, spad.CRCValid())
		assert.Equal(t, spad, dev.DumpScratchpad())
	})
	t.Run("validated", func(t *testing.T) {
		therm := sim.NewThermometer(20)
		dev, _ := newSimDev(t, therm, Resolution12Bit, WithCRCValidation(true))
		before := dev.DumpScratchpad()
		therm.CorruptCRC(true)
		_, err := dev.ReadScratchpad(context.Background())
		assert.True(t, errors.Is(err, owtemp.ErrDataCorrupt))
		assert.Equal(t, before, dev.DumpScratchpad(), "corrupt reads are not stored")

		therm.CorruptCRC(false)
		spad, err := dev.ReadScratchpad(context.Background())
		require.NoError(t, err)
		assert.True(t, spad.CRCValid())
	})
}

func TestSense(t *testing.T) {
	dev, clock := newSimDev(t, sim.NewThermometer(25.0625), Resolution12Bit)
	var e physic.Env
	err := converting(clock, Resolution12Bit.ConversionTime(), func() error {
		return dev.Sense(&e)
	})
	require.NoError(t, err)
	assert.Equal(t, 25.0625, e.Temperature.Celsius())

	var p physic.Env
	dev.Precision(&p)
	assert.Equal(t, physic.Kelvin/16, p.Temperature)
	require.NoError(t, dev.SetResolution(context.Background(), Resolution9Bit))
	dev.Precision(&p)
	assert.Equal(t, physic.Kelvin/2, p.Temperature)
}

func TestSenseContinuous(t *testing.T) {
	therm := sim.NewThermometer(18.5)
	dev, clock := newSimDev(t, therm, Resolution12Bit)
	_, err := dev.SenseContinuous(0)
	require.Error(t, err)

	ch, err := dev.SenseContinuous(time.Second)
	require.NoError(t, err)
	_, err = dev.SenseContinuous(time.Second)
	require.Error(t, err)

	// ticker and conversion wait
	clock.BlockUntil(2)
	clock.Advance(Resolution12Bit.ConversionTime())
	e := <-ch
	assert.Equal(t, 18.5, e.Temperature.Celsius())

	require.NoError(t, dev.Halt())
	_, open := <-ch
	assert.False(t, open)
	require.NoError(t, dev.Halt())
}

type mockConn struct {
	mock.Mock
}

func (m *mockConn) Reset() (owtemp.Presence, error) {
	args := m.Called()
	return args.Get(0).(owtemp.Presence), args.Error(1)
}

func (m *mockConn) WriteByte(b byte) error {
	return m.Called(b).Error(0)
}

func (m *mockConn) ReadByte() (byte, error) {
	args := m.Called()
	return args.Get(0).(byte), args.Error(1)
}

func (m *mockConn) Write(p []byte) error {
	return m.Called(p).Error(0)
}

func (m *mockConn) Read(p []byte) error {
	args := m.Called(p)
	if fill, ok := args.Get(0).([]byte); ok {
		copy(p, fill)
	}
	return args.Error(1)
}

func (m *mockConn) SendROMCommand(cmd owtemp.ROMCommand) error {
	return m.Called(cmd).Error(0)
}

type mockBus struct {
	conn  owtemp.Conn
	err   error
	calls int
}

func (b *mockBus) Transact(ctx context.Context, fn func(c owtemp.Conn) error) error {
	b.calls++
	if b.err != nil {
		return b.err
	}
	return fn(b.conn)
}

func TestWriteScratchpad_Sequence(t *testing.T) {
	conn := new(mockConn)
	mock.InOrder(
		conn.On("Reset").Return(owtemp.DevicePresent, nil),
		conn.On("SendROMCommand", owtemp.SkipROM).Return(nil),
		conn.On("WriteByte", byte(0x4E)).Return(nil),
		conn.On("Write", []byte{0x00, 0x00, 0x5F}).Return(nil),
	)
	bus := &mockBus{conn: conn}
	dev := &Dev{bus: bus, config: buildOpts(nil), resolution: Resolution11Bit}
	require.NoError(t, dev.WriteScratchpad(context.Background()))
	conn.AssertExpectations(t)
	assert.Equal(t, 1, bus.calls)
}

func TestReadScratchpad_Sequence(t *testing.T) {
	conn := new(mockConn)
	data := []byte{0x91, 0x01, 0x00, 0x00, 0x7F, 0xFF, 0x0F, 0x10, 0x00}
	mock.InOrder(
		conn.On("Reset").Return(owtemp.DevicePresent, nil),
		conn.On("SendROMCommand", owtemp.SkipROM).Return(nil),
		conn.On("WriteByte", byte(0xBE)).Return(nil),
		conn.On("Read", mock.AnythingOfType("[]uint8")).Return(data, nil),
	)
	dev := &Dev{bus: &mockBus{conn: conn}, config: buildOpts(nil), resolution: Resolution12Bit}
	spad, err := dev.ReadScratchpad(context.Background())
	require.NoError(t, err)
	assert.Equal(t, data, spad[:])
	assert.Equal(t, 25.0625, dev.LastTemperature())
	conn.AssertExpectations(t)
}

func TestTransaction_NoPresence(t *testing.T) {
	conn := new(mockConn)
	conn.On("Reset").Return(owtemp.NoDevice, nil)
	dev := &Dev{bus: &mockBus{conn: conn}, config: buildOpts(nil), resolution: Resolution12Bit}
	err := dev.CopyScratchpad(context.Background())
	assert.True(t, errors.Is(err, owtemp.ErrDeviceNotResponding))
	conn.AssertNotCalled(t, "SendROMCommand", mock.Anything)
	conn.AssertNotCalled(t, "WriteByte", mock.Anything)
}

func TestReadTemperature_LockTimeout(t *testing.T) {
	bus := &mockBus{err: fmt.Errorf("wire: transaction: %w", owtemp.ErrLockTimeout)}
	dev := &Dev{bus: bus, config: buildOpts([]Opt{WithClock(clockwork.NewFakeClock())}), resolution: Resolution12Bit}
	_, err := dev.ReadTemperature(context.Background())
	assert.True(t, errors.Is(err, owtemp.ErrLockTimeout))
	assert.False(t, errors.Is(err, owtemp.ErrDeviceNotResponding))
	assert.Equal(t, 1, bus.calls, "nothing is attempted after the lock fails")
}

func TestReadScratchpad_AllOnes(t *testing.T) {
	blank := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	newConn := func() *mockConn {
		conn := new(mockConn)
		conn.On("Reset").Return(owtemp.DevicePresent, nil)
		conn.On("SendROMCommand", owtemp.SkipROM).Return(nil)
		conn.On("WriteByte", byte(0xBE)).Return(nil)
		conn.On("Read", mock.Anything).Return(blank, nil)
		return conn
	}

	dev := &Dev{bus: &mockBus{conn: newConn()}, config: buildOpts(nil), resolution: Resolution12Bit}
	spad, err := dev.ReadScratchpad(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -0.0625, spad.Temperature(Resolution12Bit))

	dev = &Dev{bus: &mockBus{conn: newConn()}, config: buildOpts([]Opt{WithCRCValidation(true)}), resolution: Resolution12Bit}
	_, err = dev.ReadScratchpad(context.Background())
	assert.True(t, errors.Is(err, owtemp.ErrDeviceNotResponding))
	assert.False(t, errors.Is(err, owtemp.ErrDataCorrupt))
}
