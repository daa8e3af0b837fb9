package bmp280

import (
	"testing"
	"time"

	"github.com/gr-butler/weatherpanel/hwerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
)

// Worked example from section 3.12 of the datasheet.
var (
	datasheetCal = Calibration{
		T1: 27504, T2: 26435, T3: -1000,
		P1: 36477, P2: -10685, P3: 3024, P4: 2855, P5: 140,
		P6: -7, P7: 15500, P8: -14600, P9: 6000,
	}
	datasheetCalBytes = []byte{
		0x70, 0x6B, 0x43, 0x67, 0x18, 0xFC, 0x7D, 0x8E, 0x43, 0xD6, 0xD0, 0x0B,
		0x27, 0x0B, 0x8C, 0x00, 0xF9, 0xFF, 0x8C, 0x3C, 0xF8, 0xC6, 0x70, 0x17,
	}
	// adc_P = 415148, adc_T = 519888
	datasheetRaw = []byte{0x65, 0x5A, 0xC0, 0x7E, 0xED, 0x00}
)

func initOps(addr uint16, ctrl byte) []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: addr, W: []byte{0xD0}, R: []byte{0x58}},
		{Addr: addr, W: []byte{0x88}, R: datasheetCalBytes},
		{Addr: addr, W: []byte{0xF5, 0x0C, 0xF4, ctrl}},
	}
}

type stepClock struct{ t time.Time }

func (c *stepClock) Now() time.Time        { return c.t }
func (c *stepClock) Sleep(d time.Duration) { c.t = c.t.Add(d) }

// nackBus refuses every transfer to the listed addresses.
type nackBus struct {
	*i2ctest.Playback
	nack map[uint16]bool
}

func (b *nackBus) Tx(addr uint16, w, r []byte) error {
	if b.nack[addr] {
		return errors.Errorf("i2c: no ACK from 0x%02x", addr)
	}
	return b.Playback.Tx(addr, w, r)
}

func TestCalibrationParse(t *testing.T) {
	assert.Equal(t, datasheetCal, newCalibration(datasheetCalBytes))
}

func TestCompensateDatasheetExample(t *testing.T) {
	temp, tFine := datasheetCal.CompensateTemperature(519888)
	assert.Equal(t, int32(128422), tFine)
	assert.Equal(t, int32(2508), temp)

	p, err := datasheetCal.CompensatePressure(415148, tFine)
	require.NoError(t, err)
	assert.Equal(t, uint32(25767233), p)
	// The datasheet quotes 100653.27 Pa from its floating point table.
	assert.InDelta(t, 100653.27, float64(p)/256, 0.05)
}

func TestCompensatePressureZeroDivisor(t *testing.T) {
	c := datasheetCal
	c.P1 = 0

	_, tFine := c.CompensateTemperature(519888)
	p, err := c.CompensatePressure(415148, tFine)
	assert.ErrorIs(t, err, ErrZeroDivisor)
	assert.Equal(t, uint32(0), p)
}

func TestAltitude(t *testing.T) {
	assert.Equal(t, 0.0, Altitude(SeaLevelPressure, SeaLevelPressure))
	assert.InDelta(t, 56.08, Altitude(100653.25, SeaLevelPressure), 0.01)
	assert.Equal(t, 0.0, Altitude(0, SeaLevelPressure))
	assert.Equal(t, 0.0, Altitude(100000, 0))
	assert.Less(t, Altitude(102000, SeaLevelPressure), 0.0)
}

func TestNewAndRead(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: append(initOps(0x76, 0x27),
			i2ctest.IO{Addr: 0x76, W: []byte{0xF7}, R: datasheetRaw},
		),
		DontPanic: true,
	}

	d, err := New(&bus, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, Address, d.Addr())
	assert.Equal(t, datasheetCal, d.Calibration())

	r, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, int32(519888), r.RawTemperature)
	assert.Equal(t, int32(415148), r.RawPressure)
	assert.Equal(t, int32(2508), r.Temperature)
	assert.Equal(t, uint32(25767233), r.Pressure)
	assert.InDelta(t, 25.08, r.Celsius(), 1e-9)
	assert.InDelta(t, 100653.25, r.Pascal(), 0.01)

	require.NoError(t, bus.Close())
}

func TestNewFallsBackToAlternateAddress(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: append([]i2ctest.IO{
			// A BME280 answering on the primary address.
			{Addr: 0x76, W: []byte{0xD0}, R: []byte{0x60}},
		}, initOps(0x77, 0x27)...),
		DontPanic: true,
	}

	d, err := New(&bus, 0x76, nil)
	require.NoError(t, err)
	assert.Equal(t, AddressAlt, d.Addr())
	require.NoError(t, bus.Close())
}

func TestNewFallsBackOnNack(t *testing.T) {
	bus := &nackBus{
		Playback: &i2ctest.Playback{Ops: initOps(0x76, 0x27), DontPanic: true},
		nack:     map[uint16]bool{0x77: true},
	}

	d, err := New(bus, AddressAlt, nil)
	require.NoError(t, err)
	assert.Equal(t, Address, d.Addr())
	require.NoError(t, bus.Close())
}

func TestNewDeviceNotFound(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x76, W: []byte{0xD0}, R: []byte{0x60}},
			{Addr: 0x77, W: []byte{0xD0}, R: []byte{0xFF}},
		},
		DontPanic: true,
	}

	d, err := New(&bus, 0, nil)
	require.Error(t, err)
	assert.Nil(t, d)
	assert.True(t, errors.Is(err, hwerr.DeviceNotFound))
	require.NoError(t, bus.Close())

	both := &nackBus{Playback: &i2ctest.Playback{DontPanic: true}, nack: map[uint16]bool{0x76: true, 0x77: true}}
	_, err = New(both, 0, nil)
	assert.True(t, errors.Is(err, hwerr.DeviceNotFound))
}

func TestReadBusError(t *testing.T) {
	bus := i2ctest.Playback{Ops: initOps(0x76, 0x27), DontPanic: true}
	d, err := New(&bus, 0, nil)
	require.NoError(t, err)

	// Playback has nothing left, so the next transfer fails.
	_, err = d.Read()
	require.Error(t, err)
	assert.True(t, errors.Is(err, hwerr.Bus))
}

func TestReadForcedMode(t *testing.T) {
	opts := DefaultOpts
	opts.Mode = ModeForced
	opts.Clock = &stepClock{}
	bus := i2ctest.Playback{
		Ops: append(initOps(0x76, 0x25),
			i2ctest.IO{Addr: 0x76, W: []byte{0xF4, 0x25}},
			i2ctest.IO{Addr: 0x76, W: []byte{0xF3}, R: []byte{0x08}},
			i2ctest.IO{Addr: 0x76, W: []byte{0xF3}, R: []byte{0x00}},
			i2ctest.IO{Addr: 0x76, W: []byte{0xF7}, R: datasheetRaw},
		),
		DontPanic: true,
	}

	d, err := New(&bus, 0, &opts)
	require.NoError(t, err)
	r, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, int32(2508), r.Temperature)
	require.NoError(t, bus.Close())
}

func TestReadForcedModeTimeout(t *testing.T) {
	opts := DefaultOpts
	opts.Mode = ModeForced
	opts.ConversionTimeout = 5 * time.Millisecond
	opts.Clock = &stepClock{}
	ops := append(initOps(0x76, 0x25), i2ctest.IO{Addr: 0x76, W: []byte{0xF4, 0x25}})
	for i := 0; i < 3; i++ {
		ops = append(ops, i2ctest.IO{Addr: 0x76, W: []byte{0xF3}, R: []byte{0x08}})
	}
	bus := i2ctest.Playback{Ops: ops, DontPanic: true}

	d, err := New(&bus, 0, &opts)
	require.NoError(t, err)
	_, err = d.Read()
	assert.True(t, errors.Is(err, hwerr.Timeout))
	require.NoError(t, bus.Close())
}

func TestNewZeroOptsRunsNormalMode(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x76, W: []byte{0xD0}, R: []byte{0x58}},
			{Addr: 0x76, W: []byte{0x88}, R: datasheetCalBytes},
			// x1 oversampling and normal mode, filter and standby as given
			{Addr: 0x76, W: []byte{0xF5, 0x00, 0xF4, 0x27}},
			{Addr: 0x76, W: []byte{0xF7}, R: datasheetRaw},
		},
		DontPanic: true,
	}

	d, err := New(&bus, 0, &Opts{Clock: &stepClock{}})
	require.NoError(t, err)
	r, err := d.Read()
	require.NoError(t, err)
	assert.Equal(t, int32(2508), r.Temperature)
	require.NoError(t, bus.Close())
}

func TestReadSkippedMeasurement(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: append(initOps(0x76, 0x27),
			i2ctest.IO{Addr: 0x76, W: []byte{0xF7}, R: []byte{0x80, 0x00, 0x00, 0x80, 0x00, 0x00}},
			i2ctest.IO{Addr: 0x76, W: []byte{0xF7}, R: []byte{0x65, 0x5A, 0xC0, 0x80, 0x00, 0x00}},
		),
		DontPanic: true,
	}
	d, err := New(&bus, 0, nil)
	require.NoError(t, err)

	r, err := d.Read()
	assert.True(t, errors.Is(err, hwerr.Invalid))
	assert.Equal(t, Reading{}, r)

	// temperature alone skipped
	_, err = d.Read()
	assert.Equal(t, hwerr.Invalid, hwerr.KindOf(err))
	require.NoError(t, bus.Close())
}

func TestReadZeroDivisorIsInvalid(t *testing.T) {
	cal := append([]byte(nil), datasheetCalBytes...)
	// P1 = 0
	cal[6], cal[7] = 0, 0
	bus := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x76, W: []byte{0xD0}, R: []byte{0x58}},
			{Addr: 0x76, W: []byte{0x88}, R: cal},
			{Addr: 0x76, W: []byte{0xF5, 0x0C, 0xF4, 0x27}},
			{Addr: 0x76, W: []byte{0xF7}, R: datasheetRaw},
		},
		DontPanic: true,
	}
	d, err := New(&bus, 0, nil)
	require.NoError(t, err)

	r, err := d.Read()
	assert.True(t, errors.Is(err, ErrZeroDivisor))
	assert.Equal(t, hwerr.Invalid, hwerr.KindOf(err))
	assert.Equal(t, int32(2508), r.Temperature)
	require.NoError(t, bus.Close())
}

func TestSense(t *testing.T) {
	bus := i2ctest.Playback{
		Ops:       append(initOps(0x76, 0x27), i2ctest.IO{Addr: 0x76, W: []byte{0xF7}, R: datasheetRaw}),
		DontPanic: true,
	}
	d, err := New(&bus, 0, nil)
	require.NoError(t, err)

	e := physic.Env{}
	require.NoError(t, d.Sense(&e))
	assert.InDelta(t, 25.08, e.Temperature.Celsius(), 0.001)
	assert.InDelta(t, 100653.25, float64(e.Pressure)/float64(physic.Pascal), 0.01)
	assert.Equal(t, physic.RelativeHumidity(0), e.Humidity)
}

func TestSleepWake(t *testing.T) {
	bus := i2ctest.Playback{
		Ops: append(initOps(0x76, 0x27),
			i2ctest.IO{Addr: 0x76, W: []byte{0xF4}, R: []byte{0x27}},
			i2ctest.IO{Addr: 0x76, W: []byte{0xF4, 0x24}},
			i2ctest.IO{Addr: 0x76, W: []byte{0xF4}, R: []byte{0x24}},
			i2ctest.IO{Addr: 0x76, W: []byte{0xF4, 0x27}},
		),
		DontPanic: true,
	}
	d, err := New(&bus, 0, nil)
	require.NoError(t, err)

	require.NoError(t, d.Sleep())
	require.NoError(t, d.Wake())
	require.NoError(t, bus.Close())
}

func TestOptsRegisters(t *testing.T) {
	assert.Equal(t, byte(0x27), DefaultOpts.ctrlMeas())
	assert.Equal(t, byte(0x0C), DefaultOpts.config())

	o := Opts{Temperature: O2x, Pressure: O16x, Filter: F16, Standby: S1s, Mode: ModeNormal}
	assert.Equal(t, byte(0x57), o.ctrlMeas())
	assert.Equal(t, byte(0xB0), o.config())

	o = withDefaults(Opts{Pressure: O4x, Mode: ModeForced})
	assert.Equal(t, byte(0x2D), o.ctrlMeas())
	assert.Equal(t, DefaultOpts.ConversionTimeout, o.ConversionTimeout)
}
