// Package bmp280 controls a Bosch BMP280 pressure and temperature sensor over
// I²C.
//
// The device is probed at its configured address and, failing that, at the
// other address the part can be strapped to. The factory calibration is read
// once at open time; every Read converts the raw ADC counts with the integer
// compensation formulas from the datasheet.
//
// # Datasheet
//
// https://www.bosch-sensortec.com/media/boschsensortec/downloads/datasheets/bst-bmp280-ds001.pdf
package bmp280

import (
	"fmt"
	"time"

	"github.com/gr-butler/weatherpanel/hwerr"
	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// I²C addresses the part can be strapped to.
const (
	Address    uint16 = 0x76
	AddressAlt uint16 = 0x77
)

// ChipID is the value of the identity register on a BMP280.
const ChipID = 0x58

const (
	regCalibration = 0x88
	regID          = 0xD0
	regStatus      = 0xF3
	regCtrlMeas    = 0xF4
	regConfig      = 0xF5
	regPress       = 0xF7 // 0xF7..0xF9 pressure, 0xFA..0xFC temperature

	calibrationSize = 24
	statusMeasuring = 0x08

	// raw value of a skipped measurement
	rawSkipped = 0x80000
)

// Oversampling is the number of samples averaged per conversion.
type Oversampling uint8

// Possible oversampling values. Off skips the measurement.
const (
	Off  Oversampling = 0
	O1x  Oversampling = 1
	O2x  Oversampling = 2
	O4x  Oversampling = 3
	O8x  Oversampling = 4
	O16x Oversampling = 5
)

// Filter is the IIR filter coefficient.
type Filter uint8

// Possible filter values.
const (
	NoFilter Filter = 0
	F2       Filter = 1
	F4       Filter = 2
	F8       Filter = 3
	F16      Filter = 4
)

// Standby is the idle time between conversions in normal mode.
type Standby uint8

// Possible standby values.
const (
	S0_5ms  Standby = 0
	S62_5ms Standby = 1
	S125ms  Standby = 2
	S250ms  Standby = 3
	S500ms  Standby = 4
	S1s     Standby = 5
	S2s     Standby = 6
	S4s     Standby = 7
)

// Mode is the power mode written to ctrl_meas.
type Mode uint8

// Power modes.
const (
	ModeSleep  Mode = 0
	ModeForced Mode = 1
	ModeNormal Mode = 3
)

// Clock is the time source used while waiting for a forced conversion.
// clockwork.Clock satisfies it.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Opts is the sensor configuration.
type Opts struct {
	Temperature Oversampling
	Pressure    Oversampling
	Filter      Filter
	Standby     Standby
	Mode        Mode
	// ConversionTimeout bounds the wait for a forced conversion.
	ConversionTimeout time.Duration
	// Clock defaults to the real clock.
	Clock Clock
}

// DefaultOpts is free running at the fastest rate with a light filter.
var DefaultOpts = Opts{
	Temperature:       O1x,
	Pressure:          O1x,
	Filter:            F8,
	Standby:           S0_5ms,
	Mode:              ModeNormal,
	ConversionTimeout: 100 * time.Millisecond,
}

// withDefaults fills the fields whose zero value would leave the part
// asleep or skip a measurement.
func withDefaults(o Opts) Opts {
	if o.Temperature == Off {
		o.Temperature = DefaultOpts.Temperature
	}
	if o.Pressure == Off {
		o.Pressure = DefaultOpts.Pressure
	}
	if o.Mode == ModeSleep {
		o.Mode = ModeNormal
	}
	if o.ConversionTimeout <= 0 {
		o.ConversionTimeout = DefaultOpts.ConversionTimeout
	}
	return o
}

func (o *Opts) ctrlMeas() byte {
	return byte(o.Temperature)<<5 | byte(o.Pressure)<<2 | byte(o.Mode)
}

func (o *Opts) config() byte {
	return byte(o.Standby)<<5 | byte(o.Filter)<<2
}

// Reading is one compensated measurement.
type Reading struct {
	Temperature    int32  // 0.01°C
	Pressure       uint32 // Pa, Q24.8
	RawTemperature int32
	RawPressure    int32
	Time           time.Time
}

// Celsius returns the temperature in °C.
func (r Reading) Celsius() float64 {
	return float64(r.Temperature) / 100
}

// Pascal returns the pressure in Pa.
func (r Reading) Pascal() float64 {
	return float64(r.Pressure) / 256
}

// Altitude returns the height in metres relative to seaLevel Pa.
func (r Reading) Altitude(seaLevel float64) float64 {
	return Altitude(r.Pascal(), seaLevel)
}

// Dev is a handle to an initialized BMP280. It must not be used concurrently.
type Dev struct {
	c     i2c.Dev
	opts  Opts
	cal   Calibration
	clock Clock
}

// New probes for a BMP280 at addr, or at the alternate address when addr does
// not answer with the right chip id, then reads the calibration and writes
// the configuration. addr 0 means Address. Zero oversampling or a sleep
// mode in opts are replaced by the DefaultOpts values.
func New(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	o := DefaultOpts
	if opts != nil {
		o = withDefaults(*opts)
	}
	if addr == 0 {
		addr = Address
	}
	d := &Dev{c: i2c.Dev{Bus: b, Addr: addr}, opts: o, clock: o.Clock}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}

	if err := d.probe(); err != nil {
		return nil, err
	}

	var buf [calibrationSize]byte
	if err := d.c.Tx([]byte{regCalibration}, buf[:]); err != nil {
		return nil, hwerr.Wrap(hwerr.Bus, "bmp280: read calibration", err)
	}
	d.cal = newCalibration(buf[:])

	// Register/value pairs; config goes first so it is applied while the
	// part is still asleep.
	if err := d.c.Tx([]byte{regConfig, o.config(), regCtrlMeas, o.ctrlMeas()}, nil); err != nil {
		return nil, hwerr.Wrap(hwerr.Bus, "bmp280: configure", err)
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("BMP280{%s}", &d.c)
}

// Addr is the address the device answered on.
func (d *Dev) Addr() uint16 {
	return d.c.Addr
}

// Calibration returns a copy of the factory coefficients.
func (d *Dev) Calibration() Calibration {
	return d.cal
}

// Read returns a compensated measurement. In forced mode it triggers a
// conversion and waits for it first.
//
// A skipped conversion is reported as hwerr.Invalid. So is ErrZeroDivisor,
// and then the returned reading still carries the temperature.
func (d *Dev) Read() (Reading, error) {
	if d.opts.Mode == ModeForced {
		if err := d.convert(); err != nil {
			return Reading{}, err
		}
	}

	var buf [6]byte
	if err := d.c.Tx([]byte{regPress}, buf[:]); err != nil {
		return Reading{}, hwerr.Wrap(hwerr.Bus, "bmp280: read", err)
	}
	// 20 bits each.
	r := Reading{
		RawPressure:    int32(buf[0])<<12 | int32(buf[1])<<4 | int32(buf[2])>>4,
		RawTemperature: int32(buf[3])<<12 | int32(buf[4])<<4 | int32(buf[5])>>4,
		Time:           d.clock.Now(),
	}
	if r.RawPressure == rawSkipped || r.RawTemperature == rawSkipped {
		return Reading{}, hwerr.New(hwerr.Invalid, "bmp280: read", "measurement skipped (raw 0x%05x 0x%05x)", r.RawPressure, r.RawTemperature)
	}

	t, tFine := d.cal.CompensateTemperature(r.RawTemperature)
	r.Temperature = t
	p, err := d.cal.CompensatePressure(r.RawPressure, tFine)
	if err != nil {
		return r, hwerr.Wrap(hwerr.Invalid, "bmp280: read", err)
	}
	r.Pressure = p
	return r, nil
}

// Altitude reads the pressure and converts it to metres above seaLevel Pa.
func (d *Dev) Altitude(seaLevel float64) (float64, error) {
	r, err := d.Read()
	if err != nil {
		return 0, err
	}
	return r.Altitude(seaLevel), nil
}

// Sense reads temperature and pressure into e. Humidity is left untouched.
func (d *Dev) Sense(e *physic.Env) error {
	r, err := d.Read()
	if err != nil {
		return err
	}
	// Convert CentiCelsius to Kelvin.
	e.Temperature = physic.Temperature(r.Temperature)*10*physic.MilliCelsius + physic.ZeroCelsius
	// 8 bits of fractional Pascal.
	e.Pressure = physic.Pressure(r.Pressure) * 15625 * physic.MicroPascal / 4
	return nil
}

// Sleep stops conversions.
func (d *Dev) Sleep() error {
	return d.setMode(ModeSleep)
}

// Wake resumes the configured mode; a device configured for sleep mode is
// put in normal mode.
func (d *Dev) Wake() error {
	m := d.opts.Mode
	if m == ModeSleep {
		m = ModeNormal
	}
	return d.setMode(m)
}

// Halt puts the device to sleep.
func (d *Dev) Halt() error {
	return d.Sleep()
}

func (d *Dev) probe() error {
	first := d.c.Addr
	id, err := d.chipID()
	if err == nil && id == ChipID {
		return nil
	}
	logger.Debugf("No BMP280 at [0x%02x] id [0x%02x] err [%v]", first, id, err)

	d.c.Addr = alternate(first)
	id, err = d.chipID()
	if err == nil && id == ChipID {
		logger.Infof("BMP280 found at alternate address [0x%02x]", d.c.Addr)
		return nil
	}
	if err != nil {
		return hwerr.Wrapf(hwerr.DeviceNotFound, "bmp280: probe", err, "no chip id 0x%02x at 0x%02x or 0x%02x", ChipID, first, d.c.Addr)
	}
	return hwerr.New(hwerr.DeviceNotFound, "bmp280: probe", "no chip id 0x%02x at 0x%02x or 0x%02x (last id 0x%02x)", ChipID, first, d.c.Addr, id)
}

func alternate(addr uint16) uint16 {
	if addr == Address {
		return AddressAlt
	}
	return Address
}

func (d *Dev) chipID() (byte, error) {
	var id [1]byte
	err := d.c.Tx([]byte{regID}, id[:])
	return id[0], err
}

func (d *Dev) setMode(m Mode) error {
	var v [1]byte
	if err := d.c.Tx([]byte{regCtrlMeas}, v[:]); err != nil {
		return hwerr.Wrap(hwerr.Bus, "bmp280: read ctrl_meas", err)
	}
	if err := d.c.Tx([]byte{regCtrlMeas, v[0]&^0x03 | byte(m)}, nil); err != nil {
		return hwerr.Wrap(hwerr.Bus, "bmp280: write ctrl_meas", err)
	}
	return nil
}

// convert starts a forced conversion and waits until the status register
// reports it done.
func (d *Dev) convert() error {
	if err := d.c.Tx([]byte{regCtrlMeas, d.opts.ctrlMeas()}, nil); err != nil {
		return hwerr.Wrap(hwerr.Bus, "bmp280: trigger", err)
	}
	deadline := d.clock.Now().Add(d.opts.ConversionTimeout)
	for {
		d.clock.Sleep(2 * time.Millisecond)
		var s [1]byte
		if err := d.c.Tx([]byte{regStatus}, s[:]); err != nil {
			return hwerr.Wrap(hwerr.Bus, "bmp280: status", err)
		}
		if s[0]&statusMeasuring == 0 {
			return nil
		}
		if d.clock.Now().After(deadline) {
			return hwerr.New(hwerr.Timeout, "bmp280: convert", "still measuring after %s", d.opts.ConversionTimeout)
		}
	}
}
