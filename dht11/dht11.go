// Package dht11 drives a DHT11 class temperature/humidity sensor over its
// single-wire, pulse-width encoded protocol.
//
// The host starts a transaction by holding the data line low, then releases
// it. The sensor acknowledges with a low and a high pulse and then sends 40
// bits; each bit is a ~50µs low followed by a high pulse whose width encodes
// the value (~26µs for 0, ~70µs for 1). The frame is humidity, humidity
// decimal, temperature, temperature decimal and a truncated-sum checksum.
//
// Every wait is a deadline on a monotonic clock, so a missing or stuck sensor
// always ends in a hwerr.Timeout rather than a hang.
package dht11

import (
	"fmt"
	"time"

	"github.com/gr-butler/weatherpanel/hwerr"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// ErrNoReading is returned by the accessors before any measurement succeeded.
var ErrNoReading = errors.New("dht11: no successful reading")

// Clock is the time source used for protocol timing. clockwork.Clock
// satisfies it.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// Opts holds the protocol timing. Zero fields take the defaults from
// DefaultOpts.
type Opts struct {
	// MinInterval is the shortest time between two transactions the sensor
	// tolerates. Measure is a no-op inside this window after a success.
	MinInterval time.Duration
	// HostHigh, HostLow and HostRelease shape the start signal.
	HostHigh    time.Duration
	HostLow     time.Duration
	HostRelease time.Duration
	// PhaseTimeout bounds every single level the sensor drives.
	PhaseTimeout time.Duration
	// BitThreshold separates a 0 from a 1 by the width of the high pulse.
	BitThreshold time.Duration
	// PollInterval is slept between line samples. Zero busy-polls.
	PollInterval time.Duration
	// Clock defaults to the real monotonic clock.
	Clock Clock
}

// DefaultOpts are the timings from the DHT11 datasheet.
var DefaultOpts = Opts{
	MinInterval:  2 * time.Second,
	HostHigh:     50 * time.Millisecond,
	HostLow:      18 * time.Millisecond,
	HostRelease:  40 * time.Microsecond,
	PhaseTimeout: 100 * time.Microsecond,
	BitThreshold: 40 * time.Microsecond,
}

// Frame is one raw 40 bit transmission.
type Frame [5]byte

// Sum is the checksum the sensor should have sent for f.
func (f Frame) Sum() byte {
	return f[0] + f[1] + f[2] + f[3]
}

// Valid reports whether the checksum byte matches the payload.
func (f Frame) Valid() bool {
	return f[4] == f.Sum()
}

// Reading is the last successfully decoded measurement.
type Reading struct {
	Temperature int // °C
	Humidity    int // %RH
	Frame       Frame
	Valid       bool
	Time        time.Time
}

// Dev is a handle to a DHT11 on a single gpio line. It must not be used
// concurrently.
type Dev struct {
	pin   gpio.PinIO
	opts  Opts
	clock Clock

	reading     Reading
	lastAttempt time.Time
	lastOK      bool
}

// New returns a driver for the sensor on p. It does not touch the line.
func New(p gpio.PinIO, opts *Opts) *Dev {
	o := DefaultOpts
	if opts != nil {
		o = withDefaults(*opts)
	}
	d := &Dev{pin: p, opts: o, clock: o.Clock}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}
	return d
}

func withDefaults(o Opts) Opts {
	if o.MinInterval <= 0 {
		o.MinInterval = DefaultOpts.MinInterval
	}
	if o.HostHigh <= 0 {
		o.HostHigh = DefaultOpts.HostHigh
	}
	if o.HostLow <= 0 {
		o.HostLow = DefaultOpts.HostLow
	}
	if o.HostRelease <= 0 {
		o.HostRelease = DefaultOpts.HostRelease
	}
	if o.PhaseTimeout <= 0 {
		o.PhaseTimeout = DefaultOpts.PhaseTimeout
	}
	if o.BitThreshold <= 0 {
		o.BitThreshold = DefaultOpts.BitThreshold
	}
	return o
}

func (d *Dev) String() string {
	return fmt.Sprintf("DHT11{%s}", d.pin)
}

// Halt leaves the line released with its pull-up.
func (d *Dev) Halt() error {
	return d.pin.In(gpio.PullUp, gpio.NoEdge)
}

// Measure runs one start/ack/decode cycle. If the previous attempt succeeded
// less than MinInterval ago the cached reading is kept and nothing is sent.
//
// A timeout or checksum failure is returned as is; the last good reading
// stays available through the accessors.
func (d *Dev) Measure() error {
	now := d.clock.Now()
	if d.lastOK && now.Sub(d.lastAttempt) < d.opts.MinInterval {
		return nil
	}
	d.lastAttempt = now
	d.lastOK = false

	f, err := d.transact()
	if err != nil {
		logger.Debugf("DHT11 read failed [%v]", err)
		return err
	}
	if !f.Valid() {
		logger.Debugf("DHT11 checksum mismatch frame [% x]", f[:])
		return hwerr.New(hwerr.Checksum, "dht11: measure", "frame % x sums to 0x%02x", f[:], f.Sum())
	}

	d.reading = Reading{
		Humidity:    int(f[0]),
		Temperature: int(f[2]),
		Frame:       f,
		Valid:       true,
		Time:        d.clock.Now(),
	}
	d.lastOK = true
	return nil
}

// Reading returns the last successful measurement.
func (d *Dev) Reading() (Reading, error) {
	if !d.reading.Valid {
		return Reading{}, ErrNoReading
	}
	return d.reading, nil
}

// Temperature returns the last successfully measured temperature in °C.
func (d *Dev) Temperature() (int, error) {
	r, err := d.Reading()
	return r.Temperature, err
}

// Humidity returns the last successfully measured relative humidity in %.
func (d *Dev) Humidity() (int, error) {
	r, err := d.Reading()
	return r.Humidity, err
}

// Sense measures and stores temperature and humidity in e. Pressure is left
// untouched.
func (d *Dev) Sense(e *physic.Env) error {
	if err := d.Measure(); err != nil {
		return err
	}
	e.Temperature = physic.ZeroCelsius + physic.Temperature(d.reading.Temperature)*physic.Celsius
	e.Humidity = physic.RelativeHumidity(d.reading.Humidity) * physic.PercentRH
	return nil
}

func (d *Dev) transact() (Frame, error) {
	var f Frame
	if err := d.start(); err != nil {
		return f, err
	}

	// Sensor response: line pulled low, then high, then low again for the
	// first bit.
	for _, l := range [...]gpio.Level{gpio.High, gpio.Low, gpio.High} {
		if _, err := d.waitWhile(l); err != nil {
			return f, errors.WithMessage(err, "waiting for sensor response")
		}
	}

	for i := 0; i < 40; i++ {
		if _, err := d.waitWhile(gpio.Low); err != nil {
			return f, errors.WithMessagef(err, "bit %d start", i)
		}
		high, err := d.waitWhile(gpio.High)
		if err != nil {
			return f, errors.WithMessagef(err, "bit %d", i)
		}
		f[i/8] <<= 1
		if high > d.opts.BitThreshold {
			f[i/8] |= 1
		}
	}
	return f, nil
}

// start drives the host start signal and releases the line.
func (d *Dev) start() error {
	steps := []struct {
		l gpio.Level
		t time.Duration
	}{
		{gpio.High, d.opts.HostHigh},
		{gpio.Low, d.opts.HostLow},
		{gpio.High, d.opts.HostRelease},
	}
	for _, s := range steps {
		if err := d.pin.Out(s.l); err != nil {
			return hwerr.Wrap(hwerr.Bus, "dht11: start", err)
		}
		d.clock.Sleep(s.t)
	}
	if err := d.pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return hwerr.Wrap(hwerr.Bus, "dht11: release", err)
	}
	return nil
}

// waitWhile returns how long the line stayed at l, or a timeout once it has
// been there longer than PhaseTimeout.
func (d *Dev) waitWhile(l gpio.Level) (time.Duration, error) {
	start := d.clock.Now()
	deadline := start.Add(d.opts.PhaseTimeout)
	for {
		level := d.pin.Read()
		now := d.clock.Now()
		if level != l {
			return now.Sub(start), nil
		}
		if now.After(deadline) {
			return 0, hwerr.New(hwerr.Timeout, "dht11: measure", "line %s for more than %s", l, d.opts.PhaseTimeout)
		}
		if d.opts.PollInterval > 0 {
			d.clock.Sleep(d.opts.PollInterval)
		}
	}
}
