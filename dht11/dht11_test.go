package dht11

import (
	"math/rand"
	"testing"
	"time"

	"github.com/gr-butler/weatherpanel/hwerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
)

// simClock advances one microsecond on every Now call, like a real clock
// moving while the driver polls.
type simClock struct {
	t time.Time
}

func newSimClock() *simClock {
	return &simClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *simClock) Now() time.Time {
	c.t = c.t.Add(time.Microsecond)
	return c.t
}

func (c *simClock) Sleep(d time.Duration) { c.t = c.t.Add(d) }

func (c *simClock) peek() time.Time { return c.t }

type segment struct {
	l gpio.Level
	d time.Duration
}

// wirePin plays back a sensor waveform once the host releases the line.
type wirePin struct {
	gpiotest.Pin
	clock        *simClock
	wave         []segment
	input        bool
	released     time.Time
	transactions int
}

func (p *wirePin) Out(l gpio.Level) error {
	p.input = false
	return p.Pin.Out(l)
}

func (p *wirePin) In(pull gpio.Pull, edge gpio.Edge) error {
	p.input = true
	p.released = p.clock.peek()
	p.transactions++
	return nil
}

func (p *wirePin) Read() gpio.Level {
	if !p.input {
		return p.Pin.Read()
	}
	elapsed := p.clock.peek().Sub(p.released)
	for _, s := range p.wave {
		if elapsed < s.d {
			return s.l
		}
		elapsed -= s.d
	}
	return gpio.High
}

// waveFor encodes f the way the sensor transmits it.
func waveFor(f Frame) []segment {
	w := []segment{
		{gpio.High, 20 * time.Microsecond},
		{gpio.Low, 80 * time.Microsecond},
		{gpio.High, 80 * time.Microsecond},
	}
	for _, b := range f {
		for bit := 7; bit >= 0; bit-- {
			high := 26 * time.Microsecond
			if b&(1<<uint(bit)) != 0 {
				high = 70 * time.Microsecond
			}
			w = append(w, segment{gpio.Low, 50 * time.Microsecond}, segment{gpio.High, high})
		}
	}
	return append(w, segment{gpio.Low, 50 * time.Microsecond})
}

func newTestDev(f Frame) (*Dev, *wirePin, *simClock) {
	c := newSimClock()
	p := &wirePin{Pin: gpiotest.Pin{N: "GPIO4"}, clock: c, wave: waveFor(f)}
	return New(p, &Opts{Clock: c}), p, c
}

func TestMeasure(t *testing.T) {
	d, p, _ := newTestDev(Frame{55, 0, 24, 0, 79})

	_, err := d.Temperature()
	require.ErrorIs(t, err, ErrNoReading)

	require.NoError(t, d.Measure())
	assert.Equal(t, 1, p.transactions)

	temp, err := d.Temperature()
	require.NoError(t, err)
	assert.Equal(t, 24, temp)
	hum, err := d.Humidity()
	require.NoError(t, err)
	assert.Equal(t, 55, hum)

	r, err := d.Reading()
	require.NoError(t, err)
	assert.True(t, r.Valid)
	assert.Equal(t, Frame{55, 0, 24, 0, 79}, r.Frame)
}

func TestMeasureDecodesValidFrames(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < 32; i++ {
		var f Frame
		for j := 0; j < 4; j++ {
			f[j] = byte(rng.Intn(256))
		}
		f[4] = f.Sum()
		require.True(t, f.Valid())
		require.Equal(t, f[4], byte((int(f[0])+int(f[1])+int(f[2])+int(f[3]))&0xFF))

		d, _, _ := newTestDev(f)
		require.NoError(t, d.Measure(), "frame % x", f[:])
		r, err := d.Reading()
		require.NoError(t, err)
		assert.Equal(t, f, r.Frame)
	}
}

func TestMeasureWithinMinInterval(t *testing.T) {
	d, p, c := newTestDev(Frame{40, 0, 21, 0, 61})

	require.NoError(t, d.Measure())
	first, err := d.Reading()
	require.NoError(t, err)

	c.Sleep(500 * time.Millisecond)
	require.NoError(t, d.Measure())
	second, err := d.Reading()
	require.NoError(t, err)

	assert.Equal(t, 1, p.transactions)
	assert.Equal(t, first, second)

	c.Sleep(2 * time.Second)
	require.NoError(t, d.Measure())
	assert.Equal(t, 2, p.transactions)
}

func TestMeasureChecksumKeepsPreviousReading(t *testing.T) {
	good := Frame{50, 0, 22, 0, 72}
	for i := range good {
		d, p, c := newTestDev(good)
		require.NoError(t, d.Measure())
		before, err := d.Reading()
		require.NoError(t, err)

		bad := good
		bad[i] ^= 0x04
		p.wave = waveFor(bad)
		c.Sleep(3 * time.Second)

		err = d.Measure()
		require.Error(t, err)
		assert.True(t, errors.Is(err, hwerr.Checksum), "byte %d: %v", i, err)

		after, err := d.Reading()
		require.NoError(t, err)
		assert.Equal(t, before, after, "byte %d", i)
		assert.Equal(t, 2, p.transactions)
	}
}

func TestMeasureAfterFailureIsNotGated(t *testing.T) {
	d, p, c := newTestDev(Frame{50, 0, 22, 0, 72})
	require.NoError(t, d.Measure())

	c.Sleep(3 * time.Second)
	p.wave = nil
	require.Error(t, d.Measure())

	// A failed attempt must not turn the next call into a silent success.
	p.wave = waveFor(Frame{51, 0, 23, 0, 74})
	require.NoError(t, d.Measure())
	assert.Equal(t, 3, p.transactions)
	temp, _ := d.Temperature()
	assert.Equal(t, 23, temp)
}

func TestMeasureTimeout(t *testing.T) {
	d, p, _ := newTestDev(Frame{})
	p.wave = nil // nobody answers; the pull-up keeps the line high

	err := d.Measure()
	require.Error(t, err)
	assert.True(t, errors.Is(err, hwerr.Timeout))
	assert.Equal(t, hwerr.Timeout, hwerr.KindOf(err))

	_, err = d.Humidity()
	assert.ErrorIs(t, err, ErrNoReading)
}

func TestMeasureTimeoutMidFrame(t *testing.T) {
	d, p, _ := newTestDev(Frame{1, 2, 3, 4, 10})
	// Stuck low after the tenth bit.
	p.wave = append(p.wave[:3+20], segment{gpio.Low, time.Second})

	err := d.Measure()
	require.Error(t, err)
	assert.True(t, errors.Is(err, hwerr.Timeout))
	assert.Contains(t, err.Error(), "bit 10")
}

func TestSense(t *testing.T) {
	d, _, _ := newTestDev(Frame{60, 0, 25, 0, 85})

	e := physic.Env{}
	require.NoError(t, d.Sense(&e))
	assert.Equal(t, physic.ZeroCelsius+25*physic.Celsius, e.Temperature)
	assert.Equal(t, 60*physic.PercentRH, e.Humidity)
	assert.Equal(t, physic.Pressure(0), e.Pressure)
}

func TestOptsDefaults(t *testing.T) {
	d := New(&gpiotest.Pin{N: "GPIO4"}, &Opts{MinInterval: 5 * time.Second})

	assert.Equal(t, 5*time.Second, d.opts.MinInterval)
	assert.Equal(t, DefaultOpts.HostLow, d.opts.HostLow)
	assert.Equal(t, DefaultOpts.BitThreshold, d.opts.BitThreshold)
	assert.NotNil(t, d.clock)
	assert.Contains(t, d.String(), "DHT11{GPIO4")
}
