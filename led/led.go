package led

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

// Sleeper is satisfied by clockwork.Clock.
type Sleeper interface {
	Sleep(d time.Duration)
}

type LED struct {
	Name    string
	lock    sync.Mutex
	on      bool
	gpioPin gpio.PinOut
	clock   Sleeper
	// Pulse is the on and off time of a Flash or Flicker pulse.
	Pulse time.Duration
}

// NewLED drives pin as an indicator. A nil pin gives an LED that logs and
// does nothing; clock may be nil for the real clock.
func NewLED(name string, pin gpio.PinOut, clock Sleeper) *LED {
	logger.Infof("Creating new LED on pin [%v] called [%v]", pin, name)
	if pin == nil {
		logger.Errorf("No pin for LED [%v]", name)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	l := &LED{
		Name:    name,
		gpioPin: pin,
		clock:   clock,
		Pulse:   100 * time.Millisecond,
	}
	l.Off()
	return l
}

func (l *LED) On() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.on = true
	l.out(gpio.High)
}

func (l *LED) Off() {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.on = false
	l.out(gpio.Low)
}

// Flash inverts the LED for one pulse. A flash already in progress swallows
// the request.
func (l *LED) Flash() {
	if l.gpioPin == nil {
		return
	}
	if !l.lock.TryLock() {
		logger.Debugf("LED busy [%v]", l.Name)
		return
	}
	defer l.lock.Unlock()
	l.out(!gpio.Level(l.on))
	l.clock.Sleep(l.Pulse)
	l.out(gpio.Level(l.on))
}

// Flicker blinks the LED pulses times and leaves it off.
func (l *LED) Flicker(pulses int) {
	if l.gpioPin == nil {
		return
	}
	if pulses < 1 || pulses > 100 {
		// reject daft or excessive requests
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	for i := 0; i < pulses; i++ {
		l.out(gpio.High)
		l.clock.Sleep(l.Pulse)
		l.out(gpio.Low)
		l.clock.Sleep(l.Pulse)
	}
	l.on = false
}

func (l *LED) IsOn() bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.on
}

func (l *LED) out(level gpio.Level) {
	if l.gpioPin == nil {
		return
	}
	if err := l.gpioPin.Out(level); err != nil {
		logger.Errorf("LED [%v] write failed [%v]", l.Name, err)
	}
}
