package main

import (
	"github.com/gr-butler/weatherpanel/led"
	"periph.io/x/conn/v3/gpio"
)

// limits are inclusive: a reading equal to a limit raises the alert.
type limits struct {
	TempHigh     float64
	TempLow      float64
	HumidityHigh float64
	HumidityLow  float64
}

type alerts struct {
	// NoData is set when no sensor gave a reading.
	NoData       bool
	TempHigh     bool
	TempLow      bool
	HumidityHigh bool
	HumidityLow  bool
}

func (l limits) check(r *report) alerts {
	a := alerts{NoData: !r.HaveClimate && !r.HaveAtmosphere}
	if r.HaveTemp {
		a.TempHigh = r.TempC >= l.TempHigh
		a.TempLow = !a.TempHigh && r.TempC <= l.TempLow
	}
	if r.HaveClimate {
		h := r.Climate.Humidity.Float64()
		a.HumidityHigh = h >= l.HumidityHigh
		a.HumidityLow = !a.HumidityHigh && h <= l.HumidityLow
	}
	return a
}

// OK is true when there is data and none of it is out of limits.
func (a alerts) OK() bool {
	return !(a.NoData || a.temperature() || a.humidity())
}

func (a alerts) temperature() bool {
	return a.TempHigh || a.TempLow
}

func (a alerts) humidity() bool {
	return a.HumidityHigh || a.HumidityLow
}

// Active names the raised limit alerts, temperature first.
func (a alerts) Active() []string {
	var names []string
	if a.TempHigh {
		names = append(names, "TEMP HIGH")
	}
	if a.TempLow {
		names = append(names, "TEMP LOW")
	}
	if a.HumidityHigh {
		names = append(names, "HUMIDITY HIGH")
	}
	if a.HumidityLow {
		names = append(names, "HUMIDITY LOW")
	}
	return names
}

// indicators are the green, red and yellow status LEDs.
type indicators struct {
	ok       *led.LED
	temp     *led.LED
	humidity *led.LED
}

func newIndicators(ok, temp, humidity gpio.PinOut, clock led.Sleeper) *indicators {
	return &indicators{
		ok:       led.NewLED("ok", ok, clock),
		temp:     led.NewLED("temperature", temp, clock),
		humidity: led.NewLED("humidity", humidity, clock),
	}
}

func (i *indicators) show(a alerts) {
	if i == nil {
		return
	}
	set(i.ok, a.OK())
	set(i.temp, a.temperature())
	set(i.humidity, a.humidity())
}

func (i *indicators) off() {
	if i == nil {
		return
	}
	i.ok.Off()
	i.temp.Off()
	i.humidity.Off()
}

// heartbeat blinks the lit OK LED off for one pulse.
func (i *indicators) heartbeat() {
	if i == nil {
		return
	}
	i.ok.Flash()
}

func set(l *led.LED, on bool) {
	if l.IsOn() == on {
		return
	}
	if on {
		l.On()
	} else {
		l.Off()
	}
}
