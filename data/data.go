package data

import (
	"github.com/gr-butler/weatherpanel/buffer"
	logger "github.com/sirupsen/logrus"
)

// holder for the recent history of every measured value

const (
	Temperature = "temperature"
	Humidity    = "humidity"
	PressurehPa = "pressurehPa"
)

type WeatherData struct {
	buffers map[string]*buffer.SampleBuffer
}

// CreateWeatherData makes a buffer of size samples for each name.
func CreateWeatherData(size int, names ...string) *WeatherData {
	wd := WeatherData{}

	wd.buffers = make(map[string]*buffer.SampleBuffer)
	for _, n := range names {
		wd.AddBuffer(n, buffer.NewBuffer(size))
	}

	return &wd
}

func (wd *WeatherData) AddBuffer(name string, b *buffer.SampleBuffer) {
	wd.buffers[name] = b
}

func (wd *WeatherData) GetBuffer(name string) *buffer.SampleBuffer {
	return wd.buffers[name]
}

// Record adds a sample to the named buffer.
func (wd *WeatherData) Record(name string, val float64) {
	b := wd.buffers[name]
	if b == nil {
		logger.Warnf("No buffer [%v]", name)
		return
	}
	b.AddItem(val)
}

// Range is the lowest and highest sample held for name.
func (wd *WeatherData) Range(name string) (min float64, max float64, ok bool) {
	b := wd.buffers[name]
	if b == nil {
		return 0, 0, false
	}
	_, mn, mx, ok := b.GetAverageMinMax()
	return float64(mn), float64(mx), ok
}

// Trend is how much name changed across the buffer.
func (wd *WeatherData) Trend(name string) (float64, bool) {
	b := wd.buffers[name]
	if b == nil {
		return 0, false
	}
	return b.Change()
}
