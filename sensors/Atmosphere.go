package sensors

import (
	"math"
	"time"

	"github.com/gr-butler/weatherpanel/bmp280"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

type PressurehPa float64
type RelHumidity float64
type TemperatureC float64
type Metres float64

func (p PressurehPa) Float64() float64 {
	return float64(p)
}

func (r RelHumidity) Float64() float64 {
	return float64(r)
}

func (t TemperatureC) Float64() float64 {
	return float64(t)
}

func (m Metres) Float64() float64 {
	return float64(m)
}

// Atmosphere is one BMP280 measurement.
type Atmosphere struct {
	Temperature TemperatureC
	Pressure    PressurehPa
	Altitude    Metres
	Time        time.Time
}

// ReadAtmosphere reads the BMP280.
func (s *Sensors) ReadAtmosphere() (Atmosphere, error) {
	if s.bmp == nil {
		return Atmosphere{}, ErrDisabled
	}
	r, err := s.bmp.Read()
	if err != nil {
		logger.Debugf("BMP280 read failed [%v]", err)
		return Atmosphere{}, errors.WithMessage(err, "bmp280")
	}
	pa := r.Pascal()
	return Atmosphere{
		Temperature: TemperatureC(r.Celsius()),
		// round to 2dp
		Pressure: PressurehPa(math.Round(pa) / 100),
		Altitude: Metres(math.Round(bmp280.Altitude(pa, s.seaLevel)*10) / 10),
		Time:     r.Time,
	}, nil
}
