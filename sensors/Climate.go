package sensors

import (
	"time"

	"github.com/pkg/errors"
)

// Climate is one DHT11 measurement.
type Climate struct {
	Temperature TemperatureC
	Humidity    RelHumidity
	Time        time.Time
}

// ReadClimate measures the DHT11. Inside the sensor's minimum interval the
// previous reading is returned.
func (s *Sensors) ReadClimate() (Climate, error) {
	if s.dht == nil {
		return Climate{}, ErrDisabled
	}
	if err := s.dht.Measure(); err != nil {
		return Climate{}, errors.WithMessage(err, "dht11")
	}
	r, err := s.dht.Reading()
	if err != nil {
		return Climate{}, errors.WithMessage(err, "dht11")
	}
	return Climate{
		Temperature: TemperatureC(r.Temperature),
		Humidity:    RelHumidity(r.Humidity),
		Time:        r.Time,
	}, nil
}
