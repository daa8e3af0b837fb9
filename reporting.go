package main

import (
	"math"
	"time"

	"github.com/gr-butler/weatherpanel/data"
	"github.com/gr-butler/weatherpanel/hwerr"
	"github.com/gr-butler/weatherpanel/sensors"
	"github.com/pkg/errors"

	logger "github.com/sirupsen/logrus"
)

const Rd = 287.1
const g = 9.807 // gravity
const kelvin = 273.1

// hPa change across the history window that counts as a trend
const trendThreshold = 1.0

type trend int

const (
	noTrend trend = iota
	steady
	rising
	falling
)

func (t trend) String() string {
	switch t {
	case steady:
		return "STEADY"
	case rising:
		return "RISING"
	case falling:
		return "FALLING"
	}
	return "--"
}

func pressureTrend(change float64, ok bool) trend {
	switch {
	case !ok:
		return noTrend
	case change >= trendThreshold:
		return rising
	case change <= -trendThreshold:
		return falling
	}
	return steady
}

// report is everything measured or derived in one cycle.
type report struct {
	Time           time.Time
	Count          int
	HaveClimate    bool
	Climate        sensors.Climate
	HaveAtmosphere bool
	Atmosphere     sensors.Atmosphere
	// DHT and BMP are how each sensor fared this cycle.
	DHT      sensors.Status
	BMP      sensors.Status
	HaveTemp bool
	// TempC is the BMP280 temperature when available, else the DHT11's.
	TempC       float64
	DewPointC   float64
	SeaLevelhPa float64
	HaveRange   bool
	TempMin     float64
	TempMax     float64
	Trend       trend
	Alerts      alerts
}

// prepData reads every sensor, records the history and updates the gauges.
func (w *weatherstation) prepData() *report {
	r := report{Time: w.clock.Now(), Count: w.count}

	c, err := w.s.ReadClimate()
	r.DHT = sensorError("dht11", err)
	if err == nil {
		r.Climate, r.HaveClimate = c, true
	}
	a, err := w.s.ReadAtmosphere()
	r.BMP = sensorError("bmp280", err)
	if err == nil {
		r.Atmosphere, r.HaveAtmosphere = a, true
	}

	switch {
	case r.HaveAtmosphere:
		r.TempC, r.HaveTemp = r.Atmosphere.Temperature.Float64(), true
	case r.HaveClimate:
		r.TempC, r.HaveTemp = r.Climate.Temperature.Float64(), true
	}

	if r.HaveTemp {
		w.data.Record(data.Temperature, r.TempC)
		Prom_temperature.Set(r.TempC)
	}
	if r.HaveClimate {
		rh := r.Climate.Humidity.Float64()
		w.data.Record(data.Humidity, rh)
		Prom_humidity.Set(rh)
		r.DewPointC = dewPoint(r.TempC, rh)
		Prom_dewPoint.Set(r.DewPointC)
	}
	if r.HaveAtmosphere {
		hPa := r.Atmosphere.Pressure.Float64()
		w.data.Record(data.PressurehPa, hPa)
		Prom_atmPresure.Set(hPa)
		r.SeaLevelhPa = seaLevelPressure(hPa, r.TempC, w.elevation)
		Prom_seaLevelPressure.Set(r.SeaLevelhPa)
		Prom_altitude.Set(r.Atmosphere.Altitude.Float64())
	}

	r.TempMin, r.TempMax, r.HaveRange = w.data.Range(data.Temperature)
	r.Trend = pressureTrend(w.data.Trend(data.PressurehPa))
	r.Alerts = w.limits.check(&r)
	return &r
}

// sensorError logs and counts a failed read and gives the sensor's status
// for the cycle.
func sensorError(sensor string, err error) sensors.Status {
	switch {
	case err == nil:
		return sensors.OK
	case errors.Is(err, sensors.ErrDisabled):
		return sensors.Off
	}
	kind := string(hwerr.KindOf(err))
	if kind == "" {
		kind = "unknown"
	}
	logger.Errorf("Failed to read %v [%v]", sensor, err)
	Prom_sensorErrors.WithLabelValues(sensor, kind).Inc()
	return sensors.Failed
}

/*
	Sea level pressure from the station pressure:
	1. Convert the temperature to Kelvin by adding 273.1 to the Celsius value.
	2. Compute the scale height H = RdT/g, where Rd = 287.1 J/(kg K) and g = 9.807 m/s2.
	3. psl = p0 exp(z0/H) where z0 is the station height above sea level.
*/
func seaLevelPressure(hPa, tempC, elevation float64) float64 {
	H := (Rd * (tempC + kelvin)) / g
	return math.Round(hPa*math.Exp(elevation/H)*100) / 100
}

// dewPoint uses the simple approximation good above 50%RH.
func dewPoint(tempC, rh float64) float64 {
	return math.Round((tempC-(100-rh)/5.0)*10) / 10
}
