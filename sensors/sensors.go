package sensors

import (
	"github.com/gr-butler/weatherpanel/bmp280"
	"github.com/gr-butler/weatherpanel/dht11"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
)

/*
 * Sensors owns the sensor drivers and converts their output to real values.
 */

// ErrDisabled is returned when reading a sensor that was not configured.
var ErrDisabled = errors.New("sensor disabled")

type Status int

const (
	Off Status = iota
	OK
	Failed
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Failed:
		return "ERROR"
	}
	return "OFF"
}

type Config struct {
	// DHTPin is the DHT11 data line; nil disables the sensor.
	DHTPin  gpio.PinIO
	DHTOpts *dht11.Opts
	// Bus carries the BMP280; nil disables the sensor.
	Bus        i2c.Bus
	BMPAddress uint16
	BMPOpts    *bmp280.Opts
	// SeaLevel is the reference pressure in Pa for altitude.
	SeaLevel float64
}

type Sensors struct {
	dht       *dht11.Dev
	bmp       *bmp280.Dev
	dhtStatus Status
	bmpStatus Status
	seaLevel  float64
}

// New builds the configured drivers. A sensor that fails to come up is
// logged and marked Failed; the others still work.
func New(cfg Config) *Sensors {
	s := &Sensors{seaLevel: cfg.SeaLevel}
	if s.seaLevel <= 0 {
		s.seaLevel = bmp280.SeaLevelPressure
	}

	if cfg.DHTPin != nil {
		logger.Infof("Starting DHT11 on [%v]", cfg.DHTPin)
		s.dht = dht11.New(cfg.DHTPin, cfg.DHTOpts)
		s.dhtStatus = OK
	}

	if cfg.Bus != nil {
		logger.Infof("Starting BMP280 reader [%x]", cfg.BMPAddress)
		bmp, err := bmp280.New(cfg.Bus, cfg.BMPAddress, cfg.BMPOpts)
		if err != nil {
			logger.Errorf("Failed to initialize bmp280: %v", err)
			s.bmpStatus = Failed
		} else {
			s.bmp = bmp
			s.bmpStatus = OK
		}
	}
	return s
}

// Status reports how each sensor came up.
func (s *Sensors) Status() (dht Status, bmp Status) {
	return s.dhtStatus, s.bmpStatus
}

// Halt releases the DHT11 line and puts the BMP280 to sleep.
func (s *Sensors) Halt() error {
	var err error
	if s.dht != nil {
		err = s.dht.Halt()
	}
	if s.bmp != nil {
		if e := s.bmp.Halt(); e != nil && err == nil {
			err = e
		}
	}
	return err
}
