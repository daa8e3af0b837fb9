package main

import (
	"flag"
	"image"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gr-butler/weatherpanel/data"
	"github.com/gr-butler/weatherpanel/env"
	"github.com/gr-butler/weatherpanel/led"
	"github.com/gr-butler/weatherpanel/sensors"
	"github.com/gr-butler/weatherpanel/st7789"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	logger "github.com/sirupsen/logrus"
)

const version = "GRB-WeatherPanel-1.0.0"

type weatherstation struct {
	s         *sensors.Sensors
	data      *data.WeatherData
	screen    panel // nil without a display
	leds      *indicators
	limits    limits
	elevation float64
	clock     clockwork.Clock
	count     int
}

var Prom_atmPresure = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "atmospheric_pressure",
		Help: "Atmospheric pressure hPa",
	},
)

var Prom_seaLevelPressure = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "sea_level_pressure",
		Help: "Pressure reduced to sea level hPa",
	},
)

var Prom_humidity = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "relative_humidity",
		Help: "Relative Humidity",
	},
)

var Prom_temperature = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "temperature",
		Help: "Temperature C",
	},
)

var Prom_dewPoint = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "dew_point",
		Help: "Dew point C",
	},
)

var Prom_altitude = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "altitude",
		Help: "Altitude from pressure m",
	},
)

var Prom_sensorErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "sensor_errors_total",
		Help: "Failed sensor reads by sensor and failure kind",
	},
	[]string{"sensor", "kind"},
)

// called by prometheus
func init() {
	logger.Infof("%v: Initialize prometheus...", time.Now().Format(time.RFC822))
	prometheus.MustRegister(
		Prom_atmPresure,
		Prom_seaLevelPressure,
		Prom_humidity,
		Prom_temperature,
		Prom_dewPoint,
		Prom_altitude,
		Prom_sensorErrors)
}

func main() {
	logger.Infof("Starting weather panel [%v]", version)

	if err := env.Load(".env"); err != nil {
		logger.Errorf("Ignoring env file [%v]", err)
	}
	args := env.NewArgs(flag.CommandLine)
	flag.Parse()

	if *args.Verbose {
		logger.SetLevel(logger.DebugLevel)
	}

	if _, err := host.Init(); err != nil {
		logger.Fatalf("Failed to initialize periph [%v]", err)
	}

	// boot blink on the backlight before the display owns it
	boot := led.NewLED("boot", pin(*args.BLPin), nil)
	boot.Pulse = env.LEDFlashDuration
	boot.Flicker(env.BootBlinks)

	logger.Infof("%v: Initialize sensors...", time.Now().Format(time.RFC822))
	cfg := sensors.Config{SeaLevel: *args.SeaLevel}
	if *args.DHTEnabled {
		cfg.DHTPin = gpioreg.ByName(*args.DHTPin)
		if cfg.DHTPin == nil {
			logger.Errorf("No DHT11 pin [%v]", *args.DHTPin)
		}
	}
	if *args.BMPEnabled {
		bus, err := i2creg.Open(*args.I2CBus)
		if err != nil {
			logger.Errorf("Failed to open I²C bus [%v]", err)
		} else {
			defer bus.Close()
			cfg.Bus = bus
			cfg.BMPAddress = uint16(*args.BMPAddress)
		}
	}

	w := &weatherstation{
		s: sensors.New(cfg),
		data: data.CreateWeatherData(historySize(*args.History, *args.Interval),
			data.Temperature, data.Humidity, data.PressurehPa),
		limits: limits{
			TempHigh:     *args.TempHigh,
			TempLow:      *args.TempLow,
			HumidityHigh: *args.HumidityHigh,
			HumidityLow:  *args.HumidityLow,
		},
		elevation: *args.Elevation,
		clock:     clockwork.NewRealClock(),
	}
	defer w.s.Halt()

	if *args.LEDs {
		w.leds = newIndicators(pin(*args.OKLED), pin(*args.TempLED), pin(*args.HumidityLED), w.clock)
		defer w.leds.off()
	}

	if *args.Display {
		// Flicker has returned, so the backlight pin is free for the display.
		var d *st7789.Dev
		var port io.Closer
		err := w.retry("display", env.DisplayAttempts, env.DisplayRetryPause, func() (err error) {
			d, port, err = openDisplay(args)
			return err
		})
		if err != nil {
			logger.Errorf("Failed to initialise display!! [%v]", err)
		} else {
			defer port.Close()
			defer d.Halt()
			w.screen = d
			w.boot(*args.Logo)
		}
	}

	if *args.Metrics {
		go func() {
			logger.Info("Starting webservice...")
			http.Handle("/metrics", promhttp.Handler())
			logger.Fatal(http.ListenAndServe(*args.Listen, nil))
		}()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	w.StartAtmosphericMonitor(*args.Interval, sigs)
	defer logger.Info("Exiting...")
}

// pin looks up a gpio by name; an empty name or unknown pin gives nil.
func pin(name string) gpio.PinIO {
	if name == "" {
		return nil
	}
	p := gpioreg.ByName(name)
	if p == nil {
		logger.Errorf("No such pin [%v]", name)
	}
	return p
}

// openDisplay brings up the panel. On failure the port is closed again so
// the next attempt can reopen it.
func openDisplay(args env.Args) (*st7789.Dev, io.Closer, error) {
	port, err := spireg.Open(*args.SPIPort)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening spi port")
	}
	rst, dc := pin(*args.ResetPin), pin(*args.DCPin)
	if rst == nil || dc == nil {
		port.Close()
		return nil, nil, errors.Errorf("display needs reset and dc pins, got [%v] [%v]", *args.ResetPin, *args.DCPin)
	}
	d, err := st7789.NewSPI(port, rst, dc, pin(*args.BLPin), &st7789.Opts{
		Width:    *args.Width,
		Height:   *args.Height,
		XStart:   *args.XStart,
		YStart:   *args.YStart,
		Rotation: st7789.Rotation(*args.Rotation % 4),
		BGR:      *args.BGR,
	})
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	return d, port, nil
}

// retry calls fn up to attempts times, pausing between failures. It returns
// the last error.
func (w *weatherstation) retry(what string, attempts int, pause time.Duration, fn func() error) error {
	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		logger.Warnf("%v attempt [%d/%d] failed [%v]", what, i, attempts, err)
		if i < attempts {
			w.clock.Sleep(pause)
		}
	}
	return err
}

// boot shows the logo, if any, and how each sensor came up.
func (w *weatherstation) boot(logoPath string) {
	var logo image.Image
	if logoPath != "" {
		img, err := loadLogo(logoPath, w.screen.Bounds())
		if err != nil {
			logger.Errorf("No boot logo [%v]", err)
		} else {
			logo = img
		}
	}
	dht, bmp := w.s.Status()
	if err := renderBoot(w.screen, logo, dht, bmp); err != nil {
		logger.Errorf("Failed to draw boot screen [%v]", err)
	}
}

// historySize is how many samples taken every interval cover window.
func historySize(window, interval time.Duration) int {
	if interval <= 0 || window < interval {
		return 1
	}
	return int(window / interval)
}
