package env

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

type Args struct {
	Verbose    *bool
	Metrics    *bool
	Listen     *string
	DHTEnabled *bool
	BMPEnabled *bool
	Display    *bool
	I2CBus     *string
	BMPAddress *int
	SPIPort    *string
	DHTPin     *string
	ResetPin   *string
	DCPin      *string
	BLPin      *string
	Width      *int
	Height     *int
	XStart     *int
	YStart     *int
	Rotation   *int
	BGR        *bool
	Interval   *time.Duration
	History    *time.Duration
	SeaLevel   *float64
	Elevation  *float64
	Logo       *string

	LEDs         *bool
	OKLED        *string
	TempLED      *string
	HumidityLED  *string
	TempHigh     *float64
	TempLow      *float64
	HumidityHigh *float64
	HumidityLow  *float64
}

// NewArgs registers the command line flags on fs. Defaults come from the
// process environment where a matching variable is set, so a .env file loaded
// with Load before this call can change them.
func NewArgs(fs *flag.FlagSet) Args {
	return Args{
		Verbose:    fs.Bool("verbose", Bool("VERBOSE", false), "debug logging"),
		Metrics:    fs.Bool("metrics", Bool(SendPromData, false), "serve prometheus metrics"),
		Listen:     fs.String("listen", String("LISTEN", ":80"), "metrics listen address"),
		DHTEnabled: fs.Bool("dht", Bool("ENABLE_DHT11", true), "enable the DHT11 sensor"),
		BMPEnabled: fs.Bool("bmp", Bool("ENABLE_BMP280", true), "enable the BMP280 sensor"),
		Display:    fs.Bool("display", Bool("ENABLE_DISPLAY", true), "enable the ST7789 display"),
		I2CBus:     fs.String("bus", String("I2C_BUS", ""), "I²C bus (/dev/i2c-1)"),
		BMPAddress: fs.Int("address", Int("BMP280_ADDRESS", BMP280Address), "BMP280 I²C address"),
		SPIPort:    fs.String("spi", String("SPI_PORT", ""), "SPI port (/dev/spidev0.0)"),
		DHTPin:     fs.String("dht-pin", String("DHT11_PIN", DHTIn), "DHT11 data pin"),
		ResetPin:   fs.String("rst-pin", String("DISPLAY_RST", DisplayReset), "display reset pin"),
		DCPin:      fs.String("dc-pin", String("DISPLAY_DC", DisplayDC), "display data/command pin"),
		BLPin:      fs.String("bl-pin", String("DISPLAY_BLK", DisplayBacklight), "display backlight pin, also the boot LED"),
		Width:      fs.Int("width", Int("DISPLAY_WIDTH", DisplayWidth), "display width in pixels"),
		Height:     fs.Int("height", Int("DISPLAY_HEIGHT", DisplayHeight), "display height in pixels"),
		XStart:     fs.Int("xstart", Int("DISPLAY_XSTART", 0), "display column offset"),
		YStart:     fs.Int("ystart", Int("DISPLAY_YSTART", 0), "display row offset"),
		Rotation:   fs.Int("rotation", Int("DISPLAY_ROTATION", 0), "display rotation, 0 to 3 quarter turns"),
		BGR:        fs.Bool("bgr", Bool("DISPLAY_BGR", false), "panel expects blue/green/red order"),
		Interval:   fs.Duration("interval", Duration("INTERVAL", ReadInterval), "time between readings"),
		History:    fs.Duration("history", Duration("HISTORY", HistoryWindow), "window for min/max and pressure trend"),
		SeaLevel:   fs.Float64("sealevel", Float("SEA_LEVEL_PA", SeaLevelPa), "sea level pressure in Pa for altitude"),
		Elevation:  fs.Float64("elevation", Float("ELEVATION", 0), "station height in metres for sea level pressure"),
		Logo:       fs.String("logo", String("LOGO", ""), "image shown while booting"),

		LEDs:         fs.Bool("leds", Bool("ENABLE_LEDS", false), "drive the status LEDs"),
		OKLED:        fs.String("ok-led", String("LED_OK", LEDOk), "green LED pin, lit while no alert is active"),
		TempLED:      fs.String("temp-led", String("LED_TEMPERATURE", LEDTemperature), "red LED pin, lit on a temperature alert"),
		HumidityLED:  fs.String("humidity-led", String("LED_HUMIDITY", LEDHumidity), "yellow LED pin, lit on a humidity alert"),
		TempHigh:     fs.Float64("temp-high", Float("TEMP_ALERT_HIGH", TempAlertHigh), "high temperature alert in °C"),
		TempLow:      fs.Float64("temp-low", Float("TEMP_ALERT_LOW", TempAlertLow), "low temperature alert in °C"),
		HumidityHigh: fs.Float64("humidity-high", Float("HUMIDITY_ALERT_HIGH", HumidityAlertHigh), "high humidity alert in %RH"),
		HumidityLow:  fs.Float64("humidity-low", Float("HUMIDITY_ALERT_LOW", HumidityAlertLow), "low humidity alert in %RH"),
	}
}

// Load reads KEY=value pairs from the given files into the environment.
// Variables already set win. Missing files are ignored.
func Load(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); os.IsNotExist(err) {
			logger.Debugf("No env file [%v]", f)
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return errors.Wrapf(err, "loading %s", f)
		}
		logger.Infof("Loaded env file [%v]", f)
	}
	return nil
}

func String(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func Bool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logger.Warnf("Ignoring [%v=%v]: %v", key, v, err)
		return def
	}
	return b
}

func Int(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	// base 0 so addresses can be written as 0x76
	i, err := strconv.ParseInt(v, 0, 64)
	if err != nil {
		logger.Warnf("Ignoring [%v=%v]: %v", key, v, err)
		return def
	}
	return int(i)
}

func Float(key string, def float64) float64 {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warnf("Ignoring [%v=%v]: %v", key, v, err)
		return def
	}
	return f
}

func Duration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warnf("Ignoring [%v=%v]: %v", key, v, err)
		return def
	}
	return d
}
