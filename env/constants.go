package env

import "time"

// periph gpioreg names.
const (
	GPIO2  = "GPIO2"
	GPIO4  = "GPIO4"
	GPIO5  = "GPIO5"
	GPIO12 = "GPIO12"
	GPIO13 = "GPIO13"
	GPIO15 = "GPIO15"
	GPIO19 = "GPIO19"

	DHTIn            = GPIO4
	DisplayReset     = GPIO19
	DisplayDC        = GPIO15
	DisplayBacklight = GPIO5
	LEDOk            = GPIO2
	LEDTemperature   = GPIO12
	LEDHumidity      = GPIO13

	BMP280Address = 0x76

	DisplayWidth  = 240
	DisplayHeight = 240

	ReadInterval  = 5 * time.Second
	HistoryWindow = 3 * time.Hour

	SeaLevelPa = 101325.0

	TempAlertHigh     = 35.0
	TempAlertLow      = 5.0
	HumidityAlertHigh = 85.0
	HumidityAlertLow  = 20.0

	DisplayAttempts   = 5
	DisplayRetryPause = 500 * time.Millisecond

	// Boot blink on the backlight before the display takes it over.
	BootBlinks       = 3
	LEDFlashDuration = 200 * time.Millisecond

	// SendPromData enables the metrics endpoint when set to true.
	SendPromData = "SENDPROMDATA"
)
