package main

import (
	"os"
	"time"

	logger "github.com/sirupsen/logrus"
)

// StartAtmosphericMonitor samples, records and shows the sensors every
// interval until a signal arrives on stop.
func (w *weatherstation) StartAtmosphericMonitor(interval time.Duration, stop <-chan os.Signal) {
	logger.Info("Starting atmosphere monitor")
	w.tick()

	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			w.tick()
		case s := <-stop:
			logger.Infof("Caught [%v], stopping", s)
			return
		}
	}
}

func (w *weatherstation) tick() {
	w.count++
	r := w.prepData()
	if r.HaveTemp {
		logger.Infof("Temp [%.2f] RH [%v] hPa [%v] alerts %v", r.TempC, r.Climate.Humidity, r.Atmosphere.Pressure, r.Alerts.Active())
	} else {
		logger.Warnf("No temperature at %v dht [%v] bmp [%v]", r.Time.Format(time.ANSIC), r.DHT, r.BMP)
	}

	w.leds.show(r.Alerts)
	if r.Alerts.OK() {
		w.leds.heartbeat()
	}
	if w.screen == nil {
		return
	}
	if err := render(w.screen, r); err != nil {
		logger.Errorf("Failed to update display [%v]", err)
	}
}
