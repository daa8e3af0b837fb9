package main

import (
	"fmt"
	"image"

	"github.com/gr-butler/weatherpanel/sensors"
	"github.com/gr-butler/weatherpanel/st7789"
)

// panel is the part of the display the screens draw with.
type panel interface {
	Bounds() image.Rectangle
	Fill(c st7789.Color) error
	DrawText(s string, x, y int, fg st7789.Color, bg ...st7789.Color) error
	Draw(r image.Rectangle, src image.Image, sp image.Point) error
}

const (
	margin     = 5
	lineHeight = 15
	// most alerts listed at once
	maxAlerts = 3
)

type line struct {
	Text  string
	Color st7789.Color
	// Gap is the space above the line.
	Gap int
}

// lines lays out one cycle's values top to bottom.
func lines(r *report) []line {
	out := []line{{Text: "WEATHER STATION", Color: st7789.Cyan}}
	switch {
	case r.Alerts.NoData:
		out = append(out, line{Text: "STATUS: NO DATA", Color: st7789.Red, Gap: 20})
	case r.Alerts.OK():
		out = append(out, line{Text: "STATUS: OK", Color: st7789.Green, Gap: 20})
	default:
		out = append(out, line{Text: "STATUS: ALERT!", Color: st7789.Red, Gap: 20})
	}

	gap := 25
	add := func(c st7789.Color, format string, args ...interface{}) {
		out = append(out, line{Text: fmt.Sprintf(format, args...), Color: c, Gap: gap})
		gap = lineHeight
	}

	if r.HaveTemp {
		c := st7789.White
		switch {
		case r.Alerts.TempHigh:
			c = st7789.Red
		case r.Alerts.TempLow:
			c = st7789.Blue
		}
		add(c, "Temp: %.1fC", r.TempC)
	} else {
		add(st7789.White, "Temp: --")
	}
	if r.HaveClimate {
		c := st7789.White
		if r.Alerts.humidity() {
			c = st7789.Yellow
		}
		add(c, "Hum: %.0f%%", r.Climate.Humidity.Float64())
		add(st7789.White, "Dew: %.1fC", r.DewPointC)
	} else if r.DHT == sensors.Failed {
		add(st7789.Red, "DHT11: %v", r.DHT)
	} else {
		add(st7789.White, "Hum: --")
	}
	if r.HaveAtmosphere {
		add(st7789.White, "Press: %.1fhPa", r.Atmosphere.Pressure.Float64())
		if r.SeaLevelhPa != r.Atmosphere.Pressure.Float64() {
			add(st7789.White, "MSL: %.1fhPa", r.SeaLevelhPa)
		}
		add(st7789.White, "Alt: %.1fm", r.Atmosphere.Altitude.Float64())
	} else if r.BMP == sensors.Failed {
		add(st7789.Red, "BMP280: %v", r.BMP)
	} else {
		add(st7789.White, "Press: --")
	}
	if r.Trend != noTrend {
		add(st7789.White, "Trend: %v", r.Trend)
	}
	if r.HaveRange {
		add(st7789.White, "Min/Max: %.1f/%.1fC", r.TempMin, r.TempMax)
	}

	if active := r.Alerts.Active(); len(active) > 0 {
		gap = 20
		add(st7789.Red, "ALERTS:")
		if len(active) > maxAlerts {
			active = active[:maxAlerts]
		}
		for _, a := range active {
			add(st7789.Yellow, "- %v", a)
		}
	}
	return out
}

// render clears the panel and draws the report. Lines that would run into
// the footer are dropped.
func render(p panel, r *report) error {
	if err := p.Fill(st7789.Black); err != nil {
		return err
	}
	footer := p.Bounds().Dy() - 20
	y := margin
	for i, ln := range lines(r) {
		if i > 0 {
			y += ln.Gap
		}
		if y+8 > footer {
			break
		}
		if err := p.DrawText(ln.Text, margin, y, ln.Color); err != nil {
			return err
		}
	}
	return p.DrawText(fmt.Sprintf("Cycle: %d", r.Count), margin, footer, st7789.Green)
}

func statusColor(s sensors.Status) st7789.Color {
	switch s {
	case sensors.OK:
		return st7789.Green
	case sensors.Failed:
		return st7789.Red
	}
	return st7789.White
}

// renderBoot shows the logo centred at the top and the sensor status below
// it.
func renderBoot(p panel, logo image.Image, dht, bmp sensors.Status) error {
	if err := p.Fill(st7789.Black); err != nil {
		return err
	}
	y := 100
	if logo != nil {
		r := centre(logo.Bounds(), p.Bounds(), margin)
		if err := p.Draw(r, logo, logo.Bounds().Min); err != nil {
			return err
		}
		y = r.Max.Y + 10
	}
	boot := []line{
		{Text: "WEATHER STATION", Color: st7789.Green},
		{Text: "STARTING...", Color: st7789.White},
		{Text: "DHT11: " + dht.String(), Color: statusColor(dht)},
		{Text: "BMP280: " + bmp.String(), Color: statusColor(bmp)},
	}
	if dht != sensors.OK && bmp != sensors.OK {
		boot = append(boot, line{Text: "NO SENSORS", Color: st7789.Red})
	}
	for _, ln := range boot {
		if y+8 > p.Bounds().Dy() {
			break
		}
		if err := p.DrawText(ln.Text, 10, y, ln.Color); err != nil {
			return err
		}
		y += 20
	}
	return nil
}
