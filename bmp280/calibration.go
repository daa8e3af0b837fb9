package bmp280

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// SeaLevelPressure is the standard atmosphere at sea level, in Pa.
const SeaLevelPressure = 101325.0

// ErrZeroDivisor is returned when the calibration makes the pressure formula
// divide by zero. It usually means the calibration block read back as zeros.
var ErrZeroDivisor = errors.New("bmp280: pressure compensation divisor is zero")

// Calibration holds the factory trimming coefficients. They are read once
// when the device is opened.
type Calibration struct {
	T1             uint16
	T2, T3         int16
	P1             uint16
	P2, P3, P4, P5 int16
	P6, P7, P8, P9 int16
}

// newCalibration parses the 24 byte little-endian block starting at 0x88.
func newCalibration(b []byte) Calibration {
	u := func(i int) uint16 { return binary.LittleEndian.Uint16(b[i:]) }
	s := func(i int) int16 { return int16(u(i)) }
	return Calibration{
		T1: u(0), T2: s(2), T3: s(4),
		P1: u(6), P2: s(8), P3: s(10), P4: s(12), P5: s(14),
		P6: s(16), P7: s(18), P8: s(20), P9: s(22),
	}
}

// CompensateTemperature returns the temperature in 0.01°C and the fine
// temperature the pressure formula needs. An output of 5123 is 51.23°C.
//
// raw has 20 bits of resolution. This is the integer formula from section
// 3.11.3 of the BMP280 datasheet; intermediates are widened to 64 bits.
func (c Calibration) CompensateTemperature(raw int32) (int32, int32) {
	adc := int64(raw)
	t1 := int64(c.T1)
	var1 := (((adc >> 3) - (t1 << 1)) * int64(c.T2)) >> 11
	var2 := (((((adc >> 4) - t1) * ((adc >> 4) - t1)) >> 12) * int64(c.T3)) >> 14
	tFine := var1 + var2
	return int32((tFine*5 + 128) >> 8), int32(tFine)
}

// CompensatePressure returns the pressure in Pa as unsigned Q24.8 (24
// integer bits, 8 fractional bits). An output of 24674867 is
// 24674867/256 = 96386.2 Pa.
//
// raw has 20 bits of resolution. This is the 64 bit integer formula from the
// BMP280 datasheet.
func (c Calibration) CompensatePressure(raw, tFine int32) (uint32, error) {
	var1 := int64(tFine) - 128000
	var2 := var1 * var1 * int64(c.P6)
	var2 += (var1 * int64(c.P5)) << 17
	var2 += int64(c.P4) << 35
	var1 = ((var1 * var1 * int64(c.P3)) >> 8) + ((var1 * int64(c.P2)) << 12)
	var1 = (((int64(1) << 47) + var1) * int64(c.P1)) >> 33
	if var1 == 0 {
		return 0, ErrZeroDivisor
	}

	p := 1048576 - int64(raw)
	p = (((p << 31) - var2) * 3125) / var1
	var1 = (int64(c.P9) * (p >> 13) * (p >> 13)) >> 25
	var2 = (int64(c.P8) * p) >> 19
	p = ((p + var1 + var2) >> 8) + (int64(c.P7) << 4)
	return uint32(p), nil
}

// Altitude returns the height in metres above the level where the pressure is
// seaLevel, both in Pa, using the international barometric formula. It
// returns 0 when either pressure is not positive.
func Altitude(pressure, seaLevel float64) float64 {
	if pressure <= 0 || seaLevel <= 0 {
		return 0
	}
	return 44330 * (1 - math.Pow(pressure/seaLevel, 1/5.255))
}
