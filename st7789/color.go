package st7789

import "image/color"

// Color is a 16 bit RGB565 pixel, sent most significant byte first.
type Color uint16

// Common colors.
const (
	Black   Color = 0x0000
	Red     Color = 0xF800
	Green   Color = 0x07E0
	Blue    Color = 0x001F
	White   Color = 0xFFFF
	Yellow  Color = 0xFFE0
	Cyan    Color = 0x07FF
	Magenta Color = 0xF81F
)

// Color565 packs 8 bit channels, keeping the top 5, 6 and 5 bits.
func Color565(r, g, b uint8) Color {
	return Color(uint16(r&0xF8)<<8 | uint16(g&0xFC)<<3 | uint16(b)>>3)
}

// RGBA implements color.Color.
func (c Color) RGBA() (r, g, b, a uint32) {
	r5 := uint32(c>>11) & 0x1F
	g6 := uint32(c>>5) & 0x3F
	b5 := uint32(c) & 0x1F
	r = r5<<3 | r5>>2
	g = g6<<2 | g6>>4
	b = b5<<3 | b5>>2
	return r | r<<8, g | g<<8, b | b<<8, 0xFFFF
}

func (c Color) put(b []byte) {
	b[0] = byte(c >> 8)
	b[1] = byte(c)
}

// ColorModel converts any color to the nearest RGB565 value. Alpha is
// ignored.
var ColorModel = color.ModelFunc(convert)

func convert(c color.Color) color.Color {
	return toColor(c)
}

func toColor(c color.Color) Color {
	if v, ok := c.(Color); ok {
		return v
	}
	r, g, b, _ := c.RGBA()
	return Color565(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}
