// Package st7789 controls a Sitronix ST7789 TFT controller over a 4-wire SPI
// connection (clock, data, chip select and a data/command line).
//
// The controller is used in RGB565 mode. Drawing works by defining an
// inclusive column/row window and streaming pixels into it in row-major order.
// Text is rendered in software from a fixed 8x8 bitmap font.
//
// The driver implements display.Drawer.
//
// # Datasheet
//
// https://www.rhydolabz.com/documents/33/ST7789.pdf
package st7789

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/gr-butler/weatherpanel/hwerr"
	"github.com/jonboulle/clockwork"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

const (
	cmdSWRESET   = 0x01
	cmdSLPIN     = 0x10
	cmdSLPOUT    = 0x11
	cmdINVOFF    = 0x20
	cmdINVON     = 0x21
	cmdDISPOFF   = 0x28
	cmdDISPON    = 0x29
	cmdCASET     = 0x2A
	cmdRASET     = 0x2B
	cmdRAMWR     = 0x2C
	cmdMADCTL    = 0x36
	cmdCOLMOD    = 0x3A
	cmdPORCTRL   = 0xB2
	cmdGCTRL     = 0xB7
	cmdVCOMS     = 0xBB
	cmdLCMCTRL   = 0xC0
	cmdVDVVRH    = 0xC2
	cmdVRHS      = 0xC3
	cmdVDVS      = 0xC4
	cmdFRCTRL2   = 0xC6
	cmdPWCTRL1   = 0xD0
	cmdPVGAMCTRL = 0xE0
	cmdNVGAMCTRL = 0xE1
)

// MADCTL bits.
const (
	madctlMY  = 0x80
	madctlMX  = 0x40
	madctlMV  = 0x20
	madctlBGR = 0x08
)

// Rotation is the panel orientation, clockwise.
type Rotation uint8

// Supported orientations.
const (
	Rotate0 Rotation = iota
	Rotate90
	Rotate180
	Rotate270
)

func (r Rotation) madctl() byte {
	switch r {
	case Rotate90:
		return madctlMX | madctlMV
	case Rotate180:
		return madctlMX | madctlMY
	case Rotate270:
		return madctlMY | madctlMV
	}
	return 0
}

func (r Rotation) landscape() bool {
	return r == Rotate90 || r == Rotate270
}

// Clock is used for the settle delays of the init sequence. clockwork.Clock
// satisfies it.
type Clock interface {
	Sleep(d time.Duration)
}

// Opts is the panel geometry and transfer configuration.
type Opts struct {
	// Width and Height are the panel size in the Rotate0 orientation.
	Width, Height int
	// XStart and YStart are the offset of the visible area in controller
	// memory. Panels smaller than 240x320 usually need one.
	XStart, YStart int
	Rotation       Rotation
	// BGR swaps red and blue for panels wired that way.
	BGR bool
	// CS is an optional chip select line driven by the driver. Leave nil when
	// the SPI port handles it or when CS is tied low.
	CS gpio.PinOut
	// ChunkPixels bounds the size of a single data transfer.
	ChunkPixels int
	// Clock defaults to the real clock.
	Clock Clock
}

// DefaultOpts is a 240x240 panel.
var DefaultOpts = Opts{
	Width:       240,
	Height:      240,
	ChunkPixels: 256,
}

// Dev is an open ST7789. It must not be used concurrently.
type Dev struct {
	c   spi.Conn
	rst gpio.PinOut
	dc  gpio.PinOut
	bl  gpio.PinOut
	cs  gpio.PinOut

	opts  Opts
	clock Clock

	// Logical size and memory offset for the current rotation.
	width, height int
	xoff, yoff    int
	rotation      Rotation

	buf []byte
}

// NewSPI connects to p in mode 3 at 40MHz and initializes the panel.
func NewSPI(p spi.Port, rst, dc, bl gpio.PinOut, opts *Opts) (*Dev, error) {
	c, err := p.Connect(40*physic.MegaHertz, spi.Mode3, 8)
	if err != nil {
		return nil, hwerr.Wrap(hwerr.Bus, "st7789: connect", err)
	}
	return New(c, rst, dc, bl, opts)
}

// New resets and initializes the panel on c. bl may be nil when the backlight
// is not switchable.
func New(c spi.Conn, rst, dc, bl gpio.PinOut, opts *Opts) (*Dev, error) {
	o := DefaultOpts
	if opts != nil {
		o = *opts
	}
	if o.Width <= 0 || o.Height <= 0 {
		o.Width, o.Height = DefaultOpts.Width, DefaultOpts.Height
	}
	if o.ChunkPixels <= 0 {
		o.ChunkPixels = DefaultOpts.ChunkPixels
	}
	d := &Dev{
		c:     c,
		rst:   rst,
		dc:    dc,
		bl:    bl,
		cs:    o.CS,
		opts:  o,
		clock: o.Clock,
		buf:   make([]byte, 2*o.ChunkPixels),
	}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}
	d.orient(o.Rotation)

	if err := d.reset(); err != nil {
		return nil, err
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	if err := d.Backlight(true); err != nil {
		return nil, err
	}
	logger.Infof("ST7789 ready [%dx%d] rotation [%d]", d.width, d.height, d.rotation)
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("ST7789{%s, %dx%d}", d.c, d.width, d.height)
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return ColorModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rect(0, 0, d.width, d.height)
}

// Halt turns the display and the backlight off.
func (d *Dev) Halt() error {
	if err := d.DisplayOn(false); err != nil {
		return err
	}
	return d.Backlight(false)
}

func (d *Dev) reset() error {
	steps := []struct {
		p gpio.PinOut
		l gpio.Level
	}{
		{d.cs, gpio.High},
		{d.dc, gpio.Low},
		{d.bl, gpio.Low},
	}
	for _, s := range steps {
		if s.p == nil {
			continue
		}
		if err := s.p.Out(s.l); err != nil {
			return hwerr.Wrap(hwerr.Bus, "st7789: reset", err)
		}
	}
	pulse := []struct {
		l gpio.Level
		t time.Duration
	}{
		{gpio.High, 50 * time.Millisecond},
		{gpio.Low, 50 * time.Millisecond},
		{gpio.High, 150 * time.Millisecond},
	}
	for _, s := range pulse {
		if err := d.rst.Out(s.l); err != nil {
			return hwerr.Wrap(hwerr.Bus, "st7789: reset", err)
		}
		d.clock.Sleep(s.t)
	}
	return nil
}

func (d *Dev) init() error {
	seq := []struct {
		cmd   byte
		data  []byte
		delay time.Duration
	}{
		{cmdSWRESET, nil, 150 * time.Millisecond},
		{cmdSLPOUT, nil, 120 * time.Millisecond},
		{cmdMADCTL, []byte{d.madctl()}, 0},
		{cmdCOLMOD, []byte{0x05}, 0}, // 16 bits per pixel
		{cmdPORCTRL, []byte{0x0C, 0x0C, 0x00, 0x33, 0x33}, 0},
		{cmdGCTRL, []byte{0x35}, 0},
		{cmdVCOMS, []byte{0x19}, 0},
		{cmdLCMCTRL, []byte{0x2C}, 0},
		{cmdVDVVRH, []byte{0x01}, 0},
		{cmdVRHS, []byte{0x12}, 0},
		{cmdVDVS, []byte{0x20}, 0},
		{cmdFRCTRL2, []byte{0x0F}, 0}, // 60Hz
		{cmdPWCTRL1, []byte{0xA4, 0xA1}, 0},
		{cmdPVGAMCTRL, []byte{0xD0, 0x04, 0x0D, 0x11, 0x13, 0x2B, 0x3F, 0x54, 0x4C, 0x18, 0x0D, 0x0B, 0x1F, 0x23}, 0},
		{cmdNVGAMCTRL, []byte{0xD0, 0x04, 0x0C, 0x11, 0x13, 0x2C, 0x3F, 0x44, 0x51, 0x2F, 0x1F, 0x1F, 0x20, 0x23}, 0},
		{cmdINVON, nil, 0},
		{cmdDISPON, nil, 120 * time.Millisecond},
	}
	for _, s := range seq {
		if err := d.command(s.cmd, s.data...); err != nil {
			return err
		}
		if s.delay > 0 {
			d.clock.Sleep(s.delay)
		}
	}
	return nil
}

// SetWindow sets the inclusive pixel window subsequent data fills and sends
// RAMWR. A window outside the panel is rejected without touching the bus.
func (d *Dev) SetWindow(x0, y0, x1, y1 int) error {
	if x0 < 0 || y0 < 0 || x0 > x1 || y0 > y1 || x1 >= d.width || y1 >= d.height {
		return hwerr.New(hwerr.Bounds, "st7789: window", "(%d,%d)-(%d,%d) outside %dx%d", x0, y0, x1, y1, d.width, d.height)
	}
	x0, x1 = x0+d.xoff, x1+d.xoff
	y0, y1 = y0+d.yoff, y1+d.yoff
	if err := d.command(cmdCASET, byte(x0>>8), byte(x0), byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	if err := d.command(cmdRASET, byte(y0>>8), byte(y0), byte(y1>>8), byte(y1)); err != nil {
		return err
	}
	return d.command(cmdRAMWR)
}

// Pixel sets a single pixel.
func (d *Dev) Pixel(x, y int, c Color) error {
	if x < 0 || y < 0 || x >= d.width || y >= d.height {
		return hwerr.New(hwerr.Bounds, "st7789: pixel", "(%d,%d) outside %dx%d", x, y, d.width, d.height)
	}
	if err := d.SetWindow(x, y, x, y); err != nil {
		return err
	}
	var b [2]byte
	c.put(b[:])
	return d.data(b[:])
}

// FillRect paints w x h pixels at (x, y), clipped to the panel. Pixels are
// streamed in transfers of at most ChunkPixels.
func (d *Dev) FillRect(x, y, w, h int, c Color) error {
	if w <= 0 || h <= 0 {
		return nil
	}
	r := image.Rect(x, y, x+w, y+h).Intersect(d.Bounds())
	if r.Empty() {
		return nil
	}
	if err := d.SetWindow(r.Min.X, r.Min.Y, r.Max.X-1, r.Max.Y-1); err != nil {
		return err
	}
	n := r.Dx() * r.Dy()
	chunk := n
	if chunk > d.opts.ChunkPixels {
		chunk = d.opts.ChunkPixels
	}
	for i := 0; i < chunk; i++ {
		c.put(d.buf[2*i:])
	}
	for n > 0 {
		k := chunk
		if n < k {
			k = n
		}
		if err := d.data(d.buf[:2*k]); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

// Fill paints the whole panel.
func (d *Dev) Fill(c Color) error {
	return d.FillRect(0, 0, d.width, d.height, c)
}

// HLine draws a horizontal line w pixels long.
func (d *Dev) HLine(x, y, w int, c Color) error {
	return d.FillRect(x, y, w, 1, c)
}

// VLine draws a vertical line h pixels long.
func (d *Dev) VLine(x, y, h int, c Color) error {
	return d.FillRect(x, y, 1, h, c)
}

// Rect draws the outline of a w x h rectangle.
func (d *Dev) Rect(x, y, w, h int, c Color) error {
	if err := d.HLine(x, y, w, c); err != nil {
		return err
	}
	if err := d.HLine(x, y+h-1, w, c); err != nil {
		return err
	}
	if err := d.VLine(x, y, h, c); err != nil {
		return err
	}
	return d.VLine(x+w-1, y, h, c)
}

// DrawText renders s with the 8x8 font, its top left corner at (x, y). Set
// glyph bits are drawn in fg. Unset bits are drawn in bg when given and left
// alone otherwise.
//
// The cursor moves 8 pixels per glyph. When the next glyph would not fit in
// the panel width the cursor returns to x on the next text line; '\n' does the
// same. Other characters outside ASCII 32..126 are skipped and do not move
// the cursor. A glyph that cannot fit on the panel returns a hwerr.Bounds
// error; glyphs before it stay drawn.
func (d *Dev) DrawText(s string, x, y int, fg Color, bg ...Color) error {
	return d.DrawTextScaled(s, x, y, 1, fg, bg...)
}

// DrawTextScaled is DrawText with every font pixel drawn as a scale x scale
// block.
func (d *Dev) DrawTextScaled(s string, x, y, scale int, fg Color, bg ...Color) error {
	if scale < 1 {
		scale = 1
	}
	cell := 8 * scale
	ox := x
	for _, r := range s {
		if r == '\n' {
			x, y = ox, y+cell
			continue
		}
		g, ok := Glyph(r)
		if !ok {
			continue
		}
		if x < 0 || y < 0 || x+cell > d.width || y+cell > d.height {
			return hwerr.New(hwerr.Bounds, "st7789: text", "glyph %q at (%d,%d) does not fit %dx%d", r, x, y, d.width, d.height)
		}
		if err := d.glyph(g, x, y, scale, fg, bg); err != nil {
			return err
		}
		x += cell
		if x+cell > d.width {
			x, y = ox, y+cell
		}
	}
	return nil
}

func (d *Dev) glyph(g [8]byte, x, y, scale int, fg Color, bg []Color) error {
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			c := fg
			if g[row]&(0x80>>uint(col)) == 0 {
				if len(bg) == 0 {
					continue
				}
				c = bg[0]
			}
			px, py := x+col*scale, y+row*scale
			var err error
			if scale == 1 {
				err = d.Pixel(px, py, c)
			} else {
				err = d.FillRect(px, py, scale, scale, c)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// Draw implements display.Drawer. r is clipped to the panel; src pixels are
// converted to RGB565 and streamed in chunks.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	clip := r.Intersect(d.Bounds())
	if clip.Empty() {
		return nil
	}
	sp = sp.Add(clip.Min.Sub(r.Min))
	if err := d.SetWindow(clip.Min.X, clip.Min.Y, clip.Max.X-1, clip.Max.Y-1); err != nil {
		return err
	}
	n := 0
	for y := 0; y < clip.Dy(); y++ {
		for x := 0; x < clip.Dx(); x++ {
			toColor(src.At(sp.X+x, sp.Y+y)).put(d.buf[n:])
			n += 2
			if n == len(d.buf) {
				if err := d.data(d.buf); err != nil {
					return err
				}
				n = 0
			}
		}
	}
	if n > 0 {
		return d.data(d.buf[:n])
	}
	return nil
}

// SetRotation changes the orientation. Content already on the panel is not
// redrawn.
func (d *Dev) SetRotation(r Rotation) error {
	prev := d.rotation
	d.orient(r)
	if err := d.command(cmdMADCTL, d.madctl()); err != nil {
		d.orient(prev)
		return err
	}
	return nil
}

// Invert turns display inversion on or off.
func (d *Dev) Invert(on bool) error {
	if on {
		return d.command(cmdINVON)
	}
	return d.command(cmdINVOFF)
}

// DisplayOn blanks or restores the panel without losing its memory.
func (d *Dev) DisplayOn(on bool) error {
	if on {
		return d.command(cmdDISPON)
	}
	return d.command(cmdDISPOFF)
}

// Sleep enters or leaves the controller sleep mode.
func (d *Dev) Sleep(on bool) error {
	cmd := byte(cmdSLPOUT)
	if on {
		cmd = cmdSLPIN
	}
	if err := d.command(cmd); err != nil {
		return err
	}
	d.clock.Sleep(120 * time.Millisecond)
	return nil
}

// Backlight switches the backlight. It is a no-op without a backlight pin.
func (d *Dev) Backlight(on bool) error {
	if d.bl == nil {
		return nil
	}
	if err := d.bl.Out(gpio.Level(on)); err != nil {
		return hwerr.Wrap(hwerr.Bus, "st7789: backlight", err)
	}
	return nil
}

func (d *Dev) orient(r Rotation) {
	d.rotation = r
	d.width, d.height = d.opts.Width, d.opts.Height
	d.xoff, d.yoff = d.opts.XStart, d.opts.YStart
	if r.landscape() {
		d.width, d.height = d.height, d.width
		d.xoff, d.yoff = d.yoff, d.xoff
	}
}

func (d *Dev) madctl() byte {
	m := d.rotation.madctl()
	if d.opts.BGR {
		m |= madctlBGR
	}
	return m
}

func (d *Dev) command(cmd byte, data ...byte) error {
	if err := d.write(gpio.Low, []byte{cmd}); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	return d.data(data)
}

func (d *Dev) data(b []byte) error {
	return d.write(gpio.High, b)
}

// write sends one transfer with DC at l. CS, when driven here, is held low for
// this transfer only.
func (d *Dev) write(l gpio.Level, b []byte) error {
	if err := d.dc.Out(l); err != nil {
		return hwerr.Wrap(hwerr.Bus, "st7789: dc", err)
	}
	if d.cs != nil {
		if err := d.cs.Out(gpio.Low); err != nil {
			return hwerr.Wrap(hwerr.Bus, "st7789: cs", err)
		}
	}
	err := d.c.Tx(b, nil)
	if d.cs != nil {
		if csErr := d.cs.Out(gpio.High); err == nil && csErr != nil {
			return hwerr.Wrap(hwerr.Bus, "st7789: cs", csErr)
		}
	}
	if err != nil {
		return hwerr.Wrap(hwerr.Bus, "st7789: write", err)
	}
	return nil
}

var _ display.Drawer = &Dev{}
