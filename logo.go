package main

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"

	logger "github.com/sirupsen/logrus"
)

// loadLogo decodes a PNG or JPEG and scales it to fit the top half of
// bounds, keeping its aspect ratio. Smaller images are left as they are.
func loadLogo(path string, bounds image.Rectangle) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening logo")
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	logger.Debugf("Logo [%v] format [%v] size [%v]", path, format, img.Bounds().Size())

	return resize.Thumbnail(uint(bounds.Dx()), uint(bounds.Dy()/2), img, resize.Bilinear), nil
}

// centre places a rectangle the size of r horizontally centred in bounds,
// top pixels down.
func centre(r, bounds image.Rectangle, top int) image.Rectangle {
	x := bounds.Min.X + (bounds.Dx()-r.Dx())/2
	y := bounds.Min.Y + top
	return image.Rect(x, y, x+r.Dx(), y+r.Dy())
}
