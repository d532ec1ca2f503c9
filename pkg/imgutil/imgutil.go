// Package imgutil has a few helper routines for golang's image
// libraries: PNG output, a font for labelling plots, and colormaps for
// turning [0,1] values into pixels.
package imgutil

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"sync"

	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/abworrall/lacosmic/pkg/errors"
)

func WritePNG(img image.Image, filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "open+w '%s'", filename), errors.ErrFilesystem)
	}
	defer writer.Close()

	if err := png.Encode(writer, img); err != nil {
		return errors.Mark(errors.Wrapf(err, "encode '%s'", filename), errors.ErrFilesystem)
	}
	return writer.Close()
}

var (
	fontsOnce sync.Once
	regular   *truetype.Font
	bold      *truetype.Font
	fontsErr  error
)

func loadFonts() {
	if regular, fontsErr = truetype.Parse(goregular.TTF); fontsErr != nil {
		return
	}
	bold, fontsErr = truetype.Parse(gobold.TTF)
}

// Face returns the Go regular font at the given point size.
func Face(points float64) (font.Face, error) {
	fontsOnce.Do(loadFonts)
	if fontsErr != nil {
		return nil, errors.Wrap(fontsErr, "parse font")
	}
	return truetype.NewFace(regular, &truetype.Options{Size: points}), nil
}

// BoldFace is Face, but bold, for titles.
func BoldFace(points float64) (font.Face, error) {
	fontsOnce.Do(loadFonts)
	if fontsErr != nil {
		return nil, errors.Wrap(fontsErr, "parse font")
	}
	return truetype.NewFace(bold, &truetype.Options{Size: points}), nil
}

// A Colormap turns a value in [0,1] into a color.
type Colormap func(float64) color.RGBA

// rampSize is how many entries a Ramp precomputes.
const rampSize = 1024

// Ramp builds a colormap that blends, in Lab space, between evenly
// spaced stops. The blend is done once into a lookup table, so the
// colormap itself is just an index. Needs at least one stop.
func Ramp(stops ...colorful.Color) Colormap {
	lut := make([]color.RGBA, rampSize)
	for i := range lut {
		r, g, b := blend(stops, float64(i)/(rampSize-1)).RGB255()
		lut[i] = color.RGBA{r, g, b, 0xff}
	}

	return func(v float64) color.RGBA {
		return lut[int(math.Round(clamp(v)*(rampSize-1)))]
	}
}

func blend(stops []colorful.Color, v float64) colorful.Color {
	pos := v * float64(len(stops)-1)
	i := int(pos)
	if i >= len(stops)-1 {
		return stops[len(stops)-1].Clamped()
	}
	return stops[i].BlendLab(stops[i+1], pos-float64(i)).Clamped()
}

// Viridis is an approximation of matplotlib's default colormap, which
// keeps faint structure visible on a log stretch.
var Viridis = Ramp(
	colorful.Color{R: 0.267, G: 0.005, B: 0.329},
	colorful.Color{R: 0.229, G: 0.322, B: 0.546},
	colorful.Color{R: 0.128, G: 0.567, B: 0.551},
	colorful.Color{R: 0.369, G: 0.789, B: 0.383},
	colorful.Color{R: 0.993, G: 0.906, B: 0.144},
)

// MaskColors shows unflagged pixels as dark blue and flagged ones as
// yellow, with anything in between blended.
var MaskColors = Ramp(
	colorful.Color{R: 0.05, G: 0.05, B: 0.35},
	colorful.Color{R: 1.0, G: 0.85, B: 0.1},
)

func clamp(f float64) float64 {
	if math.IsNaN(f) || f < 0.0 {
		return 0.0
	} else if f > 1.0 {
		return 1.0
	}
	return f
}
