// Package diagnostic renders a composite PNG of an exposure alongside
// the mask and cleaned image LACosmic made from it, so you can eyeball
// how well the rejection worked.
package diagnostic

import (
	"image"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"

	"github.com/abworrall/lacosmic/pkg/cosmic"
	"github.com/abworrall/lacosmic/pkg/emath"
	"github.com/abworrall/lacosmic/pkg/fitsimg"
	"github.com/abworrall/lacosmic/pkg/imgutil"
	"github.com/abworrall/lacosmic/pkg/logger"
)

// Options control the composite. The zero value is not useful; start
// from DefaultOptions.
type Options struct {
	ScienceExt int // extension of the original holding the science array

	ScaleMin float64 // log stretch for the original and clean images
	ScaleMax float64
	MaskMin  float64 // linear range for the mask
	MaskMax  float64

	// Cut is a box, in pixel coords, shown zoomed in next to each full
	// frame. You may want to move it onto your source.
	Cut image.Rectangle

	// OutPath, if set, replaces the default of <rootname>.png
	OutPath string
}

func DefaultOptions() Options {
	return Options{
		ScienceExt: 1,
		ScaleMin:   3,
		ScaleMax:   7000,
		MaskMin:    -2,
		MaskMax:    1,
		Cut:        image.Rect(175, 175, 275, 275),
	}
}

// The page is 8.5in x 11in at half size, at 100dpi.
const (
	pageW    = 1080
	pageH    = 1397
	titleH   = 40
	cellPad  = 20
	nCols    = 2
	nRows    = 3
	fontSize = 18
)

type panel struct {
	title   string
	grid    emath.FloatGrid
	stretch func(*emath.FloatGrid) emath.FloatGrid
	cmap    imgutil.Colormap
	reduce  emath.Reduce
}

// Render reads the original image and its two products, and writes the
// 3x2 composite. It returns the path written.
func Render(imagePath string, outputs cosmic.Outputs, opts Options) (string, error) {
	orig, err := fitsimg.ReadImage(imagePath, opts.ScienceExt)
	if err != nil {
		return "", err
	}
	logger.Logger.Debugw("Read science array", logger.FieldFile, imagePath, "width", orig.Dx(), "height", orig.Dy())
	mask, err := fitsimg.ReadImage(outputs.Mask, 0)
	if err != nil {
		return "", err
	}
	clean, err := fitsimg.ReadImage(outputs.Clean, 0)
	if err != nil {
		return "", err
	}

	logStretch := func(g *emath.FloatGrid) emath.FloatGrid { return g.LogScale(opts.ScaleMin, opts.ScaleMax) }
	maskStretch := func(g *emath.FloatGrid) emath.FloatGrid { return g.LinearScale(opts.MaskMin, opts.MaskMax) }
	origCut, maskCut, cleanCut := orig.Crop(opts.Cut), mask.Crop(opts.Cut), clean.Crop(opts.Cut)

	panels := []panel{
		{"Original (SCI)", orig, logStretch, imgutil.Viridis, emath.ReduceMean},
		{"Original (SCI)", origCut, logStretch, imgutil.Viridis, emath.ReduceMean},
		{"Mask", mask, maskStretch, imgutil.MaskColors, emath.ReduceMax},
		{"Mask", maskCut, maskStretch, imgutil.MaskColors, emath.ReduceMax},
		{"Clean", clean, logStretch, imgutil.Viridis, emath.ReduceMean},
		{"Clean", cleanCut, logStretch, imgutil.Viridis, emath.ReduceMean},
	}

	dc := gg.NewContext(pageW, pageH)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	face, err := imgutil.BoldFace(fontSize)
	if err != nil {
		return "", err
	}
	dc.SetFontFace(face)

	cellW, cellH := pageW/nCols, pageH/nRows
	for i, p := range panels {
		x0, y0 := (i%nCols)*cellW, (i/nCols)*cellH
		dc.SetRGB(0, 0, 0)
		dc.DrawStringAnchored(p.title, float64(x0+cellW/2), float64(y0+titleH/2), 0.5, 0.5)

		box := image.Rect(x0+cellPad, y0+titleH, x0+cellW-cellPad, y0+cellH-cellPad)
		if p.grid.Len() == 0 {
			logger.Logger.Warnw("Empty panel, cut box is outside the image", logger.FieldFile, imagePath, "panel", i)
			continue
		}
		dst := fit(p.grid.Bounds(), box)
		dc.DrawImage(p.render(dst), dst.Min.X, dst.Min.Y)
	}

	out := opts.OutPath
	if out == "" {
		out = cosmic.Rootname(imagePath) + ".png"
	}
	if err := imgutil.WritePNG(dc.Image(), out); err != nil {
		return "", err
	}

	logger.Logger.Debugw("Wrote diagnostic composite", logger.FieldFile, imagePath, logger.FieldDest, out)
	return out, nil
}

// fit returns the largest rectangle with src's aspect ratio, centered
// in box.
func fit(src, box image.Rectangle) image.Rectangle {
	sw, sh := float64(src.Dx()), float64(src.Dy())
	bw, bh := float64(box.Dx()), float64(box.Dy())

	w, h := bw, bw*sh/sw
	if h > bh {
		w, h = bh*sw/sh, bh
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	x := box.Min.X + int((bw-w)/2)
	y := box.Min.Y + int((bh-h)/2)
	return image.Rect(x, y, x+int(w), y+int(h))
}

// render draws the panel's grid at the size of dst. Frames bigger than
// dst are shrunk before being stretched and colormapped; smaller ones
// (the cuts) are colormapped and then scaled up.
func (p panel) render(dst image.Rectangle) image.Image {
	g := p.grid
	if g.Dx() > dst.Dx() || g.Dy() > dst.Dy() {
		g = g.ResizeTo(dst.Dx(), dst.Dy(), p.reduce)
	}
	stretched := p.stretch(&g)
	img := stretched.ToImage(p.cmap)
	if img.Bounds().Size() == dst.Size() {
		return img
	}
	return scale(img, dst, p.reduce == emath.ReduceMax)
}

func scale(src image.Image, dst image.Rectangle, nearest bool) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, dst.Dx(), dst.Dy()))
	var s draw.Scaler = draw.ApproxBiLinear
	if nearest {
		s = draw.NearestNeighbor
	}
	s.Scale(out, out.Bounds(), src, src.Bounds(), draw.Src, nil)
	return out
}
