package emath

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/floats"
)

// A FloatGrid is a 2-D grid of floats, stored row-major with x varying
// fastest. That's the same order as a FITS data unit (NAXIS1 is x), so
// pixel arrays can be wrapped without copying.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) FloatGrid {
	return FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewFloatGridFromValues wraps vals, which must hold exactly w*h values.
func NewFloatGridFromValues(w, h int, vals []float64) (FloatGrid, error) {
	if w <= 0 || h <= 0 {
		return FloatGrid{}, fmt.Errorf("grid dimensions must be positive, got %dx%d", w, h)
	}
	if len(vals) != w*h {
		return FloatGrid{}, fmt.Errorf("grid %dx%d needs %d values, got %d", w, h, w*h, len(vals))
	}
	return FloatGrid{stride: w, values: vals}, nil
}

func (fg *FloatGrid) NewFromThis() FloatGrid  { return NewFloatGrid(fg.Dx(), fg.Dy()) }
func (fg *FloatGrid) Set(x, y int, v float64) { fg.values[fg.stride*y+x] = v }
func (fg *FloatGrid) Get(x, y int) float64    { return fg.values[fg.stride*y+x] }
func (fg *FloatGrid) Dx() int                 { return fg.stride }
func (fg *FloatGrid) Len() int                { return len(fg.values) }
func (fg *FloatGrid) Values() []float64       { return fg.values }
func (fg *FloatGrid) Bounds() image.Rectangle { return image.Rect(0, 0, fg.Dx(), fg.Dy()) }

func (fg *FloatGrid) Dy() int {
	if fg.stride == 0 {
		return 0
	}
	return len(fg.values) / fg.stride
}

// How ResizeTo combines the block of source values that lands on one
// destination value when shrinking.
type Reduce int

const (
	ReduceMean Reduce = iota // average, ignoring NaNs
	ReduceMax                // largest value, so isolated flags survive
)

// ResizeTo returns a w x h version of the grid. Shrinking combines each
// block of source values with r; growing repeats the nearest value. The
// work is one pass over the source, so big frames can be shrunk before
// anything expensive happens per pixel.
func (fg *FloatGrid) ResizeTo(w, h int, r Reduce) FloatGrid {
	g2 := NewFloatGrid(w, h)
	sw, sh := fg.Dx(), fg.Dy()
	if sw == 0 || sh == 0 || w <= 0 || h <= 0 {
		return g2
	}

	for y := 0; y < h; y++ {
		y0, y1 := y*sh/h, (y+1)*sh/h
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for x := 0; x < w; x++ {
			x0, x1 := x*sw/w, (x+1)*sw/w
			if x1 <= x0 {
				x1 = x0 + 1
			}
			g2.Set(x, y, fg.reduceBlock(x0, y0, x1, y1, r))
		}
	}
	return g2
}

func (fg *FloatGrid) reduceBlock(x0, y0, x1, y1 int, r Reduce) float64 {
	sum, n := 0.0, 0
	max := math.Inf(-1)
	for y := y0; y < y1; y++ {
		row := fg.values[y*fg.stride+x0 : y*fg.stride+x1]
		for _, v := range row {
			if math.IsNaN(v) {
				continue
			}
			sum += v
			n++
			if v > max {
				max = v
			}
		}
	}
	if n == 0 {
		return math.NaN()
	}
	if r == ReduceMax {
		return max
	}
	return sum / float64(n)
}

// Crop returns a copy of the part of the grid inside r, clipped to the
// grid's bounds. An empty intersection gives an empty grid.
func (fg *FloatGrid) Crop(r image.Rectangle) FloatGrid {
	r = r.Intersect(fg.Bounds())
	if r.Empty() {
		return FloatGrid{}
	}

	g2 := NewFloatGrid(r.Dx(), r.Dy())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			g2.Set(x-r.Min.X, y-r.Min.Y, fg.Get(x, y))
		}
	}
	return g2
}

// LogScale maps the grid onto [0,1] with a logarithmic stretch between
// min and max: values below min go to 0, above max to 1, and the rest to
// log10(v)/log10(max-min). Handy for looking at sky images where the
// interesting stuff is faint.
func (fg *FloatGrid) LogScale(min, max float64) FloatGrid {
	g2 := fg.NewFromThis()
	factor := math.Log10(max - min)

	for i, v := range fg.values {
		switch {
		case v < min:
			g2.values[i] = 0.0
		case v > max:
			g2.values[i] = 1.0
		default:
			g2.values[i] = clamp01(math.Log10(v) / factor)
		}
	}
	return g2
}

// LinearScale maps [min,max] onto [0,1], clipping outside values.
func (fg *FloatGrid) LinearScale(min, max float64) FloatGrid {
	g2 := fg.NewFromThis()
	for i, v := range fg.values {
		g2.values[i] = clamp01((v - min) / (max - min))
	}
	return g2
}

// MinMax ignores NaNs; a grid of nothing but NaN gives (NaN, NaN).
func (fg *FloatGrid) MinMax() (float64, float64) {
	finite := make([]float64, 0, len(fg.values))
	for _, v := range fg.values {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	if len(finite) == 0 {
		return math.NaN(), math.NaN()
	}
	return floats.Min(finite), floats.Max(finite)
}

// ToImage renders the grid with the colormap, which is handed values in
// [0,1]. Row 0 of the grid is the top row of the image.
func (fg *FloatGrid) ToImage(cmap func(float64) color.RGBA) *image.RGBA {
	img := image.NewRGBA(fg.Bounds())
	w := fg.Dx()
	for y := 0; y < fg.Dy(); y++ {
		pix := img.Pix[y*img.Stride : y*img.Stride+4*w]
		for x, v := range fg.values[y*w : (y+1)*w] {
			c := cmap(v)
			pix[4*x], pix[4*x+1], pix[4*x+2], pix[4*x+3] = c.R, c.G, c.B, c.A
		}
	}
	return img
}

func clamp01(f float64) float64 {
	if math.IsNaN(f) || f < 0.0 {
		return 0.0
	} else if f > 1.0 {
		return 1.0
	}
	return f
}
