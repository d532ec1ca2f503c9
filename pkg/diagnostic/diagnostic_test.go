package diagnostic

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/lacosmic/pkg/cosmic"
	"github.com/abworrall/lacosmic/pkg/emath"
	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/fitsimg"
	"github.com/abworrall/lacosmic/pkg/imgutil"
)

func writeGrid(t testing.TB, path string, w, h int, f func(x, y int) float64) {
	t.Helper()
	g := emath.NewFloatGrid(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			g.Set(x, y, f(x, y))
		}
	}
	require.NoError(t, fitsimg.WriteImage(path, fitsimg.HDU{Grid: &g}))
}

func setup(t *testing.T) (string, cosmic.Outputs) {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "ib1f01abq_flt.fits")
	out := cosmic.OutputsFor(input)

	writeGrid(t, input, 64, 48, func(x, y int) float64 { return float64(10 * (x + y)) })
	writeGrid(t, out.Clean, 64, 48, func(x, y int) float64 { return float64(9 * (x + y)) })
	writeGrid(t, out.Mask, 64, 48, func(x, y int) float64 {
		if x == y {
			return 1
		}
		return 0
	})
	return input, out
}

func TestRender(t *testing.T) {
	input, out := setup(t)

	opts := DefaultOptions()
	opts.ScienceExt = 0
	opts.Cut = image.Rect(10, 10, 30, 30)

	path, err := Render(input, out, opts)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(input), "ib1f01abq_flt.png"), path)

	r, err := os.Open(path)
	require.NoError(t, err)
	defer r.Close()
	img, err := png.Decode(r)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, pageW, pageH), img.Bounds())
}

func TestRenderCutOutsideImage(t *testing.T) {
	// the default cut is beyond a 64x48 frame; the cut panels are left
	// blank rather than failing
	input, out := setup(t)
	opts := DefaultOptions()
	opts.ScienceExt = 0
	opts.OutPath = filepath.Join(t.TempDir(), "custom.png")

	path, err := Render(input, out, opts)
	require.NoError(t, err)
	assert.Equal(t, opts.OutPath, path)
	assert.FileExists(t, path)
}

func TestRenderMissingProduct(t *testing.T) {
	input, out := setup(t)
	require.NoError(t, os.Remove(out.Mask))

	opts := DefaultOptions()
	opts.ScienceExt = 0
	_, err := Render(input, out, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInputRead))
}

func TestFit(t *testing.T) {
	box := image.Rect(0, 0, 200, 100)
	assert.Equal(t, image.Rect(50, 0, 150, 100), fit(image.Rect(0, 0, 10, 10), box))
	assert.Equal(t, image.Rect(0, 25, 200, 75), fit(image.Rect(0, 0, 40, 10), box))
}

// writeFrame writes a full-size exposure in the calibrated layout
// (science array in extension 1) with its products, and one flagged
// mask pixel at (fx, fy).
func writeFrame(t testing.TB, dir string, w, h, fx, fy int) (string, cosmic.Outputs) {
	t.Helper()
	sci := emath.NewFloatGrid(w, h)
	for i := range sci.Values() {
		sci.Values()[i] = float64(20 + i%5000)
	}
	input := filepath.Join(dir, "ib1f01abq_flt.fits")
	require.NoError(t, fitsimg.WriteImage(input,
		fitsimg.HDU{Cards: []fitsimg.Card{{Name: fitsimg.KeyFilter, Value: "F606W"}}},
		fitsimg.HDU{Grid: &sci, Bitpix: -32},
	))

	out := cosmic.OutputsFor(input)
	require.NoError(t, fitsimg.WriteImage(out.Clean, fitsimg.HDU{Grid: &sci, Bitpix: -32}))
	mask := emath.NewFloatGrid(w, h)
	mask.Set(fx, fy, 1)
	require.NoError(t, fitsimg.WriteImage(out.Mask, fitsimg.HDU{Grid: &mask, Bitpix: 8}))
	return input, out
}

func TestRenderLargeFrameKeepsFlags(t *testing.T) {
	input, out := writeFrame(t, t.TempDir(), 2048, 1024, 1500, 700)

	path, err := Render(input, out, DefaultOptions())
	require.NoError(t, err)

	r, err := os.Open(path)
	require.NoError(t, err)
	defer r.Close()
	img, err := png.Decode(r)
	require.NoError(t, err)

	// the lone flagged pixel still shows in the shrunk full-frame mask panel
	flagged := imgutil.MaskColors(1)
	cellW, cellH := pageW/nCols, pageH/nRows
	found := false
	for y := cellH; y < 2*cellH && !found; y++ {
		for x := 0; x < cellW && !found; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			found = near(r>>8, flagged.R) && near(g>>8, flagged.G) && near(b>>8, flagged.B)
		}
	}
	assert.True(t, found)
}

func near(got uint32, want uint8) bool {
	d := int(got) - int(want)
	return d >= -6 && d <= 6
}

func BenchmarkRender(b *testing.B) {
	input, out := writeFrame(b, b.TempDir(), 4096, 2051, 100, 100)
	opts := DefaultOptions()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Render(input, out, opts); err != nil {
			b.Fatal(err)
		}
	}
}
