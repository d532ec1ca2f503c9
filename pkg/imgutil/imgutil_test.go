package imgutil

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/lacosmic/pkg/errors"
)

func TestRampEnds(t *testing.T) {
	r0, g0, b0, _ := MaskColors(0).RGBA()
	r1, g1, b1, _ := MaskColors(1).RGBA()
	assert.Less(t, r0, r1)
	assert.Less(t, g0, g1)
	assert.Greater(t, b0, b1)

	// out of range values clamp to the end stops
	assert.Equal(t, MaskColors(1), MaskColors(3))
	assert.Equal(t, Viridis(0), Viridis(-1))
	assert.Equal(t, Viridis(0), Viridis(math.NaN()))
}

func TestRampTable(t *testing.T) {
	lo := colorful.Color{R: 0, G: 0, B: 0}
	hi := colorful.Color{R: 1, G: 1, B: 1}
	ramp := Ramp(lo, hi)

	assert.Equal(t, color.RGBA{0, 0, 0, 0xff}, ramp(0))
	assert.Equal(t, color.RGBA{0xff, 0xff, 0xff, 0xff}, ramp(1))

	// the table matches a direct blend to within a step
	r, g, b := lo.BlendLab(hi, 0.5).Clamped().RGB255()
	mid := ramp(0.5)
	assert.InDelta(t, float64(r), float64(mid.R), 1)
	assert.InDelta(t, float64(g), float64(mid.G), 1)
	assert.InDelta(t, float64(b), float64(mid.B), 1)

	one := Ramp(hi)
	assert.Equal(t, one(0), one(1))
}

func TestFaces(t *testing.T) {
	f, err := Face(12)
	require.NoError(t, err)
	assert.NotNil(t, f)

	b, err := BoldFace(18)
	require.NoError(t, err)
	assert.NotNil(t, b)
}

func TestWritePNG(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.White)

	path := filepath.Join(dir, "x.png")
	require.NoError(t, WritePNG(img, path))

	r, err := os.Open(path)
	require.NoError(t, err)
	defer r.Close()
	back, err := png.Decode(r)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), back.Bounds())

	err = WritePNG(img, filepath.Join(dir, "nope", "x.png"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrFilesystem))
}
