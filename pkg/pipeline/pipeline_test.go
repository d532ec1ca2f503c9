package pipeline

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/lacosmic/pkg/config"
	"github.com/abworrall/lacosmic/pkg/cosmic"
	"github.com/abworrall/lacosmic/pkg/emath"
	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/fitsimg"
	"github.com/abworrall/lacosmic/pkg/maskcount"
	"github.com/abworrall/lacosmic/pkg/organize"
)

// fitsDetector stands in for the external task: it writes a clean copy
// of the input, and a mask with a number of flagged pixels that grows
// with each call.
type fitsDetector struct {
	requests []cosmic.Request
	failOn   string // base name of an input to fail on
}

func (d *fitsDetector) Detect(ctx context.Context, req cosmic.Request) error {
	d.requests = append(d.requests, req)
	if d.failOn != "" && filepath.Base(req.Input) == d.failOn {
		return errors.Mark(errors.New("lacos_im: floating point exception"), errors.ErrExternalTool)
	}

	orig, err := fitsimg.ReadImage(req.Input, req.Extension)
	if err != nil {
		return err
	}
	mask := orig.NewFromThis()
	for i := 0; i < len(d.requests); i++ {
		mask.Set(i, 0, 1.0)
	}

	f, err := fitsimg.Open(req.Input)
	if err != nil {
		return err
	}
	start, err := f.Keyword(0, fitsimg.KeyExpStart)
	f.Close()
	if err != nil {
		return err
	}
	cards := []fitsimg.Card{}
	if start.Present {
		cards = append(cards, fitsimg.Card{Name: fitsimg.KeyExpStart, Value: start.Value})
	}

	if err := fitsimg.WriteImage(req.Outputs.Clean, fitsimg.HDU{Cards: cards, Grid: &orig}); err != nil {
		return err
	}
	return fitsimg.WriteImage(req.Outputs.Mask, fitsimg.HDU{Cards: cards, Grid: &mask})
}

func writeExposure(t *testing.T, dir, name string, cards ...fitsimg.Card) string {
	t.Helper()
	g := emath.NewFloatGrid(20, 16)
	for y := 0; y < 16; y++ {
		for x := 0; x < 20; x++ {
			g.Set(x, y, float64(5+x*y))
		}
	}
	path := filepath.Join(dir, name)
	require.NoError(t, fitsimg.WriteImage(path, fitsimg.HDU{Cards: cards, Grid: &g}))
	return path
}

// writeFLT lays an exposure out the way calibrated files come: a
// header-only primary holding the keywords, and the science array as
// 16-bit integers offset by BZERO in extension 1.
func writeFLT(t *testing.T, dir, name string, cards ...fitsimg.Card) string {
	t.Helper()
	g := emath.NewFloatGrid(40, 30)
	for i := range g.Values() {
		g.Values()[i] = float64(i) - 32768
	}
	path := filepath.Join(dir, name)
	require.NoError(t, fitsimg.WriteImage(path,
		fitsimg.HDU{Cards: cards},
		fitsimg.HDU{Cards: []fitsimg.Card{{Name: "BZERO", Value: 32768}}, Grid: &g, Bitpix: 16},
	))
	return path
}

func exposure(filter, flash string, mjd float64) []fitsimg.Card {
	cards := []fitsimg.Card{{Name: fitsimg.KeyExpStart, Value: mjd}}
	if filter != "" {
		cards = append(cards, fitsimg.Card{Name: fitsimg.KeyFilter, Value: filter})
	}
	if flash != "" {
		cards = append(cards, fitsimg.Card{Name: fitsimg.KeyPostflash, Value: flash})
	}
	return cards
}

func testConfig(t *testing.T, orig string, overrides map[string]interface{}) *config.Config {
	t.Helper()
	o := map[string]interface{}{"orig": orig, "science_ext": 0}
	for k, v := range overrides {
		o[k] = v
	}
	cfg, err := config.Load(config.Options{EnvFile: filepath.Join(t.TempDir(), "none.env"), Overrides: o})
	require.NoError(t, err)
	return cfg
}

func TestRunEndToEnd(t *testing.T) {
	orig := t.TempDir()
	writeExposure(t, orig, "ib1f01c_flt.fits", exposure("F606W", "OMIT", 56300)...)
	writeExposure(t, orig, "ib1f01a_flt.fits", exposure("F606W", "OMIT", 56100)...)
	writeExposure(t, orig, "ib1f01b_flt.fits", exposure("F606W", "OMIT", 56200)...)
	require.NoError(t, os.WriteFile(filepath.Join(orig, "notes.txt"), []byte("x"), 0o644))

	d := &fitsDetector{}
	res, err := Run(context.Background(), testConfig(t, orig, nil), d)
	require.NoError(t, err)

	require.Len(t, d.requests, 3)
	for _, req := range d.requests {
		assert.Equal(t, 5.0, req.Settings.Sigclip)
		assert.Equal(t, 0.3, req.Settings.Sigfrac)
		assert.Equal(t, 2, req.Settings.Objlim)
		assert.Equal(t, 5, req.Settings.Niter)
		assert.Equal(t, 1.5, req.Settings.Gain)
		assert.Equal(t, 3.0, req.Settings.ReadNoise)
	}

	require.Len(t, res.Images, 3)
	assert.Equal(t, 3, res.Succeeded())
	assert.Equal(t, 0, res.Failed())
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, filepath.Join(orig, "ib1f01a_flt.fits"), res.Images[0].Record.Path)
	assert.Equal(t, "ok", res.Images[0].Status())

	for _, sub := range []string{organize.CleansDir, organize.MasksDir, organize.PNGDir} {
		entries, err := os.ReadDir(filepath.Join(orig, sub))
		require.NoError(t, err)
		assert.Len(t, entries, 3, sub)
	}
	assert.Equal(t, filepath.Join(orig, organize.MasksDir, "ib1f01a_flt.mask.fits"), res.Images[0].Outputs.Mask)
	assert.Equal(t, filepath.Join(orig, organize.PNGDir, "ib1f01a_flt.png"), res.Images[0].Diagnostic)

	require.Len(t, res.Reports, 1)
	rep := res.Reports[0]
	assert.Equal(t, "F606W", rep.Filter)
	assert.FileExists(t, rep.PNG)
	assert.Equal(t, 3, rep.Stats.N)

	body, err := os.ReadFile(rep.Dat)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(body)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, maskcount.ReportHeader, lines[0])
	assert.Equal(t, filepath.Join(orig, organize.MasksDir, "ib1f01a_flt.mask.fits")+" 1 56100.0", lines[1])
	assert.Equal(t, filepath.Join(orig, organize.MasksDir, "ib1f01b_flt.mask.fits")+" 2 56200.0", lines[2])
	assert.Equal(t, filepath.Join(orig, organize.MasksDir, "ib1f01c_flt.mask.fits")+" 3 56300.0", lines[3])

	// a rerun finds the same exposures, and none of the products
	paths, err := Discover("*fl*.fits", orig)
	require.NoError(t, err)
	assert.Len(t, paths, 3)

	// and sorting again leaves the report plot where it was written
	_, err = organize.SortOutputs(orig, orig, true, false)
	require.NoError(t, err)
	assert.FileExists(t, rep.PNG)
	assert.NoFileExists(t, filepath.Join(orig, organize.PNGDir, "F606W_mask_counts.png"))
}

func TestRunDefaultExtension(t *testing.T) {
	orig := t.TempDir()
	writeFLT(t, orig, "a_flt.fits", exposure("F606W", "COMPLETE", 56300.5)...)
	writeFLT(t, orig, "b_flt.fits", exposure("F606W", "OMIT", 56100)...)

	cfg, err := config.Load(config.Options{
		EnvFile:   filepath.Join(t.TempDir(), "none.env"),
		Overrides: map[string]interface{}{"orig": orig},
	})
	require.NoError(t, err)
	require.Equal(t, 1, cfg.ScienceExt)

	d := &fitsDetector{}
	res, err := Run(context.Background(), cfg, d)
	require.NoError(t, err)
	require.Len(t, res.Images, 2)
	assert.Equal(t, 2, res.Succeeded())

	assert.Equal(t, 9.5, res.Images[0].Sigclip)
	assert.Equal(t, 5.0, res.Images[1].Sigclip)
	for _, req := range d.requests {
		assert.Equal(t, 1, req.Extension)
	}
	assert.FileExists(t, res.Images[0].Diagnostic)
	assert.Equal(t, 56300.5, res.Images[0].MaskCount.Timestamp)

	// the clean copy holds the widened science values
	clean, err := fitsimg.ReadImage(res.Images[0].Outputs.Clean, 0)
	require.NoError(t, err)
	assert.Equal(t, 999.0, clean.Values()[999])
}

func TestRunPerImagePolicy(t *testing.T) {
	orig := t.TempDir()
	writeExposure(t, orig, "a_flt.fits", exposure("F999N", "COMPLETE", 56400)...)
	writeExposure(t, orig, "b_flt.fits", exposure("F814W", "PERFORM", 56400)...)
	writeExposure(t, orig, "c_flt.fits", exposure("", "OMIT", 56400)...)
	writeExposure(t, orig, "d_flt.fits", exposure("F438W", "OMIT", 56400)...)
	writeExposure(t, orig, "e_flt.fits", exposure("F438W", "OMIT", 56400)...)

	d := &fitsDetector{failOn: "d_flt.fits"}
	res, err := Run(context.Background(), testConfig(t, orig, map[string]interface{}{"run.create_png": false}), d)
	require.NoError(t, err)
	require.Len(t, res.Images, 5)

	a := res.Images[0]
	require.NoError(t, a.Err)
	assert.False(t, a.Tabulated)
	assert.Equal(t, 9.5, a.Sigclip)
	assert.Equal(t, 5, a.Params.Objlim)
	assert.Equal(t, 3, a.Params.Niter)

	b := res.Images[1]
	require.NoError(t, b.Err)
	assert.True(t, b.NeedsReview)
	assert.Equal(t, 5.5, b.Sigclip)
	assert.Equal(t, "review", b.Status())

	c := res.Images[2]
	require.Error(t, c.Err)
	assert.True(t, errors.Is(c.Err, errors.ErrMissingHeaderKeyword))

	dd := res.Images[3]
	require.Error(t, dd.Err)
	assert.True(t, errors.Is(dd.Err, errors.ErrExternalTool))

	assert.NoError(t, res.Images[4].Err)
	assert.Equal(t, 3, res.Succeeded())
	assert.Equal(t, 2, res.Failed())
	assert.False(t, res.AllFailed())

	// one report per filter seen, in discovery order
	filters := []string{}
	for _, r := range res.Reports {
		filters = append(filters, r.Filter)
	}
	assert.Equal(t, []string{"F999N", "F814W", "F438W"}, filters)
	assert.NoDirExists(t, filepath.Join(orig, organize.PNGDir))
}

func TestRunFilterAndDiscard(t *testing.T) {
	orig := t.TempDir()
	dest := t.TempDir()
	writeExposure(t, orig, "a_flt.fits", exposure("F606W", "OMIT", 56100)...)
	writeExposure(t, orig, "b_flt.fits", exposure("F814W", "OMIT", 56100)...)

	cfg := testConfig(t, orig, map[string]interface{}{
		"dest":            dest,
		"filter":          "F814W",
		"run.keep_masks":  false,
		"run.temp_folder": true,
		"run.create_png":  false,
	})
	d := &fitsDetector{}
	res, err := Run(context.Background(), cfg, d)
	require.NoError(t, err)

	require.Len(t, d.requests, 1)
	assert.True(t, res.Images[0].Skipped)
	assert.Equal(t, "skipped", res.Images[0].Status())
	assert.FileExists(t, filepath.Join(dest, organize.CleansDir, organize.TempDir, "b_flt.clean.fits"))
	assert.NoFileExists(t, filepath.Join(orig, "b_flt.mask.fits"))
	assert.NoDirExists(t, filepath.Join(dest, organize.MasksDir))
	assert.FileExists(t, filepath.Join(dest, "F814W_mask_counts.dat"))
}

func TestRunBadConfig(t *testing.T) {
	cfg := testConfig(t, filepath.Join(t.TempDir(), "missing"), nil)
	_, err := Run(context.Background(), cfg, &fitsDetector{})
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestRunCancelled(t *testing.T) {
	orig := t.TempDir()
	writeExposure(t, orig, "a_flt.fits", exposure("F606W", "OMIT", 56100)...)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &fitsDetector{}
	_, err := Run(ctx, testConfig(t, orig, nil), d)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, d.requests)
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := writeExposure(t, dir, "a_flt.fits", exposure("F606W", "COMPLETE", 56250.5)...)

	rec, err := Inspect(path)
	require.NoError(t, err)
	assert.Equal(t, "F606W", rec.Filter)
	assert.Equal(t, "COMPLETE", rec.Postflash.String())
	assert.Equal(t, 56250.5, rec.Timestamp)

	bare := writeExposure(t, dir, "b_flt.fits", fitsimg.Card{Name: fitsimg.KeyFilter, Value: "F438W"})
	rec, err = Inspect(bare)
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN", rec.Postflash.String())
	assert.True(t, math.IsNaN(rec.Timestamp))
}

func TestDiscover(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"b_flt.fits", "a_flc.fits", "a_flt.clean.fits", "a_flt.mask.fits", "a_raw.fits", "c_flt.fits.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "d_flt.fits"), 0o755))

	paths, err := Discover("*fl*.fits", dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a_flc.fits"), filepath.Join(dir, "b_flt.fits")}, paths)

	paths, err = Discover("*fl*.fits", filepath.Join(dir, "b_flt.fits"), filepath.Join(dir, "a_raw.fits"))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "b_flt.fits")}, paths)

	_, err = Discover("*fl*.fits", filepath.Join(dir, "nope"))
	assert.True(t, errors.Is(err, errors.ErrInputRead))

	_, err = Discover("[", dir)
	assert.True(t, errors.IsConfigurationError(err))
}

func TestNewDetector(t *testing.T) {
	cfg := testConfig(t, t.TempDir(), map[string]interface{}{
		"tool.script_dir": "/opt/lacos",
		"tool.env":        []string{"iraf=/iraf/iraf/"},
	})
	task, err := NewDetector(cfg)
	require.NoError(t, err)
	assert.Equal(t, cosmic.DefaultCommand, task.Command)
	assert.Equal(t, "/opt/lacos/lacos_im.cl", task.ScriptPath())
	assert.Equal(t, []string{"iraf=/iraf/iraf/"}, task.Env)
}
