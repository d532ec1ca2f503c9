package cosmic

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abworrall/lacosmic/pkg/emath"
	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/fitsimg"
	"github.com/abworrall/lacosmic/pkg/params"
)

// touchDetector writes empty output files, and remembers what it was asked.
type touchDetector struct {
	requests []Request
	skipMask bool
	err      error
}

func (d *touchDetector) Detect(ctx context.Context, req Request) error {
	d.requests = append(d.requests, req)
	if d.err != nil {
		return d.err
	}
	if err := os.WriteFile(req.Outputs.Clean, nil, 0o644); err != nil {
		return err
	}
	if d.skipMask {
		return nil
	}
	return os.WriteFile(req.Outputs.Mask, nil, 0o644)
}

// writeInput writes a small exposure: header-only primary, science
// array in extension 1.
func writeInput(t *testing.T, path string) {
	t.Helper()
	g := emath.NewFloatGrid(4, 3)
	require.NoError(t, fitsimg.WriteImage(path,
		fitsimg.HDU{Cards: []fitsimg.Card{{Name: fitsimg.KeyFilter, Value: "F606W"}}},
		fitsimg.HDU{Grid: &g},
	))
}

func testSettings() Settings {
	return NewSettings(params.FilterParameters{Sigclip: 5.0, Sigfrac: 0.3, Objlim: 2, Niter: 5, SigclipPostflash: 9.5},
		5.0, DefaultGain, DefaultReadNoise)
}

func TestOutputsFor(t *testing.T) {
	out := OutputsFor("/data/F606W/ib1f01abq_flt.fits")
	assert.Equal(t, "/data/F606W/ib1f01abq_flt.clean.fits", out.Clean)
	assert.Equal(t, "/data/F606W/ib1f01abq_flt.mask.fits", out.Mask)

	assert.Equal(t, "x_flc", Rootname("x_flc.fits.gz"))
	assert.Equal(t, "noext", Rootname("noext"))
}

func TestInvoke(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "ib1f01abq_flt.fits")
	writeInput(t, input)

	d := &touchDetector{}
	out, err := Invoke(context.Background(), d, input, 1, testSettings())
	require.NoError(t, err)
	assert.Equal(t, OutputsFor(input), out)
	assert.FileExists(t, out.Clean)
	assert.FileExists(t, out.Mask)

	require.Len(t, d.requests, 1)
	req := d.requests[0]
	assert.Equal(t, 1, req.Extension)
	assert.Equal(t, 1.5, req.Settings.Gain)
	assert.Equal(t, 3.0, req.Settings.ReadNoise)
	assert.Equal(t, 5.0, req.Settings.Sigclip)
	assert.Equal(t, 5, req.Settings.Niter)
}

func TestInvokeErrors(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a_flt.fits")
	writeInput(t, input)

	corrupt := filepath.Join(dir, "b_flt.fits")
	require.NoError(t, os.WriteFile(corrupt, []byte("SIMPLE  = garbage"), 0o644))

	// inputs that can't be read never reach the detector
	unreadable := []struct {
		name string
		path string
		ext  int
	}{
		{"missing", filepath.Join(dir, "missing_flt.fits"), 1},
		{"corrupt", corrupt, 1},
		{"directory", dir, 1},
		{"extension out of range", input, 4},
		{"header-only extension", input, 0},
	}
	for _, tt := range unreadable {
		t.Run(tt.name, func(t *testing.T) {
			d := &touchDetector{}
			_, err := Invoke(context.Background(), d, tt.path, tt.ext, testSettings())
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInputRead))
			assert.Empty(t, d.requests)
		})
	}

	_, err := Invoke(context.Background(), &touchDetector{err: errors.New("segfault")}, input, 1, testSettings())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExternalTool))

	_, err = Invoke(context.Background(), &touchDetector{skipMask: true}, input, 1, testSettings())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExternalTool))
	assert.Contains(t, err.Error(), "a_flt.mask.fits")
}

func TestTaskArgs(t *testing.T) {
	task, err := NewTask(`python3 "/opt/lacos tools/run.py" --quiet`, "/opt/lacos")
	require.NoError(t, err)
	assert.Equal(t, "/opt/lacos/lacos_im.cl", task.ScriptPath())

	req := Request{
		Input:     "a_flt.fits",
		Extension: 1,
		Outputs:   OutputsFor("a_flt.fits"),
		Settings:  testSettings(),
	}
	argv, err := task.Args(req)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"python3", "/opt/lacos tools/run.py", "--quiet",
		"a_flt.fits[1]", "a_flt.clean.fits", "a_flt.mask.fits",
		"gain=1.5", "readn=3", "sigclip=5", "sigfrac=0.3", "objlim=2", "niter=5",
	}, argv)
}

func TestNewTaskRejectsBadCommands(t *testing.T) {
	_, err := NewTask("", "")
	assert.True(t, errors.IsConfigurationError(err))

	_, err = NewTask(`python3 "unterminated`, "")
	assert.True(t, errors.IsConfigurationError(err))
}

func TestTaskDetect(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a_flt.fits")
	writeInput(t, input)

	// $0 is input[ext], $1 the clean output, $2 the mask output
	task, err := NewTask(`sh -c 'test -n "$LACOS_IM" && test "$iraf" = /iraf/iraf/ && touch "$1" "$2"'`, dir)
	require.NoError(t, err)
	task.Env = []string{"iraf=/iraf/iraf/"}

	out, err := Invoke(context.Background(), task, input, 1, testSettings())
	require.NoError(t, err)
	assert.FileExists(t, out.Clean)
	assert.FileExists(t, out.Mask)
}

func TestTaskDetectFailures(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "a_flt.fits")
	writeInput(t, input)

	failing, err := NewTask(`sh -c 'echo "ERROR: cannot open image" >&2; exit 3'`, dir)
	require.NoError(t, err)
	_, err = Invoke(context.Background(), failing, input, 1, testSettings())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExternalTool))
	assert.True(t, strings.Contains(strings.Join(errors.GetAllDetails(err), "\n"), "cannot open image"))

	missing, err := NewTask("no-such-lacosmic-binary-here", dir)
	require.NoError(t, err)
	_, err = Invoke(context.Background(), missing, input, 1, testSettings())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrExternalTool))
	assert.NotEmpty(t, errors.GetAllHints(err))
}
