// Package cosmic runs one pass of the external LACosmic task over an
// exposure. The detection algorithm itself lives in the external task;
// this package only names the outputs, builds the call, and classifies
// what went wrong.
package cosmic

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/fitsimg"
	"github.com/abworrall/lacosmic/pkg/logger"
	"github.com/abworrall/lacosmic/pkg/params"
)

// Suffixes the task's outputs get in place of the input's ".fits".
const (
	CleanSuffix = ".clean.fits"
	MaskSuffix  = ".mask.fits"
)

// Detector default gain and read noise, for WFC3/UVIS.
const (
	DefaultGain      = 1.5
	DefaultReadNoise = 3.0
)

// Settings are the full set of task parameters for one pass.
type Settings struct {
	Gain      float64
	ReadNoise float64
	Sigclip   float64
	Sigfrac   float64
	Objlim    int
	Niter     int
}

// NewSettings fills in the filter parameters, with sigclip already
// adjusted for post-flash.
func NewSettings(p params.FilterParameters, sigclip, gain, readNoise float64) Settings {
	return Settings{
		Gain:      gain,
		ReadNoise: readNoise,
		Sigclip:   sigclip,
		Sigfrac:   p.Sigfrac,
		Objlim:    p.Objlim,
		Niter:     p.Niter,
	}
}

func (s Settings) String() string {
	return fmt.Sprintf("gain=%g readn=%g sigclip=%g sigfrac=%g objlim=%d niter=%d",
		s.Gain, s.ReadNoise, s.Sigclip, s.Sigfrac, s.Objlim, s.Niter)
}

// Outputs are the files a pass writes next to its input.
type Outputs struct {
	Clean string
	Mask  string
}

// OutputsFor names the clean and mask files for an input image.
func OutputsFor(imagePath string) Outputs {
	root := Rootname(imagePath)
	return Outputs{Clean: root + CleanSuffix, Mask: root + MaskSuffix}
}

// Rootname is the path up to the first ".fits", or the whole path if
// it has none.
func Rootname(imagePath string) string {
	if i := strings.Index(imagePath, ".fits"); i >= 0 {
		return imagePath[:i]
	}
	return imagePath
}

// Request is one call of the external task.
type Request struct {
	Input     string // path of the input image
	Extension int    // extension holding the science array
	Outputs   Outputs
	Settings  Settings
}

// Detector runs the cosmic-ray task. Implementations should return
// errors marked ErrExternalTool.
type Detector interface {
	Detect(ctx context.Context, req Request) error
}

// Invoke runs one pass of d over the image, and checks that both output
// files turned up. An input that doesn't open as FITS, or has no image
// in extension ext, is ErrInputRead and never reaches d; anything wrong
// with the task is ErrExternalTool. There are no retries.
func Invoke(ctx context.Context, d Detector, imagePath string, ext int, s Settings) (Outputs, error) {
	if err := checkInput(imagePath, ext); err != nil {
		return Outputs{}, err
	}

	req := Request{
		Input:     imagePath,
		Extension: ext,
		Outputs:   OutputsFor(imagePath),
		Settings:  s,
	}

	logger.Logger.Debugw("Running cosmic ray pass", logger.FieldFile, imagePath, "settings", s.String())

	if err := d.Detect(ctx, req); err != nil {
		if errors.Is(err, errors.ErrExternalTool) {
			return Outputs{}, err
		}
		return Outputs{}, errors.Mark(errors.Wrapf(err, "cosmic ray pass on %s", imagePath), errors.ErrExternalTool)
	}

	for _, out := range []string{req.Outputs.Clean, req.Outputs.Mask} {
		if _, err := os.Stat(out); err != nil {
			return Outputs{}, errors.Mark(
				errors.Wrapf(err, "task finished but did not write %s", out),
				errors.ErrExternalTool)
		}
	}

	return req.Outputs, nil
}

func checkInput(imagePath string, ext int) error {
	f, err := fitsimg.Open(imagePath)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.CheckImage(ext)
}
