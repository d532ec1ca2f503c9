// Package fitsimg is the small slice of FITS handling the runner needs:
// look up a header keyword, read a 2-D pixel array from an extension,
// and write one back out.
package fitsimg

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/abworrall/lacosmic/pkg/emath"
	"github.com/abworrall/lacosmic/pkg/errors"
)

// Header keywords the runner reads.
const (
	KeyFilter    = "FILTER"
	KeyPostflash = "FLSHCORR"
	KeyExpStart  = "EXPSTART"
)

// Keyword is the result of a header lookup. A keyword that isn't there
// is not an error: Present is false and the caller decides what that
// means (see Require).
type Keyword struct {
	Name    string
	Value   interface{}
	Present bool
}

// String gives string values with their padding trimmed, and other
// values formatted with %v. Absent keywords give "".
func (k Keyword) String() string {
	if !k.Present || k.Value == nil {
		return ""
	}
	if s, ok := k.Value.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprintf("%v", k.Value)
}

// Float converts numeric (or numeric-looking string) values.
func (k Keyword) Float() (float64, bool) {
	if !k.Present {
		return 0, false
	}
	switch v := k.Value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Require turns an absent keyword into ErrMissingHeaderKeyword.
func (k Keyword) Require() error {
	if k.Present {
		return nil
	}
	return errors.Mark(errors.Newf("header keyword %s not found", k.Name), errors.ErrMissingHeaderKeyword)
}

// File is an open FITS file.
type File struct {
	Path string
	osf  *os.File
	fits *fitsio.File
}

// Open reads the file's HDU structure. Failures are ErrInputRead.
func Open(path string) (*File, error) {
	osf, err := os.Open(path)
	if err != nil {
		return nil, inputReadError(err, "open %s", path)
	}

	f, err := fitsio.Open(osf)
	if err != nil {
		osf.Close()
		return nil, inputReadError(err, "decode %s", path)
	}

	return &File{Path: path, osf: osf, fits: f}, nil
}

func (f *File) Close() error {
	err := f.fits.Close()
	if cerr := f.osf.Close(); err == nil {
		err = cerr
	}
	return err
}

// NumHDU is the number of header/data units in the file.
func (f *File) NumHDU() int { return len(f.fits.HDUs()) }

func (f *File) hdu(ext int) (fitsio.HDU, error) {
	if ext < 0 || ext >= f.NumHDU() {
		return nil, inputReadError(fmt.Errorf("extension %d out of range, file has %d", ext, f.NumHDU()), "read %s", f.Path)
	}
	return f.fits.HDU(ext), nil
}

// CheckImage verifies that extension ext exists and holds a 2-D image,
// without reading the pixels. Failures are ErrInputRead.
func (f *File) CheckImage(ext int) error {
	hdu, err := f.hdu(ext)
	if err != nil {
		return err
	}
	img, ok := hdu.(fitsio.Image)
	if !ok {
		return inputReadError(fmt.Errorf("extension %d is not an image", ext), "read %s", f.Path)
	}
	if _, _, err := dims2D(img.Header().Axes()); err != nil {
		return inputReadError(err, "read %s[%d]", f.Path, ext)
	}
	return nil
}

// Keyword looks name up in the header of extension ext.
func (f *File) Keyword(ext int, name string) (Keyword, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	hdu, err := f.hdu(ext)
	if err != nil {
		return Keyword{Name: name}, err
	}

	card := hdu.Header().Get(name)
	if card == nil {
		return Keyword{Name: name}, nil
	}
	return Keyword{Name: name, Value: card.Value, Present: true}, nil
}

// Image reads the 2-D data array of extension ext, applying BSCALE/BZERO.
func (f *File) Image(ext int) (emath.FloatGrid, error) {
	hdu, err := f.hdu(ext)
	if err != nil {
		return emath.FloatGrid{}, err
	}

	img, ok := hdu.(fitsio.Image)
	if !ok {
		return emath.FloatGrid{}, inputReadError(fmt.Errorf("extension %d is not an image", ext), "read %s", f.Path)
	}

	hdr := img.Header()
	w, h, err := dims2D(hdr.Axes())
	if err != nil {
		return emath.FloatGrid{}, inputReadError(err, "read %s[%d]", f.Path, ext)
	}

	vals, err := readPixels(img, hdr.Bitpix(), w*h)
	if err != nil {
		return emath.FloatGrid{}, inputReadError(err, "read %s[%d] pixels", f.Path, ext)
	}

	bscale, bzero := 1.0, 0.0
	if card := hdr.Get("BSCALE"); card != nil {
		if v, ok := (Keyword{Value: card.Value, Present: true}).Float(); ok {
			bscale = v
		}
	}
	if card := hdr.Get("BZERO"); card != nil {
		if v, ok := (Keyword{Value: card.Value, Present: true}).Float(); ok {
			bzero = v
		}
	}
	if bscale != 1.0 || bzero != 0.0 {
		for i := range vals {
			vals[i] = vals[i]*bscale + bzero
		}
	}

	grid, err := emath.NewFloatGridFromValues(w, h, vals)
	if err != nil {
		return emath.FloatGrid{}, inputReadError(err, "read %s[%d]", f.Path, ext)
	}
	return grid, nil
}

// ReadImage opens path and reads the 2-D array in extension ext.
func ReadImage(path string, ext int) (emath.FloatGrid, error) {
	f, err := Open(path)
	if err != nil {
		return emath.FloatGrid{}, err
	}
	defer f.Close()
	return f.Image(ext)
}

// dims2D accepts NAXIS=2, or more axes as long as the extra ones are 1.
func dims2D(axes []int) (int, int, error) {
	if len(axes) < 2 {
		return 0, 0, fmt.Errorf("need a 2-D image, NAXIS=%d", len(axes))
	}
	for _, n := range axes[2:] {
		if n != 1 {
			return 0, 0, fmt.Errorf("need a 2-D image, axes=%v", axes)
		}
	}
	if axes[0] <= 0 || axes[1] <= 0 {
		return 0, 0, fmt.Errorf("empty image, axes=%v", axes)
	}
	return axes[0], axes[1], nil
}

// fitsio wants a slice whose element size matches BITPIX, so read into
// the native type and widen.
func readPixels(img fitsio.Image, bitpix, n int) ([]float64, error) {
	out := make([]float64, n)

	switch bitpix {
	case 8:
		raw := make([]uint8, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 16:
		raw := make([]int16, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 32:
		raw := make([]int32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case 64:
		raw := make([]int64, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case -32:
		raw := make([]float32, n)
		if err := img.Read(&raw); err != nil {
			return nil, err
		}
		for i, v := range raw {
			out[i] = float64(v)
		}
	case -64:
		if err := img.Read(&out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported BITPIX %d", bitpix)
	}

	return out, nil
}

func inputReadError(err error, format string, args ...interface{}) error {
	return errors.Mark(errors.Wrapf(err, format, args...), errors.ErrInputRead)
}
