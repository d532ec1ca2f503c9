// Package maskcount counts the pixels LACosmic flagged in its mask
// images, and reports the counts against observation date.
package maskcount

import (
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/abworrall/lacosmic/pkg/emath"
	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/fitsimg"
	"github.com/abworrall/lacosmic/pkg/logger"
)

// DefaultFlag is the mask value LACosmic uses for a cosmic ray pixel.
const DefaultFlag = 1.0

// MaskCount is the number of flagged pixels in one mask image.
type MaskCount struct {
	SourcePath string
	Count      int
	Timestamp  float64 // EXPSTART (MJD); NaN if the header didn't say
}

// CountMasked counts the pixels exactly equal to flagged.
func CountMasked(grid *emath.FloatGrid, flagged float64) int {
	n := 0
	for y := 0; y < grid.Dy(); y++ {
		for x := 0; x < grid.Dx(); x++ {
			if grid.Get(x, y) == flagged {
				n++
			}
		}
	}
	return n
}

// CountFile counts one mask image (extension 0), and reads its
// observation start. A missing EXPSTART is logged and gives a NaN
// timestamp rather than an error.
func CountFile(path string) (MaskCount, error) {
	f, err := fitsimg.Open(path)
	if err != nil {
		return MaskCount{}, err
	}
	defer f.Close()

	grid, err := f.Image(0)
	if err != nil {
		return MaskCount{}, err
	}

	mc := MaskCount{
		SourcePath: path,
		Count:      CountMasked(&grid, DefaultFlag),
		Timestamp:  math.NaN(),
	}

	kw, err := f.Keyword(0, fitsimg.KeyExpStart)
	if err != nil {
		return MaskCount{}, err
	}
	if err := kw.Require(); err != nil {
		logger.Logger.Warnw("Mask has no observation start", logger.FieldFile, path, logger.FieldError, err)
	} else if mjd, ok := kw.Float(); ok {
		mc.Timestamp = mjd
	} else {
		logger.Logger.Warnw("Mask observation start is not a number", logger.FieldFile, path, "value", kw.String())
	}

	return mc, nil
}

// Scan counts each of the mask files, in order. Files that can't be
// read are skipped, and their errors returned alongside.
func Scan(paths []string) ([]MaskCount, []error) {
	rows := []MaskCount{}
	errs := []error{}

	for _, path := range paths {
		mc, err := CountFile(path)
		if err != nil {
			logger.Logger.Errorw("Could not count mask", logger.FieldFile, path,
				logger.FieldError, err, logger.FieldErrorKind, errors.Kind(err))
			errs = append(errs, err)
			continue
		}
		logger.Logger.Infow("Counted mask", logger.FieldFile, path, logger.FieldCount, mc.Count, "date", mc.Timestamp)
		rows = append(rows, mc)
	}

	return rows, errs
}

// FindMasks returns the *mask.fits files in dir and in its flt_masks
// subdirectory (where a finished run files them), sorted by name.
func FindMasks(dir string) ([]string, error) {
	found := []string{}
	for _, pattern := range []string{
		filepath.Join(dir, "*mask.fits"),
		filepath.Join(dir, "flt_masks", "*mask.fits"),
	} {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, errors.Configurationf("bad glob %q: %v", pattern, err)
		}
		sort.Strings(matches)
		found = append(found, matches...)
	}
	return found, nil
}

// FilterDirs lists the per-filter directories (named F*) under orig.
func FilterDirs(orig string) ([]string, error) {
	entries, err := os.ReadDir(orig)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "readdir %s", orig), errors.ErrInputRead)
	}

	filters := []string{}
	for _, e := range entries {
		if e.IsDir() && len(e.Name()) > 1 && e.Name()[0] == 'F' {
			filters = append(filters, e.Name())
		}
	}
	return filters, nil
}
