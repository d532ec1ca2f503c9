package pipeline

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/abworrall/lacosmic/pkg/cosmic"
	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/fitsimg"
	"github.com/abworrall/lacosmic/pkg/params"
)

// Discover finds the exposures to process. Each arg can be a file, which
// is taken if its name matches the glob, or a directory, whose immediate
// contents are globbed. Products of an earlier run (.clean.fits,
// .mask.fits) are never picked up. The result is sorted within each arg,
// which gives the discovery order reports are written in.
func Discover(glob string, args ...string) ([]string, error) {
	if _, err := filepath.Match(glob, ""); err != nil {
		return nil, errors.Configurationf("bad glob %q: %v", glob, err)
	}

	found := []string{}
	for _, arg := range args {
		item, err := os.Stat(arg)

		switch {

		case err != nil:
			return nil, errors.Mark(errors.Wrapf(err, "load %s", arg), errors.ErrInputRead)

		case item.IsDir():
			matches, err := filepath.Glob(filepath.Join(arg, glob))
			if err != nil {
				return nil, errors.Configurationf("bad glob %q: %v", glob, err)
			}
			sort.Strings(matches)
			for _, m := range matches {
				if fi, err := os.Stat(m); err == nil && fi.Mode().IsRegular() && !isProduct(m) {
					found = append(found, m)
				}
			}

		default:
			if ok, _ := filepath.Match(glob, filepath.Base(arg)); ok && !isProduct(arg) {
				found = append(found, arg)
			}
		}
	}

	return found, nil
}

func isProduct(path string) bool {
	return strings.HasSuffix(path, cosmic.CleanSuffix) || strings.HasSuffix(path, cosmic.MaskSuffix)
}

// ImageRecord is what the primary header says about an exposure.
type ImageRecord struct {
	Path      string
	Filter    string
	Postflash params.PostflashFlag
	Timestamp float64 // EXPSTART, MJD; NaN if absent
}

// Inspect reads the primary header. FILTER is required; FLSHCORR and
// EXPSTART are optional.
func Inspect(path string) (ImageRecord, error) {
	f, err := fitsimg.Open(path)
	if err != nil {
		return ImageRecord{}, err
	}
	defer f.Close()

	rec := ImageRecord{Path: path}

	filter, err := f.Keyword(0, fitsimg.KeyFilter)
	if err != nil {
		return rec, err
	}
	if err := filter.Require(); err != nil {
		return rec, errors.Wrapf(err, "inspect %s", path)
	}
	rec.Filter = strings.TrimSpace(filter.String())

	flash, err := f.Keyword(0, fitsimg.KeyPostflash)
	if err != nil {
		return rec, err
	}
	if flash.Present {
		rec.Postflash = params.ParsePostflash(flash.String())
	}

	rec.Timestamp = nan
	start, err := f.Keyword(0, fitsimg.KeyExpStart)
	if err != nil {
		return rec, err
	}
	if v, ok := start.Float(); start.Present && ok {
		rec.Timestamp = v
	}

	return rec, nil
}
