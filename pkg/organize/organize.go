// Package organize files the products of a run into subdirectories.
package organize

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/logger"
)

// Standard subdirectories of a run's destination.
const (
	CleansDir = "flt_cleans"
	TempDir   = "temp_lacos"
	MasksDir  = "flt_masks"
	PNGDir    = "png_masks_cleans"
)

// ReportPlots matches the mask count plots, which stay where they were
// written rather than being filed with the composites.
const ReportPlots = "*_mask_counts.png"

// A Category is a glob of files under the origin, and where they go: each
// element of Chain is a subdirectory of the one before, starting at the
// destination. Delete categories remove their matches instead. Files
// whose base name matches Exclude are left alone.
type Category struct {
	Pattern string
	Exclude string
	Chain   []string
	Delete  bool
}

func (c Category) String() string {
	pattern := c.Pattern
	if c.Exclude != "" {
		pattern += " (not " + c.Exclude + ")"
	}
	if c.Delete {
		return fmt.Sprintf("%s -> (delete)", pattern)
	}
	return fmt.Sprintf("%s -> %s", pattern, filepath.Join(c.Chain...))
}

// Move is one file that was relocated.
type Move struct {
	From string
	To   string
}

// FileError is one file that couldn't be moved or deleted.
type FileError struct {
	Path string
	Err  error
}

type Result struct {
	Moved   []Move
	Deleted []string
	Failed  []FileError
}

func (r Result) String() string {
	return fmt.Sprintf("moved %d, deleted %d, failed %d", len(r.Moved), len(r.Deleted), len(r.Failed))
}

// Destination returns where a file ended up, if it was moved.
func (r Result) Destination(from string) (string, bool) {
	for _, m := range r.Moved {
		if m.From == from {
			return m.To, true
		}
	}
	return "", false
}

// Pair zips parallel lists of patterns and chains into move categories.
func Pair(patterns []string, chains [][]string) ([]Category, error) {
	if len(patterns) != len(chains) {
		return nil, errors.Configurationf("%d patterns but %d destinations", len(patterns), len(chains))
	}
	cats := make([]Category, len(patterns))
	for i := range patterns {
		cats[i] = Category{Pattern: patterns[i], Chain: chains[i]}
	}
	return cats, nil
}

// Validate checks the categories before anything is touched.
func Validate(cats []Category) error {
	for i, c := range cats {
		if c.Pattern == "" {
			return errors.Configurationf("category %d: empty pattern", i)
		}
		if _, err := filepath.Match(c.Pattern, ""); err != nil {
			return errors.Configurationf("category %d: bad pattern %q: %v", i, c.Pattern, err)
		}
		if _, err := filepath.Match(c.Exclude, ""); err != nil {
			return errors.Configurationf("category %d: bad exclude pattern %q: %v", i, c.Exclude, err)
		}
		if !c.Delete && len(c.Chain) == 0 {
			return errors.Configurationf("category %d (%s): no destination", i, c.Pattern)
		}
	}
	return nil
}

// Organize applies each category in turn. Directories are only made
// when something matches. A file that can't be moved is logged and
// recorded in Result.Failed, and the rest carry on; running it again
// picks up only what's still left in origin.
func Organize(origin, dest string, cats []Category) (Result, error) {
	res := Result{}
	if err := Validate(cats); err != nil {
		return res, err
	}

	for _, c := range cats {
		matches, err := filepath.Glob(filepath.Join(origin, c.Pattern))
		if err != nil {
			return res, errors.Configurationf("glob %q: %v", c.Pattern, err)
		}
		sort.Strings(matches)
		matches = c.keep(filesOnly(matches))
		if len(matches) == 0 {
			continue
		}

		if c.Delete {
			for _, m := range matches {
				if err := os.Remove(m); err != nil {
					res.fail(m, errors.Wrapf(err, "remove %s", m))
					continue
				}
				res.Deleted = append(res.Deleted, m)
			}
			logger.Logger.Debugw("Deleted files", logger.FieldPattern, c.Pattern, logger.FieldCount, len(matches))
			continue
		}

		dir := filepath.Join(append([]string{dest}, c.Chain...)...)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			for _, m := range matches {
				res.fail(m, errors.Wrapf(err, "mkdir %s", dir))
			}
			continue
		}

		for _, m := range matches {
			to := filepath.Join(dir, filepath.Base(m))
			if err := moveFile(m, to); err != nil {
				res.fail(m, err)
				continue
			}
			res.Moved = append(res.Moved, Move{From: m, To: to})
		}
		logger.Logger.Debugw("Moved files", logger.FieldPattern, c.Pattern, logger.FieldDest, dir, logger.FieldCount, len(matches))
	}

	return res, nil
}

func (r *Result) fail(path string, err error) {
	err = errors.Mark(err, errors.ErrFilesystem)
	logger.Logger.Errorw("Could not organize file", logger.FieldFile, path, logger.FieldError, err)
	r.Failed = append(r.Failed, FileError{Path: path, Err: err})
}

// The glob would also pick up directories (e.g. flt_masks matching *masks*)
func filesOnly(paths []string) []string {
	files := paths[:0]
	for _, p := range paths {
		if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
			files = append(files, p)
		}
	}
	return files
}

// moveFile renames, falling back to copy+remove across filesystems.
func moveFile(from, to string) error {
	err := os.Rename(from, to)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return errors.Wrapf(err, "move %s", from)
	}

	if err := copyFile(from, to); err != nil {
		os.Remove(to)
		return errors.Wrapf(err, "copy %s", from)
	}
	return errors.Wrapf(os.Remove(from), "remove %s after copy", from)
}

func copyFile(from, to string) error {
	in, err := os.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(to, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// keep drops the matches excluded by the category.
func (c Category) keep(matches []string) []string {
	if c.Exclude == "" {
		return matches
	}
	kept := matches[:0]
	for _, m := range matches {
		if ok, _ := filepath.Match(c.Exclude, filepath.Base(m)); !ok {
			kept = append(kept, m)
		}
	}
	return kept
}

// StandardCategories are the run's usual filing rules: clean images into
// flt_cleans (or flt_cleans/temp_lacos), PNGs into png_masks_cleans, and
// masks into flt_masks, or deleted if they're not wanted.
func StandardCategories(keepMasks, tempFolder bool) []Category {
	cleans := []string{CleansDir}
	if tempFolder {
		cleans = append(cleans, TempDir)
	}

	cats := []Category{
		{Pattern: "*clean.fits", Chain: cleans},
		{Pattern: "*png", Exclude: ReportPlots, Chain: []string{PNGDir}},
	}
	if keepMasks {
		cats = append(cats, Category{Pattern: "*mask.fits", Chain: []string{MasksDir}})
	} else {
		cats = append(cats, Category{Pattern: "*mask.fits", Delete: true})
	}
	return cats
}

// SortOutputs files a run's products from origin into dest.
func SortOutputs(origin, dest string, keepMasks, tempFolder bool) (Result, error) {
	res, err := Organize(origin, dest, StandardCategories(keepMasks, tempFolder))
	if err != nil {
		return res, err
	}
	logger.Logger.Infow("Sorted outputs", "origin", origin, logger.FieldDest, dest, "result", res.String())
	return res, nil
}
