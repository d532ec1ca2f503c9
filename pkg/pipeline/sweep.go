package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/abworrall/lacosmic/pkg/config"
	"github.com/abworrall/lacosmic/pkg/cosmic"
	"github.com/abworrall/lacosmic/pkg/diagnostic"
	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/logger"
	"github.com/abworrall/lacosmic/pkg/maskcount"
	"github.com/abworrall/lacosmic/pkg/params"
)

// SweepGrid lists the values to try for each parameter; every
// combination is run.
type SweepGrid struct {
	Sigclip []float64
	Sigfrac []float64
	Objlim  []int
	Niter   []int
}

func (g SweepGrid) Size() int {
	return len(g.Sigclip) * len(g.Sigfrac) * len(g.Objlim) * len(g.Niter)
}

func (g SweepGrid) Validate() error {
	if g.Size() == 0 {
		return errors.Configurationf("sweep grid needs at least one value for each of sigclip, sigfrac, objlim, niter")
	}
	for _, sc := range g.Sigclip {
		for _, sf := range g.Sigfrac {
			for _, ol := range g.Objlim {
				for _, ni := range g.Niter {
					p := params.FilterParameters{Sigclip: sc, Sigfrac: sf, Objlim: ol, Niter: ni}
					if err := p.Validate(); err != nil {
						return errors.Mark(errors.Wrap(err, "sweep grid"), errors.ErrConfiguration)
					}
				}
			}
		}
	}
	return nil
}

// Combo is one point in the grid.
type Combo struct {
	Sigclip float64
	Sigfrac float64
	Objlim  int
	Niter   int
}

// Name is how the combination's files are named,
// <sigclip>_<sigfrac>_<objlim>_<niter>, floats always keeping a decimal
// point (5.0_0.3_2_5).
func (c Combo) Name() string {
	return strings.Join([]string{
		decimal(c.Sigclip), decimal(c.Sigfrac), strconv.Itoa(c.Objlim), strconv.Itoa(c.Niter),
	}, "_")
}

func decimal(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Combos lists the grid, sigclip varying slowest.
func (g SweepGrid) Combos() []Combo {
	combos := make([]Combo, 0, g.Size())
	for _, sc := range g.Sigclip {
		for _, sf := range g.Sigfrac {
			for _, ol := range g.Objlim {
				for _, ni := range g.Niter {
					combos = append(combos, Combo{sc, sf, ol, ni})
				}
			}
		}
	}
	return combos
}

// SweepResult is one combination run over one image.
type SweepResult struct {
	Image      string
	Combo      Combo
	Dir        string // per-image directory everything was filed into
	Diagnostic string
	Mask       string // kept products; empty if they were deleted
	Clean      string
	Err        error
}

// Sweep runs every combination in the grid over each exposure in
// cfg.Orig, writing a composite per combination into a directory named
// after the exposure. With keep set the products are kept (renamed
// <combo>_mask.fits and <combo>_clean.fits), and a mask count report is
// written for each exposure; otherwise they are deleted. The post-flash
// adjustment is not applied; sigclip is taken as given.
func Sweep(ctx context.Context, cfg *config.Config, d cosmic.Detector, grid SweepGrid, keep bool) ([]SweepResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	paths, err := Discover(cfg.InputGlob, cfg.Orig)
	if err != nil {
		return nil, err
	}

	log := logger.With(logger.FieldRunID, newRunID())
	log.Infow("Starting parameter sweep", "images", len(paths), "combinations", grid.Size())

	results := []SweepResult{}
	for _, path := range paths {
		dir := cosmic.Rootname(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return results, errors.Mark(errors.Wrapf(err, "mkdir %s", dir), errors.ErrFilesystem)
		}

		rows := []maskcount.MaskCount{}
		for _, c := range grid.Combos() {
			if err := ctx.Err(); err != nil {
				return results, errors.Wrap(err, "sweep interrupted")
			}

			r := sweepOne(ctx, cfg, d, path, dir, c, keep)
			if r.Err != nil {
				log.Errorw("Sweep combination failed", logger.FieldFile, path, "combo", c.Name(),
					logger.FieldError, r.Err, logger.FieldErrorKind, errors.Kind(r.Err))
			} else if keep {
				if mc, err := maskcount.CountFile(r.Mask); err == nil {
					rows = append(rows, mc)
				}
			}
			results = append(results, r)
		}

		if keep && len(rows) > 0 {
			filter := "unknown"
			if rec, err := Inspect(path); err == nil {
				filter = rec.Filter
			}
			if _, _, err := maskcount.Report(dir, filter, rows); err != nil {
				log.Errorw("Could not write sweep report", logger.FieldFile, path, logger.FieldError, err)
			}
		}
	}

	return results, nil
}

func sweepOne(ctx context.Context, cfg *config.Config, d cosmic.Detector, path, dir string, c Combo, keep bool) SweepResult {
	r := SweepResult{Image: path, Combo: c, Dir: dir}

	p := params.FilterParameters{Sigclip: c.Sigclip, Sigfrac: c.Sigfrac, Objlim: c.Objlim, Niter: c.Niter}
	out, err := cosmic.Invoke(ctx, d, path, cfg.ScienceExt, cosmic.NewSettings(p, c.Sigclip, cfg.Tool.Gain, cfg.Tool.ReadNoise))
	if err != nil {
		r.Err = err
		return r
	}

	opts := diagnostic.DefaultOptions()
	opts.ScienceExt = cfg.ScienceExt
	opts.OutPath = filepath.Join(dir, c.Name()+".png")
	if r.Diagnostic, err = diagnostic.Render(path, out, opts); err != nil {
		r.Err = err
	}

	if !keep {
		for _, f := range []string{out.Mask, out.Clean} {
			if rmErr := os.Remove(f); rmErr != nil && r.Err == nil {
				r.Err = errors.Mark(errors.Wrapf(rmErr, "remove %s", f), errors.ErrFilesystem)
			}
		}
		return r
	}

	r.Mask = filepath.Join(dir, c.Name()+"_mask.fits")
	r.Clean = filepath.Join(dir, c.Name()+"_clean.fits")
	for from, to := range map[string]string{out.Mask: r.Mask, out.Clean: r.Clean} {
		if mvErr := os.Rename(from, to); mvErr != nil && r.Err == nil {
			r.Err = errors.Mark(errors.Wrapf(mvErr, "rename %s", from), errors.ErrFilesystem)
		}
	}
	return r
}

func (r SweepResult) String() string {
	status := "ok"
	if r.Err != nil {
		status = "failed: " + errors.Kind(r.Err)
	}
	return fmt.Sprintf("%s %s %s", filepath.Base(r.Image), r.Combo.Name(), status)
}
