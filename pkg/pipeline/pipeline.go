// Package pipeline drives a batch: find the exposures, run a cosmic ray
// pass over each with its filter's parameters, draw the diagnostic
// composites, count the masks, and file the products away.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abworrall/lacosmic/pkg/config"
	"github.com/abworrall/lacosmic/pkg/cosmic"
	"github.com/abworrall/lacosmic/pkg/diagnostic"
	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/logger"
	"github.com/abworrall/lacosmic/pkg/maskcount"
	"github.com/abworrall/lacosmic/pkg/organize"
	"github.com/abworrall/lacosmic/pkg/params"
)

var nan = math.NaN()

func newRunID() string { return uuid.NewString() }

// ImageResult is how one exposure fared.
type ImageResult struct {
	Record      ImageRecord
	Params      params.FilterParameters
	Tabulated   bool    // false if the filter fell back to a default
	Sigclip     float64 // after the post-flash adjustment
	NeedsReview bool    // post-flash status unknown
	Outputs     cosmic.Outputs
	MaskCount   *maskcount.MaskCount
	Diagnostic  string // path of the composite PNG, if drawn
	Skipped     bool   // filtered out by --filter
	Err         error
}

func (r ImageResult) Status() string {
	switch {
	case r.Skipped:
		return "skipped"
	case r.Err != nil:
		return "failed: " + errors.Kind(r.Err)
	case r.NeedsReview:
		return "review"
	default:
		return "ok"
	}
}

// Report is a mask-count table and plot written for one filter.
type Report struct {
	Filter string
	Dat    string
	PNG    string
	Stats  maskcount.Stats
}

// BatchResult holds the images in discovery order.
type BatchResult struct {
	RunID   string
	Origin  string
	Dest    string
	Images  []ImageResult
	Reports []Report
	Sorted  organize.Result
	Elapsed time.Duration
}

func (b BatchResult) Succeeded() int {
	n := 0
	for _, r := range b.Images {
		if !r.Skipped && r.Err == nil {
			n++
		}
	}
	return n
}

func (b BatchResult) Failed() int {
	n := 0
	for _, r := range b.Images {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// AllFailed is true if there was work to do and none of it worked.
func (b BatchResult) AllFailed() bool {
	return b.Failed() > 0 && b.Succeeded() == 0
}

func (b BatchResult) String() string {
	return fmt.Sprintf("run %s: %d images, %d ok, %d failed, %d reports, sort: %s (%s)",
		b.RunID, len(b.Images), b.Succeeded(), b.Failed(), len(b.Reports), b.Sorted, b.Elapsed.Round(time.Millisecond))
}

// NewDetector builds the exec-backed task from the config.
func NewDetector(cfg *config.Config) (*cosmic.Task, error) {
	task, err := cosmic.NewTask(cfg.Tool.Command, cfg.Tool.ScriptDir)
	if err != nil {
		return nil, err
	}
	task.Env = cfg.Tool.Env
	return task, nil
}

// Run processes every exposure in cfg.Orig. Failures of single images are
// recorded in their ImageResult and the batch carries on; only bad
// configuration, or cancellation, stops it early.
func Run(ctx context.Context, cfg *config.Config, d cosmic.Detector) (*BatchResult, error) {
	start := time.Now()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	table, err := params.LoadTable(cfg.Params.Table)
	if err != nil {
		return nil, err
	}

	paths, err := Discover(cfg.InputGlob, cfg.Orig)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{RunID: newRunID(), Origin: cfg.Orig, Dest: cfg.Destination()}
	log := logger.With(logger.FieldRunID, res.RunID)
	log.Infow("Starting run", "origin", res.Origin, logger.FieldDest, res.Dest, "images", len(paths))
	if len(paths) == 0 {
		log.Warnw("No exposures found", "origin", cfg.Orig, logger.FieldPattern, cfg.InputGlob)
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return res, errors.Wrap(err, "run interrupted")
		}
		res.Images = append(res.Images, processImage(ctx, log, cfg, table, d, path))
	}

	sorted, err := organize.SortOutputs(res.Origin, res.Dest, cfg.Run.KeepMasks, cfg.Run.TempFolder)
	if err != nil {
		return res, err
	}
	res.Sorted = sorted
	for i := range res.Images {
		relocate(&res.Images[i], sorted)
	}

	if cfg.Run.CountMasks {
		res.Reports = writeReports(log, res.Dest, res.Images, sorted)
	}

	res.Elapsed = time.Since(start)
	log.Infow("Finished run", "summary", res.String(), logger.FieldDuration, res.Elapsed.Milliseconds())
	return res, nil
}

func processImage(ctx context.Context, log *zap.SugaredLogger, cfg *config.Config, table params.Table, d cosmic.Detector, path string) ImageResult {
	r := ImageResult{Record: ImageRecord{Path: path, Timestamp: nan}}
	fail := func(err error) ImageResult {
		r.Err = err
		log.Errorw("Image failed", logger.FieldFile, path, logger.FieldError, err, logger.FieldErrorKind, errors.Kind(err))
		return r
	}

	rec, err := Inspect(path)
	if err != nil {
		return fail(err)
	}
	r.Record = rec

	if cfg.Filter != "" && !strings.EqualFold(cfg.Filter, rec.Filter) {
		r.Skipped = true
		log.Debugw("Skipping image for another filter", logger.FieldFile, path, logger.FieldFilter, rec.Filter)
		return r
	}

	r.Params, r.Tabulated = params.Lookup(rec.Filter, table)
	if !r.Tabulated {
		log.Infow("Filter not in parameter table, using default values", logger.FieldFile, path,
			logger.FieldFilter, rec.Filter, "params", r.Params.String())
	}

	r.Sigclip, r.NeedsReview = params.EffectiveSigclip(r.Params, rec.Postflash)
	if r.NeedsReview {
		log.Warnw("Post-flash status unknown, using nominal sigclip; review this image", logger.FieldFile, path,
			logger.FieldPostflash, rec.Postflash.String(), logger.FieldSigclip, r.Sigclip)
	}

	settings := cosmic.NewSettings(r.Params, r.Sigclip, cfg.Tool.Gain, cfg.Tool.ReadNoise)
	out, err := cosmic.Invoke(ctx, d, path, cfg.ScienceExt, settings)
	if err != nil {
		return fail(err)
	}
	r.Outputs = out
	log.Infow("Cleaned image", logger.FieldFile, path, logger.FieldFilter, rec.Filter,
		logger.FieldPostflash, rec.Postflash.String(), logger.FieldSigclip, r.Sigclip)

	if cfg.Run.CreatePNG {
		opts := diagnostic.DefaultOptions()
		opts.ScienceExt = cfg.ScienceExt
		png, err := diagnostic.Render(path, out, opts)
		if err != nil {
			// The pass itself worked, so the image still counts as done
			log.Warnw("Could not draw diagnostic composite", logger.FieldFile, path, logger.FieldError, err)
		} else {
			r.Diagnostic = png
		}
	}

	if cfg.Run.CountMasks {
		mc, err := maskcount.CountFile(out.Mask)
		if err != nil {
			log.Warnw("Could not count mask", logger.FieldFile, out.Mask, logger.FieldError, err)
		} else {
			if math.IsNaN(mc.Timestamp) {
				mc.Timestamp = rec.Timestamp
			}
			r.MaskCount = &mc
		}
	}

	return r
}

// relocate points an image's products at where the organizer put them.
func relocate(r *ImageResult, sorted organize.Result) {
	for _, p := range []*string{&r.Outputs.Clean, &r.Outputs.Mask, &r.Diagnostic} {
		if to, ok := sorted.Destination(*p); ok && *p != "" {
			*p = to
		}
	}
}

// writeReports groups the mask counts by filter, in order of first
// appearance, pointing each row at where its mask ended up.
func writeReports(log *zap.SugaredLogger, dest string, images []ImageResult, sorted organize.Result) []Report {
	filters := []string{}
	rows := map[string][]maskcount.MaskCount{}
	for _, img := range images {
		if img.MaskCount == nil {
			continue
		}
		mc := *img.MaskCount
		if to, ok := sorted.Destination(mc.SourcePath); ok {
			mc.SourcePath = to
		}
		f := img.Record.Filter
		if _, seen := rows[f]; !seen {
			filters = append(filters, f)
		}
		rows[f] = append(rows[f], mc)
	}

	reports := []Report{}
	for _, f := range filters {
		dat, png, err := maskcount.Report(dest, f, rows[f])
		if err != nil {
			log.Errorw("Could not write mask report", logger.FieldFilter, f, logger.FieldError, err)
			continue
		}
		reports = append(reports, Report{Filter: f, Dat: dat, PNG: png, Stats: maskcount.Summarize(rows[f])})
	}
	return reports
}
