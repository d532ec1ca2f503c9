package maskcount

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/codahale/hdrhistogram"
	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/imgutil"
	"github.com/abworrall/lacosmic/pkg/logger"
)

// PostflashEpoch is the MJD from which WFC3/UVIS exposures started
// being post-flashed.
const PostflashEpoch = 56232.0

// ReportHeader is the first line of a .dat report.
const ReportHeader = "#Filename Mask_Counts[pixels] Date"

// ReportPaths names the table and plot for a filter under dest.
func ReportPaths(dest, filter string) (dat, png string) {
	base := filepath.Join(dest, filter+"_mask_counts")
	return base + ".dat", base + ".png"
}

// WriteReport writes one line per row, in the order given, under
// ReportHeader. Filenames with spaces are quoted; a NaN date is "nan".
func WriteReport(w io.Writer, rows []MaskCount) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, ReportHeader)
	for _, r := range rows {
		fmt.Fprintf(bw, "%s %d %s\n", quoteField(r.SourcePath), r.Count, formatMJD(r.Timestamp))
	}
	return bw.Flush()
}

func quoteField(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\"") {
		return strconv.Quote(s)
	}
	return s
}

func formatMJD(f float64) string {
	if math.IsNaN(f) {
		return "nan"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// Stats summarises the counts of a set of masks.
type Stats struct {
	N      int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Median int64
	P90    int64
}

func (s Stats) String() string {
	return fmt.Sprintf("n=%d mean=%.1f sd=%.1f min=%.0f median=%d p90=%d max=%.0f",
		s.N, s.Mean, s.StdDev, s.Min, s.Median, s.P90, s.Max)
}

// histMax is the biggest count the quantile histogram tracks; a 4k x 4k
// detector fully flagged.
const histMax = 4096 * 4096

// Summarize computes the stats. No rows gives a zero Stats.
func Summarize(rows []MaskCount) Stats {
	if len(rows) == 0 {
		return Stats{}
	}

	counts := make([]float64, len(rows))
	h := hdrhistogram.New(0, histMax, 3)
	for i, r := range rows {
		counts[i] = float64(r.Count)
		if err := h.RecordValue(int64(r.Count)); err != nil {
			logger.Logger.Debugw("Count outside histogram range", logger.FieldFile, r.SourcePath, logger.FieldCount, r.Count)
		}
	}

	s := Stats{
		N:      len(rows),
		Mean:   stat.Mean(counts, nil),
		Min:    floats.Min(counts),
		Max:    floats.Max(counts),
		Median: h.ValueAtQuantile(50),
		P90:    h.ValueAtQuantile(90),
	}
	if len(rows) > 1 {
		s.StdDev = stat.StdDev(counts, nil)
	}
	return s
}

// Plot geometry, in pixels; the figure is 13.5in x 9.5in at 100dpi.
const (
	plotW      = 1350
	plotH      = 950
	plotMargin = 110.0
)

// PlotCounts draws count against MJD as a scatter plot, with a dashed
// red line where post-flashing began. Rows with a NaN date are left off.
func PlotCounts(rows []MaskCount, filter, path string) error {
	xs, ys := []float64{}, []float64{}
	for _, r := range rows {
		if math.IsNaN(r.Timestamp) {
			continue
		}
		xs = append(xs, r.Timestamp)
		ys = append(ys, float64(r.Count))
	}

	// Always keep the epoch line in view
	xmin, xmax := PostflashEpoch, PostflashEpoch
	ymin, ymax := 0.0, 1.0
	if len(xs) > 0 {
		xmin, xmax = math.Min(xmin, floats.Min(xs)), math.Max(xmax, floats.Max(xs))
		ymin, ymax = math.Min(ymin, floats.Min(ys)), math.Max(ymax, floats.Max(ys))
	}
	xmin, xmax = pad(xmin, xmax, 10)
	ymin, ymax = pad(ymin, ymax, 1)

	left, right := plotMargin, float64(plotW)-plotMargin/2
	top, bottom := plotMargin/2, float64(plotH)-plotMargin
	px := func(x float64) float64 { return left + (x-xmin)/(xmax-xmin)*(right-left) }
	py := func(y float64) float64 { return bottom - (y-ymin)/(ymax-ymin)*(bottom-top) }

	dc := gg.NewContext(plotW, plotH)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	// Axes box
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1.5)
	dc.DrawRectangle(left, top, right-left, bottom-top)
	dc.Stroke()

	label, err := imgutil.Face(16)
	if err != nil {
		return err
	}
	dc.SetFontFace(label)
	for i := 0; i <= 5; i++ {
		fx := xmin + float64(i)*(xmax-xmin)/5
		fy := ymin + float64(i)*(ymax-ymin)/5
		dc.DrawLine(px(fx), bottom, px(fx), bottom+6)
		dc.DrawLine(left-6, py(fy), left, py(fy))
		dc.Stroke()
		dc.DrawStringAnchored(strconv.FormatFloat(fx, 'f', 0, 64), px(fx), bottom+10, 0.5, 1)
		dc.DrawStringAnchored(strconv.FormatFloat(fy, 'f', 0, 64), left-10, py(fy), 1, 0.5)
	}

	title, err := imgutil.BoldFace(20)
	if err != nil {
		return err
	}
	dc.SetFontFace(title)
	dc.DrawStringAnchored("MJD", (left+right)/2, float64(plotH)-30, 0.5, 0.5)
	dc.Push()
	dc.RotateAbout(gg.Radians(-90), 30, (top+bottom)/2)
	dc.DrawStringAnchored("Number Masked Pixels", 30, (top+bottom)/2, 0.5, 0.5)
	dc.Pop()
	dc.DrawStringAnchored(filter, left+0.03*(right-left), top+0.1*(bottom-top), 0, 0)

	// Post-flash epoch
	dc.SetRGB(1, 0, 0)
	dc.SetLineWidth(2)
	dc.SetDash(12, 8)
	dc.DrawLine(px(PostflashEpoch), top, px(PostflashEpoch), bottom)
	dc.Stroke()
	dc.SetDash()
	dc.DrawStringAnchored("Post-Flashing Begun", left+0.65*(right-left), top+0.1*(bottom-top), 0, 0)

	dc.SetRGB(0.12, 0.47, 0.71)
	for i := range xs {
		dc.DrawCircle(px(xs[i]), py(ys[i]), 5)
		dc.Fill()
	}

	return imgutil.WritePNG(dc.Image(), path)
}

func pad(lo, hi, minSpan float64) (float64, float64) {
	span := hi - lo
	if span < minSpan {
		span = minSpan
	}
	return lo - span*0.05, hi + span*0.05
}

// Report writes the .dat table and the .png plot for a filter into dest.
func Report(dest, filter string, rows []MaskCount) (string, string, error) {
	datPath, pngPath := ReportPaths(dest, filter)

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", "", errors.Mark(errors.Wrapf(err, "mkdir %s", dest), errors.ErrFilesystem)
	}

	f, err := os.Create(datPath)
	if err != nil {
		return "", "", errors.Mark(errors.Wrapf(err, "create %s", datPath), errors.ErrFilesystem)
	}
	if err := WriteReport(f, rows); err != nil {
		f.Close()
		return "", "", errors.Mark(errors.Wrapf(err, "write %s", datPath), errors.ErrFilesystem)
	}
	if err := f.Close(); err != nil {
		return "", "", errors.Mark(errors.Wrapf(err, "close %s", datPath), errors.ErrFilesystem)
	}

	if err := PlotCounts(rows, filter, pngPath); err != nil {
		return datPath, "", err
	}

	logger.Logger.Infow("Wrote mask report", logger.FieldFilter, filter, logger.FieldCount, len(rows),
		logger.FieldDest, datPath)
	return datPath, pngPath, nil
}
