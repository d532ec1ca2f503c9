package main

import (
	"path/filepath"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/pipeline"
)

var (
	fSweepSigclip []float64
	fSweepSigfrac []float64
	fSweepObjlim  []int
	fSweepNiter   []int
	fSweepCount   bool
)

var testerCmd = &cobra.Command{
	Use:   "tester",
	Short: "Try combinations of parameters on a few exposures",
	Long: `Run every combination of --sigclip, --sigfrac, --objlim and --niter over
each exposure in --orig (a small subset, ~3, of one filter), drawing a
composite named <sigclip>_<sigfrac>_<objlim>_<niter>.png into a directory
per exposure. Browse the PNGs to pick the best combination.

Post-flashed exposures usually want sigclip near 10; others are good
around 5 to 5.5. With --count the masks and cleaned images are kept and
a mask count report is written per exposure.`,
	RunE: runTester,
}

func init() {
	f := testerCmd.Flags()
	f.String("orig", "", "directory holding the exposures")
	f.String("glob", "", "which files are exposures (default *fl*.fits)")
	f.Int("ext", 1, "extension holding the science array")
	f.String("command", "", "program that runs lacos_im (default lacos_im.sh)")
	f.String("script-dir", "", "directory holding lacos_im.cl")
	f.Float64SliceVar(&fSweepSigclip, "sigclip", []float64{9.0, 9.5, 10.0}, "sigclip values to try")
	f.Float64SliceVar(&fSweepSigfrac, "sigfrac", []float64{0.3, 0.4}, "sigfrac values to try")
	f.IntSliceVar(&fSweepObjlim, "objlim", []int{2, 3, 4, 5}, "objlim values to try")
	f.IntSliceVar(&fSweepNiter, "niter", []int{4, 5}, "niter values to try")
	f.BoolVar(&fSweepCount, "count", false, "keep the products and count masked pixels")
}

func runTester(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	task, err := pipeline.NewDetector(cfg)
	if err != nil {
		return err
	}

	grid := pipeline.SweepGrid{Sigclip: fSweepSigclip, Sigfrac: fSweepSigfrac, Objlim: fSweepObjlim, Niter: fSweepNiter}
	results, err := pipeline.Sweep(cmd.Context(), cfg, task, grid, fSweepCount)

	data := pterm.TableData{{"Image", "Combination", "Composite", "Status"}}
	failed := 0
	for _, r := range results {
		status := "ok"
		if r.Err != nil {
			status = "failed: " + errors.Kind(r.Err)
			failed++
		}
		data = append(data, []string{filepath.Base(r.Image), r.Combo.Name(), r.Diagnostic, status})
	}
	if len(results) > 0 {
		pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	}

	if err != nil {
		return err
	}
	if len(results) > 0 && failed == len(results) {
		return errors.Newf("all %d combinations failed", failed)
	}
	return nil
}
