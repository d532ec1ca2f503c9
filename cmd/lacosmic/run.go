package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run LACosmic over every exposure in a directory",
	Long: `Run LACosmic over every exposure (*fl*.fits by default) in --orig, using
the filter's parameters from the table, with sigclip raised for
post-flashed exposures. Diagnostic composites are drawn, masks counted,
and the products sorted into flt_cleans/, flt_masks/ and
png_masks_cleans/ under --dest (which defaults to --orig).

Each pass runs --command (default lacos_im.sh, shipped in scripts/) as

  <command> input[ext] clean mask gain=.. readn=.. sigclip=.. sigfrac=.. objlim=.. niter=..

with LACOS_IM set to lacos_im.cl in --script-dir. The wrapper hands the
call to the IRAF cl; any program taking the same arguments will do.`,
	RunE: runRun,
}

func init() {
	f := runCmd.Flags()
	f.String("orig", "", "directory holding the exposures")
	f.String("dest", "", "where the output directories go (default: --orig)")
	f.String("filter", "", "only process exposures with this FILTER")
	f.String("glob", "", "which files are exposures (default *fl*.fits)")
	f.Int("ext", 1, "extension holding the science array")
	f.String("command", "", "program that runs lacos_im (default lacos_im.sh)")
	f.String("script-dir", "", "directory holding lacos_im.cl")
	f.String("table", "", "YAML file of per-filter parameter overrides")
	f.Bool("temp-folder", false, "put cleaned images in flt_cleans/temp_lacos/")
	f.Bool("no-png", false, "don't draw diagnostic composites")
	f.Bool("no-count", false, "don't count masked pixels")
	f.Bool("discard-masks", false, "delete the masks rather than keeping them")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	task, err := pipeline.NewDetector(cfg)
	if err != nil {
		return err
	}

	res, err := pipeline.Run(cmd.Context(), cfg, task)
	if res != nil {
		printBatch(res)
	}
	if err != nil {
		return err
	}
	if res.AllFailed() {
		return errors.Newf("all %d images failed", res.Failed())
	}
	return nil
}

func printBatch(res *pipeline.BatchResult) {
	data := pterm.TableData{{"Image", "Filter", "Postflash", "Sigclip", "Masked", "Status"}}
	for _, img := range res.Images {
		masked := "-"
		if img.MaskCount != nil {
			masked = strconv.Itoa(img.MaskCount.Count)
		}
		sigclip := "-"
		if img.Sigclip > 0 {
			sigclip = strconv.FormatFloat(img.Sigclip, 'g', -1, 64)
		}
		data = append(data, []string{
			filepath.Base(img.Record.Path),
			img.Record.Filter,
			img.Record.Postflash.String(),
			sigclip,
			masked,
			img.Status(),
		})
	}
	pterm.DefaultTable.WithHasHeader().WithData(data).Render()

	for _, rep := range res.Reports {
		pterm.Info.Printf("%s: %s\n  %s\n  %s\n", rep.Filter, rep.Stats, rep.Dat, rep.PNG)
	}
	for _, f := range res.Sorted.Failed {
		pterm.Warning.Printf("could not file %s: %v\n", f.Path, f.Err)
	}
	fmt.Println(res.String())
}
