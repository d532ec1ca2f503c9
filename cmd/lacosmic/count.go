package main

import (
	"path/filepath"
	"strconv"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/logger"
	"github.com/abworrall/lacosmic/pkg/maskcount"
)

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count masked pixels per filter, and plot them against date",
	Long: `For each filter directory under --orig (every F* directory, or just
--filter), count the flagged pixels in each *mask.fits (including those
already sorted into flt_masks/), and write <filter>_mask_counts.dat and
<filter>_mask_counts.png into --dest.`,
	RunE: runCount,
}

func init() {
	f := countCmd.Flags()
	f.String("orig", "", "directory holding the filter directories")
	f.String("dest", "", "where the reports go (default: --orig)")
	f.String("filter", "", "only this filter directory")
}

func runCount(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Orig == "" {
		return errors.Configurationf("--orig is required")
	}

	filters := []string{cfg.Filter}
	if cfg.Filter == "" {
		if filters, err = maskcount.FilterDirs(cfg.Orig); err != nil {
			return err
		}
	}
	if len(filters) == 0 {
		pterm.Warning.Printf("no filter directories under %s\n", cfg.Orig)
		return nil
	}

	data := pterm.TableData{{"Filter", "Masks", "Mean", "Median", "P90", "Max", "Report"}}
	for _, filter := range filters {
		masks, err := maskcount.FindMasks(filepath.Join(cfg.Orig, filter))
		if err != nil {
			return err
		}
		rows, errs := maskcount.Scan(masks)
		if len(rows) == 0 {
			logger.Logger.Warnw("No masks counted", logger.FieldFilter, filter, "unreadable", len(errs))
			continue
		}

		dat, _, err := maskcount.Report(cfg.Destination(), filter, rows)
		if err != nil {
			return err
		}

		s := maskcount.Summarize(rows)
		data = append(data, []string{
			filter,
			strconv.Itoa(s.N),
			strconv.FormatFloat(s.Mean, 'f', 1, 64),
			strconv.FormatInt(s.Median, 10),
			strconv.FormatInt(s.P90, 10),
			strconv.FormatFloat(s.Max, 'f', 0, 64),
			dat,
		})
	}

	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
