package main

import (
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/organize"
)

var organizeCmd = &cobra.Command{
	Use:   "organize",
	Short: "Sort clean images, masks and PNGs into their directories",
	Long: `Move *clean.fits into flt_cleans/ (or flt_cleans/temp_lacos/), *png into
png_masks_cleans/ and *mask.fits into flt_masks/ (or delete them), from
--orig into --dest. Safe to run again; only what's left gets moved.

Your own filing rules can replace the standard ones: each --pattern goes
with the --dest-chain in the same position, a slash separated list of
nested directories under --dest.

  lacosmic organize --orig out/ --pattern '*clean.fits,*png' --dest-chain 'cleans/v2,plots'`,
	RunE: runOrganize,
}

func init() {
	f := organizeCmd.Flags()
	f.String("orig", "", "directory holding the products")
	f.String("dest", "", "where the output directories go (default: --orig)")
	f.Bool("temp-folder", false, "put cleaned images in flt_cleans/temp_lacos/")
	f.Bool("discard-masks", false, "delete the masks rather than keeping them")
	f.StringSlice("pattern", nil, "file patterns to move, instead of the standard rules")
	f.StringSlice("dest-chain", nil, "destination for each --pattern, e.g. flt_cleans/temp_lacos")
}

func runOrganize(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Orig == "" {
		return errors.Configurationf("--orig is required")
	}

	patterns, _ := cmd.Flags().GetStringSlice("pattern")
	dests, _ := cmd.Flags().GetStringSlice("dest-chain")

	var res organize.Result
	if len(patterns) > 0 || len(dests) > 0 {
		cats, err := organize.Pair(patterns, splitChains(dests))
		if err != nil {
			return err
		}
		res, err = organize.Organize(cfg.Orig, cfg.Destination(), cats)
		if err != nil {
			return err
		}
	} else if res, err = organize.SortOutputs(cfg.Orig, cfg.Destination(), cfg.Run.KeepMasks, cfg.Run.TempFolder); err != nil {
		return err
	}

	for _, f := range res.Failed {
		pterm.Warning.Printf("could not file %s: %v\n", f.Path, f.Err)
	}
	pterm.Success.Println(res.String())
	return nil
}

// splitChains turns "a/b" into {"a", "b"}, dropping empty elements.
func splitChains(dests []string) [][]string {
	chains := make([][]string, len(dests))
	for i, d := range dests {
		chain := []string{}
		for _, dir := range strings.Split(filepath.ToSlash(d), "/") {
			if dir = strings.TrimSpace(dir); dir != "" {
				chain = append(chain, dir)
			}
		}
		chains[i] = chain
	}
	return chains
}
