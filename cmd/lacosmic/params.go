package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abworrall/lacosmic/pkg/params"
)

var paramsCmd = &cobra.Command{
	Use:   "params [filter...]",
	Short: "Show the per-filter parameter table",
	Long: `Print the effective parameter table (built-in values plus any --table
overrides) as YAML. Given filter names, print what each would resolve to,
including the defaults for filters that aren't in the table.`,
	RunE: runParams,
}

func init() {
	paramsCmd.Flags().String("table", "", "YAML file of per-filter parameter overrides")
}

func runParams(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	table, err := params.LoadTable(cfg.Params.Table)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		fmt.Print(table.AsYaml())
		return nil
	}

	for _, filter := range args {
		p, found := params.Lookup(filter, table)
		source := "table"
		if !found {
			source = "default"
		}
		fmt.Printf("%-8s %s (%s)\n", filter, p, source)
	}
	return nil
}
