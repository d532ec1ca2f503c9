package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/abworrall/lacosmic/pkg/config"
	"github.com/abworrall/lacosmic/pkg/errors"
	"github.com/abworrall/lacosmic/pkg/logger"
)

var (
	fConfigFile string
	fEnvFile    string
	fJSONLogs   bool
	fVerbosity  int
)

var rootCmd = &cobra.Command{
	Use:   "lacosmic",
	Short: "Run LACosmic cosmic ray rejection over directories of FITS exposures",
	Long: `lacosmic runs the LACosmic task (lacos_im) over calibrated exposures, with
parameters tuned per filter, and files away the cleaned images, masks and
diagnostic plots.

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (LACOS_* prefix)
3. The setup env file (written by 'lacosmic setup')
4. The YAML file given by --config
5. Default values

Examples:
  lacosmic setup --script-dir ~/lacos          # Record where lacos_im.cl lives
  lacosmic run --orig data/F606W/              # Clean everything, sort the outputs
  lacosmic count --orig data/ --dest plots/    # Mask counts per filter directory
  lacosmic tester --orig sub/ --sigclip 9,9.5,10 --count
  lacosmic params                              # Show the parameter table`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := logger.Initialize(fJSONLogs, fVerbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&fConfigFile, "config", "", "YAML config file")
	rootCmd.PersistentFlags().StringVar(&fEnvFile, "env-file", config.DefaultEnvFile, "env file written by 'lacosmic setup'")
	rootCmd.PersistentFlags().BoolVar(&fJSONLogs, "json-logs", false, "log as JSON rather than console text")
	rootCmd.PersistentFlags().CountVarP(&fVerbosity, "verbose", "v", "Increase output verbosity")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(organizeCmd)
	rootCmd.AddCommand(testerCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(paramsCmd)
}

// A flagBinding maps a command-line flag onto a config key. Inverted
// flags (--no-png) set the key to the opposite of their value.
type flagBinding struct {
	flag   string
	key    string
	invert bool
}

var flagBindings = []flagBinding{
	{flag: "orig", key: "orig"},
	{flag: "dest", key: "dest"},
	{flag: "filter", key: "filter"},
	{flag: "glob", key: "input_glob"},
	{flag: "ext", key: "science_ext"},
	{flag: "command", key: "tool.command"},
	{flag: "script-dir", key: "tool.script_dir"},
	{flag: "table", key: "params.table"},
	{flag: "temp-folder", key: "run.temp_folder"},
	{flag: "no-png", key: "run.create_png", invert: true},
	{flag: "no-count", key: "run.count_masks", invert: true},
	{flag: "discard-masks", key: "run.keep_masks", invert: true},
}

// overrides collects the flags the user actually set.
func overrides(flags *pflag.FlagSet) map[string]interface{} {
	o := map[string]interface{}{}
	for _, b := range flagBindings {
		f := flags.Lookup(b.flag)
		if f == nil || !f.Changed {
			continue
		}
		if b.invert {
			on, _ := flags.GetBool(b.flag)
			o[b.key] = !on
			continue
		}
		o[b.key] = f.Value.String()
	}
	if fJSONLogs {
		o["log.json"] = true
	}
	return o
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		ConfigFile: fConfigFile,
		EnvFile:    fEnvFile,
		Overrides:  overrides(cmd.Flags()),
	})
	if err != nil {
		return nil, err
	}
	if fVerbosity > 1 {
		logger.Logger.Debugf("Final configuration:-\n\n%s", cfg.AsYaml())
	}
	return cfg, nil
}

// exitCode is 2 for bad configuration, 1 for anything else.
func exitCode(err error) int {
	if errors.IsConfigurationError(err) {
		return 2
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		logger.Sync()
		stop()
		os.Exit(exitCode(err))
	}
}
