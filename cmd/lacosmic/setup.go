package main

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/abworrall/lacosmic/pkg/config"
	"github.com/abworrall/lacosmic/pkg/errors"
)

var fSetupScriptDir string

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Record where lacos_im.cl lives",
	Long: `Check that --script-dir holds lacos_im.cl, and write its location (and
today's date) to the env file, for later runs to pick up. Only needs doing
once, or again if the scripts move.`,
	RunE: runSetup,
}

func init() {
	setupCmd.Flags().StringVar(&fSetupScriptDir, "script-dir", ".", "directory holding lacos_im.cl")
}

func runSetup(cmd *cobra.Command, args []string) error {
	if fEnvFile == "" {
		return errors.Configurationf("--env-file must not be empty")
	}
	if err := config.WriteSetupEnv(fEnvFile, fSetupScriptDir, time.Now()); err != nil {
		return err
	}

	cfg, err := config.Load(config.Options{ConfigFile: fConfigFile, EnvFile: fEnvFile})
	if err != nil {
		return err
	}
	pterm.Success.Printf("lacos_im scripts are in %s (recorded in %s)\n", cfg.Tool.ScriptDir, fEnvFile)
	return nil
}
