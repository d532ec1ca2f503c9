// Package config layers the batch runner's settings: built-in defaults,
// an optional YAML file, the env file written by `lacosmic setup`,
// LACOS_* environment variables, and finally command-line overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/abworrall/lacosmic/pkg/cosmic"
	"github.com/abworrall/lacosmic/pkg/errors"
)

const EnvPrefix = "LACOS"

// DefaultEnvFile is where `lacosmic setup` writes, and where Load looks
// if it isn't told otherwise.
const DefaultEnvFile = ".lacosmic.env"

type ToolConfig struct {
	Command   string  `mapstructure:"command" yaml:"command"`
	ScriptDir string  `mapstructure:"script_dir" yaml:"script_dir"`
	Gain      float64 `mapstructure:"gain" yaml:"gain"`
	ReadNoise float64 `mapstructure:"readnoise" yaml:"readnoise"`

	// Env is extra KEY=value pairs for the task's environment
	// (LACOS_TOOL_ENV takes them comma separated).
	Env []string `mapstructure:"env" yaml:"env,omitempty"`
}

type RunConfig struct {
	CreatePNG  bool `mapstructure:"create_png" yaml:"create_png"`
	CountMasks bool `mapstructure:"count_masks" yaml:"count_masks"`
	KeepMasks  bool `mapstructure:"keep_masks" yaml:"keep_masks"`
	TempFolder bool `mapstructure:"temp_folder" yaml:"temp_folder"`
}

type ParamsConfig struct {
	Table string `mapstructure:"table" yaml:"table"` // YAML overrides for the filter table
}

type LogConfig struct {
	JSON bool `mapstructure:"json" yaml:"json"`
}

type Config struct {
	Orig       string `mapstructure:"orig" yaml:"orig"`
	Dest       string `mapstructure:"dest" yaml:"dest"`
	Filter     string `mapstructure:"filter" yaml:"filter"`
	InputGlob  string `mapstructure:"input_glob" yaml:"input_glob"`
	ScienceExt int    `mapstructure:"science_ext" yaml:"science_ext"`

	Tool   ToolConfig   `mapstructure:"tool" yaml:"tool"`
	Run    RunConfig    `mapstructure:"run" yaml:"run"`
	Params ParamsConfig `mapstructure:"params" yaml:"params"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`

	SetupDate string `mapstructure:"setup_date" yaml:"setup_date,omitempty"`
}

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	v.SetDefault("orig", "")
	v.SetDefault("dest", "")
	v.SetDefault("filter", "")
	v.SetDefault("input_glob", "*fl*.fits")
	v.SetDefault("science_ext", 1)

	v.SetDefault("tool.command", cosmic.DefaultCommand)
	v.SetDefault("tool.script_dir", "")
	v.SetDefault("tool.gain", cosmic.DefaultGain)
	v.SetDefault("tool.readnoise", cosmic.DefaultReadNoise)
	v.SetDefault("tool.env", []string{})

	v.SetDefault("run.create_png", true)
	v.SetDefault("run.count_masks", true)
	v.SetDefault("run.keep_masks", true)
	v.SetDefault("run.temp_folder", false)

	v.SetDefault("params.table", "")
	v.SetDefault("log.json", false)
	v.SetDefault("setup_date", "")
}

// Options say where Load should look. Overrides are viper keys set last,
// typically from command-line flags the user actually gave.
type Options struct {
	ConfigFile string
	EnvFile    string
	Overrides  map[string]interface{}
}

// EnvName is the environment variable for a config key, e.g.
// tool.script_dir -> LACOS_TOOL_SCRIPT_DIR.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// Load builds a Config. A missing env file is fine (setup may not have
// been run); a missing config file that was asked for is not.
func Load(opts Options) (*Config, error) {
	v := newViper()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Mark(errors.Wrapf(err, "read config %s", opts.ConfigFile), errors.ErrConfiguration)
		}
	}

	if err := applyEnvFile(v, opts.EnvFile); err != nil {
		return nil, err
	}

	for k, val := range opts.Overrides {
		v.Set(k, val)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "unmarshal config"), errors.ErrConfiguration)
	}
	return &cfg, nil
}

// applyEnvFile reads the env file into the config. Real environment
// variables still win over what the file says.
func applyEnvFile(v *viper.Viper, path string) error {
	if path == "" {
		path = DefaultEnvFile
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	vals, err := godotenv.Read(path)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "read env file %s", path), errors.ErrConfiguration)
	}

	for _, key := range v.AllKeys() {
		name := EnvName(key)
		val, ok := vals[name]
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(name); set {
			continue
		}
		v.Set(key, val)
	}
	return nil
}

// Validate checks the settings that every run needs.
func (c *Config) Validate() error {
	if c.Orig == "" {
		return errors.Configurationf("orig: no origin directory given")
	}
	if fi, err := os.Stat(c.Orig); err != nil || !fi.IsDir() {
		return errors.Configurationf("orig: %s is not a directory", c.Orig)
	}
	if c.InputGlob == "" {
		return errors.Configurationf("input_glob is empty")
	}
	if _, err := filepath.Match(c.InputGlob, ""); err != nil {
		return errors.Configurationf("input_glob %q: %v", c.InputGlob, err)
	}
	if c.ScienceExt < 0 {
		return errors.Configurationf("science_ext must not be negative, got %d", c.ScienceExt)
	}
	if c.Tool.Gain <= 0 {
		return errors.Configurationf("tool.gain must be positive, got %g", c.Tool.Gain)
	}
	if c.Tool.ReadNoise <= 0 {
		return errors.Configurationf("tool.readnoise must be positive, got %g", c.Tool.ReadNoise)
	}
	return nil
}

// Destination is Dest, or Orig if no destination was given.
func (c *Config) Destination() string {
	if c.Dest == "" {
		return c.Orig
	}
	return c.Dest
}

func (c Config) AsYaml() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return "# can't marshal config: " + err.Error() + "\n"
	}
	return string(b)
}

// WriteSetupEnv records where the task definition lives, for later runs
// to pick up through Load.
func WriteSetupEnv(path, scriptDir string, now time.Time) error {
	if path == "" {
		path = DefaultEnvFile
	}

	abs, err := filepath.Abs(scriptDir)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "resolve %s", scriptDir), errors.ErrConfiguration)
	}
	if _, err := os.Stat(filepath.Join(abs, cosmic.ScriptName)); err != nil {
		return errors.WithHint(
			errors.Mark(errors.Wrapf(err, "no %s in %s", cosmic.ScriptName, abs), errors.ErrConfiguration),
			"run setup with --script-dir pointing at the directory holding "+cosmic.ScriptName)
	}

	env := map[string]string{
		EnvName("tool.script_dir"): abs,
		EnvName("setup_date"):      now.Format("2006-01-02"),
	}
	if err := godotenv.Write(env, path); err != nil {
		return errors.Mark(errors.Wrapf(err, "write %s", path), errors.ErrFilesystem)
	}
	return nil
}
