package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"

	"github.com/goccy/go-yaml"
	"gopkg.in/alecthomas/kingpin.v2"
)

const Version = "0.3.0"

type Config struct {
	Paths []string `yaml:"-"`
	File  string   `yaml:"-"`

	OutputDir       string  `yaml:"output_dir"`
	OutputName      string  `yaml:"output_name"`
	Overwrite       bool    `yaml:"overwrite"`
	ReplaceDeclared bool    `yaml:"replace_declared"`
	Ledger          string  `yaml:"ledger"`
	Workers         int     `yaml:"workers"`
	MixWorkers      int     `yaml:"mix_workers"`
	Duration        float64 `yaml:"duration"`
	Start           float64 `yaml:"start"`
	StartPercent    float64 `yaml:"start_percent"`
	MinNoteDensity  int     `yaml:"min_note_density"`
	Fallback        float64 `yaml:"fallback_fraction"`
	SampleRate      int     `yaml:"sample_rate"`
	Mono            bool    `yaml:"mono"`
	PeakCeiling     float64 `yaml:"peak_ceiling"`
	FadeIn          float64 `yaml:"fade_in"`
	FadeOut         float64 `yaml:"fade_out"`
	Volume          float64 `yaml:"volume"`
	Encoder         string  `yaml:"encoder"`
	Quality         float64 `yaml:"quality"`
	Verbose         bool    `yaml:"verbose"`
	NoInput         bool    `yaml:"no_input"`
}

func Default() Config {
	return Config{
		OutputName:     "preview_auto_generated.ogg",
		Workers:        runtime.NumCPU(),
		MixWorkers:     1,
		Duration:       30,
		Start:          -1,
		StartPercent:   -1,
		MinNoteDensity: 8,
		Fallback:       0.25,
		SampleRate:     44100,
		PeakCeiling:    0.98,
		FadeIn:         2,
		FadeOut:        2,
		Volume:         1,
		Encoder:        "oggenc",
		Quality:        5,
	}
}

func (c Config) Channels() int {
	if c.Mono {
		return 1
	}
	return 2
}

// ForcedStart is the configured start in seconds, nil when negative.
func (c Config) ForcedStart() *float64 {
	if c.Start < 0 {
		return nil
	}
	v := c.Start
	return &v
}

// ForcedPercent is the configured start percentage, nil when negative.
func (c Config) ForcedPercent() *float64 {
	if c.StartPercent < 0 {
		return nil
	}
	v := c.StartPercent
	return &v
}

func (c Config) Validate() error {
	switch {
	case len(c.Paths) == 0:
		return errors.New("no charts or directories given")
	case c.Duration <= 0:
		return fmt.Errorf("duration must be positive, got %v", c.Duration)
	case c.PeakCeiling <= 0 || c.PeakCeiling > 1:
		return fmt.Errorf("peak ceiling must be in (0, 1], got %v", c.PeakCeiling)
	case c.SampleRate < 0:
		return fmt.Errorf("invalid sample rate %d", c.SampleRate)
	case c.Fallback < 0 || c.Fallback > 1:
		return fmt.Errorf("fallback fraction must be in [0, 1], got %v", c.Fallback)
	case c.FadeIn < 0 || c.FadeOut < 0:
		return errors.New("fades must not be negative")
	case c.Volume < 0:
		return fmt.Errorf("volume must not be negative, got %v", c.Volume)
	case c.OutputName == "":
		return errors.New("output name must not be empty")
	}
	return nil
}

func format(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// app declares every flag with the current value of c as its default, so
// parsing only overrides what the user set.
func app(c *Config) *kingpin.Application {
	a := kingpin.New("bmspreview", "Render preview clips for BMS charts")
	a.Version(Version)
	a.HelpFlag.Short('h')

	a.Arg("paths", "Charts or directories to search for charts").Required().StringsVar(&c.Paths)
	a.Flag("config", "YAML configuration file").Short('c').StringVar(&c.File)
	a.Flag("output-dir", "Mirror previews under this directory instead of next to each chart").Short('O').Default(c.OutputDir).StringVar(&c.OutputDir)
	a.Flag("output-name", "Preview file name, .wav writes uncompressed audio").Short('n').Default(c.OutputName).StringVar(&c.OutputName)
	a.Flag("overwrite", "Replace existing previews").Short('f').Default(strconv.FormatBool(c.Overwrite)).BoolVar(&c.Overwrite)
	a.Flag("replace-declared", "Render charts that already declare #PREVIEW").Default(strconv.FormatBool(c.ReplaceDeclared)).BoolVar(&c.ReplaceDeclared)
	a.Flag("ledger", "Database of rendered charts, unchanged charts are skipped").Short('l').Default(c.Ledger).StringVar(&c.Ledger)
	a.Flag("workers", "Charts rendered at once").Short('j').Default(strconv.Itoa(c.Workers)).IntVar(&c.Workers)
	a.Flag("mix-workers", "Keysounds mixed at once per chart").Default(strconv.Itoa(c.MixWorkers)).IntVar(&c.MixWorkers)
	a.Flag("duration", "Preview length in seconds").Short('d').Default(format(c.Duration)).Float64Var(&c.Duration)
	a.Flag("start", "Preview start in seconds, negative selects automatically").Short('s').Default(format(c.Start)).Float64Var(&c.Start)
	a.Flag("start-percent", "Preview start as a percentage of the chart, negative selects automatically").Short('p').Default(format(c.StartPercent)).Float64Var(&c.StartPercent)
	a.Flag("min-density", "Fewest playable notes in the densest window before falling back").Default(strconv.Itoa(c.MinNoteDensity)).IntVar(&c.MinNoteDensity)
	a.Flag("fallback", "Fallback start as a fraction of the chart").Default(format(c.Fallback)).Float64Var(&c.Fallback)
	a.Flag("rate", "Output sample rate, 0 uses the most common keysound rate").Short('r').Default(strconv.Itoa(c.SampleRate)).IntVar(&c.SampleRate)
	a.Flag("mono", "Render a single channel").Short('m').Default(strconv.FormatBool(c.Mono)).BoolVar(&c.Mono)
	a.Flag("ceiling", "Peak ceiling").Default(format(c.PeakCeiling)).Float64Var(&c.PeakCeiling)
	a.Flag("fade-in", "Fade in seconds").Default(format(c.FadeIn)).Float64Var(&c.FadeIn)
	a.Flag("fade-out", "Fade out seconds").Default(format(c.FadeOut)).Float64Var(&c.FadeOut)
	a.Flag("volume", "Volume scale").Short('v').Default(format(c.Volume)).Float64Var(&c.Volume)
	a.Flag("encoder", "oggenc compatible Vorbis encoder").Short('e').Default(c.Encoder).StringVar(&c.Encoder)
	a.Flag("quality", "Vorbis quality").Short('q').Default(format(c.Quality)).Float64Var(&c.Quality)
	a.Flag("verbose", "Debug logging").Short('V').Default(strconv.FormatBool(c.Verbose)).BoolVar(&c.Verbose)
	a.Flag("no-input", "Do not watch the keyboard for abort").Default(strconv.FormatBool(c.NoInput)).BoolVar(&c.NoInput)
	return a
}

// Load reads the YAML file at path over c.
func Load(c *Config, path string) error {
	data, err := os.ReadFile(path)
	if nil != err {
		return err
	}
	if err := yaml.Unmarshal(data, c); nil != err {
		return fmt.Errorf("unable to read config %s: %w", path, err)
	}
	return nil
}

// Parse builds the configuration from the defaults, then the YAML file
// named by --config, then the remaining flags.
func Parse(args []string) (*Config, error) {
	first := Default()
	if _, err := app(&first).Parse(args); nil != err {
		return nil, err
	}

	c := Default()
	if first.File != "" {
		if err := Load(&c, first.File); nil != err {
			return nil, err
		}
	}
	if _, err := app(&c).Parse(args); nil != err {
		return nil, err
	}
	if err := c.Validate(); nil != err {
		return nil, err
	}
	return &c, nil
}
