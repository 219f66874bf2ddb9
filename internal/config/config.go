// Package config parses the aec CLI's flags with kong and optionally merges
// in a saved YAML parameter preset.
package config

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"gopkg.in/yaml.v3"

	"fdafaec/pkg/types"
)

// CLI is the struct-tag-declarative flag set parsed by kong.
type CLI struct {
	Mic    string `help:"Microphone (near-end) input file, WAV or A-law." type:"existingfile"`
	FarEnd string `help:"Far-end reference input file, WAV or A-law." type:"existingfile"`
	Output string `help:"Output file path for the echo-cancelled signal." default:"output.wav"`
	Format string `help:"Sample format for file mode." enum:"wav,alaw" default:"wav"`

	SampleRate int     `help:"Sample rate in Hz." default:"16000"`
	FFTSize    int     `name:"fft-size" help:"FFT block size N, a power of two; frame size is N/2." default:"1024"`
	StepSize   float64 `help:"NLMS step size (mu)." default:"0.5"`
	Smoothing  float64 `help:"PSD smoothing factor (alpha), in (0,1)." default:"0.98"`
	Epsilon    float64 `help:"NLMS regularization epsilon." default:"1e-10"`

	ProgressSec float64 `help:"Seconds between progress reports." default:"1.0"`

	Preset     string `help:"Load FFT size, step size, smoothing and epsilon from a YAML preset file." type:"existingfile"`
	SavePreset string `help:"Save the resolved parameters to a YAML preset file; the selected mode still runs afterwards."`

	Demo     bool `help:"Run built-in synthetic delayed-echo and FIR-room double-talk simulations instead of processing files."`
	Live     bool `help:"Run live duplex acoustic echo cancellation via the system microphone and speakers."`
	TestAlaw bool `name:"test-alaw" help:"Round-trip the mic file through the A-law codec (decode then re-encode) instead of processing it."`

	InputDevice  int `help:"PortAudio input device index (-1 = system default)." default:"-1"`
	OutputDevice int `help:"PortAudio output device index (-1 = system default)." default:"-1"`
}

// ParseFlags parses args with kong, merges any --preset file, validates the
// result, and returns a resolved types.Config. exitName and description are
// used for kong's usage banner.
func ParseFlags(args []string, exitName, description string) (*types.Config, error) {
	cli := &CLI{}
	parser, err := kong.New(cli, kong.Name(exitName), kong.Description(description), kong.UsageOnError())
	if err != nil {
		return nil, fmt.Errorf("config: failed to build CLI parser: %w", err)
	}
	if _, err := parser.Parse(args); err != nil {
		return nil, fmt.Errorf("config: failed to parse flags: %w", err)
	}

	cfg := types.DefaultConfig()

	if cli.Preset != "" {
		preset, err := LoadPreset(cli.Preset)
		if err != nil {
			return nil, err
		}
		applyPreset(&cfg, preset)
	}

	applyCLI(&cfg, cli)

	if cli.SavePreset != "" {
		if err := SavePreset(cli.SavePreset, presetFromConfig(cfg)); err != nil {
			return nil, err
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyPreset(cfg *types.Config, p Preset) {
	cfg.FFTSize = p.FFTSize
	cfg.StepSize = p.StepSize
	cfg.Smoothing = p.Smoothing
	cfg.Epsilon = p.Epsilon
}

func applyCLI(cfg *types.Config, cli *CLI) {
	cfg.MicFile = cli.Mic
	cfg.FarEndFile = cli.FarEnd
	cfg.OutputFile = cli.Output
	cfg.SampleRate = cli.SampleRate
	cfg.ProgressSec = cli.ProgressSec
	cfg.InputDevice = cli.InputDevice
	cfg.OutputDevice = cli.OutputDevice

	if cli.Format == "alaw" {
		cfg.Format = types.FormatALaw
	} else {
		cfg.Format = types.FormatWAV
	}

	// Only override preset-loaded numeric parameters when the flag differs
	// from kong's own default, so a loaded preset continues to take effect
	// unless the user explicitly overrides a value on the command line.
	defaults := types.DefaultConfig()
	if cli.FFTSize != defaults.FFTSize {
		cfg.FFTSize = cli.FFTSize
	}
	if cli.StepSize != defaults.StepSize {
		cfg.StepSize = cli.StepSize
	}
	if cli.Smoothing != defaults.Smoothing {
		cfg.Smoothing = cli.Smoothing
	}
	if cli.Epsilon != defaults.Epsilon {
		cfg.Epsilon = cli.Epsilon
	}

	switch {
	case cli.Demo:
		cfg.Mode = types.ModeDemo
	case cli.Live:
		cfg.Mode = types.ModeLive
	case cli.TestAlaw:
		cfg.Mode = types.ModeTestAlaw
	default:
		cfg.Mode = types.ModeFile
	}
}

func validateConfig(cfg *types.Config) error {
	if cfg.Mode == types.ModeFile {
		if cfg.MicFile == "" {
			return fmt.Errorf("config: --mic is required in file mode")
		}
		if cfg.FarEndFile == "" {
			return fmt.Errorf("config: --far-end is required in file mode")
		}
	}
	if cfg.Mode == types.ModeTestAlaw && cfg.MicFile == "" {
		return fmt.Errorf("config: --mic is required in test-alaw mode")
	}

	if cfg.FFTSize < 2 || cfg.FFTSize&(cfg.FFTSize-1) != 0 {
		return fmt.Errorf("config: --fft-size must be a power of two >= 2, got %d", cfg.FFTSize)
	}
	if cfg.StepSize < 0 {
		return fmt.Errorf("config: --step-size must be non-negative, got %f", cfg.StepSize)
	}
	if cfg.Smoothing <= 0 || cfg.Smoothing >= 1 {
		return fmt.Errorf("config: --smoothing must be in (0,1), got %f", cfg.Smoothing)
	}
	if cfg.SampleRate <= 0 {
		return fmt.Errorf("config: --sample-rate must be positive, got %d", cfg.SampleRate)
	}

	return nil
}

// Preset is the subset of Config that can be saved/loaded as YAML, letting
// a user persist a tuned parameter set instead of repeating flags.
type Preset struct {
	FFTSize   int     `yaml:"fft_size"`
	StepSize  float64 `yaml:"step_size"`
	Smoothing float64 `yaml:"smoothing"`
	Epsilon   float64 `yaml:"epsilon"`
}

func presetFromConfig(cfg types.Config) Preset {
	return Preset{
		FFTSize:   cfg.FFTSize,
		StepSize:  cfg.StepSize,
		Smoothing: cfg.Smoothing,
		Epsilon:   cfg.Epsilon,
	}
}

// LoadPreset reads and parses a YAML preset file.
func LoadPreset(path string) (Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Preset{}, fmt.Errorf("config: failed to read preset %q: %w", path, err)
	}
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Preset{}, fmt.Errorf("config: failed to parse preset %q: %w", path, err)
	}
	return p, nil
}

// SavePreset writes a preset to path as YAML.
func SavePreset(path string, p Preset) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("config: failed to encode preset: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: failed to write preset %q: %w", path, err)
	}
	return nil
}
