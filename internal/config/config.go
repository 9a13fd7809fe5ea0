package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/user/atx_analyzer_go/internal/analysis"
)

// Config is the on-disk analyzer configuration.
type Config struct {
	Analysis Analysis            `yaml:"analysis"`
	Rails    []analysis.RailSpec `yaml:"rails"`
	Verdict  Verdict             `yaml:"verdict"`
}

// Analysis tunes the detector and the segment analyzer.
type Analysis struct {
	WindowFraction  float32 `yaml:"window_fraction"`
	EdgeSensitivity float32 `yaml:"edge_sensitivity"`
	MinStartFrame   int64   `yaml:"min_start_frame"`
	Workers         int     `yaml:"workers"` // 0 runs one goroutine per rail
}

// Verdict holds the pass/fail limits.
type Verdict struct {
	MinInRegulation float32 `yaml:"min_in_regulation"`
	MinRampFitness  float32 `yaml:"min_ramp_fitness"`
	PgOkMinUs       int64   `yaml:"pg_ok_min_us"`
	PgOkMaxUs       int64   `yaml:"pg_ok_max_us"`
}

// Default returns the built-in configuration.
func Default() *Config {
	s := analysis.DefaultSettings()
	return &Config{
		Analysis: Analysis{
			WindowFraction:  s.WindowFraction,
			EdgeSensitivity: s.EdgeSensitivity,
			MinStartFrame:   s.MinStartFrame,
		},
		Rails: s.Rails,
		Verdict: Verdict{
			MinInRegulation: 0.95,
			PgOkMinUs:       100000,
			PgOkMaxUs:       500000,
		},
	}
}

// Load reads a YAML file over the defaults. Rails listed in the file replace the
// default entry for the same rail; other rails keep their defaults.
func Load(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	defaults := cfg.Rails
	cfg.Rails = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.Rails = mergeRails(defaults, cfg.Rails)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

func mergeRails(defaults, overrides []analysis.RailSpec) []analysis.RailSpec {
	merged := make([]analysis.RailSpec, len(defaults))
	copy(merged, defaults)
	for _, o := range overrides {
		replaced := false
		for i := range merged {
			if merged[i].Rail == o.Rail {
				merged[i] = o
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, o)
		}
	}
	return merged
}

// Validate checks ranges and rail table consistency.
func (c *Config) Validate() error {
	var errs []error

	a := c.Analysis
	if a.WindowFraction <= 0 || a.WindowFraction > 1 {
		errs = append(errs, fmt.Errorf("window_fraction must be in (0, 1], got %g", a.WindowFraction))
	}
	if a.EdgeSensitivity < 0 {
		errs = append(errs, fmt.Errorf("edge_sensitivity must not be negative, got %g", a.EdgeSensitivity))
	}
	if a.MinStartFrame < 0 {
		errs = append(errs, fmt.Errorf("min_start_frame must not be negative, got %d", a.MinStartFrame))
	}
	if a.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must not be negative, got %d", a.Workers))
	}

	seen := make(map[analysis.Rail]bool)
	for _, rs := range c.Rails {
		if seen[rs.Rail] {
			errs = append(errs, fmt.Errorf("rail %s listed twice", rs.Rail))
		}
		seen[rs.Rail] = true
		if rs.Nominal == 0 {
			errs = append(errs, fmt.Errorf("rail %s: nominal voltage must not be 0", rs.Rail))
		}
		if rs.Tolerance <= 0 || rs.Tolerance >= 1 {
			errs = append(errs, fmt.Errorf("rail %s: tolerance must be in (0, 1), got %g", rs.Rail, rs.Tolerance))
		}
	}

	v := c.Verdict
	if v.MinInRegulation < 0 || v.MinInRegulation > 1 {
		errs = append(errs, fmt.Errorf("min_in_regulation must be in [0, 1], got %g", v.MinInRegulation))
	}
	if v.MinRampFitness < 0 || v.MinRampFitness > 1 {
		errs = append(errs, fmt.Errorf("min_ramp_fitness must be in [0, 1], got %g", v.MinRampFitness))
	}
	if v.PgOkMinUs < 0 {
		errs = append(errs, fmt.Errorf("pg_ok_min_us must not be negative, got %d", v.PgOkMinUs))
	}
	if v.PgOkMaxUs != 0 && v.PgOkMaxUs < v.PgOkMinUs {
		errs = append(errs, fmt.Errorf("pg_ok_max_us (%d) is below pg_ok_min_us (%d)", v.PgOkMaxUs, v.PgOkMinUs))
	}

	return errors.Join(errs...)
}

// Settings converts the configuration for the analyzer.
func (c *Config) Settings() analysis.Settings {
	rails := make([]analysis.RailSpec, len(c.Rails))
	copy(rails, c.Rails)
	return analysis.Settings{
		WindowFraction:  c.Analysis.WindowFraction,
		EdgeSensitivity: c.Analysis.EdgeSensitivity,
		MinStartFrame:   c.Analysis.MinStartFrame,
		Workers:         c.Analysis.Workers,
		Rails:           rails,
	}
}

func (c *Config) VerdictSettings() analysis.VerdictSettings {
	return analysis.VerdictSettings{
		MinInRegulation: c.Verdict.MinInRegulation,
		MinRampFitness:  c.Verdict.MinRampFitness,
		PgOkMinUs:       c.Verdict.PgOkMinUs,
		PgOkMaxUs:       c.Verdict.PgOkMaxUs,
	}
}
