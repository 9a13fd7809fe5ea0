package config_test

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/atx_analyzer_go/internal/analysis"
	"github.com/user/atx_analyzer_go/internal/config"
)

func writeFile(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
}

func TestDefaultIsValid(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	s := cfg.Settings()
	assert.Equal(t, analysis.DefaultSettings(), s)

	vs := cfg.VerdictSettings()
	assert.Equal(t, float32(0.95), vs.MinInRegulation)
	assert.Equal(t, int64(100000), vs.PgOkMinUs)
	assert.Equal(t, int64(500000), vs.PgOkMaxUs)
	assert.Zero(t, vs.MinRampFitness)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/atx.yaml", `
analysis:
  window_fraction: 0.1
  workers: 2
rails:
  - rail: V12
    nominal: 12.0
    tolerance: 0.08
verdict:
  pg_ok_max_us: 600000
`)

	cfg, err := config.Load(fs, "/etc/atx.yaml")
	require.NoError(t, err)

	assert.Equal(t, float32(0.1), cfg.Analysis.WindowFraction)
	assert.Equal(t, float32(0.05), cfg.Analysis.EdgeSensitivity)
	assert.Equal(t, int64(1), cfg.Analysis.MinStartFrame)
	assert.Equal(t, 2, cfg.Settings().Workers)

	require.Len(t, cfg.Rails, len(analysis.DefaultRailSpecs()))
	assert.Equal(t, analysis.RailSpec{Rail: analysis.V12, Nominal: 12, Tolerance: 0.08}, cfg.Rails[0])
	assert.Equal(t, analysis.DefaultRailSpecs()[1], cfg.Rails[1])

	assert.Equal(t, int64(600000), cfg.Verdict.PgOkMaxUs)
	assert.Equal(t, int64(100000), cfg.Verdict.PgOkMinUs)
}

func TestLoadEmptyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "empty.yaml", "")

	cfg, err := config.Load(fs, "empty.yaml")
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{name: "unknown field", content: "analysis:\n  window: 0.1\n", want: "field window not found"},
		{name: "unknown rail", content: "rails:\n  - rail: v24\n    nominal: 24\n    tolerance: 0.05\n", want: "unknown rail name"},
		{name: "window out of range", content: "analysis:\n  window_fraction: 1.5\n", want: "window_fraction"},
		{name: "zero tolerance", content: "rails:\n  - rail: v5\n    nominal: 5\n", want: "tolerance"},
		{name: "inverted pg_ok window", content: "verdict:\n  pg_ok_min_us: 10\n  pg_ok_max_us: 5\n", want: "pg_ok_max_us"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			writeFile(t, fs, "c.yaml", tt.content)

			cfg, err := config.Load(fs, "c.yaml")
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(afero.NewMemMapFs(), "nope.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := config.Default()
	cfg.Analysis.Workers = -1
	cfg.Rails = append(cfg.Rails, analysis.RailSpec{Rail: analysis.V5, Nominal: 5, Tolerance: 0.05})

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workers")
	assert.Contains(t, err.Error(), "rail v5 listed twice")
}
