package main

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/atx_analyzer_go/internal/analysis"
	"github.com/user/atx_analyzer_go/internal/parser"
)

// captureFS holds a 100 frame capture: rails off until frame 20, ramping to nominal
// by frame 30 and off again from frame 90, plus its stage markers.
func captureFS(t *testing.T, v12 float32) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()

	level := func(i int, nominal float32) float32 {
		switch {
		case i < 20:
			return 0
		case i < 30:
			return nominal * float32(i-20) / 10
		case i < 90:
			return nominal
		}
		return 0
	}
	var csv strings.Builder
	csv.WriteString("t0,v12,v5,v5sb,v3_3\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&csv, "%d,%g,%g,%g,%g\n", i*1000, level(i, v12), level(i, 5), level(i, 5), level(i, 3.3))
	}
	require.NoError(t, afero.WriteFile(fs, "/in/capture.csv", []byte(csv.String()), 0o644))

	var markers bytes.Buffer
	require.NoError(t, parser.WriteMarkers(&markers, []analysis.Marker{
		{FrameOffset: 10, TimeOffsetUs: 10000},
		{FrameOffset: 20, TimeOffsetUs: 20000},
		{FrameOffset: 30, TimeOffsetUs: 30000},
		{FrameOffset: 40, TimeOffsetUs: 140000},
		{FrameOffset: 80, TimeOffsetUs: 180000},
		{FrameOffset: 90, TimeOffsetUs: 190000},
	}))
	require.NoError(t, afero.WriteFile(fs, "/in/markers.bin", markers.Bytes(), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/in/unit.yaml", []byte("brand: Seasonic\nwattage: 650\n"), 0o644))
	return fs
}

func execute(fs afero.Fs, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd(fs)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestAnalyzeE2E(t *testing.T) {
	tests := []struct {
		name        string
		v12         float32
		args        []string
		wantErr     string
		wantContain []string
		wantFiles   []string
	}{
		{
			name: "csv output",
			v12:  12,
			args: []string{"analyze", "/in/capture.csv", "/out/unit.xml", "--markers", "/in/markers.bin", "--info", "/in/unit.yaml"},
			wantContain: []string{
				"v12", "v3_3", "100.0%", "T1 -> ON", "PG_OK delay: 130.0 ms", "Verdict: PASS",
			},
			wantFiles: []string{
				"/out/unit_stats.xml", "/out/unit_v12_stats.xml", "/out/unit_v5sb_on.xml",
				"/out/unit_v3_3_curve_fit.xml", "/out/unit_v5_simplified_curve.csv",
				"/out/unit_deviceinfo.xml", "/out/unit_last_log.txt",
			},
		},
		{
			name:        "tar output",
			v12:         12,
			args:        []string{"analyze", "/in/capture.csv", "/out/unit.xml", "-m", "/in/markers.bin", "--format", "tar", "--tar-dir", "/in"},
			wantContain: []string{"Verdict: PASS"},
			wantFiles:   []string{"/out/unit_package.tar.gz"},
		},
		{
			name:        "no markers",
			v12:         12,
			args:        []string{"analyze", "/in/capture.csv", "/out/unit.xml", "--window", "0.1", "--workers", "1"},
			wantContain: []string{"Verdict: NOT JUDGED"},
			wantFiles:   []string{"/out/unit_stats.xml"},
		},
		{
			name:        "low 12V rail is reported",
			v12:         11,
			args:        []string{"analyze", "/in/capture.csv", "/out/unit.xml", "-m", "/in/markers.bin"},
			wantContain: []string{"Verdict: FAIL", "v12: 0.0% of ON samples in regulation"},
		},
		{
			name:    "low 12V rail fails strict run",
			v12:     11,
			args:    []string{"analyze", "/in/capture.csv", "/out/unit.xml", "-m", "/in/markers.bin", "--strict"},
			wantErr: "verdict: FAIL",
		},
		{
			name:    "unknown format",
			v12:     12,
			args:    []string{"analyze", "/in/capture.csv", "/out/unit.xml", "--format", "pdf"},
			wantErr: "unknown format",
		},
		{
			name:    "bad window",
			v12:     12,
			args:    []string{"analyze", "/in/capture.csv", "/out/unit.xml", "--window", "2"},
			wantErr: "window_fraction",
		},
		{
			name:    "missing input",
			v12:     12,
			args:    []string{"analyze", "/in/nothing.csv", "/out/unit.xml"},
			wantErr: "error parsing CSV",
		},
		{
			name:    "missing output argument",
			v12:     12,
			args:    []string{"analyze", "/in/capture.csv"},
			wantErr: "expected <input.csv> <output> pairs, got 1 arguments",
		},
		{
			name:    "no capture",
			v12:     12,
			args:    []string{"analyze"},
			wantErr: "requires at least one <input.csv> <output> pair or --jobs",
		},
		{
			name:    "markers with several captures",
			v12:     12,
			args:    []string{"analyze", "/in/capture.csv", "/out/a.xml", "/in/capture.csv", "/out/b.xml", "-m", "/in/markers.bin"},
			wantErr: "use --jobs for per-file options",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := captureFS(t, tt.v12)

			stdout, _, err := execute(fs, tt.args...)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			for _, want := range tt.wantContain {
				assert.Contains(t, stdout, want)
			}
			for _, name := range tt.wantFiles {
				ok, err := afero.Exists(fs, name)
				require.NoError(t, err)
				assert.True(t, ok, "%s not written", name)
			}
		})
	}
}

func TestAnalyzeBatchKeepsGoingAfterFailure(t *testing.T) {
	fs := captureFS(t, 12)
	require.NoError(t, afero.WriteFile(fs, "/in/broken.csv", []byte("t0,v12\n"), 0o644))

	stdout, stderr, err := execute(fs, "analyze",
		"/in/broken.csv", "/out/broken.xml",
		"/in/capture.csv", "/out/good.xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/in/broken.csv: error parsing CSV")
	assert.NotContains(t, err.Error(), "/in/capture.csv")

	assert.Contains(t, stderr, "Analyzing input file 1/2: /in/broken.csv")
	assert.Contains(t, stderr, "Analyzing input file 2/2: /in/capture.csv")
	assert.Contains(t, stderr, "2 files processed, 1 failed.")
	assert.Contains(t, stdout, "== /in/capture.csv ==")

	ok, err := afero.Exists(fs, "/out/good_stats.xml")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = afero.Exists(fs, "/out/broken_stats.xml")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnalyzeJobList(t *testing.T) {
	fs := captureFS(t, 12)
	jobs := `jobs:
  - input: /in/capture.csv
    output: /out/first.xml
    markers: /in/markers.bin
    info: /in/unit.yaml
  - input: /in/capture.csv
    output: /out/second.xml
    format: tar
`
	require.NoError(t, afero.WriteFile(fs, "/in/jobs.yaml", []byte(jobs), 0o644))

	stdout, stderr, err := execute(fs, "analyze", "--jobs", "/in/jobs.yaml", "--strict")
	require.NoError(t, err)
	assert.Contains(t, stderr, "2 files processed, 0 failed.")
	assert.Contains(t, stdout, "Verdict: PASS")
	assert.Contains(t, stdout, "Verdict: NOT JUDGED")

	for _, name := range []string{"/out/first_stats.xml", "/out/first_deviceinfo.xml", "/out/second_package.tar.gz"} {
		ok, err := afero.Exists(fs, name)
		require.NoError(t, err)
		assert.True(t, ok, "%s not written", name)
	}
	ok, err := afero.Exists(fs, "/out/second_stats.xml")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAnalyzeStrictBatchNamesFailingCapture(t *testing.T) {
	fs := captureFS(t, 11)

	_, _, err := execute(fs, "analyze", "/in/capture.csv", "/out/unit.xml", "--jobs", "/in/jobs.yaml", "--strict")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read job list")

	jobs := "jobs:\n  - input: /in/capture.csv\n    output: /out/unit.xml\n    markers: /in/markers.bin\n"
	require.NoError(t, afero.WriteFile(fs, "/in/jobs.yaml", []byte(jobs), 0o644))
	_, _, err = execute(fs, "analyze", "--jobs", "/in/jobs.yaml", "--strict")
	require.Error(t, err)
	assert.Equal(t, "verdict: FAIL for /in/capture.csv", err.Error())
}

func TestLoadJobs(t *testing.T) {
	fs := afero.NewMemMapFs()
	defaults := AnalyzeJob{Format: FormatCSV, HasHeaders: true, TarDirs: []string{"/raw"}}

	require.NoError(t, afero.WriteFile(fs, "/jobs.yaml", []byte(`jobs:
  - input: a.csv
    output: a.xml
  - input: b.csv
    output: b.xml
    format: full
    no_headers: true
    tar_dirs: [/b/raw]
`), 0o644))
	jobs, err := LoadJobs(fs, "/jobs.yaml", defaults)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, AnalyzeJob{InputPath: "a.csv", OutputPath: "a.xml", Format: FormatCSV, HasHeaders: true, TarDirs: []string{"/raw"}}, jobs[0])
	assert.Equal(t, AnalyzeJob{InputPath: "b.csv", OutputPath: "b.xml", Format: FormatFull, HasHeaders: false, TarDirs: []string{"/b/raw"}}, jobs[1])

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "unknown field", content: "jobs:\n  - input: a.csv\n    output: a.xml\n    colour: red\n", wantErr: "colour"},
		{name: "missing output", content: "jobs:\n  - input: a.csv\n", wantErr: "job 1 needs input and output"},
		{name: "empty", content: "jobs: []\n", wantErr: "has no jobs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, afero.WriteFile(fs, "/bad.yaml", []byte(tt.content), 0o644))
			_, err := LoadJobs(fs, "/bad.yaml", defaults)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAnalyzeVerboseEchoesLog(t *testing.T) {
	fs := captureFS(t, 12)

	_, stderr, err := execute(fs, "analyze", "/in/capture.csv", "/out/unit.xml", "-m", "/in/markers.bin", "-v")
	require.NoError(t, err)

	assert.Contains(t, stderr, "Parsing: /in/capture.csv")
	assert.Contains(t, stderr, "LOG FILE OPENED")
	assert.Contains(t, stderr, "Searching peaks+edges on v12...")

	runLog, err := afero.ReadFile(fs, "/out/unit_last_log.txt")
	require.NoError(t, err)
	assert.Contains(t, string(runLog), "LOG FILE CLOSED")
}

func TestAnalyzeWithConfigFile(t *testing.T) {
	fs := captureFS(t, 11)
	cfg := "rails:\n  - rail: v12\n    nominal: 11\n    tolerance: 0.05\n"
	require.NoError(t, afero.WriteFile(fs, "/etc/atx.yaml", []byte(cfg), 0o644))

	stdout, _, err := execute(fs, "analyze", "/in/capture.csv", "/out/unit.xml", "-m", "/in/markers.bin", "--config", "/etc/atx.yaml", "--strict")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Verdict: PASS")
}

func TestConvertE2E(t *testing.T) {
	fs := afero.NewMemMapFs()
	raw := []byte{
		0x2E, 0xE0, 0x13, 0x88, 0x13, 0x88, 0x0C, 0xE4,
		0x2E, 0xF4, 0x13, 0x92, 0x13, 0x7E, 0x0C, 0xDA,
	}
	require.NoError(t, afero.WriteFile(fs, "/cap/datastream.bin", raw, 0o644))

	_, stderr, err := execute(fs, "convert", "/cap/datastream.bin")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Wrote 2 frames to /cap/datastream.csv")

	out, err := afero.ReadFile(fs, "/cap/datastream.csv")
	require.NoError(t, err)
	assert.Equal(t, "v12,v5,v5sb,v3_3\n12.000,5.000,5.000,3.300\n12.020,5.010,4.990,3.290\n", string(out))

	_, _, err = execute(fs, "convert")
	require.Error(t, err)

	_, _, err = execute(fs, "convert", "/cap/missing.bin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading frames")
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(afero.NewMemMapFs(), "--version")
	require.NoError(t, err)
	assert.Contains(t, stdout, version)
}
