package main

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/user/atx_analyzer_go/internal/analysis"
	"github.com/user/atx_analyzer_go/internal/config"
)

type analyzeOptions struct {
	markers     string
	info        string
	configPath  string
	jobsPath    string
	format      string
	tarDirs     []string
	noHeaders   bool
	window      float32
	sensitivity float32
	workers     int
	strict      bool
}

func newAnalyzeCmd(fs afero.Fs, newApp func(*cobra.Command) *App) *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze <input.csv> <output> [<input.csv> <output>...]",
		Short: "Analyze rail voltage captures",
		Long: `Analyze CSV rail matrices and write the results next to each <output>. Result
files are named after <output> without its extension, e.g. unit17.xml gives
unit17_stats.xml, unit17_v12_on.xml and unit17_package.tar.gz.

Several <input.csv> <output> pairs, or a --jobs file, are processed one after the
other; a failing capture is reported and the remaining ones still run.

Examples:
  atx_analyzer analyze capture.csv unit17.xml
  atx_analyzer analyze capture.csv unit17.xml --markers markers.bin --info unit17.yaml
  atx_analyzer analyze a.csv a.xml b.csv b.xml --format tar --tar-dir raw/ --strict
  atx_analyzer analyze --jobs bench3.yaml`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args)%2 != 0 {
				return fmt.Errorf("expected <input.csv> <output> pairs, got %d arguments", len(args))
			}
			if len(args) == 0 && opts.jobsPath == "" {
				return fmt.Errorf("requires at least one <input.csv> <output> pair or --jobs")
			}
			if len(args) > 2 && (opts.markers != "" || opts.info != "") {
				return fmt.Errorf("--markers and --info apply to a single capture, use --jobs for per-file options")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.config(cmd, fs)
			if err != nil {
				return err
			}
			defaults := AnalyzeJob{
				MarkersPath: opts.markers,
				InfoPath:    opts.info,
				HasHeaders:  !opts.noHeaders,
				Format:      opts.format,
				TarDirs:     opts.tarDirs,
				Config:      cfg,
			}

			var jobs []AnalyzeJob
			for i := 0; i < len(args); i += 2 {
				job := defaults
				job.InputPath = args[i]
				job.OutputPath = args[i+1]
				jobs = append(jobs, job)
			}
			if opts.jobsPath != "" {
				listed, err := LoadJobs(fs, opts.jobsPath, defaults)
				if err != nil {
					return err
				}
				jobs = append(jobs, listed...)
			}

			verdicts, err := newApp(cmd).RunBatch(jobs)
			if err != nil {
				return err
			}
			if opts.strict {
				var failed []string
				for i, v := range verdicts {
					if v != nil && v.Outcome == analysis.Fail {
						failed = append(failed, jobs[i].InputPath)
					}
				}
				if len(failed) > 0 {
					return fmt.Errorf("verdict: %s for %s", analysis.Fail, strings.Join(failed, ", "))
				}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.markers, "markers", "m", "", "binary stage marker file")
	f.StringVar(&opts.info, "info", "", "device info YAML file")
	f.StringVarP(&opts.configPath, "config", "c", "", "analyzer config YAML file")
	f.StringVar(&opts.jobsPath, "jobs", "", "YAML job list, one entry per capture")
	f.StringVarP(&opts.format, "format", "f", FormatCSV, "output format: csv, tar or full")
	f.StringArrayVar(&opts.tarDirs, "tar-dir", nil, "directory to include in the package (repeatable)")
	f.BoolVar(&opts.noHeaders, "no-headers", false, "input has no header row, columns are "+defaultColumns())
	f.Float32Var(&opts.window, "window", 0, "peak detection window as a fraction of the capture length")
	f.Float32Var(&opts.sensitivity, "sensitivity", 0, "edge detection sensitivity in volts")
	f.IntVar(&opts.workers, "workers", 0, "rails analyzed in parallel, 0 for one per rail")
	f.BoolVar(&opts.strict, "strict", false, "exit with an error when the verdict is FAIL")
	return cmd
}

// config loads the config file, if any, and applies the flags set on the command line.
func (o *analyzeOptions) config(cmd *cobra.Command, fs afero.Fs) (*config.Config, error) {
	switch o.format {
	case FormatCSV, FormatTar, FormatFull:
	default:
		return nil, fmt.Errorf("unknown format %q, want csv, tar or full", o.format)
	}

	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(fs, o.configPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("window") {
		cfg.Analysis.WindowFraction = o.window
	}
	if flags.Changed("sensitivity") {
		cfg.Analysis.EdgeSensitivity = o.sensitivity
	}
	if flags.Changed("workers") {
		cfg.Analysis.Workers = o.workers
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return cfg, nil
}
