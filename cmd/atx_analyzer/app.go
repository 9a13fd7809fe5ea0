package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/user/atx_analyzer_go/internal/analysis"
	"github.com/user/atx_analyzer_go/internal/config"
	"github.com/user/atx_analyzer_go/internal/parser"
	"github.com/user/atx_analyzer_go/internal/report"
)

// Output formats of the analyze command.
const (
	FormatCSV  = "csv"
	FormatTar  = "tar"
	FormatFull = "full"
)

// App runs analyzer jobs against a filesystem.
type App struct {
	fs      afero.Fs
	out     io.Writer // summaries
	errOut  io.Writer
	status  *logrus.Logger
	verbose bool
}

// NewApp creates an App. Status lines go to errOut.
func NewApp(fs afero.Fs, out, errOut io.Writer, verbose bool) *App {
	status := logrus.New()
	status.SetOutput(errOut)
	status.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		DisableTimestamp: true,
	})
	status.SetLevel(logrus.InfoLevel)
	if verbose {
		status.SetLevel(logrus.DebugLevel)
	}
	return &App{fs: fs, out: out, errOut: errOut, status: status, verbose: verbose}
}

func (a *App) sendStatus(message string) {
	a.status.Info(message)
}

func (a *App) sendWarnings(source string, warnings []string) {
	for _, w := range warnings {
		a.status.WithField("source", source).Warn(w)
	}
}

// AnalyzeJob describes one capture to analyze.
type AnalyzeJob struct {
	InputPath   string
	OutputPath  string
	MarkersPath string // optional
	InfoPath    string // optional
	HasHeaders  bool
	Format      string
	TarDirs     []string
	Config      *config.Config
}

// RunAnalyze parses, analyzes and dumps one capture and prints its summary.
func (a *App) RunAnalyze(job AnalyzeJob) (verdict *analysis.Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("PANIC recovered: %v", r)
			a.sendStatus(err.Error())
		}
	}()

	cfg := job.Config
	if cfg == nil {
		cfg = config.Default()
	}
	switch job.Format {
	case FormatCSV, FormatTar, FormatFull:
	default:
		return nil, fmt.Errorf("unknown format %q, want csv, tar or full", job.Format)
	}

	a.sendStatus(fmt.Sprintf("Parsing: %s", job.InputPath))
	parsedData, err := parser.ParseRailCSV(a.fs, job.InputPath, job.HasHeaders)
	if err != nil {
		return nil, fmt.Errorf("error parsing CSV: %w", err)
	}
	a.sendStatus(fmt.Sprintf("Parsed %d frames on %d rails.", parsedData.Frames(), len(parsedData.Rails)))
	a.sendWarnings(job.InputPath, parsedData.ParseErrors)

	in := analysis.RunInput{Rails: parsedData.Rails}
	if job.MarkersPath != "" {
		parsedMarkers, err := parser.ParseMarkers(a.fs, job.MarkersPath)
		if err != nil {
			return nil, fmt.Errorf("error parsing markers: %w", err)
		}
		a.sendStatus(fmt.Sprintf("Loaded %d markers.", len(parsedMarkers.Markers)))
		a.sendWarnings(job.MarkersPath, parsedMarkers.ParseErrors)
		in.Markers = parsedMarkers.Markers
	}

	var info *parser.DeviceInfo
	if job.InfoPath != "" {
		info, err = parser.ParseDeviceInfo(a.fs, job.InfoPath)
		if err != nil {
			return nil, fmt.Errorf("error parsing device info: %w", err)
		}
	}

	var runLog bytes.Buffer
	var logOut io.Writer = &runLog
	if a.verbose {
		logOut = io.MultiWriter(&runLog, a.errOut)
	}

	a.sendStatus("Analyzing data...")
	rep, err := analysis.New(cfg.Settings(), analysis.NewLogger(logOut)).Run(in)
	if err != nil {
		return nil, fmt.Errorf("error analyzing data: %w", err)
	}
	a.sendWarnings("analysis", rep.RailErrors())

	v := analysis.Judge(rep, cfg.VerdictSettings())

	d := report.NewDumper(a.fs, job.OutputPath)
	d.Log = runLog.Bytes()
	d.DeviceInfo = info
	d.ExtraDirs = job.TarDirs

	if job.Format == FormatCSV || job.Format == FormatFull {
		written, err := d.DumpCSVs(rep)
		if err != nil {
			return nil, fmt.Errorf("error writing results: %w", err)
		}
		a.sendStatus(fmt.Sprintf("Wrote %d files with prefix %s", len(written), d.Prefix))
	}
	if job.Format == FormatTar || job.Format == FormatFull {
		name, err := d.DumpTarGz(rep)
		if err != nil {
			return nil, fmt.Errorf("error writing package: %w", err)
		}
		a.sendStatus(fmt.Sprintf("Package written: %s", name))
	}

	if err := report.WriteSummary(a.out, rep, &v); err != nil {
		return nil, fmt.Errorf("error writing summary: %w", err)
	}
	return &v, nil
}

// RunBatch runs the jobs in order. A failing job is reported and the others still
// run; the returned verdicts line up with jobs, nil where the job failed, and the
// error joins every job failure.
func (a *App) RunBatch(jobs []AnalyzeJob) ([]*analysis.Verdict, error) {
	verdicts := make([]*analysis.Verdict, len(jobs))
	var errs []error

	for i, job := range jobs {
		a.sendStatus(fmt.Sprintf("Analyzing input file %d/%d: %s", i+1, len(jobs), job.InputPath))
		if len(jobs) > 1 {
			fmt.Fprintf(a.out, "== %s ==\n", job.InputPath)
		}
		v, err := a.RunAnalyze(job)
		if err != nil {
			a.status.WithField("source", job.InputPath).Error(err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", job.InputPath, err))
			continue
		}
		verdicts[i] = v
		if len(jobs) > 1 {
			fmt.Fprintln(a.out)
		}
	}

	a.sendStatus(fmt.Sprintf("%d files processed, %d failed.", len(jobs), len(errs)))
	return verdicts, errors.Join(errs...)
}

// RunConvert turns raw capture board streams into rail CSV files next to them and
// returns the paths written.
func (a *App) RunConvert(paths []string) ([]string, error) {
	written := make([]string, 0, len(paths))
	for _, p := range paths {
		a.sendStatus(fmt.Sprintf("Converting: %s", p))
		parsed, err := parser.ParseRawFrames(a.fs, p)
		if err != nil {
			return written, fmt.Errorf("error reading frames: %w", err)
		}
		a.sendWarnings(p, parsed.ParseErrors)

		out := strings.TrimSuffix(p, filepath.Ext(p)) + ".csv"
		f, err := a.fs.Create(out)
		if err != nil {
			return written, fmt.Errorf("failed to create %s: %w", out, err)
		}
		if err := parser.WriteRailCSV(f, parsed); err != nil {
			f.Close()
			return written, fmt.Errorf("failed to write %s: %w", out, err)
		}
		if err := f.Close(); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", out, err)
		}
		a.sendStatus(fmt.Sprintf("Wrote %d frames to %s", parsed.Frames(), out))
		written = append(written, out)
	}
	return written, nil
}
