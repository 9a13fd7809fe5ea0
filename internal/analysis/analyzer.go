package analysis

import (
	"errors"
	"fmt"
	"io"
	"math"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoRails        = errors.New("no rail series supplied")
	ErrEmptySeries    = errors.New("rail series is empty")
	ErrLengthMismatch = errors.New("rail series lengths differ")
	ErrDuplicateRail  = errors.New("rail supplied more than once")
)

// Analyzer runs peak/edge detection, statistics and stage segmentation over every
// rail of a capture.
type Analyzer struct {
	settings Settings
	detector Detector
	log      *logrus.Logger
}

// NewLogger returns a logger that writes one plain text line per event to w. The
// logger serializes writes, so rails analyzed in parallel can share it.
func NewLogger(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:   true,
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
	})
	log.SetLevel(logrus.DebugLevel)
	return log
}

// New creates an Analyzer. A nil log discards diagnostics.
func New(settings Settings, log *logrus.Logger) *Analyzer {
	if log == nil {
		log = NewLogger(io.Discard)
	}
	return &Analyzer{
		settings: settings,
		detector: Detector{
			WindowFraction:  settings.WindowFraction,
			EdgeSensitivity: settings.EdgeSensitivity,
		},
		log: log,
	}
}

// Settings returns the settings the analyzer was built with.
func (a *Analyzer) Settings() Settings {
	return a.settings
}

// Run analyzes every rail of in. Malformed input shape (no rails, empty or
// unequal series) is rejected before any work starts. Problems confined to one
// rail are recorded on that rail's stats and do not stop the others.
func (a *Analyzer) Run(in RunInput) (*AnalysisReport, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}

	a.log.Info("LOG FILE OPENED")
	a.log.Infof("Date: %s", time.Now().Format("Monday, January 2, 2006"))
	a.log.Infof("PeakDetectionWindowSize: %.3f%%", a.settings.WindowFraction*100)
	a.log.Infof("EdgeDetectionSensitivity: %.3f units.", a.settings.EdgeSensitivity)

	report := &AnalysisReport{
		Rails:    make([]RailStats, len(in.Rails)),
		Settings: a.settings,
	}
	if len(in.Markers) > 0 {
		report.Markers = append([]Marker(nil), in.Markers...)
	}

	var g errgroup.Group
	if a.settings.Workers > 0 {
		g.SetLimit(a.settings.Workers)
	}
	for i, series := range in.Rails {
		g.Go(func() error {
			report.Rails[i] = a.analyzeRail(series, report.Markers)
			return nil
		})
	}
	// Rail goroutines never return errors, failures end up in RailStats.Err.
	_ = g.Wait()

	if len(report.Markers) > 0 {
		report.LastStageRecorded = a.lastStage(len(report.Markers))
		report.PgOkDelayUs = pgOkDelay(report.Rails)
	}

	for _, e := range report.RailErrors() {
		a.log.Errorf("Rail failed: %s", e)
	}
	a.log.Info("LOG FILE CLOSED")

	return report, nil
}

func (a *Analyzer) analyzeRail(series RailSeries, markers []Marker) (rs RailStats) {
	log := a.log.WithField("rail", series.Rail)
	rs.Rail = series.Rail
	rs.Points = series.Points

	defer func() {
		if r := recover(); r != nil {
			rs.Err = fmt.Sprintf("panic: %v", r)
			log.Errorf("PANIC recovered: %v\n%s", r, debug.Stack())
		}
	}()

	spec, ok := a.settings.spec(series.Rail)
	if !ok {
		rs.Err = fmt.Sprintf("no nominal voltage configured for rail %s", series.Rail)
		return rs
	}
	rs.NominalVoltage = spec.Nominal
	rs.VoltageTolerance = spec.Tolerance

	for i, v := range series.Points {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			rs.Err = fmt.Sprintf("non-finite sample %v at frame %d", v, i)
			return rs
		}
	}

	log.Infof("Searching peaks+edges on %s...", series.Rail)
	res := a.detector.Detect(series.Points)
	rs.Peaks = res.Peaks
	rs.Edges = res.Edges
	rs.PeakStartingSign = res.StartingSign

	first := "POSITIVE"
	if res.StartingSign == negative {
		first = "NEGATIVE"
	}
	log.Infof("Found %d peaks/valleys.", len(res.Peaks))
	log.Infof("First peak is: %s", first)
	log.Infof("Peaks&Valleys: %s", joinIndices(res.Peaks))
	log.Infof("Found %d edges.", len(res.Edges))
	log.Infof("Edges: %s", joinIndices(res.Edges))

	log.Info("Calculating full-rail stats...")
	sum := Summarize(series.Points)
	rs.MeanVoltage = sum.Mean
	rs.MinVoltage = sum.Min
	rs.MaxVoltage = sum.Max

	if len(markers) == 0 {
		return rs
	}

	for x := 1; x < len(StageNames); x++ {
		seg := a.AnalyzeSegment(series.Points, markers, x-1, x, &rs)
		if seg.MetadataIncomplete {
			log.Infof("Segment %s-%s skipped: metadata incomplete.", seg.FromSignal, seg.ToSignal)
		}
	}

	// T1 to ON gives the power good delay.
	seg := a.AnalyzeSegment(series.Points, markers, stageT1, stageON, &rs)
	if seg.MetadataIncomplete {
		log.Infof("Segment %s-%s skipped: metadata incomplete.", seg.FromSignal, seg.ToSignal)
	}

	return rs
}

func (a *Analyzer) lastStage(markerCount int) string {
	idx := markerCount - 1
	if idx >= len(StageNames) {
		a.log.Warnf("%d markers supplied but only %d stages are known, extra markers ignored.", markerCount, len(StageNames))
		idx = len(StageNames) - 1
	}
	return StageNames[idx]
}

// pgOkDelay takes the T1 to ON duration from the first rail that measured it.
// Markers are shared by all rails, so every rail measures the same value.
func pgOkDelay(rails []RailStats) Optional[int64] {
	for _, rs := range rails {
		if rs.Failed() {
			continue
		}
		for i := len(rs.Segments) - 1; i >= 0; i-- {
			seg := rs.Segments[i]
			if seg.FromSignal == StageNames[stageT1] && seg.ToSignal == StageNames[stageON] {
				if seg.MetadataIncomplete {
					return Optional[int64]{}
				}
				return Some(seg.DurationUs)
			}
		}
	}
	return Optional[int64]{}
}

func validateInput(in RunInput) error {
	if len(in.Rails) == 0 {
		return ErrNoRails
	}
	seen := make(map[Rail]bool, len(in.Rails))
	n := len(in.Rails[0].Points)
	for _, rs := range in.Rails {
		if seen[rs.Rail] {
			return fmt.Errorf("%w: %s", ErrDuplicateRail, rs.Rail)
		}
		seen[rs.Rail] = true
		if len(rs.Points) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptySeries, rs.Rail)
		}
		if len(rs.Points) != n {
			return fmt.Errorf("%w: %s has %d samples, %s has %d", ErrLengthMismatch,
				rs.Rail, len(rs.Points), in.Rails[0].Rail, n)
		}
	}
	return nil
}

func joinIndices(idx []int64) string {
	var b strings.Builder
	for i, v := range idx {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(v, 10))
	}
	return b.String()
}
