package analysis

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// Rail identifies one regulated DC output of the supply under test.
type Rail int

const (
	V12 Rail = iota
	V5
	V5SB
	V3_3
	V12N
	V5N
)

var railNames = []string{"v12", "v5", "v5sb", "v3_3", "v12n", "v5n"}

func (r Rail) String() string {
	if r < 0 || int(r) >= len(railNames) {
		return fmt.Sprintf("rail(%d)", int(r))
	}
	return railNames[r]
}

// MarshalText lets rails act as XML/YAML scalars.
func (r Rail) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Rail) UnmarshalText(b []byte) error {
	parsed, err := ParseRail(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseRail matches a rail name case-insensitively ("V12", "v3_3", ...).
func ParseRail(name string) (Rail, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, rn := range railNames {
		if n == rn {
			return Rail(i), nil
		}
	}
	return 0, fmt.Errorf("unknown rail name: %q", name)
}

// StageNames holds the power sequencing stages in the order markers are recorded.
var StageNames = []string{"T1", "T2", "T3", "ON", "T6", "OFF"}

const (
	stageT1 = 0
	stageON = 3
)

// Marker is a captured stage transition: the frame (sample index) and the elapsed
// time in microseconds at which it happened.
type Marker struct {
	FrameOffset  int64 `xml:"frame"`
	TimeOffsetUs int64 `xml:"time_us"`
}

// Optional carries a value together with a flag telling whether it was computed.
type Optional[T any] struct {
	Value   T
	Present bool
}

// Some wraps a computed value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Value: v, Present: true}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.Value, o.Present
}

// MarshalXML omits absent values entirely.
func (o Optional[T]) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if !o.Present {
		return nil
	}
	return e.EncodeElement(o.Value, start)
}

// ExtremaEdgeResult holds the indices found by the detector.
type ExtremaEdgeResult struct {
	Peaks        []int64 // local maxima and minima
	Edges        []int64 // extrema plus sharp transitions, superset of Peaks
	StartingSign int     // +1 when the first extremum is a peak, -1 for a valley
}

// RailSegmentStats holds statistics for one rail between two stage markers.
type RailSegmentStats struct {
	FromSignal         string    `xml:"from_signal"`
	ToSignal           string    `xml:"to_signal"`
	MetadataIncomplete bool      `xml:"metadata_incomplete"`
	MeanVoltage        float32   `xml:"mean_voltage"`
	Deviation          float32   `xml:"deviation"`
	MaxVoltage         float32   `xml:"max_voltage"`
	MinVoltage         float32   `xml:"min_voltage"`
	DurationFrames     int64     `xml:"duration_frames"`
	DurationUs         int64     `xml:"duration_us"`
	Points             []float32 `xml:"points>v,omitempty"`
}

// OnStageStats describes regulation while the supply reports ON.
type OnStageStats struct {
	InRegulationPercent  float32 `xml:"in_regulation_percent"`
	OffRegulationPercent float32 `xml:"off_regulation_percent"`
	MeanVoltage          float32 `xml:"mean_voltage"`
	DeviationVoltage     float32 `xml:"deviation_voltage"`
}

// LinearFit is a straight line y = Intercept + Slope*x.
type LinearFit struct {
	Slope      float64 `xml:"slope"`
	YIntercept float64 `xml:"y_intercept"`
}

// RampUpStageStats models the rail while it ramps up during T2.
type RampUpStageStats struct {
	// CurveCoefficients are the constant, linear and quadratic terms. Empty when the
	// segment is too short to fit.
	CurveCoefficients []float64           `xml:"curve_coefficients>c,omitempty"`
	Fitness           float32             `xml:"fitness"` // R² of the quadratic, 1 is a perfect fit
	TimeAxis          []float64           `xml:"time_axis>x,omitempty"`
	Linear            Optional[LinearFit] `xml:"linear"`
}

// RailStats aggregates everything computed for one rail.
type RailStats struct {
	XMLName          xml.Name  `xml:"rail_stats"`
	Rail             Rail      `xml:"rail"`
	NominalVoltage   float32   `xml:"nominal_voltage"`
	VoltageTolerance float32   `xml:"voltage_tolerance"`
	MeanVoltage      float32   `xml:"mean_voltage"`
	MaxVoltage       float32   `xml:"max_voltage"`
	MinVoltage       float32   `xml:"min_voltage"`
	Points           []float32 `xml:"points>v,omitempty"`
	Peaks            []int64   `xml:"peaks>i,omitempty"`
	Edges            []int64   `xml:"edges>i,omitempty"`
	PeakStartingSign int       `xml:"peak_starting_sign"`

	// Only populated when markers were supplied.
	Segments []RailSegmentStats         `xml:"segments>segment,omitempty"`
	OnStage  Optional[OnStageStats]     `xml:"on_stage"`
	RampUp   Optional[RampUpStageStats] `xml:"ramp_up"`

	// Err is set when this rail could not be analyzed; the other fields are then
	// only partially filled.
	Err string `xml:"error,omitempty"`
}

// AppendSegment records a segment and returns the new segment count.
func (rs *RailStats) AppendSegment(seg RailSegmentStats) int {
	rs.Segments = append(rs.Segments, seg)
	return len(rs.Segments)
}

// Failed reports whether the rail pipeline aborted.
func (rs *RailStats) Failed() bool {
	return rs.Err != ""
}

// AnalysisReport is the result of one analysis run.
type AnalysisReport struct {
	XMLName           xml.Name        `xml:"atx_stats"`
	Rails             []RailStats     `xml:"rails>rail_stats"`
	Markers           []Marker        `xml:"markers>marker,omitempty"`
	LastStageRecorded string          `xml:"last_stage_recorded,omitempty"`
	PgOkDelayUs       Optional[int64] `xml:"pg_ok_delay_us"`
	Settings          Settings        `xml:"settings"`
}

// Rail returns the stats for the given rail, if it was analyzed.
func (r *AnalysisReport) Rail(rail Rail) (*RailStats, bool) {
	for i := range r.Rails {
		if r.Rails[i].Rail == rail {
			return &r.Rails[i], true
		}
	}
	return nil, false
}

// RailErrors lists the rails whose pipeline failed.
func (r *AnalysisReport) RailErrors() []string {
	var errs []string
	for _, rs := range r.Rails {
		if rs.Failed() {
			errs = append(errs, fmt.Sprintf("%s: %s", rs.Rail, rs.Err))
		}
	}
	return errs
}

// RailSeries is one input voltage series.
type RailSeries struct {
	Rail   Rail
	Points []float32
}

// RunInput is everything one run consumes.
type RunInput struct {
	Rails   []RailSeries
	Markers []Marker // optional
}

// RailSpec holds the electrical expectations for a rail.
type RailSpec struct {
	Rail      Rail    `xml:"rail" yaml:"rail"`
	Nominal   float32 `xml:"nominal" yaml:"nominal"`
	Tolerance float32 `xml:"tolerance" yaml:"tolerance"` // fraction, 0.05 = 5%
}

// Settings tunes the analyzer.
type Settings struct {
	// WindowFraction is the peak detection window relative to the series length.
	WindowFraction float32 `xml:"window_fraction"`
	// EdgeSensitivity is an absolute voltage delta.
	EdgeSensitivity float32 `xml:"edge_sensitivity"`
	// MinStartFrame is the smallest marker frame accepted as observed.
	MinStartFrame int64      `xml:"min_start_frame"`
	Workers       int        `xml:"-"`
	Rails         []RailSpec `xml:"rails>rail"`
}

// DefaultRailSpecs holds the ATX nominal voltages: 5% on positive rails, 10% on the negative ones.
func DefaultRailSpecs() []RailSpec {
	return []RailSpec{
		{Rail: V12, Nominal: 12.0, Tolerance: 0.05},
		{Rail: V5, Nominal: 5.0, Tolerance: 0.05},
		{Rail: V5SB, Nominal: 5.0, Tolerance: 0.05},
		{Rail: V3_3, Nominal: 3.3, Tolerance: 0.05},
		{Rail: V12N, Nominal: -12.0, Tolerance: 0.10},
		{Rail: V5N, Nominal: -5.0, Tolerance: 0.10},
	}
}

// DefaultSettings returns the analyzer defaults.
func DefaultSettings() Settings {
	return Settings{
		WindowFraction:  0.05,
		EdgeSensitivity: 0.05,
		MinStartFrame:   1,
		Rails:           DefaultRailSpecs(),
	}
}

func (s Settings) spec(rail Rail) (RailSpec, bool) {
	for _, rs := range s.Rails {
		if rs.Rail == rail {
			return rs, true
		}
	}
	return RailSpec{}, false
}
