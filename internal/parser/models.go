package parser

import (
	"encoding/xml"
	"time"

	"github.com/user/atx_analyzer_go/internal/analysis"
)

// TimeColumn is the header of the optional time axis column.
const TimeColumn = "t0"

// DefaultHeaders is the column layout assumed for files without a header row.
var DefaultHeaders = []string{TimeColumn, "v12", "v5", "v5sb", "v3_3"}

// CaptureRails is the rail order of the capture board's raw frames.
var CaptureRails = []analysis.Rail{analysis.V12, analysis.V5, analysis.V5SB, analysis.V3_3}

const (
	// MarkerRecordSize is one big-endian marker record: uint32 frame, uint32 time in µs.
	MarkerRecordSize = 8
	// RawFrameSize is one capture frame: four big-endian uint16 millivolt samples.
	RawFrameSize = 8
)

// ParsedRailData holds the rail series of one capture, in column order.
type ParsedRailData struct {
	Rails       []analysis.RailSeries
	Time        []float64 // empty when the file has no t0 column
	Headers     []string
	ParseErrors []string // non-fatal issues found while parsing
}

func NewParsedRailData() *ParsedRailData {
	return &ParsedRailData{
		Rails:       make([]analysis.RailSeries, 0),
		Headers:     make([]string, 0),
		ParseErrors: make([]string, 0),
	}
}

// Frames returns the number of samples per rail.
func (p *ParsedRailData) Frames() int {
	if len(p.Rails) == 0 {
		return 0
	}
	return len(p.Rails[0].Points)
}

// ParsedMarkers holds the stage markers of one capture.
type ParsedMarkers struct {
	Markers     []analysis.Marker
	ParseErrors []string
}

// DeviceInfo describes the supply under test. It is carried into the report verbatim.
type DeviceInfo struct {
	XMLName         xml.Name  `xml:"device_info" yaml:"-"`
	Brand           string    `xml:"brand" yaml:"brand"`
	Model           string    `xml:"model" yaml:"model"`
	SerialNumber    string    `xml:"serial_number" yaml:"serial_number"`
	Wattage         int       `xml:"wattage" yaml:"wattage"`
	ManufactureYear int       `xml:"manufacture_year,omitempty" yaml:"manufacture_year"`
	FormFactor      string    `xml:"form_factor,omitempty" yaml:"form_factor"`
	IsGood          bool      `xml:"is_good" yaml:"is_good"`
	Tag             string    `xml:"tag,omitempty" yaml:"tag"`
	TestDate        time.Time `xml:"test_date" yaml:"test_date"`
}
