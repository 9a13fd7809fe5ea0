package parser

import (
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/afero"

	"github.com/user/atx_analyzer_go/internal/analysis"
)

// ParseRawFrames opens a capture board data stream. See ReadRawFrames.
func ParseRawFrames(fs afero.Fs, path string) (*ParsedRailData, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open raw frame file: %w", err)
	}
	defer file.Close()

	parsed, err := ReadRawFrames(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return parsed, nil
}

// ReadRawFrames decodes frames of four big-endian uint16 millivolt samples in
// CaptureRails order and converts them to volts.
func ReadRawFrames(r io.Reader) (*ParsedRailData, error) {
	parsed := NewParsedRailData()
	for _, rail := range CaptureRails {
		parsed.Headers = append(parsed.Headers, rail.String())
		parsed.Rails = append(parsed.Rails, analysis.RailSeries{Rail: rail, Points: make([]float32, 0)})
	}

	var frame [RawFrameSize]byte
	for {
		n, err := io.ReadFull(r, frame[:])
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			parsed.ParseErrors = append(parsed.ParseErrors, fmt.Sprintf("Warning: misaligned data, trailing %d bytes after frame %d ignored.", n, parsed.Frames()))
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read frame %d: %w", parsed.Frames(), err)
		}
		for i := range parsed.Rails {
			mv := binary.BigEndian.Uint16(frame[i*2 : i*2+2])
			parsed.Rails[i].Points = append(parsed.Rails[i].Points, float32(mv)/1000)
		}
	}
	return parsed, nil
}

// WriteRailCSV writes the rails as a CSV matrix that ReadRailCSV accepts, with
// three decimals per voltage.
func WriteRailCSV(w io.Writer, data *ParsedRailData) error {
	cw := csv.NewWriter(w)
	withTime := len(data.Time) > 0 && len(data.Time) == data.Frames()

	header := make([]string, 0, len(data.Rails)+1)
	if withTime {
		header = append(header, TimeColumn)
	}
	for _, rs := range data.Rails {
		header = append(header, rs.Rail.String())
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	row := make([]string, len(header))
	for i := 0; i < data.Frames(); i++ {
		row = row[:0]
		if withTime {
			row = append(row, strconv.FormatFloat(data.Time[i], 'f', -1, 64))
		}
		for _, rs := range data.Rails {
			row = append(row, strconv.FormatFloat(float64(rs.Points[i]), 'f', 3, 32))
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write frame %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}
