package parser

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/user/atx_analyzer_go/internal/analysis"
)

// ParseMarkers opens a binary marker file. See ReadMarkers.
func ParseMarkers(fs afero.Fs, path string) (*ParsedMarkers, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open marker file: %w", err)
	}
	defer file.Close()

	parsed, err := ReadMarkers(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return parsed, nil
}

// ReadMarkers decodes big-endian marker records until EOF, one per stage in
// capture order. A zero frame offset is kept: it marks a stage that was not observed.
func ReadMarkers(r io.Reader) (*ParsedMarkers, error) {
	parsed := &ParsedMarkers{
		Markers:     make([]analysis.Marker, 0, len(analysis.StageNames)),
		ParseErrors: make([]string, 0),
	}

	var rec [MarkerRecordSize]byte
	for {
		n, err := io.ReadFull(r, rec[:])
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			parsed.ParseErrors = append(parsed.ParseErrors, fmt.Sprintf("Warning: trailing %d bytes after marker %d ignored.", n, len(parsed.Markers)))
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read marker %d: %w", len(parsed.Markers), err)
		}
		parsed.Markers = append(parsed.Markers, analysis.Marker{
			FrameOffset:  int64(binary.BigEndian.Uint32(rec[0:4])),
			TimeOffsetUs: int64(binary.BigEndian.Uint32(rec[4:8])),
		})
	}

	if len(parsed.Markers) > len(analysis.StageNames) {
		parsed.ParseErrors = append(parsed.ParseErrors, fmt.Sprintf("Warning: %d markers found, only %d stages are defined.", len(parsed.Markers), len(analysis.StageNames)))
	}
	return parsed, nil
}

// WriteMarkers encodes markers in the same record format.
func WriteMarkers(w io.Writer, markers []analysis.Marker) error {
	var rec [MarkerRecordSize]byte
	for i, m := range markers {
		if m.FrameOffset < 0 || m.FrameOffset > 0xFFFFFFFF || m.TimeOffsetUs < 0 || m.TimeOffsetUs > 0xFFFFFFFF {
			return fmt.Errorf("marker %d out of range: %+v", i, m)
		}
		binary.BigEndian.PutUint32(rec[0:4], uint32(m.FrameOffset))
		binary.BigEndian.PutUint32(rec[4:8], uint32(m.TimeOffsetUs))
		if _, err := w.Write(rec[:]); err != nil {
			return fmt.Errorf("failed to write marker %d: %w", i, err)
		}
	}
	return nil
}
