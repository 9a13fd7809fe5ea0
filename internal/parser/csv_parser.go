package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/user/atx_analyzer_go/internal/analysis"
)

// ParseRailCSV opens a rail matrix CSV and parses it. See ReadRailCSV.
func ParseRailCSV(fs afero.Fs, path string, hasHeaders bool) (*ParsedRailData, error) {
	file, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	parsed, err := ReadRailCSV(file, hasHeaders)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return parsed, nil
}

// ReadRailCSV reads a comma separated rail matrix, one column per rail and one row
// per frame. The first row names the columns unless hasHeaders is false, in which
// case DefaultHeaders apply. Blank lines, '#' comments and rows with a single cell
// are skipped.
func ReadRailCSV(r io.Reader, hasHeaders bool) (*ParsedRailData, error) {
	reader := csv.NewReader(r)
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	parsed := NewParsedRailData()
	var columns []column
	timeCol := -1

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV data: %w", err)
		}
		if len(row) <= 1 {
			continue
		}
		line, _ := reader.FieldPos(0)

		if columns == nil {
			headers := DefaultHeaders
			if hasHeaders {
				headers = row
			}
			columns, timeCol, err = parsed.setHeaders(headers)
			if err != nil {
				return nil, err
			}
			if hasHeaders {
				continue
			}
		}

		if len(row) < len(parsed.Headers) {
			parsed.ParseErrors = append(parsed.ParseErrors, fmt.Sprintf("Warning: line %d has %d cells, expected %d. Row skipped.", line, len(row), len(parsed.Headers)))
			continue
		}

		if timeCol >= 0 {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[timeCol]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %q: %w", line, parsed.Headers[timeCol], err)
			}
			parsed.Time = append(parsed.Time, v)
		}
		for _, c := range columns {
			v, err := strconv.ParseFloat(strings.TrimSpace(row[c.index]), 32)
			if err != nil {
				return nil, fmt.Errorf("line %d, column %q: %w", line, parsed.Headers[c.index], err)
			}
			series := &parsed.Rails[c.series]
			series.Points = append(series.Points, float32(v))
		}
	}

	if columns == nil {
		return nil, errors.New("no data rows found")
	}
	if parsed.Frames() == 0 {
		return nil, errors.New("header found but no data rows")
	}
	return parsed, nil
}

type column struct {
	index  int // position in the row
	series int // position in ParsedRailData.Rails
}

func (p *ParsedRailData) setHeaders(headers []string) ([]column, int, error) {
	var columns []column
	timeCol := -1
	seen := make(map[analysis.Rail]bool)

	for i, h := range headers {
		name := strings.TrimSpace(h)
		p.Headers = append(p.Headers, name)

		if strings.EqualFold(name, TimeColumn) {
			timeCol = i
			continue
		}
		rail, err := analysis.ParseRail(name)
		if err != nil {
			p.ParseErrors = append(p.ParseErrors, fmt.Sprintf("Warning: column %q is not a known rail, ignored.", name))
			continue
		}
		if seen[rail] {
			return nil, -1, fmt.Errorf("rail %s appears in more than one column", rail)
		}
		seen[rail] = true
		columns = append(columns, column{index: i, series: len(p.Rails)})
		p.Rails = append(p.Rails, analysis.RailSeries{Rail: rail, Points: make([]float32, 0)})
	}

	if len(columns) == 0 {
		return nil, -1, fmt.Errorf("no rail columns in header %v", headers)
	}
	return columns, timeCol, nil
}
