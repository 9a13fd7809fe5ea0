package report

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/user/atx_analyzer_go/internal/analysis"
	"github.com/user/atx_analyzer_go/internal/parser"
)

const (
	LogEntryName      = "last_log.txt"
	PackageName       = "package.tar.gz"
	manifestEntryName = "manifest.xml"
	extraDirName      = "extra"
)

// Dumper writes analysis results next to an output path. Every file name is
// prefixed with the output path minus its extension, followed by '_'.
type Dumper struct {
	fs     afero.Fs
	Prefix string

	Log        []byte             // run log, stored as last_log.txt
	DeviceInfo *parser.DeviceInfo // optional
	ExtraDirs  []string           // directories packed under extra/ in the archive

	now   func() time.Time
	newID func() uuid.UUID
}

// NewDumper creates a dumper for the given output path.
func NewDumper(fs afero.Fs, output string) *Dumper {
	ext := filepath.Ext(output)
	return &Dumper{
		fs:     fs,
		Prefix: strings.TrimSuffix(output, ext) + "_",
		now:    time.Now,
		newID:  uuid.New,
	}
}

// Manifest lists the content of a result package.
type Manifest struct {
	XMLName xml.Name  `xml:"manifest"`
	ID      string    `xml:"id"`
	Created time.Time `xml:"created"`
	Entries []string  `xml:"entries>entry"`
}

type entry struct {
	name string
	data []byte
}

// DumpCSVs writes every result entry as a separate file and returns the paths written.
func (d *Dumper) DumpCSVs(r *analysis.AnalysisReport) ([]string, error) {
	entries, err := d.entries(r)
	if err != nil {
		return nil, err
	}

	written := make([]string, 0, len(entries))
	for _, e := range entries {
		name := d.Prefix + e.name
		if err := afero.WriteFile(d.fs, name, e.data, 0o644); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", name, err)
		}
		written = append(written, name)
	}
	return written, nil
}

// DumpTarGz packs every result entry, a manifest and the extra directories into
// <prefix>package.tar.gz and returns its path.
func (d *Dumper) DumpTarGz(r *analysis.AnalysisReport) (string, error) {
	entries, err := d.entries(r)
	if err != nil {
		return "", err
	}
	for _, dir := range d.ExtraDirs {
		extra, err := d.extraEntries(dir)
		if err != nil {
			return "", err
		}
		entries = append(entries, extra...)
	}

	created := d.now()
	manifest := Manifest{ID: d.newID().String(), Created: created}
	for _, e := range entries {
		manifest.Entries = append(manifest.Entries, e.name)
	}
	data, err := marshalXML(manifest, "manifest")
	if err != nil {
		return "", err
	}
	entries = append(entries, entry{name: manifestEntryName, data: data})

	name := d.Prefix + PackageName
	file, err := d.fs.Create(name)
	if err != nil {
		return "", fmt.Errorf("failed to create package: %w", err)
	}
	err = writePackage(file, entries, created)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to write package: %w", cerr)
	}
	if err != nil {
		// Drop the truncated archive.
		_ = d.fs.Remove(name)
		return "", err
	}
	return name, nil
}

func writePackage(w io.Writer, entries []entry, modTime time.Time) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     e.name,
			Mode:     0o644,
			Size:     int64(len(e.data)),
			ModTime:  modTime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("failed to add %s to package: %w", e.name, err)
		}
		if _, err := tw.Write(e.data); err != nil {
			return fmt.Errorf("failed to add %s to package: %w", e.name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to finish package: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress package: %w", err)
	}
	return nil
}

func (d *Dumper) entries(r *analysis.AnalysisReport) ([]entry, error) {
	var entries []entry
	add := func(name string, v any, root string) error {
		data, err := marshalXML(v, root)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		entries = append(entries, entry{name: name, data: data})
		return nil
	}

	for i := range r.Rails {
		rs := &r.Rails[i]
		rail := rs.Rail.String()

		entries = append(entries, entry{name: rail + "_simplified_curve.csv", data: simplifiedCurve(rs)})
		if ramp, ok := rs.RampUp.Get(); ok {
			if err := add(rail+"_curve_fit.xml", ramp, "ramp_up_stats"); err != nil {
				return nil, err
			}
		}
		if on, ok := rs.OnStage.Get(); ok {
			if err := add(rail+"_on.xml", on, "on_stage_stats"); err != nil {
				return nil, err
			}
		}
		if err := add(rail+"_stats.xml", rs, "rail_stats"); err != nil {
			return nil, err
		}
	}
	if err := add("stats.xml", r, "atx_stats"); err != nil {
		return nil, err
	}
	if d.DeviceInfo != nil {
		if err := add("deviceinfo.xml", d.DeviceInfo, "device_info"); err != nil {
			return nil, err
		}
	}
	if d.Log != nil {
		entries = append(entries, entry{name: LogEntryName, data: d.Log})
	}
	return entries, nil
}

func (d *Dumper) extraEntries(dir string) ([]entry, error) {
	base := filepath.Base(filepath.Clean(dir))
	var entries []entry
	err := afero.Walk(d.fs, dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := afero.ReadFile(d.fs, p)
		if err != nil {
			return err
		}
		entries = append(entries, entry{name: path.Join(extraDirName, base, filepath.ToSlash(rel)), data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to pack extra directory %s: %w", dir, err)
	}
	return entries, nil
}

// simplifiedCurve lists "edge index,voltage" for every edge, one per line.
func simplifiedCurve(rs *analysis.RailStats) []byte {
	var buf bytes.Buffer
	for _, e := range rs.Edges {
		if e < 0 || e >= int64(len(rs.Points)) {
			continue
		}
		buf.WriteString(strconv.FormatInt(e, 10))
		buf.WriteByte(',')
		buf.WriteString(strconv.FormatFloat(float64(rs.Points[e]), 'g', -1, 32))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func marshalXML(v any, root string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.EncodeElement(v, xml.StartElement{Name: xml.Name{Local: root}}); err != nil {
		return nil, fmt.Errorf("failed to serialize %s: %w", root, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
