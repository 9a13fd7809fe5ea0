package parser

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ParseDeviceInfo loads the YAML sidecar describing the supply under test.
func ParseDeviceInfo(fs afero.Fs, path string) (*DeviceInfo, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read device info: %w", err)
	}
	info, err := ReadDeviceInfo(bytes.NewReader(data), time.Now())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return info, nil
}

// ReadDeviceInfo decodes a device info document. A missing test_date is set to now.
func ReadDeviceInfo(r io.Reader, now time.Time) (*DeviceInfo, error) {
	info := &DeviceInfo{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(info); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse device info: %w", err)
	}
	if info.Wattage < 0 {
		return nil, fmt.Errorf("wattage must not be negative, got %d", info.Wattage)
	}
	if info.TestDate.IsZero() {
		info.TestDate = now
	}
	return info, nil
}
