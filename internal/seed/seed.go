// Package seed reads the start-up snapshot of satellites, task rotations
// and mission phases.
package seed

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/constellation-telemetry/model"
)

// ErrUnsupportedFormat indicates a seed file extension that is neither YAML nor JSON.
var ErrUnsupportedFormat = errors.New("unsupported seed format")

// Format names a seed encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

//go:embed default_fleet.yaml
var defaultFleet []byte

// Default returns the built-in demonstration fleet.
func Default() (model.Snapshot, error) {
	snap, err := Decode(bytes.NewReader(defaultFleet), FormatYAML)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("embedded seed: %w", err)
	}
	return snap, nil
}

// Load reads a snapshot from path, picking the decoder from its extension.
// An empty path yields Default.
func Load(path string) (model.Snapshot, error) {
	if path == "" {
		return Default()
	}
	format, err := formatFor(path)
	if err != nil {
		return model.Snapshot{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to open seed %q: %w", path, err)
	}
	defer f.Close()

	snap, err := Decode(f, format)
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("failed to load seed %q: %w", path, err)
	}
	return snap, nil
}

// Decode parses a snapshot in the given format. Unknown fields are rejected
// so typos in seed files surface at start-up.
func Decode(r io.Reader, format Format) (model.Snapshot, error) {
	var snap model.Snapshot
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&snap); err != nil && !errors.Is(err, io.EOF) {
			return model.Snapshot{}, fmt.Errorf("parse yaml: %w", err)
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&snap); err != nil {
			return model.Snapshot{}, fmt.Errorf("parse json: %w", err)
		}
	default:
		return model.Snapshot{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return snap, nil
}

func formatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}
