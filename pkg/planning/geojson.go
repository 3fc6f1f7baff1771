// Package planning evaluates property coordinates against restricted-area
// polygons and merges auxiliary planning-constraint strings into typed
// entries.
package planning

import (
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"
)

// FeatureCollection is a GeoJSON-like set of constraint features.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one named constraint area.
type Feature struct {
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties"`
	Geometry   Geometry          `json:"geometry"`
}

// Name returns the feature's display name, trying the common property keys.
func (f *Feature) Name() string {
	for _, key := range []string{"name", "Name", "NAME", "title"} {
		if v, ok := f.Properties[key]; ok && v != "" {
			return v
		}
	}
	return ""
}

// Geometry holds a Polygon or MultiPolygon. Polygons are a list of rings;
// each ring is a list of [lng, lat] positions. MultiPolygons add one more
// level of nesting.
type Geometry struct {
	Type          string           `json:"type"`
	PolygonRings  [][][2]float64   `json:"-"`
	MultiPolygons [][][][2]float64 `json:"-"`
}

// rawGeometry mirrors the wire shape before coordinate validation.
type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// UnmarshalJSON decodes a Polygon or MultiPolygon geometry. Unsupported or
// malformed geometries produce an error that callers are expected to treat as
// skippable, never fatal.
func (g *Geometry) UnmarshalJSON(data []byte) error {
	var raw rawGeometry
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("malformed geometry: %w", err)
	}
	g.Type = raw.Type

	switch raw.Type {
	case "Polygon":
		var rings [][][2]float64
		if err := json.Unmarshal(raw.Coordinates, &rings); err != nil {
			return fmt.Errorf("malformed polygon coordinates: %w", err)
		}
		g.PolygonRings = rings
	case "MultiPolygon":
		var polys [][][][2]float64
		if err := json.Unmarshal(raw.Coordinates, &polys); err != nil {
			return fmt.Errorf("malformed multipolygon coordinates: %w", err)
		}
		g.MultiPolygons = polys
	default:
		return fmt.Errorf("unsupported geometry type %q", raw.Type)
	}
	return nil
}

// LoadDataset reads a FeatureCollection from disk, dropping individual
// features whose geometry fails to parse. A dataset where every feature is
// malformed still loads as an empty set.
func LoadDataset(path string, logger *zap.Logger) (*FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read planning dataset: %w", err)
	}
	return ParseDataset(data, logger)
}

// ParseDataset parses FeatureCollection bytes, skipping malformed features.
func ParseDataset(data []byte, logger *zap.Logger) (*FeatureCollection, error) {
	var envelope struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse planning dataset: %w", err)
	}

	fc := &FeatureCollection{Type: envelope.Type}
	for i, rawFeature := range envelope.Features {
		var f Feature
		if err := json.Unmarshal(rawFeature, &f); err != nil {
			logger.Warn("Skipping malformed planning feature",
				zap.Int("index", i),
				zap.Error(err))
			continue
		}
		fc.Features = append(fc.Features, f)
	}
	return fc, nil
}
