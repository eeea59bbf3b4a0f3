// Package network reads, inspects and rewrites stream network feature
// collections stored as GeoJSON.
//
// A collection has no declared schema; its field set is the union of the
// property keys of its features, in order of first appearance.
package network

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Field names the pipeline relies on.
const (
	JoinKey        = "LineOID"
	ErrorCodeField = "error_code"
	PredictedField = "prdCond"
)

// RetainedFields are the attribute fields kept on the final output.
var RetainedFields = []string{JoinKey, ErrorCodeField, PredictedField}

// ErrEmptyPath is returned when a dataset path is blank.
var ErrEmptyPath = errors.New("dataset path is required")

// Load reads a feature collection from a GeoJSON file.
func Load(path string) (*geojson.FeatureCollection, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is supplied by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read feature collection: %w", err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feature collection %s: %w", path, err)
	}
	for _, f := range fc.Features {
		if f.Properties == nil {
			f.Properties = geojson.Properties{}
		}
	}
	return fc, nil
}

// Save writes a feature collection to path, creating the parent directory.
func Save(path string, fc *geojson.FeatureCollection) error {
	if path == "" {
		return ErrEmptyPath
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode feature collection: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write feature collection: %w", err)
	}
	return nil
}

// Fields returns the field set of the collection.
func Fields(fc *geojson.FeatureCollection) []string {
	if fc == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var fields []string
	for _, f := range fc.Features {
		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			if _, ok := seen[k]; !ok {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = struct{}{}
			fields = append(fields, k)
		}
	}
	return fields
}

// HasField reports whether any feature in the collection carries name.
func HasField(fc *geojson.FeatureCollection, name string) bool {
	if fc == nil {
		return false
	}
	for _, f := range fc.Features {
		if _, ok := f.Properties[name]; ok {
			return true
		}
	}
	return false
}

// Clone returns a deep copy of the collection that can be mutated freely.
func Clone(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	if fc == nil {
		return out
	}
	out.BBox = fc.BBox
	out.ExtraMembers = fc.ExtraMembers.Clone()

	for _, f := range fc.Features {
		var geom orb.Geometry
		if f.Geometry != nil {
			geom = orb.Clone(f.Geometry)
		}
		nf := geojson.NewFeature(geom)
		nf.ID = f.ID
		nf.BBox = f.BBox
		nf.Properties = f.Properties.Clone()
		if nf.Properties == nil {
			nf.Properties = geojson.Properties{}
		}
		out.Append(nf)
	}
	return out
}

// RetainFields drops every field not named in keep. Kept fields that exist in
// the collection are written on every feature, as nil where a feature had no
// value, so the result has a uniform field set. It returns the removed fields.
func RetainFields(fc *geojson.FeatureCollection, keep ...string) []string {
	schema := Fields(fc)

	var kept, removed []string
	for _, name := range schema {
		if slices.Contains(keep, name) {
			kept = append(kept, name)
		} else {
			removed = append(removed, name)
		}
	}

	for _, f := range fc.Features {
		props := make(geojson.Properties, len(kept))
		for _, name := range kept {
			props[name] = f.Properties[name]
		}
		f.Properties = props
	}
	return removed
}

// KeyValue extracts an integer join key from a property value. JSON numbers
// decode as float64, so integral floats are accepted.
func KeyValue(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case float32:
		if n != float32(int64(n)) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	default:
		return 0, false
	}
}
