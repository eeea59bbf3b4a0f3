package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Segment describes one line feature of a fixture network.
type Segment struct {
	LineOID    any
	Properties map[string]any
}

// WriteNetwork writes a GeoJSON stream network with one two-vertex line per
// segment and returns its path. A nil LineOID omits the field.
func WriteNetwork(t testing.TB, dir, name string, segments []Segment) string {
	t.Helper()

	fc := geojson.NewFeatureCollection()
	for i, s := range segments {
		x := float64(i)
		f := geojson.NewFeature(orb.LineString{{x, 0}, {x + 1, 1}})
		f.ID = i + 1
		for k, v := range s.Properties {
			f.Properties[k] = v
		}
		if s.LineOID != nil {
			f.Properties["LineOID"] = s.LineOID
		}
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		t.Fatalf("failed to encode network fixture: %v", err)
	}

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		t.Fatalf("failed to create fixture directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatalf("failed to write network fixture: %v", err)
	}
	return path
}

// KeyedSegments returns segments with LineOID 1..n and a few extra attributes.
func KeyedSegments(n int) []Segment {
	segs := make([]Segment, n)
	for i := range segs {
		segs[i] = Segment{
			LineOID: i + 1,
			Properties: map[string]any{
				"Shape_Leng": float64(100 * (i + 1)),
				"GNIS_Name":  fmt.Sprintf("Creek %d", i+1),
			},
		}
	}
	return segs
}

// PredictionCSV renders a predicted_cond.csv body from key/value pairs.
func PredictionCSV(keys []int, values []float64) string {
	var b strings.Builder
	b.WriteString("LineOID,prdCond\n")
	for i, k := range keys {
		fmt.Fprintf(&b, "%d,%g\n", k, values[i])
	}
	return b.String()
}
