package network

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleNetwork = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "id": 1, "geometry": {"type": "LineString", "coordinates": [[0,0],[1,1]]},
     "properties": {"LineOID": 1, "Shape_Leng": 12.5, "reach": "a"}},
    {"type": "Feature", "id": 2, "geometry": {"type": "LineString", "coordinates": [[1,1],[2,2]]},
     "properties": {"LineOID": 2, "error_code": 0}}
  ]
}`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "network.geojson")
	require.NoError(t, os.WriteFile(path, []byte(sampleNetwork), 0600))
	return path
}

func TestLoad(t *testing.T) {
	fc, err := Load(writeSample(t))
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	assert.Equal(t, "LineString", fc.Features[0].Geometry.GeoJSONType())
	assert.Equal(t, 1.0, fc.Features[0].Properties["LineOID"])
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load("")
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = Load(filepath.Join(t.TempDir(), "missing.geojson"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.geojson")
	require.NoError(t, os.WriteFile(bad, []byte("not json"), 0600))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestFields(t *testing.T) {
	fc, err := Load(writeSample(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"LineOID", "Shape_Leng", "reach", "error_code"}, Fields(fc))
	assert.Nil(t, Fields(nil))
}

func TestHasField(t *testing.T) {
	fc, err := Load(writeSample(t))
	require.NoError(t, err)

	tests := []struct {
		name  string
		field string
		want  bool
	}{
		{name: "join key", field: JoinKey, want: true},
		{name: "present on one feature", field: ErrorCodeField, want: true},
		{name: "absent", field: PredictedField, want: false},
		{name: "case sensitive", field: "lineoid", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HasField(fc, tt.field))
		})
	}

	assert.False(t, HasField(geojson.NewFeatureCollection(), JoinKey))
	assert.False(t, HasField(nil, JoinKey))
}

func TestClone_IsIndependent(t *testing.T) {
	fc, err := Load(writeSample(t))
	require.NoError(t, err)

	cp := Clone(fc)
	cp.Features[0].Properties["reach"] = "changed"
	cp.Features[0].Geometry.(orb.LineString)[0] = orb.Point{9, 9}

	assert.Equal(t, "a", fc.Features[0].Properties["reach"])
	assert.Equal(t, orb.Point{0, 0}, fc.Features[0].Geometry.(orb.LineString)[0])
	assert.Equal(t, fc.Features[1].ID, cp.Features[1].ID)
}

func TestRetainFields(t *testing.T) {
	fc, err := Load(writeSample(t))
	require.NoError(t, err)

	removed := RetainFields(fc, RetainedFields...)

	assert.ElementsMatch(t, []string{"Shape_Leng", "reach"}, removed)
	for _, f := range fc.Features {
		assert.Len(t, f.Properties, 2)
		assert.Contains(t, f.Properties, JoinKey)
		assert.Contains(t, f.Properties, ErrorCodeField)
		assert.NotNil(t, f.Geometry)
	}
	assert.Nil(t, fc.Features[0].Properties[ErrorCodeField])
	assert.Equal(t, 0.0, fc.Features[1].Properties[ErrorCodeField])
}

func TestSaveRoundTrip(t *testing.T) {
	fc, err := Load(writeSample(t))
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "nested", "out.geojson")
	require.NoError(t, Save(out, fc))

	back, err := Load(out)
	require.NoError(t, err)
	require.Len(t, back.Features, 2)
	assert.Equal(t, fc.Features[1].Properties, back.Features[1].Properties)
}

func TestKeyValue(t *testing.T) {
	tests := []struct {
		in     any
		want   int64
		wantOK bool
	}{
		{in: 3.0, want: 3, wantOK: true},
		{in: 3.5, wantOK: false},
		{in: int64(7), want: 7, wantOK: true},
		{in: int32(7), want: 7, wantOK: true},
		{in: "7", wantOK: false},
		{in: nil, wantOK: false},
	}
	for _, tt := range tests {
		got, ok := KeyValue(tt.in)
		assert.Equal(t, tt.wantOK, ok, "KeyValue(%v)", tt.in)
		if tt.wantOK {
			assert.Equal(t, tt.want, got)
		}
	}
}
