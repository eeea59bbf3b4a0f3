package join

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/condpredict/internal/adapter"
	"github.com/leapstack-labs/condpredict/internal/network"
	"github.com/leapstack-labs/condpredict/internal/testutil"
)

func setup(t *testing.T, segments []testutil.Segment, csv string) (*Joiner, *geojson.FeatureCollection, string) {
	t.Helper()
	dir := t.TempDir()
	logger := testutil.NewTestLogger(t)

	db, err := adapter.Open(context.Background(), adapter.Config{}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	fc, err := network.Load(testutil.WriteNetwork(t, dir, "network.geojson", segments))
	require.NoError(t, err)

	csvPath := filepath.Join(dir, "predicted_cond.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(csv), 0600))

	return New(db, logger), fc, csvPath
}

func predictions(res *Result) map[float64]any {
	out := make(map[float64]any)
	for _, f := range res.Features.Features {
		key, _ := f.Properties[network.JoinKey].(float64)
		out[key] = f.Properties[network.PredictedField]
	}
	return out
}

func TestJoin_AllMatched(t *testing.T) {
	csv := testutil.PredictionCSV([]int{1, 2, 3, 4, 5}, []float64{101.5, 202.25, 303, 404.75, 505.5})
	j, fc, csvPath := setup(t, testutil.KeyedSegments(5), csv)

	res, err := j.Join(context.Background(), fc, csvPath)
	require.NoError(t, err)

	assert.Equal(t, 5, res.Matched)
	assert.Equal(t, 0, res.Unmatched)
	require.Len(t, res.Features.Features, 5)

	want := map[float64]any{1: 101.5, 2: 202.25, 3: 303.0, 4: 404.75, 5: 505.5}
	if diff := cmp.Diff(want, predictions(res)); diff != "" {
		t.Errorf("joined predictions mismatch (-want +got):\n%s", diff)
	}

	for i, f := range res.Features.Features {
		assert.Equal(t, float64(i+1), f.Properties[network.JoinKey], "input order must be preserved")
		assert.Contains(t, f.Properties, "GNIS_Name", "input attributes survive the join")
	}
	assert.False(t, network.HasField(fc, network.PredictedField), "input collection must not be modified")
}

func TestJoin_UnmatchedAreNil(t *testing.T) {
	csv := testutil.PredictionCSV([]int{1, 3, 99}, []float64{10, 30, 990})
	j, fc, csvPath := setup(t, testutil.KeyedSegments(4), csv)

	res, err := j.Join(context.Background(), fc, csvPath)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Matched)
	assert.Equal(t, 2, res.Unmatched)
	require.Len(t, res.Features.Features, 4, "no row is dropped and none is added")

	got := predictions(res)
	assert.EqualValues(t, 10, got[1])
	assert.Nil(t, got[2])
	assert.EqualValues(t, 30, got[3])
	assert.Nil(t, got[4])
	for _, f := range res.Features.Features {
		assert.Contains(t, f.Properties, network.PredictedField)
	}
}

func TestJoin_DuplicateKeysFirstRowWins(t *testing.T) {
	csv := "LineOID,prdCond\n1,11\n2,22\n1,99\n"
	j, fc, csvPath := setup(t, testutil.KeyedSegments(2), csv)

	res, err := j.Join(context.Background(), fc, csvPath)
	require.NoError(t, err)

	require.Len(t, res.Features.Features, 2)
	got := predictions(res)
	assert.EqualValues(t, 11, got[1])
	assert.EqualValues(t, 22, got[2])
}

func TestJoin_MissingOrInvalidFeatureKeys(t *testing.T) {
	segments := []testutil.Segment{
		{LineOID: 1},
		{LineOID: nil, Properties: map[string]any{"note": "no key"}},
		{LineOID: 2.5},
	}
	csv := testutil.PredictionCSV([]int{1, 2}, []float64{1.5, 2.5})
	j, fc, csvPath := setup(t, segments, csv)

	res, err := j.Join(context.Background(), fc, csvPath)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 2, res.Unmatched)
	assert.Nil(t, res.Features.Features[1].Properties[network.PredictedField])
	assert.Nil(t, res.Features.Features[2].Properties[network.PredictedField])
}

func TestJoin_ExtraColumnsAndCollisions(t *testing.T) {
	segments := []testutil.Segment{
		{LineOID: 1, Properties: map[string]any{"prdCond": 111.0, "batch": "input"}},
		{LineOID: 2, Properties: map[string]any{"prdCond": 222.0}},
		{LineOID: 3, Properties: map[string]any{"prdCond": 333.0}},
	}
	csv := "lineoid,prdCond,error_code,batch\n1,5.5,0,a\n2,6.5,3,b\n"
	j, fc, csvPath := setup(t, segments, csv)

	res, err := j.Join(context.Background(), fc, csvPath)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"prdCond":    "prdCond",
		"error_code": "error_code",
		"batch":      "batch_1",
	}, res.Fields)

	first := res.Features.Features[0].Properties
	assert.Equal(t, 5.5, first[network.PredictedField], "predictions replace values from an earlier run")
	assert.Equal(t, "input", first["batch"])
	assert.Equal(t, "a", first["batch_1"])
	assert.EqualValues(t, 0, first[network.ErrorCodeField])
	assert.EqualValues(t, 3, res.Features.Features[1].Properties[network.ErrorCodeField])
	assert.Nil(t, res.Features.Features[2].Properties[network.PredictedField], "unmatched features drop stale predictions")
	assert.Equal(t, 111.0, fc.Features[0].Properties[network.PredictedField], "input collection must not be modified")
}

func TestJoin_FractionalPredictionKeys(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		want map[float64]any
	}{
		{
			name: "fractional key matches nothing",
			csv:  "LineOID,prdCond\n1.6,9.9\n",
			want: map[float64]any{1: nil, 2: nil},
		},
		{
			name: "integral float key matches",
			csv:  "LineOID,prdCond\n1.0,9.9\n2.5,7.5\n",
			want: map[float64]any{1: 9.9, 2: nil},
		},
		{
			name: "non numeric key matches nothing",
			csv:  "LineOID,prdCond\nabc,9.9\n2,7.5\n",
			want: map[float64]any{1: nil, 2: 7.5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j, fc, csvPath := setup(t, testutil.KeyedSegments(2), tt.csv)

			res, err := j.Join(context.Background(), fc, csvPath)
			require.NoError(t, err)

			if diff := cmp.Diff(tt.want, predictions(res)); diff != "" {
				t.Errorf("joined predictions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJoin_Errors(t *testing.T) {
	t.Run("missing prediction file", func(t *testing.T) {
		j, fc, _ := setup(t, testutil.KeyedSegments(1), "LineOID,prdCond\n")
		_, err := j.Join(context.Background(), fc, filepath.Join(t.TempDir(), "predicted_cond.csv"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("prediction table without key", func(t *testing.T) {
		j, fc, csvPath := setup(t, testutil.KeyedSegments(1), "segment,prdCond\n1,2.5\n")
		_, err := j.Join(context.Background(), fc, csvPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no LineOID column")
	})
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, int64(4), normalize(int32(4)))
	assert.Equal(t, float64(1.5), normalize(float32(1.5)))
	assert.Equal(t, "abc", normalize([]byte("abc")))
	assert.Nil(t, normalize(nil))
}
