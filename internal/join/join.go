// Package join attaches the external model's prediction table to a stream
// network. The prediction CSV is converted into a scratch table, a scratch
// copy of the network is staged next to it, and the two are left joined on
// the integer join key.
//
// Every input feature appears exactly once in the result, in input order.
// Features without a matching prediction carry nil for every prediction
// column. When the prediction table repeats a key, its first row wins.
// Prediction keys must be integral; 1.6 matches nothing.
package join

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/leapstack-labs/condpredict/internal/adapter"
	"github.com/leapstack-labs/condpredict/internal/network"
)

// Scratch table names.
const (
	PredictionTable = "predicted_cond"
	ScratchTable    = "in_fc_tmp"
)

// Result is the outcome of a join.
type Result struct {
	// Features is the joined scratch copy of the input network.
	Features *geojson.FeatureCollection
	// Fields maps each prediction column to the field name it was written as.
	Fields map[string]string
	// Matched counts features that found a prediction row.
	Matched int
	// Unmatched counts features left with nil predictions.
	Unmatched int
}

// Joiner performs the attribute join inside a scratch workspace.
type Joiner struct {
	db     adapter.Adapter
	key    string
	logger *slog.Logger
}

// New creates a joiner over an open workspace using network.JoinKey.
func New(db adapter.Adapter, logger *slog.Logger) *Joiner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Joiner{db: db, key: network.JoinKey, logger: logger}
}

// Join converts the prediction CSV and joins it onto a copy of fc. The input
// collection is not modified.
func (j *Joiner) Join(ctx context.Context, fc *geojson.FeatureCollection, predictionCSV string) (*Result, error) {
	keyCol, predCols, err := j.loadPredictions(ctx, predictionCSV)
	if err != nil {
		return nil, err
	}

	scratch := network.Clone(fc)
	if err := j.stage(ctx, scratch); err != nil {
		return nil, err
	}

	fields := outputNames(fc, predCols)
	res := &Result{Features: scratch, Fields: fields}

	query := j.joinQuery(keyCol, predCols)
	rows, err := j.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to join predictions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	values := make([]any, len(predCols)+2)
	dest := make([]any, len(values))
	for i := range values {
		dest[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan joined row: %w", err)
		}

		fid, ok := network.KeyValue(values[0])
		if !ok || fid < 0 || int(fid) >= len(scratch.Features) {
			return nil, fmt.Errorf("joined row references unknown feature %v", values[0])
		}
		if matched, _ := values[1].(bool); matched {
			res.Matched++
		} else {
			res.Unmatched++
		}

		props := scratch.Features[fid].Properties
		for i, col := range predCols {
			props[fields[col]] = normalize(values[i+2])
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating joined rows: %w", err)
	}

	j.logger.Debug("predictions joined",
		slog.Int("features", len(scratch.Features)),
		slog.Int("matched", res.Matched),
		slog.Int("unmatched", res.Unmatched))

	return res, nil
}

// loadPredictions converts the CSV and returns the key column as named in the
// file plus the remaining prediction columns.
func (j *Joiner) loadPredictions(ctx context.Context, csvPath string) (string, []string, error) {
	if err := j.db.LoadCSV(ctx, PredictionTable, csvPath); err != nil {
		return "", nil, fmt.Errorf("failed to convert prediction table: %w", err)
	}

	md, err := j.db.GetTableMetadata(ctx, PredictionTable)
	if err != nil {
		return "", nil, fmt.Errorf("failed to inspect prediction table: %w", err)
	}

	keyCol, ok := md.Lookup(j.key)
	if !ok {
		return "", nil, fmt.Errorf("prediction table %s has no %s column", csvPath, j.key)
	}
	var predCols []string
	for _, c := range md.Columns {
		if c.Name != keyCol {
			predCols = append(predCols, c.Name)
		}
	}

	j.logger.Debug("prediction table loaded",
		slog.Int64("rows", md.RowCount),
		slog.Any("columns", predCols))
	return keyCol, predCols, nil
}

// stage copies feature ordinals and keys into the scratch table. Keys that are
// missing or not integral are staged as NULL and never match.
func (j *Joiner) stage(ctx context.Context, fc *geojson.FeatureCollection) error {
	if err := j.db.CreateTable(ctx, ScratchTable, []string{
		"fid INTEGER",
		adapter.QuoteIdent(j.key) + " BIGINT",
	}); err != nil {
		return err
	}

	rows := make([][]any, len(fc.Features))
	invalid := 0
	for i, f := range fc.Features {
		var key any
		if v, ok := network.KeyValue(f.Properties[j.key]); ok {
			key = v
		} else {
			invalid++
		}
		rows[i] = []any{i, key}
	}
	if invalid > 0 {
		j.logger.Warn("features without an integer join key", slog.Int("count", invalid))
	}

	if err := j.db.InsertRows(ctx, ScratchTable, []string{"fid", j.key}, rows); err != nil {
		return fmt.Errorf("failed to stage features: %w", err)
	}
	return nil
}

// integerKey casts col to BIGINT when it holds an integral value and yields
// NULL otherwise. A bare BIGINT cast would round 1.6 to 2.
func integerKey(col string) string {
	return fmt.Sprintf("CASE WHEN TRY_CAST(%[1]s AS DOUBLE) = TRY_CAST(%[1]s AS BIGINT) THEN TRY_CAST(%[1]s AS BIGINT) END", col)
}

func (j *Joiner) joinQuery(keyCol string, predCols []string) string {
	key := adapter.QuoteIdent(j.key)
	pKey := integerKey("p." + adapter.QuoteIdent(keyCol))
	rawKey := integerKey(adapter.QuoteIdent(keyCol))
	table := adapter.QuoteIdent(PredictionTable)

	cols := []string{"t.fid", pKey + " IS NOT NULL AS matched"}
	for _, c := range predCols {
		cols = append(cols, "p."+adapter.QuoteIdent(c))
	}

	return fmt.Sprintf(`
		SELECT %s
		FROM %s t
		LEFT JOIN (
			SELECT * FROM %s
			WHERE rowid IN (
				SELECT min(rowid) FROM %s
				WHERE %s IS NOT NULL
				GROUP BY %s
			)
		) p ON t.%s = %s
		ORDER BY t.fid`,
		strings.Join(cols, ", "),
		adapter.QuoteIdent(ScratchTable),
		table, table,
		rawKey, rawKey,
		key, pKey,
	)
}

// outputNames picks the field name for each prediction column. Retained
// fields (prdCond, error_code) overwrite any input value of the same name so
// the output always carries this run's predictions. Other columns that collide
// with an input field get a numeric suffix.
func outputNames(fc *geojson.FeatureCollection, cols []string) map[string]string {
	taken := make(map[string]bool)
	for _, f := range network.Fields(fc) {
		taken[f] = true
	}

	names := make(map[string]string, len(cols))
	for _, c := range cols {
		name := c
		if slices.Contains(network.RetainedFields, c) {
			taken[name] = true
			names[c] = name
			continue
		}
		for n := 1; taken[name]; n++ {
			name = fmt.Sprintf("%s_%d", c, n)
		}
		taken[name] = true
		names[c] = name
	}
	return names
}

// normalize converts driver values into types that encode cleanly as GeoJSON
// properties.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, int64, float64:
		return x
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	case interface{ Float64() float64 }:
		return x.Float64()
	default:
		return fmt.Sprint(x)
	}
}
