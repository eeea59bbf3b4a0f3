package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/marcboeker/go-duckdb" // duckdb driver
)

// DuckDBAdapter implements the Adapter interface for DuckDB.
type DuckDBAdapter struct {
	db     *sql.DB
	config Config
	logger *slog.Logger
	tables []string
}

// NewDuckDBAdapter creates a new DuckDB adapter instance.
func NewDuckDBAdapter(logger *slog.Logger) *DuckDBAdapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDBAdapter{logger: logger}
}

// Open creates and connects a DuckDB workspace in one step.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DuckDBAdapter, error) {
	a := NewDuckDBAdapter(logger)
	if err := a.Connect(ctx, cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// Connect establishes a connection to DuckDB.
// Use ":memory:" as the path for an in-memory database.
func (a *DuckDBAdapter) Connect(ctx context.Context, cfg Config) error {
	path := cfg.Path
	if path == ":memory:" {
		path = ""
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return fmt.Errorf("failed to open duckdb connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping duckdb: %w", err)
	}

	a.db = db
	a.config = cfg
	a.tables = nil

	a.logger.Debug("scratch workspace opened", slog.String("path", cfg.Path))
	return nil
}

// Close drops the scratch tables and closes the DuckDB connection.
func (a *DuckDBAdapter) Close() error {
	if a.db == nil {
		return nil
	}

	var errs []error
	for i := len(a.tables) - 1; i >= 0; i-- {
		stmt := "DROP TABLE IF EXISTS " + QuoteIdent(a.tables[i])
		if _, err := a.db.Exec(stmt); err != nil {
			errs = append(errs, fmt.Errorf("failed to drop scratch table %s: %w", a.tables[i], err))
		}
	}
	a.logger.Debug("scratch workspace cleared", slog.Int("tables", len(a.tables)))
	a.tables = nil

	if err := a.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close duckdb: %w", err))
	}
	a.db = nil
	return errors.Join(errs...)
}

// Exec executes a SQL statement that doesn't return rows.
func (a *DuckDBAdapter) Exec(ctx context.Context, sqlStr string, args ...any) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}

	if _, err := a.db.ExecContext(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// Query executes a SQL statement that returns rows.
func (a *DuckDBAdapter) Query(ctx context.Context, sqlStr string, args ...any) (*Rows, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	//nolint:rowserrcheck // rows.Err() must be checked by caller after iteration completes
	rows, err := a.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	return &Rows{Rows: rows}, nil
}

// GetTableMetadata retrieves metadata for a specified table.
func (a *DuckDBAdapter) GetTableMetadata(ctx context.Context, table string) (*Metadata, error) {
	if a.db == nil {
		return nil, fmt.Errorf("database connection not established")
	}

	schema := "main"
	tableName := table
	if parts := strings.Split(table, "."); len(parts) == 2 {
		schema = parts[0]
		tableName = parts[1]
	}

	query := `
		SELECT
			column_name,
			data_type,
			is_nullable,
			ordinal_position
		FROM information_schema.columns
		WHERE table_schema = ? AND table_name = ?
		ORDER BY ordinal_position
	`

	rows, err := a.db.QueryContext(ctx, query, schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var columns []Column
	for rows.Next() {
		var col Column
		var nullable string
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &col.Position); err != nil {
			return nil, fmt.Errorf("failed to scan column metadata: %w", err)
		}
		col.Nullable = nullable == "YES"
		columns = append(columns, col)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s.%s", QuoteIdent(schema), QuoteIdent(tableName)) //nolint:gosec // identifiers are quoted
	var rowCount int64
	if err := a.db.QueryRowContext(ctx, countQuery).Scan(&rowCount); err != nil {
		rowCount = 0
	}

	return &Metadata{
		Schema:   schema,
		Name:     tableName,
		Columns:  columns,
		RowCount: rowCount,
	}, nil
}

// LoadCSV loads data from a CSV file into a table.
// DuckDB will automatically infer the schema from the CSV file.
func (a *DuckDBAdapter) LoadCSV(ctx context.Context, tableName string, filePath string) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	// read_csv_auto reports a missing file as a generic IO error, so check first
	// to keep fs.ErrNotExist visible to callers.
	if _, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}

	query := fmt.Sprintf(
		"CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto(%s, header=true)",
		QuoteIdent(tableName),
		quoteLiteral(absPath),
	)

	if err := a.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to load CSV: %w", err)
	}

	a.track(tableName)
	a.logger.Debug("csv converted to table", slog.String("table", tableName), slog.String("path", absPath))
	return nil
}

// CreateTable creates (or replaces) a scratch table.
func (a *DuckDBAdapter) CreateTable(ctx context.Context, tableName string, columns []string) error {
	if len(columns) == 0 {
		return fmt.Errorf("table %s needs at least one column", tableName)
	}

	stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", QuoteIdent(tableName), strings.Join(columns, ", "))
	if err := a.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create table %s: %w", tableName, err)
	}

	a.track(tableName)
	return nil
}

// InsertRows inserts rows with a prepared statement inside one transaction.
func (a *DuckDBAdapter) InsertRows(ctx context.Context, tableName string, columns []string, rows [][]any) error {
	if a.db == nil {
		return fmt.Errorf("database connection not established")
	}
	if len(rows) == 0 {
		return nil
	}

	quoted := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = QuoteIdent(c)
		marks[i] = "?"
	}
	stmtSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", //nolint:gosec // identifiers are quoted
		QuoteIdent(tableName), strings.Join(quoted, ", "), strings.Join(marks, ", "))

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, stmtSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, row := range rows {
		if len(row) != len(columns) {
			return fmt.Errorf("row %d has %d values, want %d", i, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("failed to insert row %d into %s: %w", i, tableName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit insert: %w", err)
	}
	return nil
}

// Tables returns the scratch tables currently owned by the workspace.
func (a *DuckDBAdapter) Tables() []string {
	out := make([]string, len(a.tables))
	copy(out, a.tables)
	return out
}

func (a *DuckDBAdapter) track(table string) {
	for _, t := range a.tables {
		if t == table {
			return
		}
	}
	a.tables = append(a.tables, table)
}

// Ensure DuckDBAdapter implements Adapter interface
var _ Adapter = (*DuckDBAdapter)(nil)
