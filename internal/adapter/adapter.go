// Package adapter provides the scratch table workspace used while joining
// model predictions onto a stream network.
package adapter

import (
	"context"
	"database/sql"
	"strings"
)

// Config holds the configuration for opening a scratch workspace.
type Config struct {
	// Path is the database file. Empty or ":memory:" keeps the workspace in memory.
	Path string
}

// Column represents a column in a scratch table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// Metadata holds metadata about a scratch table.
type Metadata struct {
	Schema   string
	Name     string
	Columns  []Column
	RowCount int64
}

// Lookup finds a column by name, compared case-insensitively like DuckDB
// identifiers, and returns its name as stored in the table.
func (m *Metadata) Lookup(name string) (string, bool) {
	for _, c := range m.Columns {
		if strings.EqualFold(c.Name, name) {
			return c.Name, true
		}
	}
	return "", false
}

// Rows wraps sql.Rows to provide a consistent interface across adapters.
type Rows struct {
	*sql.Rows
}

// Adapter is a scratch workspace. Tables it creates are owned by the
// workspace and dropped when it is closed.
type Adapter interface {
	// Connect opens the workspace.
	Connect(ctx context.Context, cfg Config) error

	// Close drops every table created through the workspace and releases it.
	Close() error

	// Exec executes a statement that doesn't return rows.
	Exec(ctx context.Context, sql string, args ...any) error

	// Query executes a statement that returns rows.
	Query(ctx context.Context, sql string, args ...any) (*Rows, error)

	// GetTableMetadata retrieves column metadata for a table.
	GetTableMetadata(ctx context.Context, table string) (*Metadata, error)

	// LoadCSV converts a CSV file into a table with an inferred schema.
	LoadCSV(ctx context.Context, tableName string, filePath string) error

	// CreateTable creates a table from column definitions ("name TYPE").
	CreateTable(ctx context.Context, tableName string, columns []string) error

	// InsertRows bulk inserts rows into a table inside one transaction.
	InsertRows(ctx context.Context, tableName string, columns []string, rows [][]any) error
}

// QuoteIdent quotes an identifier for use in generated SQL.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral quotes a string literal for use in generated SQL.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
