package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedded embed.FS

var errNotOpened = errors.New("database not opened")

// schema builds a goose provider over the embedded run history migrations.
func schema(db *sql.DB) (*goose.Provider, error) {
	fsys, err := fs.Sub(embedded, "migrations")
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return nil, fmt.Errorf("failed to load run history migrations: %w", err)
	}
	return p, nil
}

// Migrate brings the run history schema up to date.
func (s *SQLiteStore) Migrate() error {
	if s.db == nil {
		return errNotOpened
	}
	p, err := schema(s.db)
	if err != nil {
		return err
	}
	applied, err := p.Up(context.Background())
	if err != nil {
		return fmt.Errorf("failed to migrate run history: %w", err)
	}
	if len(applied) > 0 {
		s.logger.Debug("run history migrated", "applied", len(applied))
	}
	return nil
}

// SchemaVersion reports the last applied run history migration.
func (s *SQLiteStore) SchemaVersion() (int64, error) {
	if s.db == nil {
		return 0, errNotOpened
	}
	p, err := schema(s.db)
	if err != nil {
		return 0, err
	}
	return p.GetDBVersion(context.Background())
}
