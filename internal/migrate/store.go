package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/MariuszDW/BuyBuy-sub001/internal/database"
)

// Source reads a store under its own schema.
type Source interface {
	// Version reports the schema version of the store at path without
	// opening it for general use. A missing store wraps fs.ErrNotExist.
	Version(ctx context.Context, path string) (int64, error)
	Load(ctx context.Context, path string) (*Dataset, error)
}

// Sink writes new stores and installs them.
type Sink interface {
	// Write creates a store at path at ds.Version holding every record of ds.
	Write(ctx context.Context, path string, ds *Dataset) error
	// Replace moves the store at tmp over the store at path.
	Replace(ctx context.Context, tmp, path string) error
	// Remove deletes the store at path. A missing store is not an error.
	Remove(path string) error
}

type Store interface {
	Source
	Sink
}

// SQLiteStore is the file-backed Store.
type SQLiteStore struct{}

func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

func (SQLiteStore) Version(ctx context.Context, path string) (int64, error) {
	return database.SchemaVersion(ctx, path)
}

func (s SQLiteStore) Load(ctx context.Context, path string) (*Dataset, error) {
	version, err := s.Version(ctx, path)
	if err != nil {
		return nil, err
	}

	db, err := database.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	ds := NewDataset(version)
	for _, table := range tableOrder {
		records, err := loadTable(ctx, db, table)
		if err != nil {
			return nil, err
		}
		ds.Tables[table] = records
	}
	return ds, nil
}

func loadTable(ctx context.Context, db *sql.DB, table string) ([]Record, error) {
	rows, err := db.QueryContext(ctx, `SELECT * FROM `+table)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}

	var records []Record
	for rows.Next() {
		values := make([]any, len(cols))
		dest := make([]any, len(cols))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		rec := make(Record, len(cols))
		for i, col := range cols {
			rec[col] = values[i]
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (SQLiteStore) Write(ctx context.Context, path string, ds *Dataset) error {
	db, err := database.Create(path, ds.Version)
	if err != nil {
		return err
	}

	if err := writeTables(ctx, db, ds); err != nil {
		db.Close()
		return err
	}

	// Fold the WAL back into the main file so path alone holds the store.
	if err := database.Checkpoint(ctx, db); err != nil {
		db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

func writeTables(ctx context.Context, db *sql.DB, ds *Dataset) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range tableOrder {
		for _, rec := range ds.Tables[table] {
			cols := rec.Columns()
			args := make([]any, len(cols))
			for i, col := range cols {
				args[i] = rec[col]
			}
			query := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s)`,
				table, strings.Join(cols, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("insert into %s: %w", table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Replace swaps the store at tmp into path. The old store's log is folded
// into its main file first, so a failed rename leaves it complete, and its
// sidecars are only removed once the new file is in place.
func (s SQLiteStore) Replace(ctx context.Context, tmp, path string) error {
	if _, err := os.Stat(tmp); err != nil {
		return fmt.Errorf("stat new store: %w", err)
	}
	if err := database.CheckpointFile(ctx, path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("checkpoint old store: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := removeIfExists(path + suffix); err != nil {
			return err
		}
	}
	return s.removeSidecars(tmp)
}

func (s SQLiteStore) Remove(path string) error {
	if err := removeIfExists(path); err != nil {
		return err
	}
	return s.removeSidecars(path)
}

func (SQLiteStore) removeSidecars(path string) error {
	for _, suffix := range []string{"-wal", "-shm", "-journal"} {
		if err := removeIfExists(path + suffix); err != nil {
			return err
		}
	}
	return nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}
