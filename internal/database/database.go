package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/MariuszDW/BuyBuy-sub001/internal/model"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// CurrentVersion is the schema version this build reads and writes.
const CurrentVersion int64 = 3

const versionTable = "goose_db_version"

var (
	// ErrNoSchema means the file is a SQLite database without schema metadata.
	ErrNoSchema = errors.New("missing schema metadata")
	// ErrCorrupted means the integrity check of the file failed.
	ErrCorrupted = errors.New("store is corrupted")
)

// Open opens the store at dbPath for normal use. A missing file is created
// at CurrentVersion. An existing file must already be at CurrentVersion;
// Open never migrates.
func Open(dbPath string) (*sql.DB, error) {
	ctx := context.Background()

	if dbPath != ":memory:" {
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			db, err := Create(dbPath, CurrentVersion)
			if err != nil {
				return nil, &model.StoreOpenError{Path: dbPath, Err: err}
			}
			return db, nil
		}
	}

	db, err := openDB(dbPath)
	if err != nil {
		return nil, &model.StoreOpenError{Path: dbPath, Err: err}
	}

	if err := checkStore(ctx, db, dbPath); err != nil {
		db.Close()
		return nil, &model.StoreOpenError{Path: dbPath, Err: err}
	}
	return db, nil
}

func checkStore(ctx context.Context, db *sql.DB, dbPath string) error {
	version, err := readVersion(ctx, db)
	if err != nil {
		return err
	}

	var result string
	if err := db.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if result != "ok" {
		return fmt.Errorf("%w: %s", ErrCorrupted, result)
	}

	if version != CurrentVersion {
		return &model.UnsupportedSchemaVersionError{Path: dbPath, Found: version, Target: CurrentVersion}
	}
	return nil
}

// Create makes a new store file at exactly the given schema version.
// It fails if dbPath already exists.
func Create(dbPath string, version int64) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if _, err := os.Stat(dbPath); err == nil {
			return nil, fmt.Errorf("create store %s: %w", dbPath, fs.ErrExist)
		}
	}

	db, err := openDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := runMigrations(context.Background(), db, version); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// OpenReadOnly opens an existing store without write access and without
// checking its version.
func OpenReadOnly(dbPath string) (*sql.DB, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("stat store: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+dbPath+"?mode=ro&_pragma=busy_timeout(5000)&_time_format=sqlite")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

// SchemaVersion reports the schema version recorded in the store at dbPath
// without opening it for general use. A file without schema metadata
// reports version 0. A missing file returns an error wrapping os.ErrNotExist.
func SchemaVersion(ctx context.Context, dbPath string) (int64, error) {
	db, err := OpenReadOnly(dbPath)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	version, err := readVersion(ctx, db)
	if errors.Is(err, ErrNoSchema) {
		return 0, nil
	}
	return version, err
}

// Checkpoint flushes the write-ahead log into the main database file.
func Checkpoint(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

// CheckpointFile folds the write-ahead log of the store at dbPath into its
// main file without checking the schema version. A missing file returns an
// error wrapping os.ErrNotExist.
func CheckpointFile(ctx context.Context, dbPath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("stat store: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := Checkpoint(ctx, db); err != nil {
		db.Close()
		return err
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

func openDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite&_txlock=immediate")
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

func readVersion(ctx context.Context, db *sql.DB) (int64, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, versionTable,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("read schema metadata: %w", err)
	}
	if n == 0 {
		return 0, ErrNoSchema
	}

	var version sql.NullInt64
	err = db.QueryRowContext(ctx,
		`SELECT MAX(version_id) FROM `+versionTable+` WHERE is_applied = 1`,
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version.Int64, nil
}

func runMigrations(ctx context.Context, db *sql.DB, version int64) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("new provider: %w", err)
	}

	if _, err := provider.UpTo(ctx, version); err != nil {
		return fmt.Errorf("goose up to %d: %w", version, err)
	}

	return nil
}
