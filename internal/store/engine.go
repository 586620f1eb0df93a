package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MariuszDW/BuyBuy-sub001/internal/database"
	"github.com/MariuszDW/BuyBuy-sub001/internal/model"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ReadContext runs queries against the latest committed state of the store.
// It is safe for concurrent use.
type ReadContext interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Engine owns the store handle.
type Engine struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenEngine opens the store at path. It fails with *model.StoreOpenError
// when the file is unusable or not at the current schema version.
func OpenEngine(path string, logger *slog.Logger) (*Engine, error) {
	db, err := database.Open(path)
	if err != nil {
		return nil, err
	}
	logger.Info("store opened", "path", path, "schema_version", database.CurrentVersion)
	return &Engine{db: db, path: path, logger: logger}, nil
}

// NewEngine wraps an already opened store.
func NewEngine(db *sql.DB, logger *slog.Logger) *Engine {
	return &Engine{db: db, logger: logger}
}

// Path is the store file the engine was opened on, empty for NewEngine.
func (e *Engine) Path() string { return e.path }

// DB exposes the underlying handle for maintenance jobs such as backups.
func (e *Engine) DB() *sql.DB { return e.db }

// Read returns the shared read context.
func (e *Engine) Read() ReadContext {
	return e.db
}

// WriteContext is an isolated unit of work. Nothing done through it is
// visible elsewhere until the engine commits it.
type WriteContext struct {
	tx      *sql.Tx
	changed bool
	closed  bool
}

// ExecContext runs a statement in the transaction and records whether it
// changed any rows.
func (w *WriteContext) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := w.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		w.changed = true
	}
	return res, nil
}

// QueryContext reads through the transaction, seeing its uncommitted changes.
func (w *WriteContext) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return w.tx.QueryContext(ctx, query, args...)
}

// QueryRowContext is QueryContext for a single row.
func (w *WriteContext) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return w.tx.QueryRowContext(ctx, query, args...)
}

// Changed reports whether any statement modified rows.
func (w *WriteContext) Changed() bool { return w.changed }

// NewWriteContext begins a write transaction.
func (e *Engine) NewWriteContext(ctx context.Context) (*WriteContext, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, classify("begin", err)
	}
	return &WriteContext{tx: tx}, nil
}

// Commit makes every change in wc visible. On failure nothing is applied and
// the error is a *model.WriteConflictError or *model.StorageIOError.
func (e *Engine) Commit(wc *WriteContext) error {
	if wc.closed {
		return &model.StorageIOError{Op: "commit", Err: sql.ErrTxDone}
	}
	wc.closed = true
	if err := wc.tx.Commit(); err != nil {
		wc.tx.Rollback()
		return classify("commit", err)
	}
	return nil
}

// Discard throws away every change in wc.
func (e *Engine) Discard(wc *WriteContext) {
	if wc.closed {
		return
	}
	wc.closed = true
	if err := wc.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		e.logger.Warn("rollback failed", "error", err)
	}
}

// Close releases the database handle.
func (e *Engine) Close() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	return nil
}

func classify(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return &model.WriteConflictError{Err: err}
		}
	}
	return &model.StorageIOError{Op: op, Err: err}
}
