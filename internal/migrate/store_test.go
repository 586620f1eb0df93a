package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MariuszDW/BuyBuy-sub001/internal/database"
	"github.com/MariuszDW/BuyBuy-sub001/internal/model"
)

// createV1Store writes a version 1 store with one list and n items, every
// third of them in the trash.
func createV1Store(t *testing.T, n int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buybuy.db")
	db, err := database.Create(path, 1)
	if err != nil {
		t.Fatalf("create v1 store: %v", err)
	}

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	if _, err := db.ExecContext(ctx,
		`INSERT INTO shopping_lists (id, name, note, sort_order, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"list-1", "Groceries", "weekly", 0, now, now,
	); err != nil {
		t.Fatalf("insert list: %v", err)
	}
	for i := range n {
		var listID any = "list-1"
		if i%3 == 2 {
			listID = nil
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO shopping_items (id, list_id, name, status, quantity, unit, sort_order, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			fmt.Sprintf("item-%d", i), listID, fmt.Sprintf("Item %d", i), "pending", "1.5", "kg", i,
			now, now.Add(time.Duration(i)*time.Minute),
		); err != nil {
			t.Fatalf("insert item %d: %v", i, err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("close v1 store: %v", err)
	}
	return path
}

func fileSum(t *testing.T, path string) [32]byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return sha256.Sum256(data)
}

func TestSQLiteMigrationToVersion2(t *testing.T) {
	const n = 7
	path := createV1Store(t, n)
	p := NewPipeline(NewSQLiteStore())
	ctx := context.Background()

	ok, err := p.ShouldMigrate(ctx, path)
	if err != nil {
		t.Fatalf("should migrate: %v", err)
	}
	if !ok {
		t.Fatal("expected version 1 store to need migration")
	}

	got, err := p.PerformMigration(ctx, path)
	if err != nil {
		t.Fatalf("perform migration: %v", err)
	}
	if got != path {
		t.Errorf("path = %q, want %q", got, path)
	}

	version, err := database.SchemaVersion(ctx, path)
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}

	db, err := database.OpenReadOnly(path)
	if err != nil {
		t.Fatalf("open migrated store: %v", err)
	}
	defer db.Close()

	var count, withImages int
	if err := db.QueryRow(`SELECT COUNT(*), SUM(image_ids = '[]') FROM shopping_items`).Scan(&count, &withImages); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if count != n || withImages != n {
		t.Errorf("items = %d, with default images = %d, want %d", count, withImages, n)
	}

	var color string
	if err := db.QueryRow(`SELECT color FROM shopping_lists WHERE id = 'list-1'`).Scan(&color); err != nil {
		t.Fatalf("read color: %v", err)
	}
	if color != "default" {
		t.Errorf("color = %q, want default", color)
	}

	if _, err := os.Stat(path + TempSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp store still present: %v", err)
	}
}

func TestSQLiteRunThenOpen(t *testing.T) {
	path := createV1Store(t, 6)
	ctx := context.Background()

	if _, err := database.Open(path); err == nil {
		t.Fatal("expected open of a version 1 store to fail")
	}

	if err := NewPipeline(NewSQLiteStore()).Run(ctx, path); err != nil {
		t.Fatalf("run: %v", err)
	}

	db, err := database.Open(path)
	if err != nil {
		t.Fatalf("open migrated store: %v", err)
	}
	defer db.Close()

	var trashed, stamped int
	err = db.QueryRow(
		`SELECT COUNT(*), COUNT(deleted_at) FROM shopping_items WHERE list_id IS NULL`,
	).Scan(&trashed, &stamped)
	if err != nil {
		t.Fatalf("count trash: %v", err)
	}
	if trashed != 2 || stamped != 2 {
		t.Errorf("trashed = %d, stamped = %d, want 2 and 2", trashed, stamped)
	}

	var onList int
	if err := db.QueryRow(`SELECT COUNT(*) FROM shopping_items WHERE list_id IS NOT NULL AND deleted_at IS NULL`).Scan(&onList); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if onList != 4 {
		t.Errorf("items on lists = %d, want 4", onList)
	}

	var quantity string
	if err := db.QueryRow(`SELECT quantity FROM shopping_items WHERE id = 'item-0'`).Scan(&quantity); err != nil {
		t.Fatalf("read quantity: %v", err)
	}
	if quantity != "1.5" {
		t.Errorf("quantity = %q, want 1.5", quantity)
	}
}

func TestSQLiteFailedTransformLeavesFileIdentical(t *testing.T) {
	path := createV1Store(t, 5)
	before := fileSum(t, path)

	steps := []Step{{From: 1, To: 2, Name: "fails halfway", Transform: func(ds *Dataset) error {
		for i, item := range ds.Tables[ItemsTable] {
			if i == 2 {
				return errors.New("simulated failure")
			}
			item["image_ids"] = "[]"
		}
		return nil
	}}}
	p := NewPipeline(NewSQLiteStore(), WithSteps(steps), WithTarget(2))

	_, err := p.PerformMigration(context.Background(), path)
	var me *model.MigrationError
	if !errors.As(err, &me) {
		t.Fatalf("expected MigrationError, got %v", err)
	}

	if after := fileSum(t, path); after != before {
		t.Error("store file changed after failed migration")
	}
	version, err := database.SchemaVersion(context.Background(), path)
	if err != nil || version != 1 {
		t.Errorf("version = %d, %v; want 1", version, err)
	}
}

func TestSQLiteFailedWriteLeavesFileIdentical(t *testing.T) {
	path := createV1Store(t, 3)
	before := fileSum(t, path)

	// The new schema has no such column, so the insert into the temp
	// store fails after it has been created.
	steps := []Step{{From: 1, To: 2, Name: "bad column", Transform: func(ds *Dataset) error {
		ds.Tables[ItemsTable][0]["no_such_column"] = 1
		return nil
	}}}
	p := NewPipeline(NewSQLiteStore(), WithSteps(steps), WithTarget(2))

	if _, err := p.PerformMigration(context.Background(), path); err == nil {
		t.Fatal("expected error")
	}
	if after := fileSum(t, path); after != before {
		t.Error("store file changed after failed migration")
	}
	if _, err := os.Stat(path + TempSuffix); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp store still present: %v", err)
	}
}

// storeWithPendingLog returns a copy of a version 1 store whose last list
// only exists in the write-ahead log, as left behind by a process that
// never checkpointed.
func storeWithPendingLog(t *testing.T) string {
	t.Helper()
	src := createV1Store(t, 2)
	db, err := sql.Open("sqlite", src+"?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	if _, err := db.ExecContext(context.Background(),
		`INSERT INTO shopping_lists (id, name, note, sort_order, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		"list-2", "Hardware", "", 1, now, now,
	); err != nil {
		t.Fatalf("insert list: %v", err)
	}
	if fi, err := os.Stat(src + "-wal"); err != nil || fi.Size() == 0 {
		t.Fatalf("expected a non-empty log, got %v", err)
	}

	dst := filepath.Join(t.TempDir(), "buybuy.db")
	for _, suffix := range []string{"", "-wal"} {
		copyFile(t, src+suffix, dst+suffix)
	}
	return dst
}

func copyFile(t *testing.T, from, to string) {
	t.Helper()
	in, err := os.Open(from)
	if err != nil {
		t.Fatalf("open %s: %v", from, err)
	}
	defer in.Close()
	out, err := os.Create(to)
	if err != nil {
		t.Fatalf("create %s: %v", to, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		t.Fatalf("copy %s: %v", from, err)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("close %s: %v", to, err)
	}
}

func countLists(t *testing.T, path string) int {
	t.Helper()
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM shopping_lists`).Scan(&n); err != nil {
		t.Fatalf("count lists: %v", err)
	}
	return n
}

func TestSQLiteFailedSwapKeepsLoggedChanges(t *testing.T) {
	path := storeWithPendingLog(t)

	// A non-empty directory cannot be renamed over a regular file.
	tmp := path + TempSuffix
	if err := os.Mkdir(tmp, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, "blocker"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	if err := NewSQLiteStore().Replace(context.Background(), tmp, path); err == nil {
		t.Fatal("expected rename to fail")
	}

	if got := countLists(t, path); got != 2 {
		t.Errorf("lists = %d, want 2", got)
	}
	version, err := database.SchemaVersion(context.Background(), path)
	if err != nil || version != 1 {
		t.Errorf("version = %d, %v; want 1", version, err)
	}
}

func TestSQLiteMigrationCarriesLoggedChanges(t *testing.T) {
	path := storeWithPendingLog(t)

	if _, err := NewPipeline(NewSQLiteStore()).PerformMigration(context.Background(), path); err != nil {
		t.Fatalf("perform migration: %v", err)
	}
	if _, err := os.Stat(path + "-wal"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("old log still present: %v", err)
	}
	if got := countLists(t, path); got != 2 {
		t.Errorf("lists = %d, want 2", got)
	}
}

func TestSQLiteUnsupportedVersion(t *testing.T) {
	path := createV1Store(t, 1)
	p := NewPipeline(NewSQLiteStore(), WithSteps(nil))

	_, err := p.ShouldMigrate(context.Background(), path)
	var uv *model.UnsupportedSchemaVersionError
	if !errors.As(err, &uv) {
		t.Fatalf("expected UnsupportedSchemaVersionError, got %v", err)
	}
	if uv.Found != 1 || uv.Target != database.CurrentVersion {
		t.Errorf("error = %+v", uv)
	}
}

func TestSQLiteMissingStoreNeedsNoMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.db")
	ok, err := NewPipeline(NewSQLiteStore()).ShouldMigrate(context.Background(), path)
	if err != nil {
		t.Fatalf("should migrate: %v", err)
	}
	if ok {
		t.Error("expected missing store to need no migration")
	}
}
