package migrate

import (
	"context"
	"errors"
	"testing"

	"github.com/MariuszDW/BuyBuy-sub001/internal/model"
	"github.com/google/go-cmp/cmp"
)

const memPath = "/data/buybuy.db"

func setupMemoryPipeline(t *testing.T, ds *Dataset, opts ...Option) (*Pipeline, *memoryStore) {
	t.Helper()
	mem := newMemoryStore()
	if ds != nil {
		mem.put(memPath, ds)
	}
	return NewPipeline(mem, opts...), mem
}

func TestShouldMigrate(t *testing.T) {
	tests := []struct {
		name    string
		version int64
		missing bool
		want    bool
		wantErr bool
	}{
		{name: "missing store", missing: true},
		{name: "no schema", version: 0},
		{name: "current", version: 3},
		{name: "version 1", version: 1, want: true},
		{name: "version 2", version: 2, want: true},
		{name: "newer than target", version: 4, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ds *Dataset
			if !tt.missing {
				ds = NewDataset(tt.version)
			}
			p, _ := setupMemoryPipeline(t, ds, WithTarget(3))

			got, err := p.ShouldMigrate(context.Background(), memPath)
			if tt.wantErr {
				var uv *model.UnsupportedSchemaVersionError
				if !errors.As(err, &uv) {
					t.Fatalf("expected UnsupportedSchemaVersionError, got %v", err)
				}
				if uv.Found != tt.version || uv.Target != 3 {
					t.Errorf("error = %+v", uv)
				}
				return
			}
			if err != nil {
				t.Fatalf("should migrate: %v", err)
			}
			if got != tt.want {
				t.Errorf("ShouldMigrate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShouldMigrateWithGapInChain(t *testing.T) {
	steps := []Step{{From: 2, To: 3, Name: "only", Transform: func(*Dataset) error { return nil }}}
	p, _ := setupMemoryPipeline(t, NewDataset(1), WithSteps(steps), WithTarget(3))

	_, err := p.ShouldMigrate(context.Background(), memPath)
	var uv *model.UnsupportedSchemaVersionError
	if !errors.As(err, &uv) {
		t.Fatalf("expected UnsupportedSchemaVersionError, got %v", err)
	}

	err = p.Run(context.Background(), memPath)
	if !errors.As(err, &uv) {
		t.Errorf("Run: expected UnsupportedSchemaVersionError, got %v", err)
	}
}

func TestPerformMigrationAppliesOneStep(t *testing.T) {
	p, mem := setupMemoryPipeline(t, v1Dataset(4))

	path, err := p.PerformMigration(context.Background(), memPath)
	if err != nil {
		t.Fatalf("perform migration: %v", err)
	}
	if path != memPath {
		t.Errorf("path = %q, want %q", path, memPath)
	}

	got, ok := mem.get(memPath)
	if !ok {
		t.Fatal("store missing after migration")
	}
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}
	if got.Count(ItemsTable) != 4 {
		t.Errorf("items = %d, want 4", got.Count(ItemsTable))
	}
	for _, item := range got.Tables[ItemsTable] {
		if item["image_ids"] != "[]" {
			t.Errorf("item %v image_ids = %v", item["id"], item["image_ids"])
		}
	}
	if _, ok := mem.get(memPath + TempSuffix); ok {
		t.Error("temp store left behind")
	}
}

func TestRunReachesTarget(t *testing.T) {
	var backups []string
	p, mem := setupMemoryPipeline(t, v1Dataset(3), WithBeforeMigrate(func(_ context.Context, path string) error {
		backups = append(backups, path)
		return nil
	}))

	if err := p.Run(context.Background(), memPath); err != nil {
		t.Fatalf("run: %v", err)
	}

	got, _ := mem.get(memPath)
	if got.Version != 3 {
		t.Errorf("version = %d, want 3", got.Version)
	}
	if diff := cmp.Diff([]string{memPath, memPath}, backups); diff != "" {
		t.Errorf("backup calls mismatch (-want +got):\n%s", diff)
	}

	// Already current: nothing to do.
	if err := p.Run(context.Background(), memPath); err != nil {
		t.Errorf("second run: %v", err)
	}
	if len(backups) != 2 {
		t.Errorf("second run took %d more backups", len(backups)-2)
	}
}

func TestFailedTransformLeavesStoreUntouched(t *testing.T) {
	steps := []Step{{From: 1, To: 2, Name: "broken", Transform: func(ds *Dataset) error {
		ds.Tables[ItemsTable][0]["name"] = "half done"
		return errors.New("boom")
	}}}
	original := v1Dataset(3)
	p, mem := setupMemoryPipeline(t, original, WithSteps(steps), WithTarget(2))

	_, err := p.PerformMigration(context.Background(), memPath)
	var me *model.MigrationError
	if !errors.As(err, &me) {
		t.Fatalf("expected MigrationError, got %v", err)
	}
	if me.From != 1 || me.To != 2 {
		t.Errorf("error = %+v", me)
	}

	got, _ := mem.get(memPath)
	if diff := cmp.Diff(original, got); diff != "" {
		t.Errorf("store changed (-before +after):\n%s", diff)
	}
	if len(mem.written) != 0 {
		t.Errorf("wrote %v before the transform succeeded", mem.written)
	}
}

func TestPanickingTransformIsAMigrationError(t *testing.T) {
	steps := []Step{{From: 1, To: 2, Name: "panics", Transform: func(*Dataset) error {
		panic("unexpected shape")
	}}}
	p, _ := setupMemoryPipeline(t, v1Dataset(1), WithSteps(steps), WithTarget(2))

	_, err := p.PerformMigration(context.Background(), memPath)
	var me *model.MigrationError
	if !errors.As(err, &me) {
		t.Fatalf("expected MigrationError, got %v", err)
	}
}

func TestFailedWriteRemovesTempStore(t *testing.T) {
	original := v1Dataset(2)
	p, mem := setupMemoryPipeline(t, original)
	mem.writeErr = errors.New("disk full")

	_, err := p.PerformMigration(context.Background(), memPath)
	var me *model.MigrationError
	if !errors.As(err, &me) {
		t.Fatalf("expected MigrationError, got %v", err)
	}
	if !errors.Is(err, mem.writeErr) {
		t.Errorf("error does not wrap the write failure: %v", err)
	}
	if _, ok := mem.get(memPath + TempSuffix); ok {
		t.Error("temp store left behind")
	}
	got, _ := mem.get(memPath)
	if diff := cmp.Diff(original, got); diff != "" {
		t.Errorf("store changed (-before +after):\n%s", diff)
	}
}

func TestFailedSwapKeepsOriginal(t *testing.T) {
	original := v1Dataset(2)
	p, mem := setupMemoryPipeline(t, original)
	mem.swapErr = errors.New("rename failed")

	if _, err := p.PerformMigration(context.Background(), memPath); err == nil {
		t.Fatal("expected error")
	}
	got, _ := mem.get(memPath)
	if got.Version != 1 {
		t.Errorf("version = %d, want 1", got.Version)
	}
	if _, ok := mem.get(memPath + TempSuffix); ok {
		t.Error("temp store left behind")
	}
}

func TestBeforeMigrateErrorAborts(t *testing.T) {
	p, mem := setupMemoryPipeline(t, v1Dataset(1), WithBeforeMigrate(func(context.Context, string) error {
		return errors.New("backup failed")
	}))

	if err := p.Run(context.Background(), memPath); err == nil {
		t.Fatal("expected error")
	}
	got, _ := mem.get(memPath)
	if got.Version != 1 {
		t.Errorf("version = %d, want 1", got.Version)
	}
}

func TestPerformMigrationStaleTempStore(t *testing.T) {
	p, mem := setupMemoryPipeline(t, v1Dataset(1))
	mem.put(memPath+TempSuffix, NewDataset(9))

	if _, err := p.PerformMigration(context.Background(), memPath); err != nil {
		t.Fatalf("perform migration: %v", err)
	}
	got, _ := mem.get(memPath)
	if got.Version != 2 {
		t.Errorf("version = %d, want 2", got.Version)
	}
}
