package store

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := OpenEngine(filepath.Join(t.TempDir(), "buybuy.db"), slog.Default())
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	return engine
}

func setupShoppingTestStore(t *testing.T, opts ...ShoppingOption) *ShoppingStore {
	t.Helper()
	engine := openTestEngine(t)
	writer := NewSerializer(engine)
	writer.Start(context.Background())
	t.Cleanup(func() {
		writer.Stop()
		engine.Close()
	})
	return NewShoppingStore(engine, writer, opts...)
}
