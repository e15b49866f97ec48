package repo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	store, err := NewFileStore(dir)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	ctx := context.Background()

	missing, err := store.Load(ctx, CollectionRules)
	if err != nil || missing != nil {
		t.Fatalf("ожидали пустой результат для новой коллекции, получили %q, %v", missing, err)
	}

	if err := store.Save(ctx, CollectionRules, []byte(`[{"id":"r1"}]`)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := store.Save(ctx, CollectionRules, []byte(`[]`)); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	data, err := store.Load(ctx, CollectionRules)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if string(data) != "[]" {
		t.Fatalf("ожидали последнюю версию, получили %q", data)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 || entries[0].Name() != "rules.json" {
		t.Fatalf("ожидали только rules.json, получили %v", entries)
	}
}
