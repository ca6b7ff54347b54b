package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	if _, ok, err := store.Load(ctx, "patients_data"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	payload := []byte(`[{"id":1,"firstName":"Alice"}]`)
	if err := store.Save(ctx, "patients_data", payload); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, ok, err := store.Load(ctx, "patients_data")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if string(got) != string(payload) {
		t.Fatalf("payload mismatch: %s", got)
	}

	// Upsert replaces.
	replacement := []byte(`[]`)
	if err := store.Save(ctx, "patients_data", replacement); err != nil {
		t.Fatalf("second save: %v", err)
	}
	got, _, _ = store.Load(ctx, "patients_data")
	if string(got) != "[]" {
		t.Fatalf("upsert did not replace: %s", got)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "registry.db")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := store.Save(ctx, "saved_queries_data", []byte(`[{"id":1}]`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	got, ok, err := reopened.Load(ctx, "saved_queries_data")
	if err != nil || !ok {
		t.Fatalf("load after reopen: ok=%v err=%v", ok, err)
	}
	if string(got) != `[{"id":1}]` {
		t.Fatalf("payload lost across reopen: %s", got)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(filepath.Join(t.TempDir(), "registry.db"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	if err := store.Save(ctx, "patients_data", []byte(`[1]`)); err != nil {
		t.Fatalf("save patients: %v", err)
	}
	if err := store.Save(ctx, "allergies_data", []byte(`[2]`)); err != nil {
		t.Fatalf("save allergies: %v", err)
	}
	got, _, _ := store.Load(ctx, "patients_data")
	if string(got) != "[1]" {
		t.Fatalf("cross-key interference: %s", got)
	}
}
