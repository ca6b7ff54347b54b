package blobkv

import (
	"context"
	"testing"

	"patientcore/internal/blob"
)

func TestLoadAbsentKey(t *testing.T) {
	store := New(blob.NewMemory())
	if _, ok, err := store.Load(context.Background(), "patients_data"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	blobs := blob.NewMemory()
	store := New(blobs)

	payload := []byte(`[{"id":1}]`)
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

	// The stored object carries the JSON content type.
	info, err := blobs.Head(ctx, "patients_data")
	if err != nil {
		t.Fatalf("head: %v", err)
	}
	if info.ContentType != "application/json" {
		t.Fatalf("content type: %q", info.ContentType)
	}

	if err := store.Save(ctx, "patients_data", []byte(`[]`)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _, _ = store.Load(ctx, "patients_data")
	if string(got) != "[]" {
		t.Fatalf("overwrite lost: %s", got)
	}
}
