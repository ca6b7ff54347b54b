package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("new filesystem store: %v", err)
	}
	return map[string]Store{
		"memory": NewMemory(),
		"fs":     fsStore,
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			payload := []byte(`[{"id":1}]`)
			info, err := store.Put(ctx, "patients_data", bytes.NewReader(payload), PutOptions{
				ContentType: "application/json",
				Metadata:    map[string]string{"collection": "patients"},
			})
			if err != nil {
				t.Fatalf("put: %v", err)
			}
			if info.Size != int64(len(payload)) {
				t.Fatalf("size: got %d, want %d", info.Size, len(payload))
			}

			gotInfo, rc, err := store.Get(ctx, "patients_data")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer rc.Close()
			body, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("read body: %v", err)
			}
			if !bytes.Equal(body, payload) {
				t.Fatalf("body mismatch: %s", body)
			}
			if gotInfo.ContentType != "application/json" {
				t.Fatalf("content type: %q", gotInfo.ContentType)
			}
			if gotInfo.Metadata["collection"] != "patients" {
				t.Fatalf("metadata: %+v", gotInfo.Metadata)
			}
		})
	}
}

func TestPutOverwrites(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Put(ctx, "k", strings.NewReader("first"), PutOptions{}); err != nil {
				t.Fatalf("first put: %v", err)
			}
			if _, err := store.Put(ctx, "k", strings.NewReader("second"), PutOptions{}); err != nil {
				t.Fatalf("second put: %v", err)
			}
			_, rc, err := store.Get(ctx, "k")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer rc.Close()
			body, _ := io.ReadAll(rc)
			if string(body) != "second" {
				t.Fatalf("overwrite lost: %s", body)
			}
		})
	}
}

func TestMissingKey(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, _, err := store.Get(ctx, "absent"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("get: expected ErrNotFound, got %v", err)
			}
			if _, err := store.Head(ctx, "absent"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("head: expected ErrNotFound, got %v", err)
			}
			existed, err := store.Delete(ctx, "absent")
			if err != nil {
				t.Fatalf("delete: %v", err)
			}
			if existed {
				t.Fatalf("delete of absent key reported existed")
			}
		})
	}
}

func TestListByPrefix(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"data/patients", "data/allergies", "other/x"} {
				if _, err := store.Put(ctx, key, strings.NewReader("{}"), PutOptions{}); err != nil {
					t.Fatalf("put %s: %v", key, err)
				}
			}
			infos, err := store.List(ctx, "data/")
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(infos) != 2 {
				t.Fatalf("expected 2 keys, got %d: %+v", len(infos), infos)
			}
			// Sorted ascending by key.
			if infos[0].Key != "data/allergies" || infos[1].Key != "data/patients" {
				t.Fatalf("unexpected order: %+v", infos)
			}
		})
	}
}

func TestDeleteRemoves(t *testing.T) {
	ctx := context.Background()
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Put(ctx, "k", strings.NewReader("v"), PutOptions{}); err != nil {
				t.Fatalf("put: %v", err)
			}
			existed, err := store.Delete(ctx, "k")
			if err != nil || !existed {
				t.Fatalf("delete: existed=%v err=%v", existed, err)
			}
			if _, err := store.Head(ctx, "k"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("key survived delete: %v", err)
			}
		})
	}
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store, err := NewFilesystem(filepath.Join(t.TempDir(), "blobs"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, key := range []string{"../escape", "/absolute", "", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("v"), PutOptions{}); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}
