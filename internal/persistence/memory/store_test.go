package memory

import (
	"context"
	"testing"
)

func TestRoundTripAndIsolation(t *testing.T) {
	ctx := context.Background()
	store := New()

	if _, ok, err := store.Load(ctx, "patients_data"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	payload := []byte(`[{"id":1}]`)
	if err := store.Save(ctx, "patients_data", payload); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.Load(ctx, "patients_data")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	got[0] = 'X' // caller mutation must not leak into the store
	again, _, _ := store.Load(ctx, "patients_data")
	if string(again) != string(payload) {
		t.Fatalf("stored payload aliased by caller: %s", again)
	}

	payload[1] = 'Y' // nor the other direction
	again, _, _ = store.Load(ctx, "patients_data")
	if string(again) != `[{"id":1}]` {
		t.Fatalf("stored payload aliased by writer: %s", again)
	}
}
