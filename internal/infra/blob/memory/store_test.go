package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"panelcore/internal/blob/core"
)

func TestPutGetOverwrite(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Put(ctx, "panels/p1/1.0.json", bytes.NewReader([]byte(`{"v":1}`)), core.PutOptions{ContentType: "application/json"}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "panels/p1/1.0.json", bytes.NewReader([]byte(`{"v":2}`)), core.PutOptions{}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	_, rc, err := store.Get(ctx, "panels/p1/1.0.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	data, _ := io.ReadAll(rc)
	if string(data) != `{"v":2}` {
		t.Fatalf("unexpected content %s", data)
	}
}

func TestGetMissingKey(t *testing.T) {
	store := New()
	if _, _, err := store.Get(context.Background(), "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListByPrefix(t *testing.T) {
	store := New()
	ctx := context.Background()
	for _, key := range []string{"panels/a/1.0.json", "panels/a/2.0.json", "panels/b/1.0.json"} {
		if _, err := store.Put(ctx, key, bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", key, err)
		}
	}
	infos, err := store.List(ctx, "panels/a/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 || infos[0].Key != "panels/a/1.0.json" {
		t.Fatalf("unexpected listing: %+v", infos)
	}
}

func TestDelete(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.Put(ctx, "k", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if ok, _ := store.Delete(ctx, "k"); !ok {
		t.Fatalf("expected delete to report existence")
	}
	if ok, _ := store.Delete(ctx, "k"); ok {
		t.Fatalf("expected second delete to be a no-op")
	}
}
