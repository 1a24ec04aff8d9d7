package store

import (
	"context"
	"testing"

	"xrpchan/storage"
)

func TestSetThenGetSeesNewValue(t *testing.T) {
	w := New(storage.NewMemStore(), nil)
	defer w.Close()

	w.Set("a:balance", "100")
	v, ok := w.Get("a:balance")
	if !ok || v != "100" {
		t.Fatalf("expected cached value 100, got %q ok=%v", v, ok)
	}
}

func TestLoadIsIdempotentOnCacheHit(t *testing.T) {
	backing := storage.NewMemStore()
	backing.Put(context.Background(), "a:channel", "chan-1")

	w := New(backing, nil)
	defer w.Close()

	w.Set("a:channel", "chan-2") // populate cache first, differs from backing
	if err := w.Load(context.Background(), "a:channel"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	v, ok := w.Get("a:channel")
	if !ok || v != "chan-2" {
		t.Fatalf("expected cache to remain chan-2 (load is a no-op on hit), got %q", v)
	}
}

func TestLoadMissingKeyCachesAbsence(t *testing.T) {
	w := New(storage.NewMemStore(), nil)
	defer w.Close()

	if err := w.Load(context.Background(), "missing"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := w.Get("missing"); ok {
		t.Fatalf("expected missing key to remain absent after load")
	}
}

func TestDeleteThenGetIsAbsent(t *testing.T) {
	w := New(storage.NewMemStore(), nil)
	defer w.Close()

	w.Set("a:block", "true")
	w.Delete("a:block")
	if _, ok := w.Get("a:block"); ok {
		t.Fatalf("expected key to be absent after delete")
	}
}

type claimRecord struct {
	Amount    string `json:"amount"`
	Signature string `json:"signature"`
}

func TestSetObjectThenGetObjectRoundTrips(t *testing.T) {
	w := New(storage.NewMemStore(), nil)
	defer w.Close()

	rec := &claimRecord{Amount: "12345", Signature: "abcd"}
	if err := w.SetObject("a:claim", rec); err != nil {
		t.Fatalf("SetObject: %v", err)
	}
	got, ok := w.GetObject("a:claim")
	if !ok {
		t.Fatalf("expected object to be cached")
	}
	if got.(*claimRecord).Amount != "12345" {
		t.Fatalf("unexpected round-tripped amount: %+v", got)
	}
}

func TestSetCacheDoesNotPersist(t *testing.T) {
	backing := storage.NewMemStore()
	w := New(backing, nil)
	defer w.Close()

	w.SetCache("a:funding_lock", "1")
	v, ok := w.Get("a:funding_lock")
	if !ok || v != "1" {
		t.Fatalf("expected optimistic-lock value cached, got %q", v)
	}
	if _, err := backing.Get(context.Background(), "a:funding_lock"); err == nil {
		t.Fatalf("expected SetCache to never reach the backing store")
	}
}
