package remote

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	apperrors "github.com/shopperapp/shopper-backend/pkg/errors"
)

func receiveValue[T any](t *testing.T, sub *Subscription[T]) T {
	t.Helper()
	select {
	case v, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription channel closed")
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for subscription value")
	}
	var zero T
	return zero
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	path := ItemPath("g1", "i1")
	if err := store.Set(ctx, path, map[string]string{"name": "milk"}); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := store.Get(ctx, path)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["name"] != "milk" {
		t.Errorf("expected milk, got %q", got["name"])
	}

	if err := store.Remove(ctx, path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	raw, err = store.Get(ctx, path)
	if err != nil {
		t.Fatalf("get after remove: %v", err)
	}
	if raw != nil {
		t.Errorf("expected nil after remove, got %q", raw)
	}
}

func TestMemoryStoreListDirectChildrenOnly(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Set(ctx, ItemPath("g1", "i1"), "a"); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, ItemPath("g1", "i2"), "b"); err != nil {
		t.Fatal(err)
	}
	if err := store.Set(ctx, ItemPath("g2", "i3"), "c"); err != nil {
		t.Fatal(err)
	}

	children, err := store.List(ctx, ItemsPath("g1"))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(children))
	}
	if _, ok := children["i1"]; !ok {
		t.Error("missing child i1")
	}
	if _, ok := children["i2"]; !ok {
		t.Error("missing child i2")
	}
}

func TestMemoryStoreSubscribeEmitsInitialAndUpdates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	path := UserPath("u1")

	if err := store.Set(ctx, path, map[string]string{"displayName": "Ana"}); err != nil {
		t.Fatal(err)
	}

	sub, err := store.Subscribe(ctx, path)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Cancel()

	initial := receiveValue(t, sub)
	if initial == nil {
		t.Fatal("expected initial snapshot")
	}

	if err := store.Set(ctx, path, map[string]string{"displayName": "Bea"}); err != nil {
		t.Fatal(err)
	}
	updated := receiveValue(t, sub)
	var got map[string]string
	if err := json.Unmarshal(updated, &got); err != nil {
		t.Fatal(err)
	}
	if got["displayName"] != "Bea" {
		t.Errorf("expected updated snapshot, got %q", got["displayName"])
	}
}

func TestMemoryStoreSubscribeTreeTracksChildren(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	prefix := ItemsPath("g1")

	sub, err := store.SubscribeTree(ctx, prefix)
	if err != nil {
		t.Fatalf("subscribe tree: %v", err)
	}
	defer sub.Cancel()

	initial := receiveValue(t, sub)
	if len(initial) != 0 {
		t.Fatalf("expected empty initial tree, got %d entries", len(initial))
	}

	if err := store.Set(ctx, ItemPath("g1", "i1"), "a"); err != nil {
		t.Fatal(err)
	}
	next := receiveValue(t, sub)
	if len(next) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(next))
	}

	// A write under a different group must not wake this subscription;
	// confirm the subsequent snapshot still reflects only group g1 data.
	if err := store.Set(ctx, ItemPath("g2", "i9"), "x"); err != nil {
		t.Fatal(err)
	}
	if err := store.Remove(ctx, ItemPath("g1", "i1")); err != nil {
		t.Fatal(err)
	}
	final := receiveValue(t, sub)
	if len(final) != 0 {
		t.Fatalf("expected empty tree after remove, got %d entries", len(final))
	}
}

func TestMemoryStoreCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	path := UserPath("u1")

	sub, err := store.Subscribe(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	receiveValue(t, sub)

	sub.Cancel()
	if n := store.SubscriberCount(); n != 0 {
		t.Errorf("expected 0 subscribers after cancel, got %d", n)
	}
}

func TestMemoryStoreFailureInjection(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetFailure(apperrors.New(apperrors.CodeRemote, "backend unavailable"))

	if err := store.Set(ctx, UserPath("u1"), "x"); err == nil {
		t.Fatal("expected injected failure")
	} else if apperrors.CodeOf(err) != apperrors.CodeRemote {
		t.Errorf("expected remote error code, got %s", apperrors.CodeOf(err))
	}

	store.SetFailure(nil)
	if err := store.Set(ctx, UserPath("u1"), "x"); err != nil {
		t.Fatalf("expected recovery after clearing failure, got %v", err)
	}
}

func TestMemoryStoreSimulateDisconnect(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetClock(func() int64 { return 5000 })

	if err := store.SetOnlineStatus(ctx, "u1", true); err != nil {
		t.Fatalf("set online: %v", err)
	}
	raw, err := store.Get(ctx, PresencePath("u1"))
	if err != nil {
		t.Fatal(err)
	}
	var p Presence
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatal(err)
	}
	if !p.IsOnline || p.LastActiveAt != 5000 {
		t.Fatalf("expected online at 5000, got %+v", p)
	}

	store.SetClock(func() int64 { return 9000 })
	store.SimulateDisconnect()

	raw, err = store.Get(ctx, PresencePath("u1"))
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatal(err)
	}
	if p.IsOnline {
		t.Error("expected offline after simulated disconnect")
	}
}

func TestMemoryStoreExplicitOfflineClearsDisconnectWrite(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.SetOnlineStatus(ctx, "u1", true); err != nil {
		t.Fatal(err)
	}
	if err := store.SetOnlineStatus(ctx, "u1", false); err != nil {
		t.Fatal(err)
	}

	// The registration was cleared by the clean sign-off, so a later
	// disconnect has nothing to commit.
	store.SetClock(func() int64 { return 7777 })
	store.SimulateDisconnect()

	raw, err := store.Get(ctx, PresencePath("u1"))
	if err != nil {
		t.Fatal(err)
	}
	var p Presence
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatal(err)
	}
	if p.LastActiveAt == 7777 {
		t.Error("disconnect write should not fire after explicit sign-off")
	}
}

func TestMemoryStoreFailSubscriptions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sub, err := store.Subscribe(ctx, UserPath("u1"))
	if err != nil {
		t.Fatal(err)
	}
	receiveValue(t, sub)

	store.FailSubscriptions(apperrors.New(apperrors.CodeRemote, "connection lost"))

	select {
	case _, ok := <-sub.C():
		if ok {
			t.Fatal("expected channel to close after failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
	if sub.Err() == nil {
		t.Fatal("expected terminal error")
	}
	if apperrors.CodeOf(sub.Err()) != apperrors.CodeRemote {
		t.Errorf("expected remote error code, got %s", apperrors.CodeOf(sub.Err()))
	}
}
