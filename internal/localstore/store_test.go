package localstore

import (
	"context"
	"testing"
	"time"

	"github.com/shopperapp/shopper-backend/pkg/db/models"
	pkgerrors "github.com/shopperapp/shopper-backend/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return New(conn)
}

func itemFixture(id, groupID, name string) *models.ShoppingItem {
	return &models.ShoppingItem{
		ID:      id,
		Name:    name,
		GroupID: groupID,
		AddedBy: "u1",
		AddedAt: time.Now().UnixMilli(),
	}
}

func TestUpsertGetRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := itemFixture("i1", "g1", "milk")
	if err := store.Upsert(ctx, "shopping_items", item); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	var got models.ShoppingItem
	if err := store.Get(ctx, "shopping_items", &got, "i1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != *item {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, *item)
	}
}

func TestUpsertIsIdempotentReplace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, "shopping_items", itemFixture("i1", "g1", "milk")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	replacement := itemFixture("i1", "g1", "oat milk")
	replacement.Quantity = 2
	if err := store.Upsert(ctx, "shopping_items", replacement); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}

	var got models.ShoppingItem
	if err := store.Get(ctx, "shopping_items", &got, "i1"); err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "oat milk" || got.Quantity != 2 {
		t.Fatalf("expected full replacement, got %+v", got)
	}

	var count int64
	if err := store.DB().Model(&models.ShoppingItem{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single row, got %d", count)
	}
}

func TestGetMissingReportsNotFound(t *testing.T) {
	store := newTestStore(t)

	var got models.ShoppingItem
	err := store.Get(context.Background(), "shopping_items", &got, "nope")
	if err == nil {
		t.Fatal("expected error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found code, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, "shopping_items", itemFixture("i1", "g1", "milk")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := store.Delete(ctx, "shopping_items", &models.ShoppingItem{}, "i1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	var got models.ShoppingItem
	if err := store.Get(ctx, "shopping_items", &got, "i1"); pkgerrors.As(err) == nil {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	// Deleting an absent row is not an error.
	if err := store.Delete(ctx, "shopping_items", &models.ShoppingItem{}, "i1"); err != nil {
		t.Fatalf("delete missing: %v", err)
	}
}

func TestWatchEmitsInitialAndOnChange(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Upsert(ctx, "shopping_items", itemFixture("i1", "g1", "milk")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	sub := Watch[models.ShoppingItem](ctx, store, "shopping_items", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("group_id = ?", "g1").Order("added_at DESC")
	})
	defer sub.Cancel()

	first := receive(t, sub.C())
	if len(first) != 1 || first[0].ID != "i1" {
		t.Fatalf("unexpected initial emission: %+v", first)
	}

	if err := store.Upsert(ctx, "shopping_items", itemFixture("i2", "g1", "eggs")); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	second := receiveWithLen(t, sub.C(), 2)
	ids := map[string]bool{}
	for _, item := range second {
		ids[item.ID] = true
	}
	if !ids["i1"] || !ids["i2"] {
		t.Fatalf("expected both items, got %+v", second)
	}
}

func TestWatchScopedToQuery(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	sub := Watch[models.ShoppingItem](ctx, store, "shopping_items", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("group_id = ?", "g1")
	})
	defer sub.Cancel()

	if rows := receive(t, sub.C()); len(rows) != 0 {
		t.Fatalf("expected empty initial emission, got %+v", rows)
	}

	// A write to another group still wakes the watcher, but the result set
	// stays scoped.
	if err := store.Upsert(ctx, "shopping_items", itemFixture("other", "g2", "jam")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if rows := receive(t, sub.C()); len(rows) != 0 {
		t.Fatalf("expected scoped emission to stay empty, got %+v", rows)
	}
}

func TestCancelReleasesWatcher(t *testing.T) {
	store := newTestStore(t)

	sub := Watch[models.ShoppingItem](context.Background(), store, "shopping_items", func(tx *gorm.DB) *gorm.DB {
		return tx
	})
	receive(t, sub.C())

	if got := store.notifier.watcherCount("shopping_items"); got != 1 {
		t.Fatalf("expected 1 watcher, got %d", got)
	}

	sub.Cancel()
	waitFor(t, func() bool { return store.notifier.watcherCount("shopping_items") == 0 })
	if sub.Err() != nil {
		t.Fatalf("expected clean termination, got %v", sub.Err())
	}
}

func receive[T any](t *testing.T, ch <-chan []T) []T {
	t.Helper()
	select {
	case rows, ok := <-ch:
		if !ok {
			t.Fatal("stream closed unexpectedly")
		}
		return rows
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emission")
		return nil
	}
}

// receiveWithLen skips coalesced intermediate snapshots until one with the
// wanted length arrives.
func receiveWithLen[T any](t *testing.T, ch <-chan []T, want int) []T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case rows, ok := <-ch:
			if !ok {
				t.Fatal("stream closed unexpectedly")
			}
			if len(rows) == want {
				return rows
			}
		case <-deadline:
			t.Fatalf("timed out waiting for emission of %d rows", want)
			return nil
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
