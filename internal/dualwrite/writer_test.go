package dualwrite

import (
	"context"
	"testing"

	"github.com/shopperapp/shopper-backend/internal/outbox"
	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/config"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	apperrors "github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/metrics"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newWriter(t *testing.T, store remote.Store) (*Writer, *outbox.Queue) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.PendingWrite{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	m := metrics.NewSyncMetrics(nil)
	queue := outbox.NewQueue(conn, store, config.SyncConfig{FlushBatchSize: 50}, m, nil)
	return NewWriter(store, queue, m, nil), queue
}

func TestSetWritesBothSides(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	writer, _ := newWriter(t, store)

	localCalled := false
	err := writer.Set(ctx, "user", "upsert", remote.UserPath("u1"), map[string]string{"id": "u1"},
		func(context.Context) error {
			localCalled = true
			return nil
		})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if !localCalled {
		t.Error("expected local write to run")
	}
	raw, err := store.Get(ctx, remote.UserPath("u1"))
	if err != nil {
		t.Fatal(err)
	}
	if raw == nil {
		t.Error("expected remote document written")
	}
}

func TestLocalFailureSkipsRemote(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	writer, queue := newWriter(t, store)

	boom := apperrors.New(apperrors.CodeLocalStore, "disk full")
	err := writer.Set(ctx, "user", "upsert", remote.UserPath("u1"), "x",
		func(context.Context) error { return boom })
	if err == nil {
		t.Fatal("expected local failure to surface")
	}
	if apperrors.CodeOf(err) != apperrors.CodeLocalStore {
		t.Errorf("expected local store code, got %s", apperrors.CodeOf(err))
	}

	raw, getErr := store.Get(ctx, remote.UserPath("u1"))
	if getErr != nil {
		t.Fatal(getErr)
	}
	if raw != nil {
		t.Error("remote must not be written after a local failure")
	}
	count, countErr := queue.Count(ctx)
	if countErr != nil {
		t.Fatal(countErr)
	}
	if count != 0 {
		t.Error("local failures must not queue a pending write")
	}
}

func TestRemoteFailureQueuesPendingWrite(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	writer, queue := newWriter(t, store)

	store.SetFailure(apperrors.New(apperrors.CodeRemote, "backend unavailable"))
	localCalled := false
	err := writer.Set(ctx, "user", "upsert", remote.UserPath("u1"), map[string]string{"id": "u1"},
		func(context.Context) error {
			localCalled = true
			return nil
		})
	if err == nil {
		t.Fatal("expected remote failure to surface")
	}
	if !localCalled {
		t.Error("local write must run before the remote attempt")
	}

	rows, loadErr := queue.Pending(ctx)
	if loadErr != nil {
		t.Fatal(loadErr)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 pending write, got %d", len(rows))
	}
	if rows[0].Path != remote.UserPath("u1") {
		t.Errorf("unexpected pending path %q", rows[0].Path)
	}

	// Explicit flush after recovery reconciles the remote side.
	store.SetFailure(nil)
	if _, err := queue.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	raw, getErr := store.Get(ctx, remote.UserPath("u1"))
	if getErr != nil {
		t.Fatal(getErr)
	}
	if raw == nil {
		t.Error("expected remote document after flush")
	}
}

func TestRemoveQueuesPendingRemove(t *testing.T) {
	ctx := context.Background()
	store := remote.NewMemoryStore()
	writer, queue := newWriter(t, store)

	if err := store.Set(ctx, remote.ItemPath("g1", "i1"), "doc"); err != nil {
		t.Fatal(err)
	}
	store.SetFailure(apperrors.New(apperrors.CodeRemote, "backend unavailable"))
	err := writer.Remove(ctx, "shopping_item", "delete", remote.ItemPath("g1", "i1"),
		func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected remote failure")
	}

	store.SetFailure(nil)
	if _, err := queue.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	raw, getErr := store.Get(ctx, remote.ItemPath("g1", "i1"))
	if getErr != nil {
		t.Fatal(getErr)
	}
	if raw != nil {
		t.Error("expected remote document removed after flush")
	}
}
