package users

import (
	"context"
	"testing"
	"time"

	"github.com/shopperapp/shopper-backend/internal/dualwrite"
	"github.com/shopperapp/shopper-backend/internal/localstore"
	"github.com/shopperapp/shopper-backend/internal/outbox"
	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/config"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	apperrors "github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/metrics"
	"github.com/shopperapp/shopper-backend/pkg/session"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type fixture struct {
	service *Service
	repo    *Repo
	store   *remote.MemoryStore
}

func newFixture(t *testing.T) *fixture {
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

	local := localstore.New(conn)
	store := remote.NewMemoryStore()
	m := metrics.NewSyncMetrics(nil)
	queue := outbox.NewQueue(conn, store, config.SyncConfig{FlushBatchSize: 50}, m, nil)
	writer := dualwrite.NewWriter(store, queue, m, nil)
	repo := NewRepo(local)
	return &fixture{
		service: NewService(repo, store, writer, nil),
		repo:    repo,
		store:   store,
	}
}

func TestUpsertProfileWritesBothSides(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	user, err := f.service.UpsertProfile(ctx, session.Session{UserID: "u1"}, ProfileInput{
		Email:       "ana@example.com",
		DisplayName: "Ana",
	})
	if err != nil {
		t.Fatalf("upsert profile: %v", err)
	}

	localCopy, err := f.repo.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("local get: %v", err)
	}
	if localCopy.Email != "ana@example.com" {
		t.Errorf("unexpected local copy %+v", localCopy)
	}

	remoteCopy, err := f.service.Profile(ctx, "u1")
	if err != nil {
		t.Fatalf("remote get: %v", err)
	}
	if *remoteCopy != *user {
		t.Errorf("remote copy diverged:\nlocal  %+v\nremote %+v", *user, *remoteCopy)
	}
}

func TestUpsertProfileValidatesEmail(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.UpsertProfile(context.Background(), session.Session{UserID: "u1"}, ProfileInput{
		Email:       "not-an-email",
		DisplayName: "Ana",
	})
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpsertProfilePreservesCreatedAtAndGroup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := session.Session{UserID: "u1"}

	f.service.now = func() int64 { return 1000 }
	if _, err := f.service.UpsertProfile(ctx, sess, ProfileInput{Email: "a@example.com", DisplayName: "Ana"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.SetCurrentGroup(ctx, sess, "g1"); err != nil {
		t.Fatal(err)
	}

	f.service.now = func() int64 { return 2000 }
	updated, err := f.service.UpsertProfile(ctx, sess, ProfileInput{Email: "a@example.com", DisplayName: "Ana B"})
	if err != nil {
		t.Fatal(err)
	}
	if updated.CreatedAt != 1000 {
		t.Errorf("expected createdAt preserved, got %d", updated.CreatedAt)
	}
	if updated.LastActiveAt != 2000 {
		t.Errorf("expected lastActiveAt refreshed, got %d", updated.LastActiveAt)
	}
	if updated.CurrentGroupID == nil || *updated.CurrentGroupID != "g1" {
		t.Errorf("expected group membership preserved, got %v", updated.CurrentGroupID)
	}
}

func TestSetCurrentGroupAndMembershipQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for _, id := range []string{"u1", "u2", "u3"} {
		sess := session.Session{UserID: id}
		if _, err := f.service.UpsertProfile(ctx, sess, ProfileInput{Email: id + "@example.com", DisplayName: id}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := f.service.SetCurrentGroup(ctx, session.Session{UserID: "u1"}, "g1"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.SetCurrentGroup(ctx, session.Session{UserID: "u2"}, "g1"); err != nil {
		t.Fatal(err)
	}

	members, err := f.repo.InGroup(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}

	// Leaving the group clears the membership.
	if _, err := f.service.SetCurrentGroup(ctx, session.Session{UserID: "u2"}, ""); err != nil {
		t.Fatal(err)
	}
	members, err = f.repo.InGroup(ctx, "g1")
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 || members[0].ID != "u1" {
		t.Errorf("expected only u1 in group, got %+v", members)
	}
}

func TestSetOnlineUpdatesLocalQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	sess := session.Session{UserID: "u1"}

	if _, err := f.service.UpsertProfile(ctx, sess, ProfileInput{Email: "a@example.com", DisplayName: "Ana"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.service.SetOnline(ctx, sess, true); err != nil {
		t.Fatal(err)
	}

	online, err := f.repo.Online(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(online) != 1 || online[0].ID != "u1" {
		t.Fatalf("expected u1 online, got %+v", online)
	}

	if _, err := f.service.SetOnline(ctx, sess, false); err != nil {
		t.Fatal(err)
	}
	online, err = f.repo.Online(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(online) != 0 {
		t.Errorf("expected nobody online, got %+v", online)
	}
}

func TestProfileNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Profile(context.Background(), "missing")
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestWatchProfileSeesRemoteEdits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	stream, err := f.service.WatchProfile(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Cancel()

	// Initial emission: no document yet.
	select {
	case user := <-stream.C():
		if user != nil {
			t.Fatalf("expected nil before profile exists, got %+v", user)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for initial emission")
	}

	if _, err := f.service.UpsertProfile(ctx, session.Session{UserID: "u1"}, ProfileInput{
		Email:       "a@example.com",
		DisplayName: "Ana",
	}); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case user, ok := <-stream.C():
			if !ok {
				t.Fatalf("stream closed: %v", stream.Err())
			}
			if user != nil && user.DisplayName == "Ana" {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for profile emission")
		}
	}
}
