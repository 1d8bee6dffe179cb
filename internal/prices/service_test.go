package prices

import (
	"context"
	"testing"

	"github.com/shopperapp/shopper-backend/internal/dualwrite"
	"github.com/shopperapp/shopper-backend/internal/localstore"
	"github.com/shopperapp/shopper-backend/internal/outbox"
	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/config"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	apperrors "github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/metrics"
	"github.com/shopperapp/shopper-backend/pkg/session"
	"github.com/shopspring/decimal"
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

func sess() session.Session {
	return session.Session{UserID: "u1"}
}

func price(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestRecordWritesBothSides(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	record, err := f.service.Record(ctx, sess(), RecordInput{Barcode: "123", Price: price("3.49")})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	local, err := f.repo.Get(ctx, record.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !local.Price.Equal(price("3.49")) {
		t.Errorf("unexpected local price %s", local.Price)
	}
	raw, err := f.store.Get(ctx, remote.PriceHistoryPath(record.ID))
	if err != nil {
		t.Fatal(err)
	}
	if raw == nil {
		t.Error("expected remote copy")
	}
}

func TestRecordRejectsNegativePrice(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.Record(context.Background(), sess(), RecordInput{Barcode: "123", Price: price("-1")})
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAverageSince(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	times := []int64{1000, 2000, 3000}
	values := []string{"3.00", "4.00", "6.50"}
	i := 0
	f.service.now = func() int64 { return times[i] }
	for range times {
		in := RecordInput{Barcode: "123", Price: price(values[i])}
		if _, err := f.service.Record(ctx, sess(), in); err != nil {
			t.Fatal(err)
		}
		i++
	}

	// All three qualify.
	mean, err := f.service.AverageSince(ctx, "123", 0)
	if err != nil {
		t.Fatal(err)
	}
	if mean == nil || !mean.Equal(price("4.50")) {
		t.Errorf("expected mean 4.50, got %v", mean)
	}

	// Threshold excludes the first record.
	mean, err = f.service.AverageSince(ctx, "123", 2000)
	if err != nil {
		t.Fatal(err)
	}
	if mean == nil || !mean.Equal(price("5.25")) {
		t.Errorf("expected mean 5.25, got %v", mean)
	}
}

func TestAverageSinceAbsentNotZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// No rows at all.
	mean, err := f.service.AverageSince(ctx, "123", 0)
	if err != nil {
		t.Fatal(err)
	}
	if mean != nil {
		t.Errorf("expected absent mean, got %v", mean)
	}

	// Rows exist but none qualify.
	if _, err := f.service.Record(ctx, sess(), RecordInput{Barcode: "123", Price: price("3.00")}); err != nil {
		t.Fatal(err)
	}
	future := f.service.now() + 1_000_000
	mean, err = f.service.AverageSince(ctx, "123", future)
	if err != nil {
		t.Fatal(err)
	}
	if mean != nil {
		t.Errorf("expected absent mean with no qualifying rows, got %v", mean)
	}
}

func TestLatestAndStoreQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	times := []int64{1000, 3000, 2000}
	i := 0
	f.service.now = func() int64 { v := times[i]; i++; return v }

	marketA := "Market A"
	marketB := "Market B"
	inputs := []RecordInput{
		{Barcode: "123", Price: price("3.00"), StoreName: &marketA},
		{Barcode: "123", Price: price("3.25"), StoreName: &marketB},
		{Barcode: "123", Price: price("3.10"), StoreName: &marketA},
	}
	for _, in := range inputs {
		if _, err := f.service.Record(ctx, sess(), in); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := f.repo.Latest(ctx, "123")
	if err != nil {
		t.Fatal(err)
	}
	if !latest.Price.Equal(price("3.25")) {
		t.Errorf("expected latest 3.25 (recorded at 3000), got %s", latest.Price)
	}

	atA, err := f.repo.ForStore(ctx, marketA)
	if err != nil {
		t.Fatal(err)
	}
	if len(atA) != 2 {
		t.Errorf("expected 2 records at Market A, got %d", len(atA))
	}

	mine, err := f.repo.ForUser(ctx, sess().UserID)
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 3 {
		t.Errorf("expected 3 records for the recording user, got %d", len(mine))
	}
	if !mine[0].Price.Equal(price("3.25")) {
		t.Errorf("expected user history newest-first, got %s first", mine[0].Price)
	}
}

func TestLatestNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.repo.Latest(context.Background(), "missing")
	if apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestUpdateRejectsOtherUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	record, err := f.service.Record(ctx, sess(), RecordInput{Barcode: "123", Price: price("3.00")})
	if err != nil {
		t.Fatal(err)
	}
	record.Price = price("2.50")
	err = f.service.Update(ctx, session.Session{UserID: "u2"}, record)
	if apperrors.CodeOf(err) != apperrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDeleteRemovesBothSides(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	record, err := f.service.Record(ctx, sess(), RecordInput{Barcode: "123", Price: price("3.00")})
	if err != nil {
		t.Fatal(err)
	}
	if err := f.service.Delete(ctx, sess(), record.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.repo.Get(ctx, record.ID); apperrors.CodeOf(err) != apperrors.CodeNotFound {
		t.Errorf("expected local not-found, got %v", err)
	}
	raw, err := f.store.Get(ctx, remote.PriceHistoryPath(record.ID))
	if err != nil {
		t.Fatal(err)
	}
	if raw != nil {
		t.Error("expected remote copy removed")
	}
}
