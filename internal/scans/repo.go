package scans

import (
	"context"

	"github.com/shopperapp/shopper-backend/internal/localstore"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"gorm.io/gorm"
)

const table = "scan_history"

// Repo holds the local-side scan-history queries. Scans are high-frequency
// analytics data, so every read here is local-only.
type Repo struct {
	store *localstore.Store
}

func NewRepo(store *localstore.Store) *Repo {
	return &Repo{store: store}
}

func (r *Repo) Get(ctx context.Context, id string) (*models.ScanHistory, error) {
	var scan models.ScanHistory
	if err := r.store.Get(ctx, table, &scan, id); err != nil {
		return nil, err
	}
	return &scan, nil
}

// ForUser lists a user's scans, newest first.
func (r *Repo) ForUser(ctx context.Context, userID string) ([]models.ScanHistory, error) {
	var rows []models.ScanHistory
	err := r.store.DB().WithContext(ctx).
		Where("user_id = ?", userID).
		Order("scanned_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list scans")
	}
	return rows, nil
}

// ForBarcode lists every scan of one barcode, newest first.
func (r *Repo) ForBarcode(ctx context.Context, barcode string) ([]models.ScanHistory, error) {
	var rows []models.ScanHistory
	err := r.store.DB().WithContext(ctx).
		Where("barcode = ?", barcode).
		Order("scanned_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list scans by barcode")
	}
	return rows, nil
}

// Unopened lists a user's scans not yet marked opened, oldest first so the
// longest-held item surfaces first.
func (r *Repo) Unopened(ctx context.Context, userID string) ([]models.ScanHistory, error) {
	var rows []models.ScanHistory
	err := r.store.DB().WithContext(ctx).
		Where("user_id = ? AND is_opened = ?", userID, false).
		Order("scanned_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list unopened scans")
	}
	return rows, nil
}

// ExpiringBefore lists a user's unopened scans whose expiry date falls on or
// before the given YYYY-MM-DD date. The normalized date format makes the
// lexical comparison chronological.
func (r *Repo) ExpiringBefore(ctx context.Context, userID, date string) ([]models.ScanHistory, error) {
	var rows []models.ScanHistory
	err := r.store.DB().WithContext(ctx).
		Where("user_id = ? AND is_opened = ? AND expiry_date IS NOT NULL AND expiry_date <= ?", userID, false, date).
		Order("expiry_date asc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list expiring scans")
	}
	return rows, nil
}

// WatchForUser is the live local query over a user's scan history.
func (r *Repo) WatchForUser(ctx context.Context, userID string) *localstore.Subscription[models.ScanHistory] {
	return localstore.Watch[models.ScanHistory](ctx, r.store, table, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("user_id = ?", userID).Order("scanned_at desc")
	})
}

func (r *Repo) upsert(ctx context.Context, scan *models.ScanHistory) error {
	return r.store.Upsert(ctx, table, scan)
}

func (r *Repo) delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, table, &models.ScanHistory{}, id)
}
