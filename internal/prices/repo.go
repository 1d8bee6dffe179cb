package prices

import (
	"context"

	"github.com/shopperapp/shopper-backend/internal/localstore"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const table = "price_history"

// Repo holds the local-side price queries. Price analytics are computed
// from whatever has synced locally; there is no remote aggregate.
type Repo struct {
	store *localstore.Store
}

func NewRepo(store *localstore.Store) *Repo {
	return &Repo{store: store}
}

func (r *Repo) Get(ctx context.Context, id string) (*models.PriceHistory, error) {
	var record models.PriceHistory
	if err := r.store.Get(ctx, table, &record, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// ForBarcode lists a barcode's observed prices, newest first.
func (r *Repo) ForBarcode(ctx context.Context, barcode string) ([]models.PriceHistory, error) {
	var rows []models.PriceHistory
	err := r.store.DB().WithContext(ctx).
		Where("barcode = ?", barcode).
		Order("recorded_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list prices")
	}
	return rows, nil
}

// ForUser lists prices one user recorded, newest first.
func (r *Repo) ForUser(ctx context.Context, userID string) ([]models.PriceHistory, error) {
	var rows []models.PriceHistory
	err := r.store.DB().WithContext(ctx).
		Where("user_id = ?", userID).
		Order("recorded_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list prices by user")
	}
	return rows, nil
}

// ForStore lists prices observed at one store, newest first.
func (r *Repo) ForStore(ctx context.Context, storeName string) ([]models.PriceHistory, error) {
	var rows []models.PriceHistory
	err := r.store.DB().WithContext(ctx).
		Where("store_name = ?", storeName).
		Order("recorded_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list prices by store")
	}
	return rows, nil
}

// Latest returns the most recent price record for a barcode.
func (r *Repo) Latest(ctx context.Context, barcode string) (*models.PriceHistory, error) {
	var record models.PriceHistory
	err := r.store.DB().WithContext(ctx).
		Where("barcode = ?", barcode).
		Order("recorded_at desc").
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Wrap(errors.CodeNotFound, err, "no price recorded")
		}
		return nil, errors.Wrap(errors.CodeLocalStore, err, "latest price")
	}
	return &record, nil
}

// AverageSince computes the mean of prices recorded at or after the
// threshold. Returns nil, not zero, when no rows qualify.
func (r *Repo) AverageSince(ctx context.Context, barcode string, since int64) (*decimal.Decimal, error) {
	var rows []models.PriceHistory
	err := r.store.DB().WithContext(ctx).
		Where("barcode = ? AND recorded_at >= ?", barcode, since).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "average price")
	}
	if len(rows) == 0 {
		return nil, nil
	}

	sum := decimal.Zero
	for _, row := range rows {
		sum = sum.Add(row.Price)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(rows))))
	return &mean, nil
}

// WatchForBarcode is the live local query over a barcode's price history.
func (r *Repo) WatchForBarcode(ctx context.Context, barcode string) *localstore.Subscription[models.PriceHistory] {
	return localstore.Watch[models.PriceHistory](ctx, r.store, table, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("barcode = ?", barcode).Order("recorded_at desc")
	})
}

// WatchForUser is the live local query over one user's recorded prices.
func (r *Repo) WatchForUser(ctx context.Context, userID string) *localstore.Subscription[models.PriceHistory] {
	return localstore.Watch[models.PriceHistory](ctx, r.store, table, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("user_id = ?", userID).Order("recorded_at desc")
	})
}

func (r *Repo) upsert(ctx context.Context, record *models.PriceHistory) error {
	return r.store.Upsert(ctx, table, record)
}

func (r *Repo) delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, table, &models.PriceHistory{}, id)
}
