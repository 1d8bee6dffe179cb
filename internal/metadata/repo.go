package metadata

import (
	"context"

	"github.com/shopperapp/shopper-backend/internal/localstore"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"gorm.io/gorm"
)

const table = "item_metadata"

// Repo holds the local-side product-knowledge queries. The table is keyed
// by barcode and accumulates: records are never deleted.
type Repo struct {
	store *localstore.Store
}

func NewRepo(store *localstore.Store) *Repo {
	return &Repo{store: store}
}

func (r *Repo) Get(ctx context.Context, barcode string) (*models.ItemMetadata, error) {
	var meta models.ItemMetadata
	err := r.store.DB().WithContext(ctx).First(&meta, "barcode = ?", barcode).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Wrap(errors.CodeNotFound, err, "item metadata not found")
		}
		return nil, errors.Wrap(errors.CodeLocalStore, err, "get item metadata")
	}
	return &meta, nil
}

// SearchByName matches product names, most-scanned first.
func (r *Repo) SearchByName(ctx context.Context, query string) ([]models.ItemMetadata, error) {
	var rows []models.ItemMetadata
	err := r.store.DB().WithContext(ctx).
		Where("item_name LIKE ?", "%"+query+"%").
		Order("scan_count desc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "search item metadata")
	}
	return rows, nil
}

// ByCategory lists known products in a category, alphabetically.
func (r *Repo) ByCategory(ctx context.Context, categoryID string) ([]models.ItemMetadata, error) {
	var rows []models.ItemMetadata
	err := r.store.DB().WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("item_name asc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list item metadata by category")
	}
	return rows, nil
}

// MostScanned returns the top products by scan count.
func (r *Repo) MostScanned(ctx context.Context, limit int) ([]models.ItemMetadata, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []models.ItemMetadata
	err := r.store.DB().WithContext(ctx).
		Order("scan_count desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list most scanned")
	}
	return rows, nil
}

func (r *Repo) upsert(ctx context.Context, meta *models.ItemMetadata) error {
	return r.store.Upsert(ctx, table, meta)
}

// incrementScanCount bumps the counter in a single statement, atomic
// against concurrent local writers.
func (r *Repo) incrementScanCount(ctx context.Context, barcode string, now int64) (int64, error) {
	var affected int64
	err := r.store.Exec(ctx, table, func(tx *gorm.DB) error {
		res := tx.Model(&models.ItemMetadata{}).
			Where("barcode = ?", barcode).
			Updates(map[string]any{
				"scan_count":   gorm.Expr("scan_count + 1"),
				"last_updated": now,
			})
		affected = res.RowsAffected
		return res.Error
	})
	return affected, err
}
