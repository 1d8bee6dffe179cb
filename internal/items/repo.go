package items

import (
	"context"

	"github.com/shopperapp/shopper-backend/internal/localstore"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"gorm.io/gorm"
)

const table = "shopping_items"

// Repo holds the local-side queries for shopping items. Live queries come
// back as subscriptions; one-shot reads hit the store directly.
type Repo struct {
	store *localstore.Store
}

func NewRepo(store *localstore.Store) *Repo {
	return &Repo{store: store}
}

func (r *Repo) Get(ctx context.Context, id string) (*models.ShoppingItem, error) {
	var item models.ShoppingItem
	if err := r.store.Get(ctx, table, &item, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// WatchGroup is the live local query for a group's full list, newest first.
func (r *Repo) WatchGroup(ctx context.Context, groupID string) *localstore.Subscription[models.ShoppingItem] {
	return localstore.Watch[models.ShoppingItem](ctx, r.store, table, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("group_id = ?", groupID).Order("added_at desc")
	})
}

// WatchActive narrows the live query to items not yet checked off.
func (r *Repo) WatchActive(ctx context.Context, groupID string) *localstore.Subscription[models.ShoppingItem] {
	return localstore.Watch[models.ShoppingItem](ctx, r.store, table, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("group_id = ? AND completed = ?", groupID, false).Order("added_at desc")
	})
}

// SearchByName matches item names within a group, case-insensitive substring.
func (r *Repo) SearchByName(ctx context.Context, groupID, query string) ([]models.ShoppingItem, error) {
	var rows []models.ShoppingItem
	err := r.store.DB().WithContext(ctx).
		Where("group_id = ? AND name LIKE ?", groupID, "%"+query+"%").
		Order("added_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "search shopping items")
	}
	return rows, nil
}

// DistinctNames returns the distinct item names used in a group, for
// type-ahead suggestions.
func (r *Repo) DistinctNames(ctx context.Context, groupID string) ([]string, error) {
	var names []string
	err := r.store.DB().WithContext(ctx).
		Model(&models.ShoppingItem{}).
		Where("group_id = ?", groupID).
		Distinct("name").
		Order("name asc").
		Pluck("name", &names).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list item names")
	}
	return names, nil
}

// DeleteForGroup clears a group's local list in one statement.
func (r *Repo) DeleteForGroup(ctx context.Context, groupID string) error {
	return r.store.Exec(ctx, table, func(tx *gorm.DB) error {
		return tx.Where("group_id = ?", groupID).Delete(&models.ShoppingItem{}).Error
	})
}

// upsert writes one item locally, signalling watchers.
func (r *Repo) upsert(ctx context.Context, item *models.ShoppingItem) error {
	return r.store.Upsert(ctx, table, item)
}

// delete removes one item locally.
func (r *Repo) delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, table, &models.ShoppingItem{}, id)
}
