package groups

import (
	"context"

	"github.com/shopperapp/shopper-backend/internal/localstore"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"gorm.io/gorm"
)

const table = "shopping_groups"

// Repo holds the local-side group queries.
type Repo struct {
	store *localstore.Store
}

func NewRepo(store *localstore.Store) *Repo {
	return &Repo{store: store}
}

func (r *Repo) Get(ctx context.Context, id string) (*models.ShoppingGroup, error) {
	var group models.ShoppingGroup
	if err := r.store.Get(ctx, table, &group, id); err != nil {
		return nil, err
	}
	return &group, nil
}

// ForUser lists active groups the user is a member of. Membership lives in
// the JSON member list, so the filter runs over the decoded rows.
func (r *Repo) ForUser(ctx context.Context, userID string) ([]models.ShoppingGroup, error) {
	var rows []models.ShoppingGroup
	err := r.store.DB().WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list groups")
	}
	out := rows[:0]
	for _, group := range rows {
		if group.MemberIDs.Contains(userID) {
			out = append(out, group)
		}
	}
	return out, nil
}

// CreatedBy lists groups a user created, active or not.
func (r *Repo) CreatedBy(ctx context.Context, userID string) ([]models.ShoppingGroup, error) {
	var rows []models.ShoppingGroup
	err := r.store.DB().WithContext(ctx).
		Where("created_by = ?", userID).
		Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list created groups")
	}
	return rows, nil
}

// WatchForUser is the live local query over a user's group memberships.
func (r *Repo) WatchForUser(ctx context.Context, userID string) *localstore.Subscription[models.ShoppingGroup] {
	return localstore.Watch[models.ShoppingGroup](ctx, r.store, table, func(tx *gorm.DB) *gorm.DB {
		// SQLite stores the member list as a JSON text column; the LIKE
		// narrows candidate rows, exact membership is re-checked by readers.
		return tx.Where("is_active = ? AND member_ids LIKE ?", true, `%"`+userID+`"%`).
			Order("created_at desc")
	})
}

func (r *Repo) upsert(ctx context.Context, group *models.ShoppingGroup) error {
	return r.store.Upsert(ctx, table, group)
}
