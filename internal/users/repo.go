package users

import (
	"context"

	"github.com/shopperapp/shopper-backend/internal/localstore"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"gorm.io/gorm"
)

const table = "users"

// Repo holds the local-side user queries. Profile truth lives on the remote
// side; these reads serve offline access and membership lookups.
type Repo struct {
	store *localstore.Store
}

func NewRepo(store *localstore.Store) *Repo {
	return &Repo{store: store}
}

func (r *Repo) Get(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.store.Get(ctx, table, &user, id); err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *Repo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.store.DB().WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.Wrap(errors.CodeNotFound, err, "user not found")
		}
		return nil, errors.Wrap(errors.CodeLocalStore, err, "get user by email")
	}
	return &user, nil
}

// InGroup lists the local mirror of users whose active group matches.
func (r *Repo) InGroup(ctx context.Context, groupID string) ([]models.User, error) {
	var rows []models.User
	err := r.store.DB().WithContext(ctx).
		Where("current_group_id = ?", groupID).
		Order("display_name asc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list users in group")
	}
	return rows, nil
}

// Online lists users currently flagged online in the local mirror.
func (r *Repo) Online(ctx context.Context) ([]models.User, error) {
	var rows []models.User
	err := r.store.DB().WithContext(ctx).
		Where("is_online = ?", true).
		Order("last_active_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list online users")
	}
	return rows, nil
}

// WatchInGroup is the live local query over a group's member mirror.
func (r *Repo) WatchInGroup(ctx context.Context, groupID string) *localstore.Subscription[models.User] {
	return localstore.Watch[models.User](ctx, r.store, table, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("current_group_id = ?", groupID).Order("display_name asc")
	})
}

func (r *Repo) upsert(ctx context.Context, user *models.User) error {
	return r.store.Upsert(ctx, table, user)
}
