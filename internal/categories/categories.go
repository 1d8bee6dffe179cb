// Package categories manages local-only reference data for grouping items.
// Categories are seeded and edited on-device; they are not synchronized to
// the realtime backend.
package categories

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopperapp/shopper-backend/internal/localstore"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/validate"
	"gorm.io/gorm"
)

const table = "categories"

type Repo struct {
	store *localstore.Store
}

func NewRepo(store *localstore.Store) *Repo {
	return &Repo{store: store}
}

func (r *Repo) Get(ctx context.Context, id string) (*models.Category, error) {
	var category models.Category
	if err := r.store.Get(ctx, table, &category, id); err != nil {
		return nil, err
	}
	return &category, nil
}

// Active lists active categories in display order.
func (r *Repo) Active(ctx context.Context) ([]models.Category, error) {
	var rows []models.Category
	err := r.store.DB().WithContext(ctx).
		Where("is_active = ?", true).
		Order("sort_order asc, name asc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list categories")
	}
	return rows, nil
}

// Subcategories lists a category's active children in display order.
func (r *Repo) Subcategories(ctx context.Context, parentID string) ([]models.Category, error) {
	var rows []models.Category
	err := r.store.DB().WithContext(ctx).
		Where("parent_id = ? AND is_active = ?", parentID, true).
		Order("sort_order asc, name asc").
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(errors.CodeLocalStore, err, "list subcategories")
	}
	return rows, nil
}

// WatchActive is the live local query over the active category list.
func (r *Repo) WatchActive(ctx context.Context) *localstore.Subscription[models.Category] {
	return localstore.Watch[models.Category](ctx, r.store, table, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("is_active = ?", true).Order("sort_order asc, name asc")
	})
}

// UpsertInput carries the caller-editable category fields.
type UpsertInput struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description,omitempty"`
	Icon        *string `json:"icon,omitempty"`
	Color       *string `json:"color,omitempty"`
	ParentID    *string `json:"parentId,omitempty"`
	SortOrder   int     `json:"sortOrder"`
}

// Create adds a category. A parent, when given, must exist.
func (r *Repo) Create(ctx context.Context, in UpsertInput) (*models.Category, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.ParentID != nil {
		if _, err := r.Get(ctx, *in.ParentID); err != nil {
			return nil, err
		}
	}

	category := &models.Category{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		Icon:        in.Icon,
		Color:       in.Color,
		ParentID:    in.ParentID,
		SortOrder:   in.SortOrder,
		IsActive:    true,
	}
	if err := r.store.Upsert(ctx, table, category); err != nil {
		return nil, err
	}
	return category, nil
}

// SetActive toggles a category's visibility without deleting it.
func (r *Repo) SetActive(ctx context.Context, id string, active bool) error {
	if id == "" {
		return errors.New(errors.CodeValidation, "category id is required")
	}
	var affected int64
	err := r.store.Exec(ctx, table, func(tx *gorm.DB) error {
		res := tx.Model(&models.Category{}).
			Where("id = ?", id).
			Update("is_active", active)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return errors.New(errors.CodeNotFound, "category not found")
	}
	return nil
}
