// Package localstore is the adapter over the on-device relational store:
// keyed CRUD plus live-updating query subscriptions. Every write notifies
// active watchers of the affected table; watchers re-run their query and
// re-emit. Adapter failures fail the call synchronously; callers decide
// whether to proceed with a partial write.
package localstore

import (
	"context"

	"github.com/shopperapp/shopper-backend/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps the GORM connection with change notification.
type Store struct {
	db       *gorm.DB
	notifier *Notifier
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, notifier: NewNotifier()}
}

// DB exposes the underlying connection for read-only queries that need no
// change notification.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Notifier exposes the change-signal fanout, letting collaborators (the
// stream merger) wake watchers after bulk writes.
func (s *Store) Notifier() *Notifier {
	return s.notifier
}

// Upsert inserts or fully replaces the entity by primary key. Idempotent:
// re-upserting an identical entity is a no-op apart from the change signal.
func (s *Store) Upsert(ctx context.Context, table string, entity any) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(entity).Error
	if err != nil {
		return errors.Wrap(errors.CodeLocalStore, err, "upsert "+table)
	}
	s.notifier.Notify(table)
	return nil
}

// Get loads the entity with the given primary key into dest. Returns a
// NotFound-coded error when no row matches.
func (s *Store) Get(ctx context.Context, table string, dest any, key any) error {
	err := s.db.WithContext(ctx).First(dest, "id = ?", key).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.Wrap(errors.CodeNotFound, err, table+" not found")
		}
		return errors.Wrap(errors.CodeLocalStore, err, "get "+table)
	}
	return nil
}

// Delete removes the row with the given primary key. Deleting a missing row
// is not an error.
func (s *Store) Delete(ctx context.Context, table string, model any, key any) error {
	err := s.db.WithContext(ctx).Where("id = ?", key).Delete(model).Error
	if err != nil {
		return errors.Wrap(errors.CodeLocalStore, err, "delete "+table)
	}
	s.notifier.Notify(table)
	return nil
}

// Exec runs an arbitrary mutation against the table and signals watchers on
// success. Used for partial-column updates (completion flags, counters).
func (s *Store) Exec(ctx context.Context, table string, fn func(tx *gorm.DB) error) error {
	if err := fn(s.db.WithContext(ctx)); err != nil {
		return errors.Wrap(errors.CodeLocalStore, err, "exec "+table)
	}
	s.notifier.Notify(table)
	return nil
}
