package items

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopperapp/shopper-backend/internal/dualwrite"
	"github.com/shopperapp/shopper-backend/internal/localstore"
	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/logger"
	"github.com/shopperapp/shopper-backend/pkg/metrics"
	"github.com/shopperapp/shopper-backend/pkg/session"
	"github.com/shopperapp/shopper-backend/pkg/validate"
)

const entity = "shopping_item"

// Service owns the shopping-list write path and the merged live read path.
// Writes go local-first then remote; a remote failure after a successful
// local write is reported to the caller, leaves the local copy updated, and
// queues the remote document for an explicit flush.
type Service struct {
	repo    *Repo
	local   *localstore.Store
	remote  remote.Store
	writer  *dualwrite.Writer
	metrics *metrics.SyncMetrics
	logg    *logger.Logger
	now     func() int64
}

func NewService(repo *Repo, local *localstore.Store, store remote.Store, writer *dualwrite.Writer, m *metrics.SyncMetrics, logg *logger.Logger) *Service {
	return &Service{
		repo:    repo,
		local:   local,
		remote:  store,
		writer:  writer,
		metrics: m,
		logg:    logg,
		now:     func() int64 { return time.Now().UnixMilli() },
	}
}

// AddItemInput carries the caller-supplied fields of a new list entry.
type AddItemInput struct {
	Name                 string  `json:"name" validate:"required"`
	Quantity             int     `json:"quantity" validate:"min=1"`
	Barcode              *string `json:"barcode,omitempty"`
	CategoryID           *string `json:"categoryId,omitempty"`
	Notes                *string `json:"notes,omitempty"`
	Hyperlink            *string `json:"hyperlink,omitempty"`
	SuggestedFromHistory bool    `json:"suggestedFromHistory"`
}

// AddItem creates a list entry in the session's active group. On a remote
// failure the returned item is still the locally persisted record.
func (s *Service) AddItem(ctx context.Context, sess session.Session, in AddItemInput) (*models.ShoppingItem, error) {
	if err := sess.RequireGroup(); err != nil {
		return nil, err
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	item := &models.ShoppingItem{
		ID:                   uuid.NewString(),
		Name:                 in.Name,
		Quantity:             in.Quantity,
		Barcode:              in.Barcode,
		CategoryID:           in.CategoryID,
		GroupID:              sess.GroupID,
		AddedBy:              sess.UserID,
		AddedAt:              s.now(),
		Notes:                in.Notes,
		Hyperlink:            in.Hyperlink,
		SuggestedFromHistory: in.SuggestedFromHistory,
		Revision:             1,
	}
	err := s.writer.Set(ctx, entity, "add", remote.ItemPath(item.GroupID, item.ID), item,
		func(ctx context.Context) error { return s.repo.upsert(ctx, item) })
	return item, err
}

// UpdateItem replaces the full item record. The revision bump marks the
// local row as newer than any remote snapshot taken before this write.
func (s *Service) UpdateItem(ctx context.Context, sess session.Session, item *models.ShoppingItem) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	if item == nil || item.ID == "" || item.GroupID == "" {
		return errors.New(errors.CodeValidation, "item id and group are required")
	}
	if item.Name == "" {
		return errors.New(errors.CodeValidation, "item name is required")
	}

	item.Revision++
	return s.writer.Set(ctx, entity, "update", remote.ItemPath(item.GroupID, item.ID), item,
		func(ctx context.Context) error { return s.repo.upsert(ctx, item) })
}

// DeleteItem removes the entry from both sides.
func (s *Service) DeleteItem(ctx context.Context, sess session.Session, itemID string) error {
	if err := sess.RequireGroup(); err != nil {
		return err
	}
	if itemID == "" {
		return errors.New(errors.CodeValidation, "item id is required")
	}
	return s.writer.Remove(ctx, entity, "delete", remote.ItemPath(sess.GroupID, itemID),
		func(ctx context.Context) error { return s.repo.delete(ctx, itemID) })
}

// MarkItemCompleted loads the full item, applies the completion fields, and
// writes the whole record back to both sides. Completing with a sparse
// record would drop every field the record didn't carry under the remote
// side's overwrite semantics, so the full read-modify-write is deliberate.
func (s *Service) MarkItemCompleted(ctx context.Context, sess session.Session, itemID string, completed bool) (*models.ShoppingItem, error) {
	if err := sess.RequireGroup(); err != nil {
		return nil, err
	}
	item, err := s.repo.Get(ctx, itemID)
	if err != nil {
		if errors.CodeOf(err) != errors.CodeNotFound {
			return nil, err
		}
		// Not mirrored locally yet; fall back to the remote copy.
		item, err = s.remoteItem(ctx, sess.GroupID, itemID)
		if err != nil {
			return nil, err
		}
	}

	item.Completed = completed
	if completed {
		completedAt := s.now()
		item.CompletedAt = &completedAt
		item.CompletedBy = &sess.UserID
	} else {
		item.CompletedAt = nil
		item.CompletedBy = nil
	}
	item.Revision++

	err = s.writer.Set(ctx, entity, "complete", remote.ItemPath(item.GroupID, item.ID), item,
		func(ctx context.Context) error { return s.repo.upsert(ctx, item) })
	return item, err
}

func (s *Service) remoteItem(ctx context.Context, groupID, itemID string) (*models.ShoppingItem, error) {
	raw, err := s.remote.Get(ctx, remote.ItemPath(groupID, itemID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New(errors.CodeNotFound, "shopping item not found")
	}
	item, err := decodeItem(raw)
	if err != nil {
		return nil, err
	}
	return item, nil
}
