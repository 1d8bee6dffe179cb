package groups

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopperapp/shopper-backend/internal/dualwrite"
	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	dbtypes "github.com/shopperapp/shopper-backend/pkg/db/types"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/logger"
	"github.com/shopperapp/shopper-backend/pkg/session"
	"github.com/shopperapp/shopper-backend/pkg/validate"
)

const entity = "shopping_group"

// Service owns group lifecycle and membership sync. Groups are
// collaboratively edited, so the remote copy under groups/{id} is
// authoritative; the local mirror serves offline membership queries.
type Service struct {
	repo   *Repo
	remote remote.Store
	writer *dualwrite.Writer
	logg   *logger.Logger
	now    func() int64
}

func NewService(repo *Repo, store remote.Store, writer *dualwrite.Writer, logg *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		remote: store,
		writer: writer,
		logg:   logg,
		now:    func() int64 { return time.Now().UnixMilli() },
	}
}

// CreateGroupInput carries the caller-supplied fields of a new group.
type CreateGroupInput struct {
	Name        string  `json:"name" validate:"required"`
	Description *string `json:"description,omitempty"`
}

// CreateGroup creates a group with the session user as creator and first
// member.
func (s *Service) CreateGroup(ctx context.Context, sess session.Session, in CreateGroupInput) (*models.ShoppingGroup, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	group := &models.ShoppingGroup{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Description: in.Description,
		CreatedBy:   sess.UserID,
		CreatedAt:   s.now(),
		MemberIDs:   dbtypes.StringList{sess.UserID},
		IsActive:    true,
	}
	err := s.writer.Set(ctx, entity, "create", remote.GroupPath(group.ID), group,
		func(ctx context.Context) error { return s.repo.upsert(ctx, group) })
	return group, err
}

// Group reads the authoritative remote copy of a group.
func (s *Service) Group(ctx context.Context, groupID string) (*models.ShoppingGroup, error) {
	if groupID == "" {
		return nil, errors.New(errors.CodeValidation, "group id is required")
	}
	raw, err := s.remote.Get(ctx, remote.GroupPath(groupID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New(errors.CodeNotFound, "group not found")
	}
	return decodeGroup(raw)
}

// AddMember appends a user to the member list, keeping join order.
// Idempotent: re-adding an existing member is a no-op.
func (s *Service) AddMember(ctx context.Context, sess session.Session, groupID, userID string) (*models.ShoppingGroup, error) {
	return s.updateMembers(ctx, sess, groupID, func(members dbtypes.StringList) dbtypes.StringList {
		if members.Contains(userID) {
			return members
		}
		return append(members, userID)
	})
}

// RemoveMember drops a user from the member list.
func (s *Service) RemoveMember(ctx context.Context, sess session.Session, groupID, userID string) (*models.ShoppingGroup, error) {
	return s.updateMembers(ctx, sess, groupID, func(members dbtypes.StringList) dbtypes.StringList {
		out := members[:0]
		for _, id := range members {
			if id != userID {
				out = append(out, id)
			}
		}
		return out
	})
}

func (s *Service) updateMembers(ctx context.Context, sess session.Session, groupID string, apply func(dbtypes.StringList) dbtypes.StringList) (*models.ShoppingGroup, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	group, err := s.load(ctx, groupID)
	if err != nil {
		return nil, err
	}

	group.MemberIDs = apply(group.MemberIDs)
	err = s.writer.Set(ctx, entity, "members", remote.GroupPath(group.ID), group,
		func(ctx context.Context) error { return s.repo.upsert(ctx, group) })
	return group, err
}

// Deactivate soft-deletes the group. Only the creator may do so.
func (s *Service) Deactivate(ctx context.Context, sess session.Session, groupID string) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	group, err := s.load(ctx, groupID)
	if err != nil {
		return err
	}
	if group.CreatedBy != sess.UserID {
		return errors.New(errors.CodeValidation, "only the group creator can deactivate it")
	}

	group.IsActive = false
	return s.writer.Set(ctx, entity, "deactivate", remote.GroupPath(group.ID), group,
		func(ctx context.Context) error { return s.repo.upsert(ctx, group) })
}

// load fetches the full group record, local first, remote fallback.
func (s *Service) load(ctx context.Context, groupID string) (*models.ShoppingGroup, error) {
	group, err := s.repo.Get(ctx, groupID)
	if err == nil {
		return group, nil
	}
	if errors.CodeOf(err) != errors.CodeNotFound {
		return nil, err
	}
	return s.Group(ctx, groupID)
}

func decodeGroup(raw []byte) (*models.ShoppingGroup, error) {
	var group models.ShoppingGroup
	if err := json.Unmarshal(raw, &group); err != nil {
		return nil, errors.Wrap(errors.CodeRemote, err, "decode group")
	}
	return &group, nil
}
