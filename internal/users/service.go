package users

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopperapp/shopper-backend/internal/dualwrite"
	"github.com/shopperapp/shopper-backend/internal/remote"
	"github.com/shopperapp/shopper-backend/pkg/db/models"
	"github.com/shopperapp/shopper-backend/pkg/errors"
	"github.com/shopperapp/shopper-backend/pkg/logger"
	"github.com/shopperapp/shopper-backend/pkg/session"
	"github.com/shopperapp/shopper-backend/pkg/validate"
)

const entity = "user"

// Service owns the user profile sync. The remote copy under users/{id} is
// the authoritative profile; the local mirror serves offline reads and the
// membership queries in Repo.
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

// ProfileInput carries the caller-editable profile fields.
type ProfileInput struct {
	Email       string  `json:"email" validate:"required,email"`
	DisplayName string  `json:"displayName" validate:"required"`
	PhotoURL    *string `json:"photoUrl,omitempty"`
}

// UpsertProfile creates or replaces the session user's profile on both
// sides. CreatedAt survives from an existing local record.
func (s *Service) UpsertProfile(ctx context.Context, sess session.Session, in ProfileInput) (*models.User, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	now := s.now()
	user := &models.User{
		ID:           sess.UserID,
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		PhotoURL:     in.PhotoURL,
		CreatedAt:    now,
		LastActiveAt: now,
	}
	if existing, err := s.repo.Get(ctx, sess.UserID); err == nil {
		user.CreatedAt = existing.CreatedAt
		user.CurrentGroupID = existing.CurrentGroupID
		user.IsOnline = existing.IsOnline
	}

	err := s.writer.Set(ctx, entity, "upsert", remote.UserPath(user.ID), user,
		func(ctx context.Context) error { return s.repo.upsert(ctx, user) })
	return user, err
}

// Profile reads the authoritative remote copy of a user.
func (s *Service) Profile(ctx context.Context, userID string) (*models.User, error) {
	if userID == "" {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	raw, err := s.remote.Get(ctx, remote.UserPath(userID))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New(errors.CodeNotFound, "user not found")
	}
	return decodeUser(raw)
}

// SetCurrentGroup switches the session user's active group (empty groupID
// leaves every group). Read-modify-write of the full profile.
func (s *Service) SetCurrentGroup(ctx context.Context, sess session.Session, groupID string) (*models.User, error) {
	user, err := s.load(ctx, sess)
	if err != nil {
		return nil, err
	}

	if groupID == "" {
		user.CurrentGroupID = nil
	} else {
		user.CurrentGroupID = &groupID
	}
	user.LastActiveAt = s.now()

	err = s.writer.Set(ctx, entity, "set_group", remote.UserPath(user.ID), user,
		func(ctx context.Context) error { return s.repo.upsert(ctx, user) })
	return user, err
}

// SetOnline updates the profile's online flag and activity timestamp. The
// disconnect-safe signal lives in the presence tracker; this keeps the
// profile document in step for clients that only read users/{id}.
func (s *Service) SetOnline(ctx context.Context, sess session.Session, online bool) (*models.User, error) {
	user, err := s.load(ctx, sess)
	if err != nil {
		return nil, err
	}

	user.IsOnline = online
	user.LastActiveAt = s.now()

	err = s.writer.Set(ctx, entity, "online", remote.UserPath(user.ID), user,
		func(ctx context.Context) error { return s.repo.upsert(ctx, user) })
	return user, err
}

// WatchProfile is a live remote subscription to one user's profile. A nil
// emission means the profile does not exist (yet).
func (s *Service) WatchProfile(ctx context.Context, userID string) (*ProfileStream, error) {
	if userID == "" {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	sub, err := s.remote.Subscribe(ctx, remote.UserPath(userID))
	if err != nil {
		return nil, err
	}
	return newProfileStream(sub), nil
}

// load fetches the session user's full record, local first, remote fallback.
func (s *Service) load(ctx context.Context, sess session.Session) (*models.User, error) {
	if err := sess.Validate(); err != nil {
		return nil, err
	}
	user, err := s.repo.Get(ctx, sess.UserID)
	if err == nil {
		return user, nil
	}
	if errors.CodeOf(err) != errors.CodeNotFound {
		return nil, err
	}
	return s.Profile(ctx, sess.UserID)
}

func decodeUser(raw []byte) (*models.User, error) {
	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, errors.Wrap(errors.CodeRemote, err, "decode user")
	}
	return &user, nil
}
