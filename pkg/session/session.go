// Package session carries the identity a repository call acts on behalf of.
// Callers pass a Session explicitly into every write; there is no ambient
// current-user global.
package session

import (
	"github.com/shopperapp/shopper-backend/pkg/errors"
)

// Session identifies the signed-in user and, when set, their active group.
type Session struct {
	UserID  string
	GroupID string
}

// Validate checks the user identity is present.
func (s Session) Validate() error {
	if s.UserID == "" {
		return errors.New(errors.CodeValidation, "session has no user")
	}
	return nil
}

// RequireGroup checks the session has an active group, which group-scoped
// operations need.
func (s Session) RequireGroup() error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.GroupID == "" {
		return errors.New(errors.CodeValidation, "no active group selected")
	}
	return nil
}
