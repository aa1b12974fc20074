package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"lamprey/api/internal/auth"
	"lamprey/api/internal/authpw"
	"lamprey/api/internal/bus"
	"lamprey/api/internal/store"
)

type UserInput struct {
	DisplayName string `json:"display_name"`
}

type PasswordInput struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (s *Service) GetMe(ctx context.Context, session Session) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return store.User{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return user, nil
}

// GetUser returns a public profile, visible to the user themselves and
// to anyone sharing a room with them. Deleted users keep their id so
// old messages still attribute, but everything else is blanked.
func (s *Service) GetUser(ctx context.Context, session Session, userID string) (store.User, error) {
	if userID != session.UserID {
		shared, err := s.store.UsersShareRoom(ctx, session.UserID, userID)
		if err != nil {
			return store.User{}, err
		}
		if !shared {
			return store.User{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return store.User{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if user.DeletedAt != nil {
		return store.User{ID: user.ID, DisplayName: "Deleted user", DeletedAt: user.DeletedAt}, nil
	}
	user.Email = ""
	return user, nil
}

func (s *Service) UpdateMe(ctx context.Context, session Session, input UserInput) (store.User, error) {
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return store.User{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Display name is required", nil)
	}
	if err := s.store.UpdateUserName(ctx, session.UserID, name); err != nil {
		return store.User{}, err
	}
	user, err := s.store.GetUserByID(ctx, session.UserID)
	if err != nil {
		return store.User{}, err
	}

	s.publish(bus.User(session.UserID), "upsert", "user", user)
	return user, nil
}

func (s *Service) ChangePassword(ctx context.Context, session Session, input PasswordInput) error {
	err := s.authpw.ChangePassword(ctx, session.UserID, input.OldPassword, input.NewPassword)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authpw.ErrBadCredentials):
		return domainError(http.StatusForbidden, "FORBIDDEN", "Wrong password", nil)
	default:
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	}
}

// DeleteMe tombstones the account. Destructive, so it demands a sudo
// session obtained by re-verifying the password.
func (s *Service) DeleteMe(ctx context.Context, session Session) error {
	if !session.IsSudo() {
		return domainError(http.StatusForbidden, "SUDO_REQUIRED", "Re-verify your password first", nil)
	}
	if err := s.store.TombstoneUser(ctx, session.UserID); err != nil {
		return err
	}
	if err := s.sessions.DeleteSession(ctx, auth.HashToken(session.Token)); err != nil {
		return err
	}

	s.publish(bus.User(session.UserID), "delete", "user", map[string]string{"id": session.UserID})
	return nil
}
