package app

import (
	"context"
	"net/http"
	"strings"

	"lamprey/api/internal/bus"
	"lamprey/api/internal/pagination"
	"lamprey/api/internal/perm"
	"lamprey/api/internal/store"
	"lamprey/api/internal/util"
)

type RoleInput struct {
	Name             string   `json:"name"`
	Permissions      []string `json:"permissions"`
	IsDefault        *bool    `json:"is_default"`
	IsSelfApplicable *bool    `json:"is_self_applicable"`
	IsMentionable    *bool    `json:"is_mentionable"`
}

func validatePermissions(perms []string) error {
	for _, p := range perms {
		if !perm.Assignable(perm.Permission(p)) {
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown permission", map[string]any{
				"permission": p,
				"known":      perm.AssignableNames(),
			})
		}
	}
	return nil
}

func (s *Service) CreateRole(ctx context.Context, session Session, roomID string, input RoleInput) (store.Role, error) {
	if _, err := s.requireRoom(ctx, session, roomID, perm.RoleManage); err != nil {
		return store.Role{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Role{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Role name is required", nil)
	}
	if err := validatePermissions(input.Permissions); err != nil {
		return store.Role{}, err
	}

	role := store.Role{
		ID:          util.NewID(),
		RoomID:      roomID,
		Name:        name,
		Permissions: input.Permissions,
	}
	if input.IsDefault != nil {
		role.IsDefault = *input.IsDefault
	}
	if input.IsSelfApplicable != nil {
		role.IsSelfApplicable = *input.IsSelfApplicable
	}
	if input.IsMentionable != nil {
		role.IsMentionable = *input.IsMentionable
	}
	if err := s.store.InsertRole(ctx, role); err != nil {
		return store.Role{}, err
	}

	s.publish(bus.Room(roomID), "upsert", "role", role)
	return role, nil
}

func (s *Service) GetRole(ctx context.Context, session Session, roomID, roleID string) (store.Role, error) {
	if _, err := s.requireRoom(ctx, session, roomID, ""); err != nil {
		return store.Role{}, err
	}
	role, err := s.store.GetRole(ctx, roomID, roleID)
	if err != nil {
		return store.Role{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return role, nil
}

// UpdateRole applies a partial update. Changing a role's permission list
// changes what every holder resolves to on their next request.
func (s *Service) UpdateRole(ctx context.Context, session Session, roomID, roleID string, input RoleInput) (store.Role, error) {
	if _, err := s.requireRoom(ctx, session, roomID, perm.RoleManage); err != nil {
		return store.Role{}, err
	}
	role, err := s.store.GetRole(ctx, roomID, roleID)
	if err != nil {
		return store.Role{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		role.Name = name
	}
	if input.Permissions != nil {
		if err := validatePermissions(input.Permissions); err != nil {
			return store.Role{}, err
		}
		role.Permissions = input.Permissions
	}
	if input.IsDefault != nil {
		role.IsDefault = *input.IsDefault
	}
	if input.IsSelfApplicable != nil {
		role.IsSelfApplicable = *input.IsSelfApplicable
	}
	if input.IsMentionable != nil {
		role.IsMentionable = *input.IsMentionable
	}

	updated, err := s.store.UpdateRole(ctx, role)
	if err != nil {
		return store.Role{}, err
	}

	s.publish(bus.Room(roomID), "upsert", "role", updated)
	return updated, nil
}

// DeleteRole removes the role and every member attachment with it.
func (s *Service) DeleteRole(ctx context.Context, session Session, roomID, roleID string) error {
	if _, err := s.requireRoom(ctx, session, roomID, perm.RoleManage); err != nil {
		return err
	}
	if _, err := s.store.GetRole(ctx, roomID, roleID); err != nil {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if err := s.store.DeleteRole(ctx, roomID, roleID); err != nil {
		return err
	}
	s.publish(bus.Room(roomID), "delete", "role", map[string]string{"id": roleID, "room_id": roomID})
	return nil
}

func (s *Service) ListRoles(ctx context.Context, session Session, roomID string, cursor pagination.Cursor) (pagination.Page[store.Role], error) {
	if _, err := s.requireRoom(ctx, session, roomID, ""); err != nil {
		return pagination.Page[store.Role]{}, err
	}
	w := cursor.Window()
	items, total, err := s.store.ListRoomRoles(ctx, roomID, w)
	if err != nil {
		return pagination.Page[store.Role]{}, err
	}
	return pagination.BuildPage(items, total, w), nil
}
