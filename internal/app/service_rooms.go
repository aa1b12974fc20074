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

type RoomInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateRoom creates a room with an Admin role and a default everyone
// role, and makes the creator its first member.
func (s *Service) CreateRoom(ctx context.Context, session Session, input RoomInput) (store.Room, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Room{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	room := store.Room{
		ID:          util.NewID(),
		Name:        name,
		Description: input.Description,
	}
	if err := s.store.InsertRoom(ctx, room); err != nil {
		return store.Room{}, err
	}

	adminRole := store.Role{
		ID:          util.NewID(),
		RoomID:      room.ID,
		Name:        "Admin",
		Permissions: []string{string(perm.Admin)},
	}
	if err := s.store.InsertRole(ctx, adminRole); err != nil {
		return store.Room{}, err
	}

	everyoneRole := store.Role{
		ID:     util.NewID(),
		RoomID: room.ID,
		Name:   "everyone",
		Permissions: []string{
			string(perm.MessageCreate),
			string(perm.MessageFilesEmbed),
			string(perm.ThreadCreate),
			string(perm.InviteCreate),
		},
		IsDefault: true,
	}
	if err := s.store.InsertRole(ctx, everyoneRole); err != nil {
		return store.Room{}, err
	}

	member := store.Member{
		RoomID: room.ID,
		UserID: session.UserID,
		State:  store.MemberJoin,
	}
	if err := s.store.UpsertMember(ctx, member); err != nil {
		return store.Room{}, err
	}
	if err := s.store.AddMemberRole(ctx, room.ID, session.UserID, adminRole.ID); err != nil {
		return store.Room{}, err
	}

	s.publish(bus.User(session.UserID), "upsert", "room", room)
	return room, nil
}

func (s *Service) GetRoom(ctx context.Context, session Session, roomID string) (store.Room, error) {
	if _, err := s.requireRoom(ctx, session, roomID, ""); err != nil {
		return store.Room{}, err
	}
	return s.store.GetRoom(ctx, roomID)
}

func (s *Service) UpdateRoom(ctx context.Context, session Session, roomID string, input RoomInput) (store.Room, error) {
	if _, err := s.requireRoom(ctx, session, roomID, perm.RoomManage); err != nil {
		return store.Room{}, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Room{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	room, err := s.store.UpdateRoom(ctx, store.Room{ID: roomID, Name: name, Description: input.Description})
	if err != nil {
		return store.Room{}, err
	}

	s.publish(bus.Room(roomID), "upsert", "room", room)
	return room, nil
}

// DeleteRoom requires the Admin sentinel, not just RoomManage.
func (s *Service) DeleteRoom(ctx context.Context, session Session, roomID string) error {
	set, err := s.requireRoom(ctx, session, roomID, "")
	if err != nil {
		return err
	}
	if !set.IsAdmin() {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	if err := s.store.DeleteRoom(ctx, roomID); err != nil {
		return err
	}

	s.publish(bus.Room(roomID), "delete", "room", map[string]any{"id": roomID})
	return nil
}

// ListRooms pages over the caller's joined rooms.
func (s *Service) ListRooms(ctx context.Context, session Session, cursor pagination.Cursor) (pagination.Page[store.Room], error) {
	w := cursor.Window()
	items, total, err := s.store.ListUserRooms(ctx, session.UserID, w)
	if err != nil {
		return pagination.Page[store.Room]{}, err
	}
	return pagination.BuildPage(items, total, w), nil
}
