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

type ThreadInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsClosed    *bool  `json:"is_closed,omitempty"`
	IsLocked    *bool  `json:"is_locked,omitempty"`
	IsPinned    *bool  `json:"is_pinned,omitempty"`
}

func (s *Service) CreateThread(ctx context.Context, session Session, roomID string, input ThreadInput) (store.Thread, error) {
	if _, err := s.requireRoom(ctx, session, roomID, perm.ThreadCreate); err != nil {
		return store.Thread{}, err
	}

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Thread{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}

	thread := store.Thread{
		ID:          util.NewID(),
		RoomID:      roomID,
		CreatorID:   session.UserID,
		Name:        name,
		Description: input.Description,
	}
	if err := s.store.InsertThread(ctx, thread); err != nil {
		return store.Thread{}, err
	}

	s.publish(bus.Room(roomID), "upsert", "thread", thread)
	return thread, nil
}

// threadForViewer loads a thread after checking the caller can see its
// room. The same not-found shape covers missing threads and rooms the
// caller is not in.
func (s *Service) threadForViewer(ctx context.Context, session Session, threadID string) (store.Thread, perm.Set, error) {
	thread, err := s.store.GetThread(ctx, threadID)
	if err != nil {
		return store.Thread{}, perm.Empty(), domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	set, err := s.requireRoom(ctx, session, thread.RoomID, "")
	if err != nil {
		return store.Thread{}, perm.Empty(), err
	}
	return thread, set, nil
}

func (s *Service) GetThread(ctx context.Context, session Session, threadID string) (store.Thread, error) {
	thread, _, err := s.threadForViewer(ctx, session, threadID)
	return thread, err
}

// UpdateThread needs ThreadManage, or creator ownership for threads the
// caller started.
func (s *Service) UpdateThread(ctx context.Context, session Session, threadID string, input ThreadInput) (store.Thread, error) {
	thread, set, err := s.threadForViewer(ctx, session, threadID)
	if err != nil {
		return store.Thread{}, err
	}
	isCreator := thread.CreatorID == session.UserID
	if !set.Has(perm.ThreadManage) && !isCreator {
		return store.Thread{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	// Pinning and locking stay moderator-only even for the creator.
	if (input.IsPinned != nil || input.IsLocked != nil) && !set.Has(perm.ThreadManage) {
		return store.Thread{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	var changes []string
	if name := strings.TrimSpace(input.Name); name != "" && name != thread.Name {
		changes = append(changes, "renamed the thread to "+name)
		thread.Name = name
	}
	if input.Description != "" {
		thread.Description = input.Description
	}
	if input.IsClosed != nil && *input.IsClosed != thread.IsClosed {
		thread.IsClosed = *input.IsClosed
		changes = append(changes, flagChange(thread.IsClosed, "closed", "reopened"))
	}
	if input.IsLocked != nil && *input.IsLocked != thread.IsLocked {
		thread.IsLocked = *input.IsLocked
		changes = append(changes, flagChange(thread.IsLocked, "locked", "unlocked"))
	}
	if input.IsPinned != nil && *input.IsPinned != thread.IsPinned {
		thread.IsPinned = *input.IsPinned
		changes = append(changes, flagChange(thread.IsPinned, "pinned", "unpinned"))
	}

	updated, err := s.store.UpdateThread(ctx, thread)
	if err != nil {
		return store.Thread{}, err
	}

	s.publish(bus.Room(thread.RoomID), "upsert", "thread", updated)

	// State changes leave a trail in the thread itself.
	if len(changes) > 0 {
		id := util.NewID()
		note := store.Message{
			ID:        id,
			VersionID: id,
			ThreadID:  thread.ID,
			Content:   strings.Join(changes, ", "),
			AuthorID:  session.UserID,
			Type:      store.MessageThreadUpdate,
		}
		if noteMsg, err := s.store.InsertMessage(ctx, note); err == nil {
			s.publish(bus.Thread(thread.ID), "upsert", "message", noteMsg)
		}
	}
	return updated, nil
}

func flagChange(on bool, set, unset string) string {
	if on {
		return set + " the thread"
	}
	return unset + " the thread"
}

func (s *Service) DeleteThread(ctx context.Context, session Session, threadID string) error {
	thread, set, err := s.threadForViewer(ctx, session, threadID)
	if err != nil {
		return err
	}
	if !set.Has(perm.ThreadManage) && thread.CreatorID != session.UserID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	if err := s.store.DeleteThread(ctx, threadID); err != nil {
		return err
	}

	s.publish(bus.Room(thread.RoomID), "delete", "thread", map[string]any{"id": threadID, "room_id": thread.RoomID})
	return nil
}

func (s *Service) ListThreads(ctx context.Context, session Session, roomID string, cursor pagination.Cursor) (pagination.Page[store.Thread], error) {
	if _, err := s.requireRoom(ctx, session, roomID, ""); err != nil {
		return pagination.Page[store.Thread]{}, err
	}
	w := cursor.Window()
	items, total, err := s.store.ListRoomThreads(ctx, roomID, w)
	if err != nil {
		return pagination.Page[store.Thread]{}, err
	}
	return pagination.BuildPage(items, total, w), nil
}
