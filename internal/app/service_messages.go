package app

import (
	"context"
	"net/http"
	"strings"

	"lamprey/api/internal/bus"
	"lamprey/api/internal/pagination"
	"lamprey/api/internal/perm"
	"lamprey/api/internal/search"
	"lamprey/api/internal/store"
	"lamprey/api/internal/util"
)

type MessageInput struct {
	Content      string   `json:"content"`
	Attachments  []string `json:"attachments,omitempty"`
	ReplyID      *string  `json:"reply_id,omitempty"`
	OverrideName string   `json:"override_name,omitempty"`
}

// CreateMessage appends a message to a thread. Ordering is assigned by
// the store inside the insert transaction; locked threads only accept
// messages from members holding ThreadManage.
func (s *Service) CreateMessage(ctx context.Context, session Session, threadID string, input MessageInput) (store.Message, error) {
	thread, set, err := s.threadForViewer(ctx, session, threadID)
	if err != nil {
		return store.Message{}, err
	}
	if !set.Has(perm.MessageCreate) {
		return store.Message{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if thread.IsLocked && !set.Has(perm.ThreadManage) {
		return store.Message{}, domainError(http.StatusForbidden, "THREAD_LOCKED", "Thread is locked", nil)
	}
	if strings.TrimSpace(input.Content) == "" && len(input.Attachments) == 0 {
		return store.Message{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content or attachments required", nil)
	}
	if len(input.Attachments) > 0 && !set.Has(perm.MessageFilesEmbed) {
		return store.Message{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if input.ReplyID != nil {
		reply, err := s.store.GetMessage(ctx, *input.ReplyID)
		if err != nil || reply.ThreadID != threadID {
			return store.Message{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "reply target is not in this thread", nil)
		}
	}

	id := util.NewID()
	msg := store.Message{
		ID:           id,
		VersionID:    id, // first version shares the message id
		ThreadID:     threadID,
		Content:      input.Content,
		Attachments:  input.Attachments,
		ReplyID:      input.ReplyID,
		AuthorID:     session.UserID,
		Type:         store.MessageDefault,
		OverrideName: input.OverrideName,
	}
	created, err := s.store.InsertMessage(ctx, msg)
	if err != nil {
		return store.Message{}, err
	}

	s.publish(bus.Thread(threadID), "upsert", "message", created)
	if s.search != nil {
		s.search.IndexMessage(search.MessageRecord{
			ID:       created.ID,
			ThreadID: threadID,
			RoomID:   thread.RoomID,
			AuthorID: created.AuthorID,
			Content:  created.Content,
		})
	}
	return created, nil
}

// messageForViewer loads a message's latest version after the room
// visibility check.
func (s *Service) messageForViewer(ctx context.Context, session Session, threadID, messageID string) (store.Message, store.Thread, perm.Set, error) {
	thread, set, err := s.threadForViewer(ctx, session, threadID)
	if err != nil {
		return store.Message{}, store.Thread{}, perm.Empty(), err
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil || msg.ThreadID != threadID {
		return store.Message{}, store.Thread{}, perm.Empty(), domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return msg, thread, set, nil
}

func (s *Service) GetMessage(ctx context.Context, session Session, threadID, messageID string) (store.Message, error) {
	msg, _, _, err := s.messageForViewer(ctx, session, threadID, messageID)
	return msg, err
}

// EditMessage records a new version. Edit rights come from authorship
// (or the admin sentinel); MessageEdit is never assignable to roles.
func (s *Service) EditMessage(ctx context.Context, session Session, threadID, messageID string, input MessageInput) (store.Message, error) {
	msg, thread, set, err := s.messageForViewer(ctx, session, threadID, messageID)
	if err != nil {
		return store.Message{}, err
	}
	effective := perm.Effective(set, msg.AuthorID == session.UserID)
	if !effective.Has(perm.MessageEdit) {
		return store.Message{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if strings.TrimSpace(input.Content) == "" && len(input.Attachments) == 0 {
		return store.Message{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "content or attachments required", nil)
	}

	next := store.Message{
		ID:           messageID,
		VersionID:    util.NewID(),
		Content:      input.Content,
		Attachments:  input.Attachments,
		ReplyID:      msg.ReplyID,
		Type:         msg.Type,
		OverrideName: input.OverrideName,
	}
	updated, err := s.store.InsertMessageVersion(ctx, next)
	if err != nil {
		return store.Message{}, err
	}

	s.publish(bus.Thread(threadID), "upsert", "message", updated)
	if s.search != nil {
		s.search.IndexMessage(search.MessageRecord{
			ID:       updated.ID,
			ThreadID: threadID,
			RoomID:   thread.RoomID,
			AuthorID: updated.AuthorID,
			Content:  updated.Content,
		})
	}
	return updated, nil
}

// DeleteMessage removes a message and its whole version history.
// Authors can always delete their own.
func (s *Service) DeleteMessage(ctx context.Context, session Session, threadID, messageID string) error {
	msg, _, set, err := s.messageForViewer(ctx, session, threadID, messageID)
	if err != nil {
		return err
	}
	effective := perm.Effective(set, msg.AuthorID == session.UserID)
	if !effective.Has(perm.MessageDelete) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return err
	}

	s.publish(bus.Thread(threadID), "delete", "message", map[string]any{"id": messageID, "thread_id": threadID})
	if s.search != nil {
		s.search.DeleteMessage(messageID)
	}
	return nil
}

func (s *Service) ListMessages(ctx context.Context, session Session, threadID string, cursor pagination.Cursor) (pagination.Page[store.Message], error) {
	if _, _, err := s.threadForViewer(ctx, session, threadID); err != nil {
		return pagination.Page[store.Message]{}, err
	}
	w := cursor.Window()
	items, total, err := s.store.ListThreadMessages(ctx, threadID, w)
	if err != nil {
		return pagination.Page[store.Message]{}, err
	}
	return pagination.BuildPage(items, total, w), nil
}

// ListMessageVersions pages the edit history of one message.
func (s *Service) ListMessageVersions(ctx context.Context, session Session, threadID, messageID string, cursor pagination.Cursor) (pagination.Page[store.Message], error) {
	if _, _, _, err := s.messageForViewer(ctx, session, threadID, messageID); err != nil {
		return pagination.Page[store.Message]{}, err
	}
	w := cursor.Window()
	items, total, err := s.store.ListMessageVersions(ctx, messageID, w)
	if err != nil {
		return pagination.Page[store.Message]{}, err
	}
	return pagination.BuildPage(items, total, w), nil
}

func (s *Service) GetMessageVersion(ctx context.Context, session Session, threadID, messageID, versionID string) (store.Message, error) {
	if _, _, _, err := s.messageForViewer(ctx, session, threadID, messageID); err != nil {
		return store.Message{}, err
	}
	msg, err := s.store.GetMessageVersion(ctx, messageID, versionID)
	if err != nil {
		return store.Message{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return msg, nil
}
