package app

import (
	"context"
	"net/http"

	"lamprey/api/internal/search"
)

// SearchMessages runs a full-text query restricted to the caller's
// joined rooms, so results never leak content from rooms the caller
// cannot view.
func (s *Service) SearchMessages(ctx context.Context, session Session, text, roomID string, limit, offset int) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	if text == "" {
		return search.Response{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Query text is required", nil)
	}

	roomIDs, err := s.store.ListUserRoomIDs(ctx, session.UserID)
	if err != nil {
		return search.Response{}, err
	}
	if roomID != "" {
		if _, err := s.requireRoom(ctx, session, roomID, ""); err != nil {
			return search.Response{}, err
		}
	}

	return s.search.Search(search.Query{
		Text:         text,
		RoomIDs:      roomIDs,
		FilterRoomID: roomID,
		Limit:        limit,
		Offset:       offset,
	}), nil
}
