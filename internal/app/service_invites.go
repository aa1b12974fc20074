package app

import (
	"context"
	"log"
	"net/http"

	"lamprey/api/internal/bus"
	"lamprey/api/internal/pagination"
	"lamprey/api/internal/perm"
	"lamprey/api/internal/store"
	"lamprey/api/internal/util"
)

type InviteInput struct {
	// Email, when set and SMTP is configured, sends the code to the
	// recipient. Delivery failure does not fail the create.
	Email string `json:"email"`
}

func (s *Service) CreateInvite(ctx context.Context, session Session, roomID string, input InviteInput) (store.Invite, error) {
	if _, err := s.requireRoom(ctx, session, roomID, perm.InviteCreate); err != nil {
		return store.Invite{}, err
	}

	inv := store.Invite{
		Code:       util.NewInviteCode(),
		TargetType: store.InviteTargetRoom,
		TargetID:   roomID,
		CreatorID:  session.UserID,
	}
	if err := s.store.InsertInvite(ctx, inv); err != nil {
		return store.Invite{}, err
	}

	if input.Email != "" && s.email != nil && s.email.IsConfigured() {
		room, err := s.store.GetRoom(ctx, roomID)
		if err == nil {
			inviteURL := s.cfg.AppURL + "/invites/" + inv.Code
			go func() {
				if err := s.email.SendInviteEmail(input.Email, session.UserName, room.Name, inviteURL); err != nil {
					log.Printf("invite email to %s failed: %v", input.Email, err)
				}
			}()
		}
	}

	return inv, nil
}

// GetInvite previews an invite for any authenticated user so the client
// can show what the code unlocks before accepting it.
func (s *Service) GetInvite(ctx context.Context, _ Session, code string) (store.Invite, error) {
	inv, err := s.store.GetInvite(ctx, code)
	if err != nil {
		return store.Invite{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return inv, nil
}

// RevokeInvite deletes a code. Creators revoke their own; InviteManage
// covers the rest of the room's codes.
func (s *Service) RevokeInvite(ctx context.Context, session Session, code string) error {
	inv, err := s.store.GetInvite(ctx, code)
	if err != nil {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if inv.CreatorID != session.UserID {
		if _, err := s.requireRoom(ctx, session, inv.TargetID, perm.InviteManage); err != nil {
			return err
		}
	}
	return s.store.DeleteInvite(ctx, code)
}

// ListInvites pages a room's invites. InviteManage sees every code;
// anyone else sees only the codes they created.
func (s *Service) ListInvites(ctx context.Context, session Session, roomID string, cursor pagination.Cursor) (pagination.Page[store.Invite], error) {
	set, err := s.requireRoom(ctx, session, roomID, "")
	if err != nil {
		return pagination.Page[store.Invite]{}, err
	}
	creatorID := session.UserID
	if set.Has(perm.InviteManage) {
		creatorID = ""
	}
	w := cursor.Window()
	items, total, err := s.store.ListTargetInvites(ctx, roomID, creatorID, w)
	if err != nil {
		return pagination.Page[store.Invite]{}, err
	}
	return pagination.BuildPage(items, total, w), nil
}

// UseInvite joins the caller to the invite's room and attaches the
// room's default roles. Banned members stay banned.
func (s *Service) UseInvite(ctx context.Context, session Session, code string) (store.Member, error) {
	inv, err := s.store.GetInvite(ctx, code)
	if err != nil {
		return store.Member{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if inv.TargetType != store.InviteTargetRoom {
		return store.Member{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Invite target is not a room", nil)
	}
	roomID := inv.TargetID

	if existing, err := s.store.GetMember(ctx, roomID, session.UserID); err == nil {
		switch existing.State {
		case store.MemberBan:
			return store.Member{}, domainError(http.StatusForbidden, "BANNED", "You are banned from this room", nil)
		case store.MemberJoin:
			return existing, nil
		}
	}

	member := store.Member{
		RoomID: roomID,
		UserID: session.UserID,
		State:  store.MemberJoin,
	}
	if err := s.store.UpsertMember(ctx, member); err != nil {
		return store.Member{}, err
	}

	roleIDs, err := s.store.DefaultRoleIDs(ctx, roomID)
	if err != nil {
		return store.Member{}, err
	}
	for _, roleID := range roleIDs {
		if err := s.store.AddMemberRole(ctx, roomID, session.UserID, roleID); err != nil {
			return store.Member{}, err
		}
	}

	joined, err := s.store.GetMember(ctx, roomID, session.UserID)
	if err != nil {
		return store.Member{}, err
	}
	s.publish(bus.Room(roomID), "upsert", "member", joined)
	return joined, nil
}
