package app

import (
	"context"
	"net/http"

	"lamprey/api/internal/bus"
	"lamprey/api/internal/pagination"
	"lamprey/api/internal/perm"
	"lamprey/api/internal/store"
)

type MemberInput struct {
	OverrideName        string `json:"override_name"`
	OverrideDescription string `json:"override_description"`
}

func (s *Service) GetMember(ctx context.Context, session Session, roomID, userID string) (store.Member, error) {
	if _, err := s.requireRoom(ctx, session, roomID, ""); err != nil {
		return store.Member{}, err
	}
	member, err := s.store.GetMember(ctx, roomID, userID)
	if err != nil {
		return store.Member{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	return member, nil
}

func (s *Service) ListMembers(ctx context.Context, session Session, roomID string, cursor pagination.Cursor) (pagination.Page[store.Member], error) {
	if _, err := s.requireRoom(ctx, session, roomID, ""); err != nil {
		return pagination.Page[store.Member]{}, err
	}
	w := cursor.Window()
	items, total, err := s.store.ListRoomMembers(ctx, roomID, w)
	if err != nil {
		return pagination.Page[store.Member]{}, err
	}
	return pagination.BuildPage(items, total, w), nil
}

// UpdateMember sets per-room overrides. Members edit their own entry;
// MemberManage covers everyone else's.
func (s *Service) UpdateMember(ctx context.Context, session Session, roomID, userID string, input MemberInput) (store.Member, error) {
	set, err := s.requireRoom(ctx, session, roomID, "")
	if err != nil {
		return store.Member{}, err
	}
	if userID != session.UserID && !set.Has(perm.MemberManage) {
		return store.Member{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	member, err := s.store.GetMember(ctx, roomID, userID)
	if err != nil {
		return store.Member{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	member.OverrideName = input.OverrideName
	member.OverrideDescription = input.OverrideDescription
	if err := s.store.UpsertMember(ctx, member); err != nil {
		return store.Member{}, err
	}

	s.publish(bus.Room(roomID), "upsert", "member", member)
	return member, nil
}

// LeaveRoom removes the caller's own membership.
func (s *Service) LeaveRoom(ctx context.Context, session Session, roomID string) error {
	if _, err := s.requireRoom(ctx, session, roomID, ""); err != nil {
		return err
	}
	member, err := s.store.GetMember(ctx, roomID, session.UserID)
	if err != nil {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if err := s.store.DeleteMember(ctx, roomID, session.UserID); err != nil {
		return err
	}
	s.publish(bus.Room(roomID), "delete", "member", member)
	return nil
}

// KickMember removes another member; their roles go with the row.
func (s *Service) KickMember(ctx context.Context, session Session, roomID, userID string) error {
	if _, err := s.requireRoom(ctx, session, roomID, perm.MemberKick); err != nil {
		return err
	}
	member, err := s.store.GetMember(ctx, roomID, userID)
	if err != nil {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if err := s.store.DeleteMember(ctx, roomID, userID); err != nil {
		return err
	}
	s.publish(bus.Room(roomID), "delete", "member", member)
	return nil
}

// BanMember flips the member to the ban state. A banned member keeps a
// row so the ban holds, but resolves to the empty permission set.
func (s *Service) BanMember(ctx context.Context, session Session, roomID, userID string) error {
	if _, err := s.requireRoom(ctx, session, roomID, perm.MemberBan); err != nil {
		return err
	}
	if err := s.store.SetMemberState(ctx, roomID, userID, store.MemberBan); err != nil {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	member, err := s.store.GetMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	s.publish(bus.Room(roomID), "upsert", "member", member)
	return nil
}

// AssignRole attaches a role to a member. MemberManage assigns any
// role to anyone; holders of RoleApply can self-assign roles marked
// self-applicable.
func (s *Service) AssignRole(ctx context.Context, session Session, roomID, userID, roleID string) error {
	set, err := s.requireRoom(ctx, session, roomID, "")
	if err != nil {
		return err
	}
	role, err := s.store.GetRole(ctx, roomID, roleID)
	if err != nil {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}

	selfApply := userID == session.UserID && role.IsSelfApplicable && set.Has(perm.RoleApply)
	if !set.Has(perm.MemberManage) && !selfApply {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	if err := s.store.AddMemberRole(ctx, roomID, userID, roleID); err != nil {
		return err
	}

	member, err := s.store.GetMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	s.publish(bus.Room(roomID), "upsert", "member", member)
	return nil
}

// UnassignRole detaches a role. Permission loss is immediate: the next
// resolve simply no longer sees the role.
func (s *Service) UnassignRole(ctx context.Context, session Session, roomID, userID, roleID string) error {
	set, err := s.requireRoom(ctx, session, roomID, "")
	if err != nil {
		return err
	}
	role, err := s.store.GetRole(ctx, roomID, roleID)
	if err != nil {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}

	selfRemove := userID == session.UserID && role.IsSelfApplicable && set.Has(perm.RoleApply)
	if !set.Has(perm.MemberManage) && !selfRemove {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}

	if err := s.store.RemoveMemberRole(ctx, roomID, userID, roleID); err != nil {
		return err
	}

	member, err := s.store.GetMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	s.publish(bus.Room(roomID), "upsert", "member", member)
	return nil
}
