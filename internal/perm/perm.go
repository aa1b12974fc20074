// Package perm defines the permission vocabulary and the resolved
// permission set checked by every handler.
package perm

// Permission is one name from the closed, append-only vocabulary surfaced
// in role objects.
type Permission string

// Assignable permissions. Admin is a superset sentinel: a set containing
// it satisfies Has for every permission.
const (
	Admin            Permission = "Admin"
	RoomManage       Permission = "RoomManage"
	ThreadCreate     Permission = "ThreadCreate"
	ThreadManage     Permission = "ThreadManage"
	MessageCreate    Permission = "MessageCreate"
	MessageFilesEmbed Permission = "MessageFilesEmbed"
	MessagePin       Permission = "MessagePin"
	MessageDelete    Permission = "MessageDelete"
	MemberKick       Permission = "MemberKick"
	MemberBan        Permission = "MemberBan"
	MemberManage     Permission = "MemberManage"
	RoleManage       Permission = "RoleManage"
	RoleApply        Permission = "RoleApply"
	InviteCreate     Permission = "InviteCreate"
	InviteManage     Permission = "InviteManage"
)

// System-computed permissions, never assignable via roles.
const (
	View        Permission = "View"
	MessageEdit Permission = "MessageEdit"
)

var assignable = map[Permission]struct{}{
	Admin:             {},
	RoomManage:        {},
	ThreadCreate:      {},
	ThreadManage:      {},
	MessageCreate:     {},
	MessageFilesEmbed: {},
	MessagePin:        {},
	MessageDelete:     {},
	MemberKick:        {},
	MemberBan:         {},
	MemberManage:      {},
	RoleManage:        {},
	RoleApply:         {},
	InviteCreate:      {},
	InviteManage:      {},
}

// Assignable reports whether p may appear in a role's permission list.
func Assignable(p Permission) bool {
	_, ok := assignable[p]
	return ok
}

// AssignableNames lists the vocabulary in a stable order for clients.
func AssignableNames() []string {
	return []string{
		string(Admin), string(RoomManage),
		string(ThreadCreate), string(ThreadManage),
		string(MessageCreate), string(MessageFilesEmbed), string(MessagePin), string(MessageDelete),
		string(MemberKick), string(MemberBan), string(MemberManage),
		string(RoleManage), string(RoleApply),
		string(InviteCreate), string(InviteManage),
	}
}

// Set is an immutable resolved permission set. The Admin sentinel is kept
// as an explicit flag rather than a member, so Has stays a pure lookup.
type Set struct {
	admin bool
	perms map[Permission]struct{}
}

// Empty returns the set with no permissions. Handlers treat it as
// "resource not found" when View is absent.
func Empty() Set {
	return Set{}
}

// NewSet builds a set from a permission list. Admin in the list flips the
// sentinel flag instead of being stored as a member.
func NewSet(perms ...Permission) Set {
	s := Set{perms: make(map[Permission]struct{}, len(perms))}
	for _, p := range perms {
		if p == Admin {
			s.admin = true
			continue
		}
		s.perms[p] = struct{}{}
	}
	return s
}

// Has reports whether the set grants p. Admin grants everything.
func (s Set) Has(p Permission) bool {
	if s.admin {
		return true
	}
	_, ok := s.perms[p]
	return ok
}

// IsAdmin reports whether the sentinel is present.
func (s Set) IsAdmin() bool {
	return s.admin
}

// IsEmpty reports whether the set grants nothing at all.
func (s Set) IsEmpty() bool {
	return !s.admin && len(s.perms) == 0
}

// Union returns a new set granting everything s or other grants.
func (s Set) Union(other Set) Set {
	out := Set{
		admin: s.admin || other.admin,
		perms: make(map[Permission]struct{}, len(s.perms)+len(other.perms)),
	}
	for p := range s.perms {
		out.perms[p] = struct{}{}
	}
	for p := range other.perms {
		out.perms[p] = struct{}{}
	}
	return out
}

// With returns a new set additionally granting the given permissions.
func (s Set) With(perms ...Permission) Set {
	return s.Union(NewSet(perms...))
}

// Names lists the granted permissions for wire serialization. Admin is
// rendered as its literal name.
func (s Set) Names() []string {
	out := make([]string, 0, len(s.perms)+1)
	if s.admin {
		out = append(out, string(Admin))
	}
	for _, name := range AssignableNames() {
		if _, ok := s.perms[Permission(name)]; ok {
			out = append(out, name)
		}
	}
	for _, p := range []Permission{View, MessageEdit} {
		if _, ok := s.perms[p]; ok {
			out = append(out, string(p))
		}
	}
	return out
}

// Effective layers owner-granted permissions on top of a resolved set.
// Handlers call it once per request and keep checking through Has, so the
// resolver itself stays free of per-resource special cases.
func Effective(s Set, isOwner bool) Set {
	if !isOwner {
		return s
	}
	return s.With(MessageEdit, MessageDelete)
}
