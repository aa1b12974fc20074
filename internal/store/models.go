package store

import "time"

// User is an account row. Deletion tombstones the row; display data is
// blanked but the id keeps resolving for message attribution.
type User struct {
	ID          string     `json:"id"`
	DisplayName string     `json:"name"`
	Email       string     `json:"-"`
	PasswordHash string    `json:"-"`
	IsBot       bool       `json:"is_bot"`
	IsAlias     bool       `json:"is_alias"`
	IsSystem    bool       `json:"is_system"`
	ParentID    *string    `json:"parent_id,omitempty"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}

type Room struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Membership states.
const (
	MemberJoin  = "join"
	MemberBan   = "ban"
	MemberGhost = "ghost"
)

type Member struct {
	RoomID              string   `json:"room_id"`
	UserID              string   `json:"user_id"`
	State               string   `json:"state"`
	OverrideName        string   `json:"override_name,omitempty"`
	OverrideDescription string   `json:"override_description,omitempty"`
	RoleIDs             []string `json:"roles"`
	UserName            string   `json:"user_name"`
}

type Role struct {
	ID               string   `json:"id"`
	RoomID           string   `json:"room_id"`
	Name             string   `json:"name"`
	Permissions      []string `json:"permissions"`
	IsDefault        bool     `json:"is_default"`
	IsSelfApplicable bool     `json:"is_self_applicable"`
	IsMentionable    bool     `json:"is_mentionable"`
}

type Thread struct {
	ID            string `json:"id"`
	RoomID        string `json:"room_id"`
	CreatorID     string `json:"creator_id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	IsClosed      bool   `json:"is_closed"`
	IsLocked      bool   `json:"is_locked"`
	IsPinned      bool   `json:"is_pinned"`
	MessageCount  int    `json:"message_count"`
	LastVersionID string `json:"last_version_id,omitempty"`
}

// Message types.
const (
	MessageDefault      = "Default"
	MessageThreadUpdate = "ThreadUpdate"
)

// Message is one version row. ID is the id of the first version and is
// the message's identity; VersionID changes on every edit and equals ID
// for an unedited message.
type Message struct {
	ID           string   `json:"id"`
	VersionID    string   `json:"version_id"`
	ThreadID     string   `json:"thread_id"`
	Ordering     int      `json:"ordering"`
	Content      string   `json:"content"`
	Attachments  []string `json:"attachments"`
	ReplyID      *string  `json:"reply_id,omitempty"`
	AuthorID     string   `json:"author_id"`
	Type         string   `json:"type"`
	OverrideName string   `json:"override_name,omitempty"`
}

// Invite target types.
const (
	InviteTargetRoom   = "room"
	InviteTargetThread = "thread"
	InviteTargetUser   = "user"
)

type Invite struct {
	Code       string `json:"code"`
	TargetType string `json:"target_type"`
	TargetID   string `json:"target_id"`
	CreatorID  string `json:"creator_id"`
}

// Session trust levels.
const (
	SessionUnauthenticated = 0
	SessionStandard        = 1
	SessionSudo            = 2
)

type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Status int    `json:"status"`
}

type Media struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}
