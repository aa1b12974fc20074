package app

import (
	"context"
	"net/http"

	"lamprey/api/internal/auth"
	"lamprey/api/internal/authpw"
	"lamprey/api/internal/bus"
	"lamprey/api/internal/config"
	"lamprey/api/internal/email"
	"lamprey/api/internal/pagination"
	"lamprey/api/internal/perm"
	"lamprey/api/internal/search"
	"lamprey/api/internal/store"
	"lamprey/api/internal/telemetry"
	"lamprey/api/internal/util"
)

// Session is the authenticated caller's view: the bearer token it
// presented plus the user and trust level it resolved to.
type Session struct {
	Token    string
	UserID   string
	UserName string
	Status   int
}

// IsSudo reports whether the session was elevated by re-verifying the
// password.
func (s Session) IsSudo() bool {
	return s.Status == store.SessionSudo
}

type dataStore interface {
	// users
	CreateUser(ctx context.Context, user store.User) error
	GetUserByID(ctx context.Context, id string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	UpdateUserName(ctx context.Context, userID, name string) error
	UpdateUserPassword(ctx context.Context, userID, passwordHash string) error
	TombstoneUser(ctx context.Context, userID string) error

	// rooms
	InsertRoom(ctx context.Context, room store.Room) error
	GetRoom(ctx context.Context, roomID string) (store.Room, error)
	UpdateRoom(ctx context.Context, room store.Room) (store.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
	ListUserRooms(ctx context.Context, userID string, w pagination.Window) ([]store.Room, int, error)
	ListUserRoomIDs(ctx context.Context, userID string) ([]string, error)

	// threads
	InsertThread(ctx context.Context, t store.Thread) error
	GetThread(ctx context.Context, threadID string) (store.Thread, error)
	UpdateThread(ctx context.Context, t store.Thread) (store.Thread, error)
	DeleteThread(ctx context.Context, threadID string) error
	ListRoomThreads(ctx context.Context, roomID string, w pagination.Window) ([]store.Thread, int, error)
	ListRoomThreadIDs(ctx context.Context, roomID string) ([]string, error)

	// messages
	InsertMessage(ctx context.Context, m store.Message) (store.Message, error)
	InsertMessageVersion(ctx context.Context, m store.Message) (store.Message, error)
	GetMessage(ctx context.Context, messageID string) (store.Message, error)
	GetMessageVersion(ctx context.Context, messageID, versionID string) (store.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
	ListThreadMessages(ctx context.Context, threadID string, w pagination.Window) ([]store.Message, int, error)
	ListMessageVersions(ctx context.Context, messageID string, w pagination.Window) ([]store.Message, int, error)

	// members and roles
	UpsertMember(ctx context.Context, m store.Member) error
	GetMember(ctx context.Context, roomID, userID string) (store.Member, error)
	UsersShareRoom(ctx context.Context, userA, userB string) (bool, error)
	DeleteMember(ctx context.Context, roomID, userID string) error
	SetMemberState(ctx context.Context, roomID, userID, state string) error
	AddMemberRole(ctx context.Context, roomID, userID, roleID string) error
	RemoveMemberRole(ctx context.Context, roomID, userID, roleID string) error
	ListRoomMembers(ctx context.Context, roomID string, w pagination.Window) ([]store.Member, int, error)
	MemberPermissions(ctx context.Context, roomID, userID string) (bool, [][]string, error)
	InsertRole(ctx context.Context, role store.Role) error
	GetRole(ctx context.Context, roomID, roleID string) (store.Role, error)
	UpdateRole(ctx context.Context, role store.Role) (store.Role, error)
	DeleteRole(ctx context.Context, roomID, roleID string) error
	ListRoomRoles(ctx context.Context, roomID string, w pagination.Window) ([]store.Role, int, error)
	DefaultRoleIDs(ctx context.Context, roomID string) ([]string, error)

	// invites
	InsertInvite(ctx context.Context, inv store.Invite) error
	GetInvite(ctx context.Context, code string) (store.Invite, error)
	DeleteInvite(ctx context.Context, code string) error
	ListTargetInvites(ctx context.Context, targetID, creatorID string, w pagination.Window) ([]store.Invite, int, error)

	// media
	InsertMedia(ctx context.Context, m store.Media) error
	GetMedia(ctx context.Context, mediaID string) (store.Media, error)
	UpdateMediaSize(ctx context.Context, mediaID string, size int64) error
	DeleteMedia(ctx context.Context, mediaID string) error

	Ping(ctx context.Context) error
}

var _ dataStore = (*store.PostgresStore)(nil)
var _ SessionStore = (*store.PostgresStore)(nil)

// SessionStore is satisfied by both session.RedisStore and the Postgres
// fallback.
type SessionStore interface {
	SaveSession(ctx context.Context, tokenHash string, sess store.Session) error
	LookupSession(ctx context.Context, tokenHash string) (store.Session, error)
	UpdateSessionStatus(ctx context.Context, tokenHash string, status int) error
	DeleteSession(ctx context.Context, tokenHash string) error
}

// SearchProvider is the message search facade; nil when search is not
// wired (tests).
type SearchProvider interface {
	Search(q search.Query) search.Response
	IndexMessage(rec search.MessageRecord)
	DeleteMessage(id string)
}

// MediaProvider fronts the object store: presigned upload/download
// URLs plus the stat and delete calls the media lifecycle needs. Nil
// when object storage is not configured.
type MediaProvider interface {
	UploadURL(ctx context.Context, mediaID string) (string, error)
	DownloadURL(ctx context.Context, mediaID, filename string) (string, error)
	ObjectSize(ctx context.Context, mediaID string) (int64, error)
	Delete(ctx context.Context, mediaID string) error
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions SessionStore
	authpw   *authpw.Service
	bus      *bus.Bus
	search   SearchProvider
	media    MediaProvider
	email    *email.Service
}

func NewService(cfg config.Config, dataStore dataStore, sessions SessionStore, authSvc *authpw.Service, b *bus.Bus, searchSvc SearchProvider, mediaSvc MediaProvider, emailSvc *email.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: sessions,
		authpw:   authSvc,
		bus:      b,
		search:   searchSvc,
		media:    mediaSvc,
		email:    emailSvc,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bus exposes the event fabric so the gateway can subscribe.
func (s *Service) Bus() *bus.Bus {
	return s.bus
}

// SignUp creates an account and signs it in.
func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.authpw.SignUp(ctx, req)
	if err != nil {
		return Session{}, domainError(http.StatusBadRequest, "SIGNUP_FAILED", err.Error(), nil)
	}
	return s.issueSession(ctx, user)
}

// SignIn authenticates credentials and issues a session.
func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	user, err := s.authpw.SignIn(ctx, req)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	token := auth.NewToken()
	sess := store.Session{
		ID:     util.NewID(),
		UserID: user.ID,
		Status: store.SessionStandard,
	}
	if err := s.sessions.SaveSession(ctx, auth.HashToken(token), sess); err != nil {
		return Session{}, err
	}
	return Session{
		Token:    token,
		UserID:   user.ID,
		UserName: user.DisplayName,
		Status:   sess.Status,
	}, nil
}

// SessionFromToken resolves a bearer token into a live session.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	sess, err := s.sessions.LookupSession(ctx, auth.HashToken(token))
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	user, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return Session{}, auth.ErrInvalidToken
	}
	if user.DeletedAt != nil {
		return Session{}, auth.ErrInvalidToken
	}
	return Session{
		Token:    token,
		UserID:   user.ID,
		UserName: user.DisplayName,
		Status:   sess.Status,
	}, nil
}

// UserFromToken adapts session lookup for the gateway.
func (s *Service) UserFromToken(ctx context.Context, token string) (store.User, error) {
	session, err := s.SessionFromToken(ctx, token)
	if err != nil {
		return store.User{}, err
	}
	return s.store.GetUserByID(ctx, session.UserID)
}

// ListUserRoomIDs and ListRoomThreadIDs make Service a gateway
// TopicSource.
func (s *Service) ListUserRoomIDs(ctx context.Context, userID string) ([]string, error) {
	return s.store.ListUserRoomIDs(ctx, userID)
}

func (s *Service) ListRoomThreadIDs(ctx context.Context, roomID string) ([]string, error) {
	return s.store.ListRoomThreadIDs(ctx, roomID)
}

// Logout revokes the presented token.
func (s *Service) Logout(ctx context.Context, session Session) error {
	if session.Token == "" {
		return nil
	}
	return s.sessions.DeleteSession(ctx, auth.HashToken(session.Token))
}

// Sudo elevates the session's trust level after re-verifying the
// password. Required before account deletion.
func (s *Service) Sudo(ctx context.Context, session Session, password string) error {
	if err := s.authpw.Verify(ctx, session.UserID, password); err != nil {
		return domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid password", nil)
	}
	return s.sessions.UpdateSessionStatus(ctx, auth.HashToken(session.Token), store.SessionSudo)
}

// resolve computes the caller's permission set for a room: the union of
// their role permissions plus View for any joined member, or the empty
// set for everyone else.
func (s *Service) resolve(ctx context.Context, userID, roomID string) (perm.Set, error) {
	joined, lists, err := s.store.MemberPermissions(ctx, roomID, userID)
	if err != nil {
		return perm.Empty(), err
	}
	if !joined {
		return perm.Empty(), nil
	}
	set := perm.NewSet(perm.View)
	for _, list := range lists {
		perms := make([]perm.Permission, 0, len(list))
		for _, name := range list {
			perms = append(perms, perm.Permission(name))
		}
		set = set.Union(perm.NewSet(perms...))
	}
	return set, nil
}

// requireRoom gates a room-scoped operation. Non-members get 404 so
// room existence never leaks; members without the needed permission
// get 403.
func (s *Service) requireRoom(ctx context.Context, session Session, roomID string, p perm.Permission) (perm.Set, error) {
	set, err := s.resolve(ctx, session.UserID, roomID)
	if err != nil {
		return perm.Empty(), err
	}
	if set.IsEmpty() {
		return perm.Empty(), domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if p != "" && !set.Has(p) {
		return perm.Empty(), domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	return set, nil
}

// publish emits an event after the mutation is durably committed.
// Events never precede their writes.
func (s *Service) publish(topic bus.Topic, op, kind string, data any) {
	telemetry.CountEvent(kind)
	s.bus.Publish(topic, bus.Event{Op: op, Kind: kind, Data: data})
}
