package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"lamprey/api/internal/authpw"
	"lamprey/api/internal/bus"
	"lamprey/api/internal/config"
	"lamprey/api/internal/pagination"
	"lamprey/api/internal/store"
)

type fakeStore struct {
	getUserByIDFn       func(context.Context, string) (store.User, error)
	getUserByEmailFn    func(context.Context, string) (store.User, error)
	createUserFn        func(context.Context, store.User) error
	tombstoneUserFn     func(context.Context, string) error
	insertRoomFn        func(context.Context, store.Room) error
	getRoomFn           func(context.Context, string) (store.Room, error)
	updateRoomFn        func(context.Context, store.Room) (store.Room, error)
	deleteRoomFn        func(context.Context, string) error
	insertThreadFn      func(context.Context, store.Thread) error
	getThreadFn         func(context.Context, string) (store.Thread, error)
	insertMessageFn     func(context.Context, store.Message) (store.Message, error)
	getMessageFn        func(context.Context, string) (store.Message, error)
	deleteMessageFn     func(context.Context, string) error
	upsertMemberFn      func(context.Context, store.Member) error
	getMemberFn         func(context.Context, string, string) (store.Member, error)
	usersShareRoomFn    func(context.Context, string, string) (bool, error)
	setMemberStateFn    func(context.Context, string, string, string) error
	addMemberRoleFn     func(context.Context, string, string, string) error
	removeMemberRoleFn  func(context.Context, string, string, string) error
	memberPermissionsFn func(context.Context, string, string) (bool, [][]string, error)
	insertRoleFn        func(context.Context, store.Role) error
	getRoleFn           func(context.Context, string, string) (store.Role, error)
	getInviteFn         func(context.Context, string) (store.Invite, error)
	insertInviteFn      func(context.Context, store.Invite) error
	listTargetInvitesFn func(context.Context, string, string, pagination.Window) ([]store.Invite, int, error)
	getMediaFn          func(context.Context, string) (store.Media, error)
	updateMediaSizeFn   func(context.Context, string, int64) error
	defaultRoleIDsFn    func(context.Context, string) ([]string, error)
}

func (f *fakeStore) CreateUser(ctx context.Context, user store.User) error {
	if f.createUserFn != nil {
		return f.createUserFn(ctx, user)
	}
	return nil
}
func (f *fakeStore) GetUserByID(ctx context.Context, id string) (store.User, error) {
	if f.getUserByIDFn != nil {
		return f.getUserByIDFn(ctx, id)
	}
	return store.User{ID: id, DisplayName: "Someone"}, nil
}
func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateUserName(context.Context, string, string) error     { return nil }
func (f *fakeStore) UpdateUserPassword(context.Context, string, string) error { return nil }
func (f *fakeStore) TombstoneUser(ctx context.Context, userID string) error {
	if f.tombstoneUserFn != nil {
		return f.tombstoneUserFn(ctx, userID)
	}
	return nil
}

func (f *fakeStore) InsertRoom(ctx context.Context, room store.Room) error {
	if f.insertRoomFn != nil {
		return f.insertRoomFn(ctx, room)
	}
	return nil
}
func (f *fakeStore) GetRoom(ctx context.Context, roomID string) (store.Room, error) {
	if f.getRoomFn != nil {
		return f.getRoomFn(ctx, roomID)
	}
	return store.Room{ID: roomID, Name: "Room"}, nil
}
func (f *fakeStore) UpdateRoom(ctx context.Context, room store.Room) (store.Room, error) {
	if f.updateRoomFn != nil {
		return f.updateRoomFn(ctx, room)
	}
	return room, nil
}
func (f *fakeStore) DeleteRoom(ctx context.Context, roomID string) error {
	if f.deleteRoomFn != nil {
		return f.deleteRoomFn(ctx, roomID)
	}
	return nil
}
func (f *fakeStore) ListUserRooms(context.Context, string, pagination.Window) ([]store.Room, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) ListUserRoomIDs(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeStore) InsertThread(ctx context.Context, t store.Thread) error {
	if f.insertThreadFn != nil {
		return f.insertThreadFn(ctx, t)
	}
	return nil
}
func (f *fakeStore) GetThread(ctx context.Context, threadID string) (store.Thread, error) {
	if f.getThreadFn != nil {
		return f.getThreadFn(ctx, threadID)
	}
	return store.Thread{ID: threadID, RoomID: "room-1"}, nil
}
func (f *fakeStore) UpdateThread(ctx context.Context, t store.Thread) (store.Thread, error) {
	return t, nil
}
func (f *fakeStore) DeleteThread(context.Context, string) error { return nil }
func (f *fakeStore) ListRoomThreads(context.Context, string, pagination.Window) ([]store.Thread, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) ListRoomThreadIDs(context.Context, string) ([]string, error) { return nil, nil }

func (f *fakeStore) InsertMessage(ctx context.Context, m store.Message) (store.Message, error) {
	if f.insertMessageFn != nil {
		return f.insertMessageFn(ctx, m)
	}
	m.Ordering = 1
	return m, nil
}
func (f *fakeStore) InsertMessageVersion(ctx context.Context, m store.Message) (store.Message, error) {
	return m, nil
}
func (f *fakeStore) GetMessage(ctx context.Context, messageID string) (store.Message, error) {
	if f.getMessageFn != nil {
		return f.getMessageFn(ctx, messageID)
	}
	return store.Message{}, sql.ErrNoRows
}
func (f *fakeStore) GetMessageVersion(context.Context, string, string) (store.Message, error) {
	return store.Message{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteMessage(ctx context.Context, messageID string) error {
	if f.deleteMessageFn != nil {
		return f.deleteMessageFn(ctx, messageID)
	}
	return nil
}
func (f *fakeStore) ListThreadMessages(context.Context, string, pagination.Window) ([]store.Message, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) ListMessageVersions(context.Context, string, pagination.Window) ([]store.Message, int, error) {
	return nil, 0, nil
}

func (f *fakeStore) UpsertMember(ctx context.Context, m store.Member) error {
	if f.upsertMemberFn != nil {
		return f.upsertMemberFn(ctx, m)
	}
	return nil
}
func (f *fakeStore) GetMember(ctx context.Context, roomID, userID string) (store.Member, error) {
	if f.getMemberFn != nil {
		return f.getMemberFn(ctx, roomID, userID)
	}
	return store.Member{RoomID: roomID, UserID: userID, State: store.MemberJoin}, nil
}
func (f *fakeStore) UsersShareRoom(ctx context.Context, a, b string) (bool, error) {
	if f.usersShareRoomFn != nil {
		return f.usersShareRoomFn(ctx, a, b)
	}
	return true, nil
}
func (f *fakeStore) DeleteMember(context.Context, string, string) error { return nil }
func (f *fakeStore) SetMemberState(ctx context.Context, roomID, userID, state string) error {
	if f.setMemberStateFn != nil {
		return f.setMemberStateFn(ctx, roomID, userID, state)
	}
	return nil
}
func (f *fakeStore) AddMemberRole(ctx context.Context, roomID, userID, roleID string) error {
	if f.addMemberRoleFn != nil {
		return f.addMemberRoleFn(ctx, roomID, userID, roleID)
	}
	return nil
}
func (f *fakeStore) RemoveMemberRole(ctx context.Context, roomID, userID, roleID string) error {
	if f.removeMemberRoleFn != nil {
		return f.removeMemberRoleFn(ctx, roomID, userID, roleID)
	}
	return nil
}
func (f *fakeStore) ListRoomMembers(context.Context, string, pagination.Window) ([]store.Member, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) MemberPermissions(ctx context.Context, roomID, userID string) (bool, [][]string, error) {
	if f.memberPermissionsFn != nil {
		return f.memberPermissionsFn(ctx, roomID, userID)
	}
	return false, nil, nil
}

func (f *fakeStore) InsertRole(ctx context.Context, role store.Role) error {
	if f.insertRoleFn != nil {
		return f.insertRoleFn(ctx, role)
	}
	return nil
}
func (f *fakeStore) GetRole(ctx context.Context, roomID, roleID string) (store.Role, error) {
	if f.getRoleFn != nil {
		return f.getRoleFn(ctx, roomID, roleID)
	}
	return store.Role{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateRole(ctx context.Context, role store.Role) (store.Role, error) {
	return role, nil
}
func (f *fakeStore) DeleteRole(context.Context, string, string) error { return nil }
func (f *fakeStore) ListRoomRoles(context.Context, string, pagination.Window) ([]store.Role, int, error) {
	return nil, 0, nil
}
func (f *fakeStore) DefaultRoleIDs(ctx context.Context, roomID string) ([]string, error) {
	if f.defaultRoleIDsFn != nil {
		return f.defaultRoleIDsFn(ctx, roomID)
	}
	return nil, nil
}

func (f *fakeStore) InsertInvite(ctx context.Context, inv store.Invite) error {
	if f.insertInviteFn != nil {
		return f.insertInviteFn(ctx, inv)
	}
	return nil
}
func (f *fakeStore) GetInvite(ctx context.Context, code string) (store.Invite, error) {
	if f.getInviteFn != nil {
		return f.getInviteFn(ctx, code)
	}
	return store.Invite{}, sql.ErrNoRows
}
func (f *fakeStore) DeleteInvite(context.Context, string) error { return nil }
func (f *fakeStore) ListTargetInvites(ctx context.Context, targetID, creatorID string, w pagination.Window) ([]store.Invite, int, error) {
	if f.listTargetInvitesFn != nil {
		return f.listTargetInvitesFn(ctx, targetID, creatorID, w)
	}
	return nil, 0, nil
}

func (f *fakeStore) InsertMedia(context.Context, store.Media) error { return nil }
func (f *fakeStore) GetMedia(ctx context.Context, mediaID string) (store.Media, error) {
	if f.getMediaFn != nil {
		return f.getMediaFn(ctx, mediaID)
	}
	return store.Media{}, sql.ErrNoRows
}
func (f *fakeStore) UpdateMediaSize(ctx context.Context, mediaID string, size int64) error {
	if f.updateMediaSizeFn != nil {
		return f.updateMediaSizeFn(ctx, mediaID, size)
	}
	return nil
}
func (f *fakeStore) DeleteMedia(context.Context, string) error { return nil }

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeSessions struct {
	sessions map[string]store.Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{sessions: make(map[string]store.Session)}
}

func (f *fakeSessions) SaveSession(_ context.Context, tokenHash string, sess store.Session) error {
	f.sessions[tokenHash] = sess
	return nil
}
func (f *fakeSessions) LookupSession(_ context.Context, tokenHash string) (store.Session, error) {
	sess, ok := f.sessions[tokenHash]
	if !ok {
		return store.Session{}, errors.New("session not found or expired")
	}
	return sess, nil
}
func (f *fakeSessions) UpdateSessionStatus(_ context.Context, tokenHash string, status int) error {
	sess, ok := f.sessions[tokenHash]
	if !ok {
		return errors.New("session not found or expired")
	}
	sess.Status = status
	f.sessions[tokenHash] = sess
	return nil
}
func (f *fakeSessions) DeleteSession(_ context.Context, tokenHash string) error {
	delete(f.sessions, tokenHash)
	return nil
}

func newTestService(t *testing.T, fs *fakeStore) *Service {
	t.Helper()
	return NewService(config.Config{}, fs, newFakeSessions(), authpw.NewService(fs), bus.New(), nil, nil, nil)
}

// fakeMedia stands in for the object store. Sizes maps media id to the
// byte count StatObject would report; ids absent from the map behave
// like objects that were never uploaded.
type fakeMedia struct {
	sizes   map[string]int64
	deleted []string
}

func (f *fakeMedia) UploadURL(_ context.Context, mediaID string) (string, error) {
	return "https://bucket.test/put/" + mediaID, nil
}
func (f *fakeMedia) DownloadURL(_ context.Context, mediaID, _ string) (string, error) {
	return "https://bucket.test/get/" + mediaID, nil
}
func (f *fakeMedia) ObjectSize(_ context.Context, mediaID string) (int64, error) {
	size, ok := f.sizes[mediaID]
	if !ok {
		return 0, errors.New("no such object")
	}
	return size, nil
}
func (f *fakeMedia) Delete(_ context.Context, mediaID string) error {
	f.deleted = append(f.deleted, mediaID)
	return nil
}

// joinedWith builds a MemberPermissions result for a joined member whose
// roles grant the given permission names.
func joinedWith(perms ...string) func(context.Context, string, string) (bool, [][]string, error) {
	return func(context.Context, string, string) (bool, [][]string, error) {
		return true, [][]string{perms}, nil
	}
}

func expectStatus(t *testing.T, err error, status int) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Status != status {
		t.Fatalf("expected status %d, got %d (%s)", status, domainErr.Status, domainErr.Code)
	}
}

func TestViewGating(t *testing.T) {
	session := Session{UserID: "user-1"}

	t.Run("non-member gets 404 not 403", func(t *testing.T) {
		service := newTestService(t, &fakeStore{})
		_, err := service.GetRoom(context.Background(), session, "room-1")
		expectStatus(t, err, 404)
	})

	t.Run("member lacking permission gets 403", func(t *testing.T) {
		service := newTestService(t, &fakeStore{
			memberPermissionsFn: joinedWith(),
		})
		_, err := service.UpdateRoom(context.Background(), session, "room-1", RoomInput{Name: "Renamed"})
		expectStatus(t, err, 403)
	})

	t.Run("member with permission succeeds", func(t *testing.T) {
		service := newTestService(t, &fakeStore{
			memberPermissionsFn: joinedWith("RoomManage"),
		})
		room, err := service.UpdateRoom(context.Background(), session, "room-1", RoomInput{Name: "Renamed"})
		if err != nil {
			t.Fatalf("UpdateRoom: %v", err)
		}
		if room.Name != "Renamed" {
			t.Fatalf("expected renamed room, got %q", room.Name)
		}
	})

	t.Run("admin sentinel grants everything", func(t *testing.T) {
		service := newTestService(t, &fakeStore{
			memberPermissionsFn: joinedWith("Admin"),
		})
		if err := service.DeleteRoom(context.Background(), session, "room-1"); err != nil {
			t.Fatalf("DeleteRoom: %v", err)
		}
	})

	t.Run("banned member resolves like a stranger", func(t *testing.T) {
		service := newTestService(t, &fakeStore{
			memberPermissionsFn: func(context.Context, string, string) (bool, [][]string, error) {
				return false, nil, nil
			},
		})
		_, err := service.GetRoom(context.Background(), session, "room-1")
		expectStatus(t, err, 404)
	})
}

func TestCreateRoomBootstrapsAdmin(t *testing.T) {
	var insertedRoles []store.Role
	var joined store.Member
	var attachedRole string
	fs := &fakeStore{
		insertRoleFn: func(_ context.Context, role store.Role) error {
			insertedRoles = append(insertedRoles, role)
			return nil
		},
		upsertMemberFn: func(_ context.Context, m store.Member) error {
			joined = m
			return nil
		},
		addMemberRoleFn: func(_ context.Context, _, _, roleID string) error {
			attachedRole = roleID
			return nil
		},
	}
	service := newTestService(t, fs)

	room, err := service.CreateRoom(context.Background(), Session{UserID: "user-1"}, RoomInput{Name: "General"})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if room.Name != "General" {
		t.Fatalf("unexpected room name %q", room.Name)
	}
	if len(insertedRoles) != 2 {
		t.Fatalf("expected 2 bootstrap roles, got %d", len(insertedRoles))
	}
	admin := insertedRoles[0]
	if admin.Name != "Admin" || len(admin.Permissions) != 1 || admin.Permissions[0] != "Admin" {
		t.Fatalf("expected bootstrap Admin role, got %+v", admin)
	}
	everyone := insertedRoles[1]
	if everyone.Name != "everyone" || !everyone.IsDefault {
		t.Fatalf("expected default everyone role, got %+v", everyone)
	}
	if joined.UserID != "user-1" || joined.State != store.MemberJoin {
		t.Fatalf("creator not joined: %+v", joined)
	}
	if attachedRole != admin.ID {
		t.Fatalf("admin role not attached to creator")
	}
}

func TestCreateMessageLockedThread(t *testing.T) {
	fs := &fakeStore{
		getThreadFn: func(_ context.Context, threadID string) (store.Thread, error) {
			return store.Thread{ID: threadID, RoomID: "room-1", IsLocked: true}, nil
		},
		memberPermissionsFn: joinedWith("MessageCreate"),
	}
	service := newTestService(t, fs)

	_, err := service.CreateMessage(context.Background(), Session{UserID: "user-1"}, "thread-1", MessageInput{Content: "hi"})
	expectStatus(t, err, 403)

	// ThreadManage bypasses the lock.
	fs.memberPermissionsFn = joinedWith("MessageCreate", "ThreadManage")
	if _, err := service.CreateMessage(context.Background(), Session{UserID: "user-1"}, "thread-1", MessageInput{Content: "hi"}); err != nil {
		t.Fatalf("CreateMessage with ThreadManage: %v", err)
	}
}

func TestEditMessageAuthorOnly(t *testing.T) {
	fs := &fakeStore{
		getThreadFn: func(_ context.Context, threadID string) (store.Thread, error) {
			return store.Thread{ID: threadID, RoomID: "room-1"}, nil
		},
		getMessageFn: func(_ context.Context, messageID string) (store.Message, error) {
			return store.Message{ID: messageID, VersionID: messageID, ThreadID: "thread-1", AuthorID: "author-1", Content: "original"}, nil
		},
		memberPermissionsFn: joinedWith("MessageCreate"),
	}
	service := newTestService(t, fs)

	t.Run("author can edit", func(t *testing.T) {
		msg, err := service.EditMessage(context.Background(), Session{UserID: "author-1"}, "thread-1", "msg-1", MessageInput{Content: "edited"})
		if err != nil {
			t.Fatalf("EditMessage: %v", err)
		}
		if msg.Content != "edited" {
			t.Fatalf("expected edited content, got %q", msg.Content)
		}
		if msg.VersionID == "msg-1" {
			t.Fatalf("edit must mint a new version id")
		}
	})

	t.Run("non-author cannot edit", func(t *testing.T) {
		_, err := service.EditMessage(context.Background(), Session{UserID: "user-2"}, "thread-1", "msg-1", MessageInput{Content: "hijack"})
		expectStatus(t, err, 403)
	})

	t.Run("admin can edit anyone", func(t *testing.T) {
		fs.memberPermissionsFn = joinedWith("Admin")
		if _, err := service.EditMessage(context.Background(), Session{UserID: "user-2"}, "thread-1", "msg-1", MessageInput{Content: "moderated"}); err != nil {
			t.Fatalf("EditMessage as admin: %v", err)
		}
	})
}

func TestPublishAfterWrite(t *testing.T) {
	t.Run("successful write publishes to the room topic", func(t *testing.T) {
		fs := &fakeStore{memberPermissionsFn: joinedWith("RoomManage")}
		service := newTestService(t, fs)
		sub := service.Bus().Subscribe(bus.Room("room-1"))
		defer sub.Close()

		if _, err := service.UpdateRoom(context.Background(), Session{UserID: "user-1"}, "room-1", RoomInput{Name: "Renamed"}); err != nil {
			t.Fatalf("UpdateRoom: %v", err)
		}

		select {
		case ev := <-sub.C():
			if ev.Type() != "upsert.room" {
				t.Fatalf("expected upsert.room, got %s", ev.Type())
			}
		case <-time.After(time.Second):
			t.Fatal("expected an event on the room topic")
		}
	})

	t.Run("failed write publishes nothing", func(t *testing.T) {
		fs := &fakeStore{
			memberPermissionsFn: joinedWith("RoomManage"),
			updateRoomFn: func(context.Context, store.Room) (store.Room, error) {
				return store.Room{}, errors.New("boom")
			},
		}
		service := newTestService(t, fs)
		sub := service.Bus().Subscribe(bus.Room("room-1"))
		defer sub.Close()

		if _, err := service.UpdateRoom(context.Background(), Session{UserID: "user-1"}, "room-1", RoomInput{Name: "Renamed"}); err == nil {
			t.Fatal("expected error")
		}

		select {
		case ev := <-sub.C():
			t.Fatalf("unexpected event %s after failed write", ev.Type())
		case <-time.After(50 * time.Millisecond):
		}
	})
}

func TestUseInvite(t *testing.T) {
	invite := store.Invite{Code: "abc123", TargetType: store.InviteTargetRoom, TargetID: "room-1", CreatorID: "user-9"}

	t.Run("join attaches default roles", func(t *testing.T) {
		var attached []string
		fs := &fakeStore{
			getInviteFn: func(context.Context, string) (store.Invite, error) { return invite, nil },
			getMemberFn: func(context.Context, string, string) (store.Member, error) {
				return store.Member{}, sql.ErrNoRows
			},
			defaultRoleIDsFn: func(context.Context, string) ([]string, error) {
				return []string{"role-a", "role-b"}, nil
			},
			addMemberRoleFn: func(_ context.Context, _, _, roleID string) error {
				attached = append(attached, roleID)
				return nil
			},
		}
		service := newTestService(t, fs)

		if _, err := service.UseInvite(context.Background(), Session{UserID: "user-1"}, "abc123"); err != nil {
			t.Fatalf("UseInvite: %v", err)
		}
		if len(attached) != 2 {
			t.Fatalf("expected 2 default roles attached, got %v", attached)
		}
	})

	t.Run("banned member cannot rejoin", func(t *testing.T) {
		fs := &fakeStore{
			getInviteFn: func(context.Context, string) (store.Invite, error) { return invite, nil },
			getMemberFn: func(context.Context, string, string) (store.Member, error) {
				return store.Member{RoomID: "room-1", UserID: "user-1", State: store.MemberBan}, nil
			},
		}
		service := newTestService(t, fs)

		_, err := service.UseInvite(context.Background(), Session{UserID: "user-1"}, "abc123")
		expectStatus(t, err, 403)
	})

	t.Run("unknown code is 404", func(t *testing.T) {
		service := newTestService(t, &fakeStore{})
		_, err := service.UseInvite(context.Background(), Session{UserID: "user-1"}, "nope")
		expectStatus(t, err, 404)
	})
}

func TestDeleteMeRequiresSudo(t *testing.T) {
	t.Run("standard session refused", func(t *testing.T) {
		service := newTestService(t, &fakeStore{})
		err := service.DeleteMe(context.Background(), Session{UserID: "user-1", Status: store.SessionStandard})
		expectStatus(t, err, 403)
	})

	t.Run("sudo session tombstones", func(t *testing.T) {
		tombstoned := ""
		service := newTestService(t, &fakeStore{
			tombstoneUserFn: func(_ context.Context, userID string) error {
				tombstoned = userID
				return nil
			},
		})
		err := service.DeleteMe(context.Background(), Session{UserID: "user-1", Status: store.SessionSudo})
		if err != nil {
			t.Fatalf("DeleteMe: %v", err)
		}
		if tombstoned != "user-1" {
			t.Fatalf("expected tombstone for user-1, got %q", tombstoned)
		}
	})
}

func TestGetUserVisibility(t *testing.T) {
	session := Session{UserID: "user-1"}

	t.Run("stranger hidden", func(t *testing.T) {
		service := newTestService(t, &fakeStore{
			usersShareRoomFn: func(context.Context, string, string) (bool, error) {
				return false, nil
			},
		})
		_, err := service.GetUser(context.Background(), session, "user-2")
		expectStatus(t, err, 404)
	})

	t.Run("shared room shows blanked email", func(t *testing.T) {
		service := newTestService(t, &fakeStore{
			getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
				return store.User{ID: id, DisplayName: "Someone", Email: "someone@example.com"}, nil
			},
		})
		user, err := service.GetUser(context.Background(), session, "user-2")
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if user.Email != "" {
			t.Fatalf("email should be blanked, got %q", user.Email)
		}
	})

	t.Run("tombstoned user attributes by id only", func(t *testing.T) {
		deleted := time.Now()
		service := newTestService(t, &fakeStore{
			getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
				return store.User{ID: id, DisplayName: "Someone", Email: "someone@example.com", DeletedAt: &deleted}, nil
			},
		})
		user, err := service.GetUser(context.Background(), session, "user-2")
		if err != nil {
			t.Fatalf("GetUser: %v", err)
		}
		if user.DisplayName != "Deleted user" || user.Email != "" {
			t.Fatalf("tombstoned profile leaked fields: %+v", user)
		}
	})
}

func TestRoleAssignment(t *testing.T) {
	session := Session{UserID: "user-1"}

	t.Run("RoleApply self-assigns a self-applicable role", func(t *testing.T) {
		fs := &fakeStore{
			memberPermissionsFn: joinedWith("RoleApply"),
			getRoleFn: func(_ context.Context, roomID, roleID string) (store.Role, error) {
				return store.Role{ID: roleID, RoomID: roomID, IsSelfApplicable: true}, nil
			},
		}
		service := newTestService(t, fs)
		if err := service.AssignRole(context.Background(), session, "room-1", "user-1", "role-1"); err != nil {
			t.Fatalf("AssignRole: %v", err)
		}
	})

	t.Run("RoleApply cannot assign to others", func(t *testing.T) {
		fs := &fakeStore{
			memberPermissionsFn: joinedWith("RoleApply"),
			getRoleFn: func(_ context.Context, roomID, roleID string) (store.Role, error) {
				return store.Role{ID: roleID, RoomID: roomID, IsSelfApplicable: true}, nil
			},
		}
		service := newTestService(t, fs)
		err := service.AssignRole(context.Background(), session, "room-1", "user-2", "role-1")
		expectStatus(t, err, 403)
	})

	t.Run("RoleApply cannot self-assign a locked role", func(t *testing.T) {
		fs := &fakeStore{
			memberPermissionsFn: joinedWith("RoleApply"),
			getRoleFn: func(_ context.Context, roomID, roleID string) (store.Role, error) {
				return store.Role{ID: roleID, RoomID: roomID, IsSelfApplicable: false}, nil
			},
		}
		service := newTestService(t, fs)
		err := service.AssignRole(context.Background(), session, "room-1", "user-1", "role-1")
		expectStatus(t, err, 403)
	})

	t.Run("MemberManage assigns anything", func(t *testing.T) {
		fs := &fakeStore{
			memberPermissionsFn: joinedWith("MemberManage"),
			getRoleFn: func(_ context.Context, roomID, roleID string) (store.Role, error) {
				return store.Role{ID: roleID, RoomID: roomID}, nil
			},
		}
		service := newTestService(t, fs)
		if err := service.AssignRole(context.Background(), session, "room-1", "user-2", "role-1"); err != nil {
			t.Fatalf("AssignRole: %v", err)
		}
	})

	t.Run("RoleManage alone does not grant to others", func(t *testing.T) {
		fs := &fakeStore{
			memberPermissionsFn: joinedWith("RoleManage"),
			getRoleFn: func(_ context.Context, roomID, roleID string) (store.Role, error) {
				return store.Role{ID: roleID, RoomID: roomID}, nil
			},
		}
		service := newTestService(t, fs)
		err := service.AssignRole(context.Background(), session, "room-1", "user-2", "role-1")
		expectStatus(t, err, 403)
	})
}

func TestListInvitesScopedToCreator(t *testing.T) {
	session := Session{UserID: "user-1"}

	t.Run("plain member lists only own codes", func(t *testing.T) {
		var gotCreator string
		fs := &fakeStore{
			memberPermissionsFn: joinedWith(),
			listTargetInvitesFn: func(_ context.Context, _, creatorID string, _ pagination.Window) ([]store.Invite, int, error) {
				gotCreator = creatorID
				return []store.Invite{{Code: "abc", CreatorID: creatorID}}, 1, nil
			},
		}
		service := newTestService(t, fs)
		page, err := service.ListInvites(context.Background(), session, "room-1", pagination.Cursor{})
		if err != nil {
			t.Fatalf("ListInvites: %v", err)
		}
		if gotCreator != "user-1" {
			t.Fatalf("expected creator filter user-1, got %q", gotCreator)
		}
		if len(page.Items) != 1 {
			t.Fatalf("expected 1 invite, got %d", len(page.Items))
		}
	})

	t.Run("InviteManage lists every code", func(t *testing.T) {
		var gotCreator string
		fs := &fakeStore{
			memberPermissionsFn: joinedWith("InviteManage"),
			listTargetInvitesFn: func(_ context.Context, _, creatorID string, _ pagination.Window) ([]store.Invite, int, error) {
				gotCreator = creatorID
				return nil, 0, nil
			},
		}
		service := newTestService(t, fs)
		if _, err := service.ListInvites(context.Background(), session, "room-1", pagination.Cursor{}); err != nil {
			t.Fatalf("ListInvites: %v", err)
		}
		if gotCreator != "" {
			t.Fatalf("expected unfiltered listing, got creator %q", gotCreator)
		}
	})
}

func TestMediaLifecycle(t *testing.T) {
	session := Session{UserID: "user-1"}
	record := func(id, owner string) func(context.Context, string) (store.Media, error) {
		return func(context.Context, string) (store.Media, error) {
			return store.Media{ID: id, UserID: owner, Filename: "report.pdf"}, nil
		}
	}

	t.Run("confirm records the uploaded size", func(t *testing.T) {
		var recorded int64
		fs := &fakeStore{
			getMediaFn: record("media-1", "user-1"),
			updateMediaSizeFn: func(_ context.Context, _ string, size int64) error {
				recorded = size
				return nil
			},
		}
		service := newTestService(t, fs)
		service.media = &fakeMedia{sizes: map[string]int64{"media-1": 2048}}

		m, err := service.ConfirmMedia(context.Background(), session, "media-1")
		if err != nil {
			t.Fatalf("ConfirmMedia: %v", err)
		}
		if m.Size != 2048 || recorded != 2048 {
			t.Fatalf("expected size 2048, got %d (stored %d)", m.Size, recorded)
		}
	})

	t.Run("confirm without an uploaded object", func(t *testing.T) {
		service := newTestService(t, &fakeStore{getMediaFn: record("media-1", "user-1")})
		service.media = &fakeMedia{}
		_, err := service.ConfirmMedia(context.Background(), session, "media-1")
		expectStatus(t, err, 422)
	})

	t.Run("only the uploader confirms or deletes", func(t *testing.T) {
		service := newTestService(t, &fakeStore{getMediaFn: record("media-1", "user-2")})
		service.media = &fakeMedia{sizes: map[string]int64{"media-1": 1}}
		_, err := service.ConfirmMedia(context.Background(), session, "media-1")
		expectStatus(t, err, 403)
		expectStatus(t, service.DeleteMedia(context.Background(), session, "media-1"), 403)
	})

	t.Run("delete removes the object", func(t *testing.T) {
		fm := &fakeMedia{sizes: map[string]int64{"media-1": 1}}
		service := newTestService(t, &fakeStore{getMediaFn: record("media-1", "user-1")})
		service.media = fm
		if err := service.DeleteMedia(context.Background(), session, "media-1"); err != nil {
			t.Fatalf("DeleteMedia: %v", err)
		}
		if len(fm.deleted) != 1 || fm.deleted[0] != "media-1" {
			t.Fatalf("object not removed from storage: %v", fm.deleted)
		}
	})

	t.Run("unconfigured storage refuses", func(t *testing.T) {
		service := newTestService(t, &fakeStore{})
		_, err := service.ConfirmMedia(context.Background(), session, "media-1")
		expectStatus(t, err, 503)
	})
}

func TestCreateRoleValidatesPermissions(t *testing.T) {
	service := newTestService(t, &fakeStore{
		memberPermissionsFn: joinedWith("RoleManage"),
	})

	t.Run("unknown permission rejected", func(t *testing.T) {
		_, err := service.CreateRole(context.Background(), Session{UserID: "user-1"}, "room-1", RoleInput{
			Name:        "Broken",
			Permissions: []string{"FlyToTheMoon"},
		})
		expectStatus(t, err, 422)
	})

	t.Run("system permission not assignable", func(t *testing.T) {
		_, err := service.CreateRole(context.Background(), Session{UserID: "user-1"}, "room-1", RoleInput{
			Name:        "Broken",
			Permissions: []string{"View"},
		})
		expectStatus(t, err, 422)
	})

	t.Run("valid role accepted", func(t *testing.T) {
		role, err := service.CreateRole(context.Background(), Session{UserID: "user-1"}, "room-1", RoleInput{
			Name:        "Moderator",
			Permissions: []string{"MessageDelete", "MemberKick"},
		})
		if err != nil {
			t.Fatalf("CreateRole: %v", err)
		}
		if role.RoomID != "room-1" || role.ID == "" {
			t.Fatalf("unexpected role %+v", role)
		}
	})
}

func TestSessionLifecycle(t *testing.T) {
	users := map[string]store.User{}
	fs := &fakeStore{
		createUserFn: func(_ context.Context, user store.User) error {
			users[user.ID] = user
			return nil
		},
		getUserByIDFn: func(_ context.Context, id string) (store.User, error) {
			user, ok := users[id]
			if !ok {
				return store.User{}, sql.ErrNoRows
			}
			return user, nil
		},
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			for _, user := range users {
				if user.Email == email {
					return user, nil
				}
			}
			return store.User{}, sql.ErrNoRows
		},
	}
	service := newTestService(t, fs)
	ctx := context.Background()

	session, err := service.SignUp(ctx, authpw.SignUpRequest{
		Email:       "ada@example.com",
		Password:    "hunter2hunter2",
		DisplayName: "Ada",
	})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	if session.Token == "" {
		t.Fatal("expected a session token")
	}

	resolved, err := service.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken: %v", err)
	}
	if resolved.UserID != session.UserID || resolved.UserName != "Ada" {
		t.Fatalf("unexpected session %+v", resolved)
	}
	if resolved.IsSudo() {
		t.Fatal("fresh session must not be sudo")
	}

	if err := service.Sudo(ctx, resolved, "hunter2hunter2"); err != nil {
		t.Fatalf("Sudo: %v", err)
	}
	elevated, err := service.SessionFromToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("SessionFromToken after sudo: %v", err)
	}
	if !elevated.IsSudo() {
		t.Fatal("expected sudo session")
	}

	if err := service.Logout(ctx, elevated); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := service.SessionFromToken(ctx, session.Token); err == nil {
		t.Fatal("token must be dead after logout")
	}
}
