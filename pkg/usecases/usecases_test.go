package usecases

import (
	"context"
	"sync"
	"testing"
	"time"

	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/repo/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	store         *memory.Store
	clock         *fakeClock
	notifications *NotificationUsecases
	chat          *ChatUseCases
	groups        *GroupUseCases
	users         *UserUseCases
}

var testSettings = ChatSettings{
	EditWindow:       15 * time.Minute,
	MaxContentLength: 2000,
	PageSize:         50,
	InviteLinkLength: 16,
}

func activeUser(id string) *entities.User {
	return &entities.User{
		ID:            id,
		Name:          id,
		Email:         id + "@example.com",
		EmailVerified: true,
		AdminVerified: true,
		Status:        consts.UserStatusActive,
	}
}

func newFixture(t *testing.T, settings ChatSettings, users ...string) *fixture {
	t.Helper()

	store := memory.NewStore()
	for _, u := range users {
		if err := store.UpsertUser(context.Background(), activeUser(u)); err != nil {
			t.Fatalf("UpsertUser(%s) error = %v", u, err)
		}
	}

	clock := newFakeClock()
	notifications := NewNotificationUsecases(store, store, nil, nil, nil, nil, 20).(*NotificationUsecases)

	chat := NewChatUseCases(store, store, store, store, notifications, settings).(*ChatUseCases)
	chat.now = clock.Now

	groups := NewGroupUseCases(store, store, chat, notifications, nil, settings).(*GroupUseCases)
	groups.now = clock.Now

	return &fixture{
		store:         store,
		clock:         clock,
		notifications: notifications,
		chat:          chat,
		groups:        groups,
		users:         NewUserUseCases(store).(*UserUseCases),
	}
}

func (f *fixture) direct(t *testing.T, a, b string) *entities.Conversation {
	t.Helper()
	conv, err := f.chat.FindOrCreateDirectConversation(context.Background(), a, b)
	if err != nil {
		t.Fatalf("FindOrCreateDirectConversation(%s, %s) error = %v", a, b, err)
	}
	return conv
}

func (f *fixture) send(t *testing.T, user, conv, content string) *entities.Message {
	t.Helper()
	msg, err := f.chat.SendMessage(context.Background(), user, conv, entities.SendMessageRequest{Content: content})
	if err != nil {
		t.Fatalf("SendMessage(%s) error = %v", user, err)
	}
	return msg
}

func assertKind(t *testing.T, err error, want entities.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := entities.KindOf(err); got != want {
		t.Fatalf("error kind = %s, want %s (%v)", got, want, err)
	}
}

func TestVerifyUserAccess(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	unverified := activeUser("unverified")
	unverified.AdminVerified = false
	banned := activeUser("banned")
	banned.Status = consts.UserStatusBanned

	for _, u := range []*entities.User{activeUser("alice"), unverified, banned} {
		if err := store.UpsertUser(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	usecase := NewUseCases(store, store)

	tests := []struct {
		name    string
		user    string
		wantErr bool
		kind    entities.ErrorKind
	}{
		{name: "active and verified", user: "alice"},
		{name: "unknown user", user: "ghost", wantErr: true, kind: entities.KindAuthentication},
		{name: "not verified by an admin", user: "unverified", wantErr: true, kind: entities.KindAccessDenied},
		{name: "banned", user: "banned", wantErr: true, kind: entities.KindAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := usecase.VerifyUserAccess(ctx, tt.user)
			if tt.wantErr {
				assertKind(t, err, tt.kind)
				return
			}
			if err != nil {
				t.Fatalf("VerifyUserAccess() error = %v", err)
			}
			if user.ID != tt.user {
				t.Errorf("VerifyUserAccess() id = %s, want %s", user.ID, tt.user)
			}
		})
	}
}

func TestDBHealthHandler(t *testing.T) {
	store := memory.NewStore()
	if err := NewUseCases(store, store).DBHealthHandler(context.Background()); err != nil {
		t.Errorf("DBHealthHandler() error = %v", err)
	}
}
