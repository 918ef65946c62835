package controllers

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/square/go-jose.v2"

	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/middlewares"
	"wisdomwalk/pkg/repo/driver/medium"
	"wisdomwalk/pkg/repo/memory"
	"wisdomwalk/pkg/usecases"
	"wisdomwalk/utilities/jwt"
)

var keysOnce sync.Once

func setupKeys(t *testing.T) {
	t.Helper()
	keysOnce.Do(func() {
		rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatal(err)
		}
		pvt := &jose.JSONWebKey{Key: rsaKey, KeyID: "ctl", Algorithm: string(jose.RS256), Use: "sig"}
		pub := &jose.JSONWebKey{Key: &rsaKey.PublicKey, KeyID: "ctl", Algorithm: string(jose.RS256), Use: "sig"}
		jwt.SetKeyPair(pvt, pub, "wisdomwalk-test")
	})
}

var testSettings = usecases.ChatSettings{
	EditWindow:       15 * time.Minute,
	MaxContentLength: 2000,
	PageSize:         50,
	InviteLinkLength: 16,
}

type body struct {
	Success            bool                         `json:"success"`
	Message            string                       `json:"message"`
	Error              string                       `json:"error"`
	Data               json.RawMessage              `json:"data"`
	PaginationMetaData *entities.PaginationMetaData `json:"pagination_meta_data"`
}

func (b body) decode(t *testing.T, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(b.Data, out); err != nil {
		t.Fatalf("decode %s: %v", string(b.Data), err)
	}
}

type harness struct {
	router *gin.Engine
	store  *memory.Store
	ws     *medium.Socket
	tokens map[string]string
	failDB bool
}

type healthStore struct {
	*memory.Store
	h *harness
}

func (s healthStore) DBHealthCheck(ctx context.Context) error {
	if s.h.failDB {
		return errors.New("connection refused")
	}
	return s.Store.DBHealthCheck(ctx)
}

func newHarness(t *testing.T, users ...string) *harness {
	t.Helper()
	setupKeys(t)
	gin.SetMode(gin.TestMode)

	ctx := context.Background()
	store := memory.NewStore()
	h := &harness{store: store, tokens: map[string]string{}, ws: medium.NewWebSocket(time.Hour)}

	for _, id := range users {
		err := store.UpsertUser(ctx, &entities.User{
			ID:            id,
			Name:          id,
			Email:         id + "@example.com",
			EmailVerified: true,
			AdminVerified: true,
			Status:        consts.UserStatusActive,
		})
		if err != nil {
			t.Fatal(err)
		}
		tok, _, err := jwt.GenerateJWT(id, "user", time.Hour)
		if err != nil {
			t.Fatal(err)
		}
		h.tokens[id] = tok
	}

	notifications := usecases.NewNotificationUsecases(store, store, nil, nil, h.ws, nil, 50)
	chat := usecases.NewChatUseCases(store, store, store, store, notifications, testSettings)
	groups := usecases.NewGroupUseCases(store, store, chat, notifications, h.ws, testSettings)
	useCases := usecases.NewUseCases(healthStore{Store: store, h: h}, store)
	usecases.NewGatewayUseCases(chat, h.ws)

	m := middlewares.NewMiddlewares(useCases)
	h.router = gin.New()
	api := h.router.Group("/api/v1")

	NewController(api, useCases, m).InitRoutes()
	NewChatController(api, chat, m).InitRoutes()
	NewGroupController(api, groups, m).InitRoutes()
	NewNotificationController(api, notifications, m).InitRoutes()
	NewUserController(api, usecases.NewUserUseCases(store), m).InitRoutes()
	NewGatewayController(api, h.ws, m, 1024, 1024).InitRoutes()

	return h
}

// do sends a request as user. A string payload is sent verbatim.
func (h *harness) do(t *testing.T, method, path, user string, payload interface{}) (int, body) {
	t.Helper()

	var reader io.Reader
	switch p := payload.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(p)
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewBuffer(raw)
	}

	req := httptest.NewRequest(method, "/api/v1"+path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+h.tokens[user])
	}

	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)

	out := body{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: invalid body %q", method, path, rec.Body.String())
	}
	return rec.Code, out
}

func (h *harness) direct(t *testing.T, user, other string) *entities.Conversation {
	t.Helper()
	code, res := h.do(t, http.MethodPost, "/chats/direct", user, entities.DirectConversationRequest{UserID: other})
	if code != http.StatusOK {
		t.Fatalf("direct conversation status = %d (%s)", code, res.Message)
	}
	conv := &entities.Conversation{}
	res.decode(t, conv)
	return conv
}

func TestHealthRoutes(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name   string
		path   string
		failDB bool
		status int
	}{
		{name: "root", path: "/", status: http.StatusOK},
		{name: "health", path: "/health", status: http.StatusOK},
		{name: "db health", path: "/db/health", status: http.StatusOK},
		{name: "db down", path: "/db/health", failDB: true, status: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.failDB = tt.failDB
			code, res := h.do(t, http.MethodGet, tt.path, "", nil)
			if code != tt.status {
				t.Errorf("status = %d, want %d", code, tt.status)
			}
			if res.Success != (tt.status == http.StatusOK) {
				t.Errorf("success = %v", res.Success)
			}
		})
	}
}

func TestRoutesRequireToken(t *testing.T) {
	h := newHarness(t, "alice")

	for _, path := range []string{"/chats", "/groups", "/notifications", "/users/me"} {
		t.Run(path, func(t *testing.T) {
			code, res := h.do(t, http.MethodGet, path, "", nil)
			if code != http.StatusUnauthorized || res.Success {
				t.Errorf("status = %d, success = %v", code, res.Success)
			}
		})
	}
}

func TestDirectChatFlow(t *testing.T) {
	h := newHarness(t, "alice", "bob", "carol")
	conv := h.direct(t, "alice", "bob")

	for _, content := range []string{"peace be with you", "and also with you"} {
		code, res := h.do(t, http.MethodPost, "/chats/"+conv.ID+"/messages", "alice", entities.SendMessageRequest{Content: content})
		if code != http.StatusCreated {
			t.Fatalf("send status = %d (%s)", code, res.Message)
		}
	}

	code, res := h.do(t, http.MethodGet, "/chats/"+conv.ID+"/unread", "bob", nil)
	unread := entities.UnreadCount{}
	res.decode(t, &unread)
	if code != http.StatusOK || unread.Count != 2 {
		t.Fatalf("unread = %+v (status %d)", unread, code)
	}

	code, res = h.do(t, http.MethodGet, "/chats", "bob", nil)
	summaries := []entities.ConversationSummary{}
	res.decode(t, &summaries)
	if code != http.StatusOK || len(summaries) != 1 || summaries[0].UnreadCount != 2 {
		t.Fatalf("conversations = %+v", summaries)
	}
	if summaries[0].LastMessage == nil || summaries[0].LastMessage.Content != "and also with you" {
		t.Errorf("last message = %+v", summaries[0].LastMessage)
	}

	code, res = h.do(t, http.MethodPost, "/chats/"+conv.ID+"/read", "bob", nil)
	read := entities.UnreadCount{}
	res.decode(t, &read)
	if code != http.StatusOK || read.Count != 2 {
		t.Fatalf("read = %+v (status %d)", read, code)
	}

	_, res = h.do(t, http.MethodGet, "/chats/"+conv.ID+"/unread", "bob", nil)
	res.decode(t, &unread)
	if unread.Count != 0 {
		t.Errorf("unread after read = %d", unread.Count)
	}

	code, res = h.do(t, http.MethodGet, "/chats/"+conv.ID+"/messages?limit=1", "bob", nil)
	messages := []entities.Message{}
	res.decode(t, &messages)
	if code != http.StatusOK || len(messages) != 1 || messages[0].Content != "and also with you" {
		t.Errorf("paged messages = %+v", messages)
	}

	code, _ = h.do(t, http.MethodGet, "/chats/"+conv.ID+"/messages", "carol", nil)
	if code != http.StatusNotFound {
		t.Errorf("outsider status = %d, want 404", code)
	}
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t, "alice", "bob")
	conv := h.direct(t, "alice", "bob")
	path := "/chats/" + conv.ID + "/messages"

	tests := []struct {
		name    string
		payload interface{}
		status  int
	}{
		{name: "ok", payload: `{"content":"hello"}`, status: http.StatusCreated},
		{name: "unknown field", payload: `{"content":"hello","sender_id":"mallory"}`, status: http.StatusBadRequest},
		{name: "malformed json", payload: `{"content":`, status: http.StatusBadRequest},
		{name: "empty content", payload: `{"content":"  "}`, status: http.StatusBadRequest},
		{name: "bad type", payload: `{"content":"hi","type":"sermon"}`, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, res := h.do(t, http.MethodPost, path, "alice", tt.payload)
			if code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", code, tt.status, res.Message)
			}
			if code != http.StatusCreated && (res.Success || res.Message == "") {
				t.Errorf("error body = %+v", res)
			}
		})
	}

	code, _ := h.do(t, http.MethodGet, "/chats/"+conv.ID+"/messages?limit=abc", "alice", nil)
	if code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", code)
	}
}

func TestMessageRoutes(t *testing.T) {
	h := newHarness(t, "alice", "bob")
	conv := h.direct(t, "alice", "bob")

	_, res := h.do(t, http.MethodPost, "/chats/"+conv.ID+"/messages", "alice", entities.SendMessageRequest{Content: "first draft"})
	msg := entities.Message{}
	res.decode(t, &msg)

	code, res := h.do(t, http.MethodPut, "/messages/"+msg.ID, "bob", entities.EditMessageRequest{Content: "hijack"})
	if code != http.StatusForbidden {
		t.Errorf("edit by other status = %d", code)
	}

	code, res = h.do(t, http.MethodPut, "/messages/"+msg.ID, "alice", entities.EditMessageRequest{Content: "final"})
	edited := entities.Message{}
	res.decode(t, &edited)
	if code != http.StatusOK || edited.Content != "final" || !edited.IsEdited {
		t.Errorf("edited = %+v", edited)
	}

	for _, want := range []string{consts.ReactionAdded, consts.ReactionRemoved} {
		code, res = h.do(t, http.MethodPost, "/messages/"+msg.ID+"/reaction", "bob", entities.ReactionRequest{Emoji: "🙏"})
		reaction := entities.ReactionResult{}
		res.decode(t, &reaction)
		if code != http.StatusOK || reaction.Action != want {
			t.Errorf("reaction = %+v, want %s", reaction, want)
		}
	}

	code, _ = h.do(t, http.MethodPost, "/chats/"+conv.ID+"/pin/"+msg.ID, "bob", nil)
	if code != http.StatusOK {
		t.Errorf("pin status = %d", code)
	}
	_, res = h.do(t, http.MethodGet, "/chats/"+conv.ID, "alice", nil)
	got := entities.Conversation{}
	res.decode(t, &got)
	if !got.IsPinned(msg.ID) {
		t.Errorf("pinned = %v", got.PinnedMessageIDs)
	}
	code, _ = h.do(t, http.MethodDelete, "/chats/"+conv.ID+"/pin/"+msg.ID, "bob", nil)
	if code != http.StatusOK {
		t.Errorf("unpin status = %d", code)
	}

	code, res = h.do(t, http.MethodGet, "/chats/"+conv.ID+"/messages/search?q=FIN", "bob", nil)
	found := []entities.Message{}
	res.decode(t, &found)
	if code != http.StatusOK || len(found) != 1 {
		t.Errorf("search = %+v", found)
	}

	code, _ = h.do(t, http.MethodDelete, "/messages/"+msg.ID, "alice", nil)
	if code != http.StatusOK {
		t.Errorf("delete status = %d", code)
	}
	code, _ = h.do(t, http.MethodPut, "/messages/unknown", "alice", entities.EditMessageRequest{Content: "x"})
	if code != http.StatusNotFound && code != http.StatusBadRequest {
		t.Errorf("edit unknown status = %d", code)
	}
}

func TestConversationMuteAndDelete(t *testing.T) {
	h := newHarness(t, "alice", "bob")
	conv := h.direct(t, "alice", "bob")

	code, _ := h.do(t, http.MethodPost, "/chats/"+conv.ID+"/mute", "bob", nil)
	if code != http.StatusOK {
		t.Fatalf("mute status = %d", code)
	}
	h.do(t, http.MethodPost, "/chats/"+conv.ID+"/messages", "alice", entities.SendMessageRequest{Content: "quiet"})

	_, res := h.do(t, http.MethodGet, "/notifications/unread-count", "bob", nil)
	count := entities.NotificationCount{}
	res.decode(t, &count)
	if count.Unread != 0 {
		t.Errorf("muted participant notified, unread = %d", count.Unread)
	}

	code, _ = h.do(t, http.MethodPost, "/chats/"+conv.ID+"/unmute", "bob", nil)
	if code != http.StatusOK {
		t.Fatalf("unmute status = %d", code)
	}

	code, _ = h.do(t, http.MethodDelete, "/chats/"+conv.ID, "alice", nil)
	if code != http.StatusOK {
		t.Errorf("delete status = %d", code)
	}
}

func TestGroupRoutes(t *testing.T) {
	h := newHarness(t, "alice", "bob", "carol", "dave")

	code, res := h.do(t, http.MethodPost, "/groups", "alice", entities.CreateGroupRequest{
		Name:     "Morning prayer",
		Members:  []string{"bob"},
		Settings: &entities.GroupSettings{IsPrivate: true},
	})
	if code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", code, res.Message)
	}
	group := entities.Group{}
	res.decode(t, &group)
	if group.InviteLink == "" || !group.IsAdmin("alice") {
		t.Fatalf("created group = %+v", group)
	}
	base := "/groups/" + group.ID

	code, _ = h.do(t, http.MethodPost, base+"/join", "carol", nil)
	if code != http.StatusNotFound {
		t.Errorf("direct join of private group status = %d", code)
	}
	code, _ = h.do(t, http.MethodPost, "/groups/join/"+group.InviteLink, "carol", nil)
	if code != http.StatusOK {
		t.Errorf("invite join status = %d", code)
	}

	code, res = h.do(t, http.MethodGet, base, "bob", nil)
	seen := entities.Group{}
	res.decode(t, &seen)
	if code != http.StatusOK || seen.InviteLink != "" {
		t.Errorf("member view = %+v", seen)
	}

	code, _ = h.do(t, http.MethodPost, base+"/members", "bob", entities.AddMembersRequest{Users: []string{"dave"}})
	if code != http.StatusForbidden {
		t.Errorf("add by member status = %d", code)
	}
	code, _ = h.do(t, http.MethodPost, base+"/members", "alice", entities.AddMembersRequest{Users: []string{"dave"}})
	if code != http.StatusOK {
		t.Errorf("add by admin status = %d", code)
	}

	code, res = h.do(t, http.MethodGet, base+"/members", "dave", nil)
	members := []entities.GroupMember{}
	res.decode(t, &members)
	if code != http.StatusOK || len(members) != 4 {
		t.Errorf("members = %+v", members)
	}

	code, _ = h.do(t, http.MethodPost, base+"/members/carol/mute", "alice", nil)
	if code != http.StatusOK {
		t.Fatalf("mute member status = %d", code)
	}
	code, _ = h.do(t, http.MethodPost, base+"/messages", "carol", entities.SendMessageRequest{Content: "hello"})
	if code != http.StatusForbidden {
		t.Errorf("muted member send status = %d", code)
	}
	h.do(t, http.MethodDelete, base+"/members/carol/mute", "alice", nil)
	code, _ = h.do(t, http.MethodPost, base+"/messages", "carol", entities.SendMessageRequest{Content: "hello"})
	if code != http.StatusCreated {
		t.Errorf("unmuted member send status = %d", code)
	}

	code, res = h.do(t, http.MethodGet, base+"/messages", "dave", nil)
	messages := []entities.Message{}
	res.decode(t, &messages)
	if code != http.StatusOK || len(messages) != 1 {
		t.Errorf("group messages = %+v", messages)
	}

	code, res = h.do(t, http.MethodPost, base+"/posts/post-1/pin", "alice", nil)
	pinned := entities.PinnedPostResult{}
	res.decode(t, &pinned)
	if code != http.StatusOK || !pinned.Pinned {
		t.Errorf("pinned post = %+v", pinned)
	}

	code, _ = h.do(t, http.MethodDelete, base+"/members/dave", "alice", nil)
	if code != http.StatusOK {
		t.Errorf("remove status = %d", code)
	}
	code, _ = h.do(t, http.MethodPost, base+"/leave", "carol", nil)
	if code != http.StatusOK {
		t.Errorf("leave status = %d", code)
	}

	code, res = h.do(t, http.MethodPost, base+"/invite-link", "alice", nil)
	link := map[string]string{}
	res.decode(t, &link)
	if code != http.StatusOK || link["invite_link"] == "" || link["invite_link"] == group.InviteLink {
		t.Errorf("regenerated link = %v", link)
	}
	code, _ = h.do(t, http.MethodPost, "/groups/join/"+group.InviteLink, "dave", nil)
	if code != http.StatusNotFound {
		t.Errorf("old invite status = %d", code)
	}

	code, res = h.do(t, http.MethodGet, "/groups", "bob", nil)
	groups := []entities.Group{}
	res.decode(t, &groups)
	if code != http.StatusOK || len(groups) != 1 {
		t.Errorf("bob groups = %+v", groups)
	}
}

// An admin demoting the creator leaves the creator unable to manage the
// group.
func TestGroupCreatorDemotion(t *testing.T) {
	h := newHarness(t, "alice", "bob")

	_, res := h.do(t, http.MethodPost, "/groups", "alice", entities.CreateGroupRequest{Name: "Elders", Members: []string{"bob"}})
	group := entities.Group{}
	res.decode(t, &group)
	base := "/groups/" + group.ID

	if code, _ := h.do(t, http.MethodPost, base+"/admins/bob", "alice", nil); code != http.StatusOK {
		t.Fatalf("promote status = %d", code)
	}
	if code, _ := h.do(t, http.MethodDelete, base+"/admins/alice", "bob", nil); code != http.StatusOK {
		t.Fatalf("demote creator status = %d", code)
	}

	name := "Renamed"
	code, _ := h.do(t, http.MethodPut, base, "alice", entities.UpdateGroupRequest{Name: &name})
	if code != http.StatusForbidden {
		t.Errorf("demoted creator update status = %d", code)
	}
	code, res = h.do(t, http.MethodPut, base, "bob", entities.UpdateGroupRequest{Name: &name})
	updated := entities.Group{}
	res.decode(t, &updated)
	if code != http.StatusOK || updated.Name != name {
		t.Errorf("admin update = %+v", updated)
	}

	if code, _ := h.do(t, http.MethodDelete, base, "bob", nil); code != http.StatusForbidden {
		t.Errorf("non creator delete status = %d", code)
	}
	if code, _ := h.do(t, http.MethodDelete, base, "alice", nil); code != http.StatusOK {
		t.Errorf("creator delete status = %d", code)
	}
}

func TestNotificationRoutes(t *testing.T) {
	h := newHarness(t, "alice", "bob")
	conv := h.direct(t, "alice", "bob")
	for _, content := range []string{"one", "two", "three"} {
		h.do(t, http.MethodPost, "/chats/"+conv.ID+"/messages", "alice", entities.SendMessageRequest{Content: content})
	}

	code, res := h.do(t, http.MethodGet, "/notifications?page_size=2", "bob", nil)
	page := []entities.Notification{}
	res.decode(t, &page)
	if code != http.StatusOK || len(page) != 2 || res.PaginationMetaData == nil {
		t.Fatalf("first page = %+v", page)
	}
	if page[0].Type != consts.NotificationMessage || page[0].Recipient != "bob" {
		t.Errorf("notification = %+v", page[0])
	}

	_, res = h.do(t, http.MethodGet, "/notifications?page_size=2&page_state="+res.PaginationMetaData.Next, "bob", nil)
	rest := []entities.Notification{}
	res.decode(t, &rest)
	if len(rest) != 1 || rest[0].ID == page[0].ID || rest[0].ID == page[1].ID {
		t.Errorf("second page = %+v", rest)
	}

	code, _ = h.do(t, http.MethodGet, "/notifications?page_state=!!!", "bob", nil)
	if code != http.StatusBadRequest {
		t.Errorf("bad page state status = %d", code)
	}

	if code, _ := h.do(t, http.MethodPut, "/notifications/"+page[0].ID+"/read", "bob", nil); code != http.StatusOK {
		t.Errorf("mark read status = %d", code)
	}
	if code, _ := h.do(t, http.MethodPut, "/notifications/not-an-id/read", "bob", nil); code != http.StatusBadRequest {
		t.Errorf("mark invalid id status = %d", code)
	}

	_, res = h.do(t, http.MethodGet, "/notifications/unread-count", "bob", nil)
	count := entities.NotificationCount{}
	res.decode(t, &count)
	if count.Unread != 2 {
		t.Errorf("unread = %d, want 2", count.Unread)
	}

	_, res = h.do(t, http.MethodPut, "/notifications/read-all", "bob", nil)
	updated := map[string]int{}
	res.decode(t, &updated)
	if updated["updated"] != 2 {
		t.Errorf("read all = %v", updated)
	}

	if code, _ := h.do(t, http.MethodDelete, "/notifications/"+page[0].ID, "bob", nil); code != http.StatusOK {
		t.Errorf("delete status = %d", code)
	}
}

func TestUserRoutes(t *testing.T) {
	h := newHarness(t, "alice", "bob")

	code, res := h.do(t, http.MethodGet, "/users/me", "alice", nil)
	me := entities.User{}
	res.decode(t, &me)
	if code != http.StatusOK || me.ID != "alice" {
		t.Errorf("me = %+v", me)
	}

	if code, _ := h.do(t, http.MethodPost, "/users/bob/block", "alice", nil); code != http.StatusOK {
		t.Fatalf("block status = %d", code)
	}
	if code, _ := h.do(t, http.MethodPost, "/users/alice/block", "alice", nil); code != http.StatusBadRequest {
		t.Errorf("self block status = %d", code)
	}

	_, res = h.do(t, http.MethodGet, "/users/blocked", "alice", nil)
	blocked := []entities.User{}
	res.decode(t, &blocked)
	if len(blocked) != 1 || blocked[0].ID != "bob" {
		t.Errorf("blocked = %+v", blocked)
	}

	code, _ = h.do(t, http.MethodPost, "/chats/direct", "bob", entities.DirectConversationRequest{UserID: "alice"})
	if code != http.StatusForbidden {
		t.Errorf("conversation with blocker status = %d", code)
	}

	if code, _ := h.do(t, http.MethodDelete, "/users/bob/block", "alice", nil); code != http.StatusOK {
		t.Errorf("unblock status = %d", code)
	}

	if code, _ := h.do(t, http.MethodPost, "/users/devices", "alice", entities.DeviceRequest{DeviceID: "fcm-token"}); code != http.StatusOK {
		t.Errorf("register device status = %d", code)
	}
	if code, _ := h.do(t, http.MethodPost, "/users/devices", "alice", `{}`); code != http.StatusBadRequest {
		t.Errorf("empty device status = %d", code)
	}
}
