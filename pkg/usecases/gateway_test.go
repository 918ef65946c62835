package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/repo/driver/medium"
)

type gatewayConn struct {
	mu      sync.Mutex
	written []entities.SocketEnvelope
	closed  chan struct{}
	once    sync.Once
}

func newGatewayConn() *gatewayConn {
	return &gatewayConn{closed: make(chan struct{})}
}

func (c *gatewayConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
}

func (c *gatewayConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errors.New("closed")
	default:
	}
	if messageType != websocket.TextMessage {
		return nil
	}

	envelope := entities.SocketEnvelope{}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, envelope)
	return nil
}

func (c *gatewayConn) SetReadDeadline(time.Time) error   { return nil }
func (c *gatewayConn) SetWriteDeadline(time.Time) error  { return nil }
func (c *gatewayConn) SetPongHandler(func(string) error) {}
func (c *gatewayConn) Close() error                      { c.once.Do(func() { close(c.closed) }); return nil }

// take returns and clears the frames written so far.
func (c *gatewayConn) take() []entities.SocketEnvelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.written
	c.written = nil
	return out
}

func events(frames []entities.SocketEnvelope) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.Event)
	}
	return out
}

func hasEvent(frames []entities.SocketEnvelope, event string) bool {
	for _, f := range frames {
		if f.Event == event {
			return true
		}
	}
	return false
}

// ackOf returns the ack frame with id, decoding its payload.
func ackOf(t *testing.T, frames []entities.SocketEnvelope, id string) entities.SocketAck {
	t.Helper()
	for _, f := range frames {
		if f.Event != consts.EventAck || f.AckID != id {
			continue
		}
		raw, _ := json.Marshal(f.Data)
		ack := entities.SocketAck{}
		if err := json.Unmarshal(raw, &ack); err != nil {
			t.Fatal(err)
		}
		return ack
	}
	t.Fatalf("no ack %s in %v", id, events(frames))
	return entities.SocketAck{}
}

func frame(t *testing.T, event, ackID string, data interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	out, err := json.Marshal(entities.SocketEvent{Event: event, AckID: ackID, Data: raw})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

type gatewayFixture struct {
	*fixture
	ws      *medium.Socket
	gateway *GatewayUseCases
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	f := newFixture(t, testSettings, "alice", "bob", "carol")
	ws := medium.NewWebSocket(time.Hour)
	f.groups.rooms = ws
	return &gatewayFixture{
		fixture: f,
		ws:      ws,
		gateway: NewGatewayUseCases(f.chat, ws).(*GatewayUseCases),
	}
}

func (g *gatewayFixture) connect(t *testing.T, user string) (*medium.ConnObject, *gatewayConn) {
	t.Helper()
	conn := newGatewayConn()
	obj := g.ws.Add(user, conn)
	t.Cleanup(func() { g.ws.Remove(user, obj.ID) })
	return obj, conn
}

func TestGatewayJoinChat(t *testing.T) {
	g := newGatewayFixture(t)
	ctx := context.Background()
	conv := g.direct(t, "alice", "bob")

	alice, aliceConn := g.connect(t, "alice")
	carol, carolConn := g.connect(t, "carol")

	g.gateway.HandleEvent(ctx, alice, frame(t, consts.EventJoinChat, "1", entities.SocketRoomRequest{ConversationID: conv.ID}))
	frames := aliceConn.take()
	if !hasEvent(frames, consts.EventJoinedChat) || !ackOf(t, frames, "1").Success {
		t.Errorf("alice join frames = %v", events(frames))
	}
	if !g.ws.InRoom(ConversationRoom(conv.ID), alice) {
		t.Error("alice not in room")
	}

	g.gateway.HandleEvent(ctx, carol, frame(t, consts.EventJoinChat, "2", entities.SocketRoomRequest{ConversationID: conv.ID}))
	ack := ackOf(t, carolConn.take(), "2")
	if ack.Success || ack.Message == "" {
		t.Errorf("outsider join ack = %+v", ack)
	}
	if g.ws.InRoom(ConversationRoom(conv.ID), carol) {
		t.Error("outsider joined the room")
	}

	g.gateway.HandleEvent(ctx, alice, frame(t, consts.EventLeaveChat, "", entities.SocketRoomRequest{ConversationID: conv.ID}))
	if g.ws.InRoom(ConversationRoom(conv.ID), alice) {
		t.Error("alice still in room after leaving")
	}
}

func TestGatewaySendMessage(t *testing.T) {
	g := newGatewayFixture(t)
	ctx := context.Background()
	conv := g.direct(t, "alice", "bob")
	join := frame(t, consts.EventJoinChat, "", entities.SocketRoomRequest{ConversationID: conv.ID})

	aliceWeb, aliceWebConn := g.connect(t, "alice")
	alicePhone, alicePhoneConn := g.connect(t, "alice")
	bob, bobConn := g.connect(t, "bob")
	for _, c := range []*medium.ConnObject{aliceWeb, alicePhone, bob} {
		g.gateway.HandleEvent(ctx, c, join)
	}
	for _, c := range []*gatewayConn{aliceWebConn, alicePhoneConn, bobConn} {
		c.take()
	}

	g.gateway.HandleEvent(ctx, aliceWeb, frame(t, consts.EventSendMessage, "m1", entities.SocketSendMessage{
		ConversationID:     conv.ID,
		SendMessageRequest: entities.SendMessageRequest{Content: "grace and peace"},
	}))

	senderFrames := aliceWebConn.take()
	ack := ackOf(t, senderFrames, "m1")
	if !ack.Success {
		t.Fatalf("send ack = %+v", ack)
	}
	if !hasEvent(senderFrames, consts.EventNewMessage) {
		t.Error("sending connection did not receive newMessage")
	}
	for name, c := range map[string]*gatewayConn{"alice phone": alicePhoneConn, "bob": bobConn} {
		frames := c.take()
		if len(frames) != 1 || frames[0].Event != consts.EventNewMessage {
			t.Errorf("%s frames = %v", name, events(frames))
		}
	}

	messages, err := g.chat.GetMessages(ctx, "bob", conv.ID, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 1 || messages[0].Content != "grace and peace" {
		t.Errorf("stored messages = %+v", messages)
	}

	// failures are acked without a broadcast
	g.gateway.HandleEvent(ctx, aliceWeb, frame(t, consts.EventSendMessage, "m2", entities.SocketSendMessage{
		ConversationID: conv.ID,
	}))
	if ack := ackOf(t, aliceWebConn.take(), "m2"); ack.Success {
		t.Error("empty message acked as success")
	}
	if frames := bobConn.take(); len(frames) != 0 {
		t.Errorf("failed send broadcast %v", events(frames))
	}
}

func TestGatewayTyping(t *testing.T) {
	g := newGatewayFixture(t)
	ctx := context.Background()
	conv := g.direct(t, "alice", "bob")

	alice, aliceConn := g.connect(t, "alice")
	bob, bobConn := g.connect(t, "bob")

	g.gateway.HandleEvent(ctx, bob, frame(t, consts.EventTyping, "", entities.SocketRoomRequest{ConversationID: conv.ID}))
	if frames := bobConn.take(); !hasEvent(frames, consts.EventError) {
		t.Errorf("typing before join frames = %v", events(frames))
	}

	join := frame(t, consts.EventJoinChat, "", entities.SocketRoomRequest{ConversationID: conv.ID})
	g.gateway.HandleEvent(ctx, alice, join)
	g.gateway.HandleEvent(ctx, bob, join)
	aliceConn.take()
	bobConn.take()

	for _, event := range []string{consts.EventTyping, consts.EventStopTyping} {
		g.gateway.HandleEvent(ctx, bob, frame(t, event, "", entities.SocketRoomRequest{ConversationID: conv.ID}))

		frames := aliceConn.take()
		if len(frames) != 1 || frames[0].Event != event {
			t.Fatalf("alice frames for %s = %v", event, events(frames))
		}
		raw, _ := json.Marshal(frames[0].Data)
		typing := entities.SocketTyping{}
		if err := json.Unmarshal(raw, &typing); err != nil {
			t.Fatal(err)
		}
		if typing.UserID != "bob" || typing.ConversationID != conv.ID {
			t.Errorf("typing payload = %+v", typing)
		}

		if frames := bobConn.take(); len(frames) != 0 {
			t.Errorf("emitting connection received %v", events(frames))
		}
	}

	messages, _ := g.chat.GetMessages(ctx, "alice", conv.ID, "", 0)
	if len(messages) != 0 {
		t.Error("typing events were stored")
	}
}

func TestGatewayRemovedMemberLeavesRoom(t *testing.T) {
	tests := []struct {
		name   string
		remove func(g *gatewayFixture, group *entities.Group) error
	}{
		{
			name: "removed by an admin",
			remove: func(g *gatewayFixture, group *entities.Group) error {
				return g.groups.RemoveMember(context.Background(), "alice", group.ID, "bob")
			},
		},
		{
			name: "left on their own",
			remove: func(g *gatewayFixture, group *entities.Group) error {
				return g.groups.LeaveGroup(context.Background(), "bob", group.ID)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGatewayFixture(t)
			ctx := context.Background()
			group := g.group(t, "alice", entities.CreateGroupRequest{Name: "Evening walk", Members: []string{"bob"}})
			join := frame(t, consts.EventJoinChat, "", entities.SocketRoomRequest{ConversationID: group.ConversationID})

			alice, aliceConn := g.connect(t, "alice")
			bob, bobConn := g.connect(t, "bob")
			g.gateway.HandleEvent(ctx, alice, join)
			g.gateway.HandleEvent(ctx, bob, join)
			aliceConn.take()
			bobConn.take()

			if err := tt.remove(g, group); err != nil {
				t.Fatalf("remove error = %v", err)
			}
			if g.ws.InRoom(ConversationRoom(group.ConversationID), bob) {
				t.Fatal("bob still in the group room")
			}

			g.gateway.HandleEvent(ctx, alice, frame(t, consts.EventSendMessage, "m1", entities.SocketSendMessage{
				ConversationID:     group.ConversationID,
				SendMessageRequest: entities.SendMessageRequest{Content: "still walking"},
			}))
			if ack := ackOf(t, aliceConn.take(), "m1"); !ack.Success {
				t.Fatalf("send ack = %+v", ack)
			}
			if frames := bobConn.take(); hasEvent(frames, consts.EventNewMessage) {
				t.Errorf("former member received %v", events(frames))
			}

			g.gateway.HandleEvent(ctx, bob, frame(t, consts.EventTyping, "t1", entities.SocketRoomRequest{ConversationID: group.ConversationID}))
			if ack := ackOf(t, bobConn.take(), "t1"); ack.Success {
				t.Error("former member typing acked as success")
			}
			if frames := aliceConn.take(); hasEvent(frames, consts.EventTyping) {
				t.Error("typing from a former member was relayed")
			}

			g.gateway.HandleEvent(ctx, bob, join)
			if g.ws.InRoom(ConversationRoom(group.ConversationID), bob) {
				t.Error("former member rejoined the room")
			}
		})
	}
}

func TestGatewayTypingAfterMembershipEnds(t *testing.T) {
	g := newGatewayFixture(t)
	g.groups.rooms = nil
	ctx := context.Background()
	group := g.group(t, "alice", entities.CreateGroupRequest{Name: "Quiet hour", Members: []string{"bob"}})
	join := frame(t, consts.EventJoinChat, "", entities.SocketRoomRequest{ConversationID: group.ConversationID})

	alice, aliceConn := g.connect(t, "alice")
	bob, bobConn := g.connect(t, "bob")
	g.gateway.HandleEvent(ctx, alice, join)
	g.gateway.HandleEvent(ctx, bob, join)
	aliceConn.take()
	bobConn.take()

	// without an evictor the connection stays in the room
	if err := g.groups.RemoveMember(ctx, "alice", group.ID, "bob"); err != nil {
		t.Fatal(err)
	}

	g.gateway.HandleEvent(ctx, bob, frame(t, consts.EventTyping, "t1", entities.SocketRoomRequest{ConversationID: group.ConversationID}))
	if ack := ackOf(t, bobConn.take(), "t1"); ack.Success {
		t.Error("typing acked after removal")
	}
	if frames := aliceConn.take(); len(frames) != 0 {
		t.Errorf("alice frames = %v", events(frames))
	}
	if g.ws.InRoom(ConversationRoom(group.ConversationID), bob) {
		t.Error("typing check left bob in the room")
	}
}

func TestGatewayMarkAsRead(t *testing.T) {
	g := newGatewayFixture(t)
	ctx := context.Background()
	conv := g.direct(t, "alice", "bob")
	g.send(t, "alice", conv.ID, "one")
	g.send(t, "alice", conv.ID, "two")

	alice, aliceConn := g.connect(t, "alice")
	bob, bobConn := g.connect(t, "bob")
	join := frame(t, consts.EventJoinChat, "", entities.SocketRoomRequest{ConversationID: conv.ID})
	g.gateway.HandleEvent(ctx, alice, join)
	g.gateway.HandleEvent(ctx, bob, join)
	aliceConn.take()
	bobConn.take()

	g.gateway.HandleEvent(ctx, bob, frame(t, consts.EventMarkAsRead, "r1", entities.SocketRoomRequest{ConversationID: conv.ID}))

	ack := ackOf(t, bobConn.take(), "r1")
	if !ack.Success {
		t.Fatalf("mark as read ack = %+v", ack)
	}
	raw, _ := json.Marshal(ack.Data)
	read := entities.SocketMessagesRead{}
	if err := json.Unmarshal(raw, &read); err != nil {
		t.Fatal(err)
	}
	if read.Count != 2 || read.UserID != "bob" {
		t.Errorf("read = %+v", read)
	}

	if frames := aliceConn.take(); len(frames) != 1 || frames[0].Event != consts.EventMessagesRead {
		t.Errorf("alice frames = %v", events(frames))
	}

	if n, _ := g.chat.UnreadCount(ctx, "bob", conv.ID); n != 0 {
		t.Errorf("unread after socket read = %d", n)
	}
}

func TestGatewayRejectsBadFrames(t *testing.T) {
	g := newGatewayFixture(t)
	ctx := context.Background()
	alice, aliceConn := g.connect(t, "alice")

	tests := []struct {
		name  string
		frame []byte
	}{
		{name: "not json", frame: []byte("hello")},
		{name: "unknown event", frame: frame(t, "dance", "", struct{}{})},
		{name: "missing data", frame: []byte(`{"event":"joinChat"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g.gateway.HandleEvent(ctx, alice, tt.frame)
			frames := aliceConn.take()
			if len(frames) != 1 || frames[0].Event != consts.EventError {
				t.Errorf("frames = %v", events(frames))
			}
		})
	}
}
