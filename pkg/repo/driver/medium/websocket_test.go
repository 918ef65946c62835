package medium

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeConn struct {
	mu      sync.Mutex
	inbox   chan []byte
	written [][]byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbox: make(chan []byte, 8), closed: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.inbox:
		return websocket.TextMessage, msg, nil
	case <-f.closed:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseNormalClosure}
	}
}

func (f *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("closed")
	default:
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetPongHandler(func(string) error) {}
func (f *fakeConn) Close() error                      { f.once.Do(func() { close(f.closed) }); return nil }

func (f *fakeConn) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.written))
	for _, w := range f.written {
		out = append(out, string(w))
	}
	return out
}

type recordingPublisher struct {
	mu        sync.Mutex
	rooms     []string
	evictions []string
}

func (r *recordingPublisher) Publish(_ context.Context, room string, _ []byte, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms = append(r.rooms, room)
	return nil
}

func (r *recordingPublisher) PublishEviction(_ context.Context, room, user string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictions = append(r.evictions, room+"/"+user)
	return nil
}

func TestSocketRooms(t *testing.T) {
	s := NewWebSocket(time.Hour)

	aliceConn, aliceOther, bobConn := newFakeConn(), newFakeConn(), newFakeConn()
	alice := s.Add("alice", aliceConn)
	alice2 := s.Add("alice", aliceOther)
	bob := s.Add("bob", bobConn)
	defer func() {
		s.Remove("alice", alice.ID)
		s.Remove("alice", alice2.ID)
		s.Remove("bob", bob.ID)
	}()

	s.Join("room-1", alice)
	s.Join("room-1", alice2)
	s.Join("room-1", bob)

	tests := []struct {
		name      string
		exclude   string
		wantAlice int
		wantOther int
		wantBob   int
	}{
		{name: "everyone including sender connections", exclude: "", wantAlice: 1, wantOther: 1, wantBob: 1},
		{name: "excluding the emitting connection", exclude: alice.ID, wantAlice: 1, wantOther: 2, wantBob: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.BroadcastToRoom(context.Background(), "room-1", []byte(tt.name), tt.exclude); err != nil {
				t.Fatalf("BroadcastToRoom() error = %v", err)
			}
			if got := len(aliceConn.frames()); got != tt.wantAlice {
				t.Errorf("alice frames = %d, want %d", got, tt.wantAlice)
			}
			if got := len(aliceOther.frames()); got != tt.wantOther {
				t.Errorf("alice other frames = %d, want %d", got, tt.wantOther)
			}
			if got := len(bobConn.frames()); got != tt.wantBob {
				t.Errorf("bob frames = %d, want %d", got, tt.wantBob)
			}
		})
	}

	s.Leave("room-1", bob)
	if s.InRoom("room-1", bob) {
		t.Error("bob still in room after leave")
	}
	if !s.InRoom("room-1", alice) || !s.InRoom("room-1", alice2) {
		t.Error("alice left the room with bob")
	}
}

func TestSocketRemoveLeavesRooms(t *testing.T) {
	s := NewWebSocket(time.Hour)
	conn := newFakeConn()
	c := s.Add("carol", conn)
	s.Join("room-1", c)
	s.Join("room-2", c)

	s.Remove("carol", c.ID)

	if s.InRoom("room-1", c) || s.InRoom("room-2", c) || len(s.Rooms) != 0 {
		t.Error("removed connection still in rooms")
	}
	if s.IsOnline("carol") {
		t.Error("carol still online")
	}
	if err := s.PushMessage("carol", []byte("x"), true); err == nil {
		t.Error("PushMessage() to absent user should fail")
	}
}

func TestSocketHandlerReceivesFrames(t *testing.T) {
	s := NewWebSocket(time.Hour)

	received := make(chan string, 1)
	s.SetHandler(func(_ context.Context, conn *ConnObject, frame []byte) {
		received <- conn.User + ":" + string(frame)
	})

	conn := newFakeConn()
	c := s.Add("dave", conn)
	defer s.Remove("dave", c.ID)

	conn.inbox <- []byte("hello")

	select {
	case got := <-received:
		if got != "dave:hello" {
			t.Errorf("handler got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestSocketPublishes(t *testing.T) {
	s := NewWebSocket(time.Hour)
	pub := &recordingPublisher{}
	s.SetPublisher(pub)

	if err := s.BroadcastToRoom(context.Background(), "room-9", []byte("x"), ""); err != nil {
		t.Fatalf("BroadcastToRoom() error = %v", err)
	}
	if len(pub.rooms) != 1 || pub.rooms[0] != "room-9" {
		t.Errorf("published rooms = %v", pub.rooms)
	}
}

func TestSocketEvictFromRoom(t *testing.T) {
	s := NewWebSocket(time.Hour)
	pub := &recordingPublisher{}
	s.SetPublisher(pub)

	aliceConn, bobWeb, bobPhone := newFakeConn(), newFakeConn(), newFakeConn()
	alice := s.Add("alice", aliceConn)
	bob1 := s.Add("bob", bobWeb)
	bob2 := s.Add("bob", bobPhone)
	defer func() {
		s.Remove("alice", alice.ID)
		s.Remove("bob", bob1.ID)
		s.Remove("bob", bob2.ID)
	}()

	for _, c := range []*ConnObject{alice, bob1, bob2} {
		s.Join("room-1", c)
	}
	s.Join("room-2", bob1)

	if err := s.EvictFromRoom(context.Background(), "room-1", "bob"); err != nil {
		t.Fatalf("EvictFromRoom() error = %v", err)
	}

	if s.InRoom("room-1", bob1) || s.InRoom("room-1", bob2) {
		t.Error("bob still in room-1")
	}
	if !s.InRoom("room-2", bob1) {
		t.Error("eviction left other rooms")
	}
	if len(pub.evictions) != 1 || pub.evictions[0] != "room-1/bob" {
		t.Errorf("published evictions = %v", pub.evictions)
	}

	if sent := s.DeliverToRoom("room-1", []byte("after"), ""); sent != 1 {
		t.Errorf("delivered to %d connections, want 1", sent)
	}
	if len(bobWeb.frames()) != 0 || len(bobPhone.frames()) != 0 {
		t.Error("evicted user received a room frame")
	}

	if got := s.LeaveUser("room-1", "nobody"); got != 0 {
		t.Errorf("LeaveUser() of unknown user = %d", got)
	}
}

func TestSocketPushMessage(t *testing.T) {
	s := NewWebSocket(time.Hour)
	web, phone := newFakeConn(), newFakeConn()
	c1 := s.Add("erin", web)
	c2 := s.Add("erin", phone)
	defer func() {
		s.Remove("erin", c1.ID)
		s.Remove("erin", c2.ID)
	}()

	if !s.IsOnline("erin") {
		t.Fatal("erin not online")
	}

	tests := []struct {
		name      string
		broadcast bool
		wantWeb   int
		wantPhone int
	}{
		{name: "newest connection only", broadcast: false, wantWeb: 0, wantPhone: 1},
		{name: "every connection", broadcast: true, wantWeb: 1, wantPhone: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.PushMessage("erin", []byte(tt.name), tt.broadcast); err != nil {
				t.Fatalf("PushMessage() error = %v", err)
			}
			if got := len(web.frames()); got != tt.wantWeb {
				t.Errorf("web frames = %d, want %d", got, tt.wantWeb)
			}
			if got := len(phone.frames()); got != tt.wantPhone {
				t.Errorf("phone frames = %d, want %d", got, tt.wantPhone)
			}
		})
	}
}
