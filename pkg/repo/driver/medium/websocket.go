package medium

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	uuidLib "github.com/google/uuid"
	"github.com/gorilla/websocket"

	"wisdomwalk/utilities"
)

type ErrWSConnAbsent struct {
	Message string
	ID      string
}

func (e *ErrWSConnAbsent) Error() string {
	return fmt.Sprintf("%s, ID: %s", e.Message, e.ID)
}

const (
	defaultPingInterval = time.Second * 30
	writeWait           = time.Second * 10
)

// wsConn is the part of *websocket.Conn the socket uses.
type wsConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(int, []byte) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
	SetPongHandler(func(string) error)
	Close() error
}

// EventHandler processes one frame read from a connection. Frames of a
// connection are handled one at a time, in order.
type EventHandler func(ctx context.Context, conn *ConnObject, frame []byte)

// RoomPublisher forwards room frames and evictions to other gateway
// instances.
type RoomPublisher interface {
	Publish(ctx context.Context, room string, data []byte, exclude string) error
	PublishEviction(ctx context.Context, room, user string) error
}

type Socket struct {
	*sync.RWMutex
	ConnSet      map[string]*UserConnObject
	Rooms        map[string]map[string]*ConnObject
	handler      EventHandler
	publisher    RoomPublisher
	pingInterval time.Duration
}

type UserConnObject struct {
	ConnObjs []*ConnObject
}

type ConnObject struct {
	ID    string
	User  string
	Conn  wsConn
	Close chan struct{}

	writeMu   sync.Mutex
	closeOnce sync.Once
	rooms     map[string]bool
}

// Write sends one text frame. Writes to a connection are serialised.
func (c *ConnObject) Write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func (c *ConnObject) writeControl(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(messageType, data)
}

func (c *ConnObject) shutdown() {
	c.closeOnce.Do(func() { close(c.Close) })
}

func NewWebSocket(pingInterval time.Duration) *Socket {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}

	return &Socket{
		RWMutex:      new(sync.RWMutex),
		ConnSet:      make(map[string]*UserConnObject),
		Rooms:        make(map[string]map[string]*ConnObject),
		pingInterval: pingInterval,
	}
}

func (s *Socket) SetHandler(handler EventHandler) {
	s.Lock()
	defer s.Unlock()
	s.handler = handler
}

func (s *Socket) SetPublisher(publisher RoomPublisher) {
	s.Lock()
	defer s.Unlock()
	s.publisher = publisher
}

// Add registers a connection for user and starts its reader and health
// check routines. The returned object is valid until the connection closes.
func (s *Socket) Add(user string, newUserConn wsConn) *ConnObject {
	s.Lock()
	defer s.Unlock()
	log := utilities.NewLoggerWithFields(
		"websocket.Add", map[string]interface{}{
			"id": user,
		},
	)

	if _, ok := s.ConnSet[user]; !ok {
		s.ConnSet[user] = &UserConnObject{
			ConnObjs: make([]*ConnObject, 0),
		}
	}

	connObj := &ConnObject{
		ID:    uuidLib.NewString(),
		User:  user,
		Conn:  newUserConn,
		Close: make(chan struct{}),
		rooms: make(map[string]bool),
	}

	go s.reader(connObj)
	go s.pinger(connObj)

	s.ConnSet[user].ConnObjs = append(s.ConnSet[user].ConnObjs, connObj)
	log.Debugf("Adding new ws connection %s for user %s, total conns: %d", connObj.ID, user, len(s.ConnSet[user].ConnObjs))

	return connObj
}

func (s *Socket) reader(connObj *ConnObject) {
	log := utilities.NewLoggerWithFields("websocket.reader", map[string]interface{}{
		"id":   connObj.User,
		"conn": connObj.ID,
	})
	defer connObj.shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_ = connObj.Conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	connObj.Conn.SetPongHandler(func(string) error {
		return connObj.Conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))
	})

	for {
		messageType, message, err := connObj.Conn.ReadMessage()
		if err != nil {
			closeErr := &websocket.CloseError{}
			if !errors.As(err, &closeErr) {
				log.WithError(err).Debugf("error reading msg of type %d", messageType)
			}
			return
		}
		_ = connObj.Conn.SetReadDeadline(time.Now().Add(2 * s.pingInterval))

		s.RLock()
		handler := s.handler
		s.RUnlock()

		if handler != nil {
			handler(ctx, connObj, message)
		}
	}
}

// pinger checks the health of the connection and removes it once it closes.
func (s *Socket) pinger(connObj *ConnObject) {
	log := utilities.NewLoggerWithFields("websocket.pinger", map[string]interface{}{
		"id":   connObj.User,
		"conn": connObj.ID,
	})

	ticker := time.NewTicker(s.pingInterval)
	defer func() {
		log.Infof("Closing the ws connection for %s:%s", connObj.User, connObj.ID)
		ticker.Stop()
		_ = connObj.writeControl(
			websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		s.Remove(connObj.User, connObj.ID)
	}()

	for {
		select {
		case <-connObj.Close:
			log.Debugf("Received ping close for %s", connObj.User)
			return
		case <-ticker.C:
		}

		if err := connObj.writeControl(websocket.PingMessage, []byte{}); err != nil {
			log.WithError(err).Debugf("ping failed, id: %s", connObj.User)
			return
		}
	}
}

// Remove closes the connection and drops it from every room it joined.
func (s *Socket) Remove(identifier string, connID string) {
	log := utilities.NewLoggerWithFields(
		"websocket.Remove", map[string]interface{}{
			"id": identifier,
		},
	)

	s.Lock()
	defer s.Unlock()
	userConnObj, ok := s.ConnSet[identifier]
	if !ok || userConnObj == nil {
		// nothing to remove
		return
	}

	acceptedConns := make([]*ConnObject, 0)
	for _, connObj := range userConnObj.ConnObjs {
		if connObj.ID == connID {
			for room := range connObj.rooms {
				s.leaveLocked(room, connObj)
			}
			connObj.shutdown()
			if err := connObj.Conn.Close(); err != nil {
				log.WithError(err).Debugf("error closing ws conn for id %s", identifier)
			}
			continue
		}
		acceptedConns = append(acceptedConns, connObj)
	}

	if len(acceptedConns) == 0 {
		delete(s.ConnSet, identifier)
	} else {
		s.ConnSet[identifier].ConnObjs = acceptedConns
	}
}

func (s *Socket) Join(room string, connObj *ConnObject) {
	s.Lock()
	defer s.Unlock()

	if _, ok := s.Rooms[room]; !ok {
		s.Rooms[room] = make(map[string]*ConnObject)
	}
	s.Rooms[room][connObj.ID] = connObj
	connObj.rooms[room] = true
}

func (s *Socket) Leave(room string, connObj *ConnObject) {
	s.Lock()
	defer s.Unlock()
	s.leaveLocked(room, connObj)
}

func (s *Socket) leaveLocked(room string, connObj *ConnObject) {
	delete(connObj.rooms, room)
	members, ok := s.Rooms[room]
	if !ok {
		return
	}
	delete(members, connObj.ID)
	if len(members) == 0 {
		delete(s.Rooms, room)
	}
}

// InRoom reports whether the connection joined room.
func (s *Socket) InRoom(room string, connObj *ConnObject) bool {
	s.RLock()
	defer s.RUnlock()
	return connObj.rooms[room]
}

// LeaveUser drops every connection of user held by this instance from room
// and returns how many were dropped.
func (s *Socket) LeaveUser(room, user string) int {
	s.Lock()
	defer s.Unlock()

	userConnObj, ok := s.ConnSet[user]
	if !ok {
		return 0
	}

	dropped := 0
	for _, connObj := range userConnObj.ConnObjs {
		if connObj.rooms[room] {
			s.leaveLocked(room, connObj)
			dropped++
		}
	}
	return dropped
}

// EvictFromRoom removes user from room on this instance and asks the other
// instances to do the same.
func (s *Socket) EvictFromRoom(ctx context.Context, room, user string) error {
	dropped := s.LeaveUser(room, user)
	utilities.NewLoggerWithFields("websocket.EvictFromRoom", map[string]interface{}{
		"room": room,
		"id":   user,
	}).Debugf("dropped %d local connections", dropped)

	s.RLock()
	publisher := s.publisher
	s.RUnlock()

	if publisher != nil {
		if err := publisher.PublishEviction(ctx, room, user); err != nil {
			return fmt.Errorf("failed to publish eviction from room %s: %w", room, err)
		}
	}

	return nil
}

// BroadcastToRoom writes data to every connection of room except the
// connection with id exclude, then hands the frame to the publisher so
// other instances deliver it to their own connections.
func (s *Socket) BroadcastToRoom(ctx context.Context, room string, data []byte, exclude string) error {
	s.DeliverToRoom(room, data, exclude)

	s.RLock()
	publisher := s.publisher
	s.RUnlock()

	if publisher != nil {
		if err := publisher.Publish(ctx, room, data, exclude); err != nil {
			return fmt.Errorf("failed to publish to room %s: %w", room, err)
		}
	}

	return nil
}

// DeliverToRoom writes to the connections of room held by this instance.
func (s *Socket) DeliverToRoom(room string, data []byte, exclude string) int {
	log := utilities.NewLoggerWithFields("websocket.DeliverToRoom", map[string]interface{}{
		"room": room,
	})

	s.RLock()
	targets := make([]*ConnObject, 0, len(s.Rooms[room]))
	for id, connObj := range s.Rooms[room] {
		if id == exclude {
			continue
		}
		targets = append(targets, connObj)
	}
	s.RUnlock()

	sent := 0
	for _, connObj := range targets {
		if err := connObj.Write(data); err != nil {
			log.WithError(err).Debugf("write to %s:%s failed", connObj.User, connObj.ID)
			continue
		}
		sent++
	}

	return sent
}

// PushMessage writes data to the connections of a user, every connection
// when broadcast is set and the newest one otherwise.
func (s *Socket) PushMessage(identifier string, data []byte, broadcast bool) error {
	log := utilities.NewLoggerWithFields(
		"websocket.PushMessage", map[string]interface{}{
			"id": identifier,
		},
	)

	s.RLock()
	userConnObj, ok := s.ConnSet[identifier]
	if !ok || userConnObj == nil || len(userConnObj.ConnObjs) < 1 {
		s.RUnlock()
		return &ErrWSConnAbsent{
			Message: "ws connection absent",
			ID:      identifier,
		}
	}

	connObjs := append([]*ConnObject(nil), userConnObj.ConnObjs...)
	s.RUnlock()

	if !broadcast {
		connObjs = connObjs[len(connObjs)-1:]
	}

	sent := false
	var pushErrors []string
	for _, connObj := range connObjs {
		if err := connObj.Write(data); err != nil {
			pushErrors = append(pushErrors, err.Error())
			continue
		}
		sent = true
		log.Debugf("ws message sent to %s", identifier)
	}

	if !sent {
		return fmt.Errorf("ws message failed for %s: %s", identifier, strings.Join(pushErrors, ":"))
	}

	return nil
}

func (s *Socket) IsOnline(identifier string) bool {
	s.RLock()
	defer s.RUnlock()
	userConnObj, ok := s.ConnSet[identifier]
	return ok && len(userConnObj.ConnObjs) > 0
}

func Upgrade(readBuffer, writeBuffer int) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  readBuffer,
		WriteBufferSize: writeBuffer,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}
