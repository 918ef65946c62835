package usecases

import (
	"context"
	"encoding/json"

	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/repo/driver/medium"
	"wisdomwalk/utilities"
)

const roomPrefix = "conversation:"

// ConversationRoom is the gateway room of a conversation.
func ConversationRoom(id string) string {
	return roomPrefix + id
}

type GatewayUseCases struct {
	chat ChatUseCaseImply
	ws   *medium.Socket
}

type GatewayUseCaseImply interface {
	HandleEvent(ctx context.Context, conn *medium.ConnObject, frame []byte)
}

// NewGatewayUseCases creates the gateway and registers it as the socket's
// frame handler.
func NewGatewayUseCases(chat ChatUseCaseImply, ws *medium.Socket) GatewayUseCaseImply {
	gateway := &GatewayUseCases{
		chat: chat,
		ws:   ws,
	}
	ws.SetHandler(gateway.HandleEvent)

	return gateway
}

// HandleEvent processes one inbound frame of conn.
func (g *GatewayUseCases) HandleEvent(ctx context.Context, conn *medium.ConnObject, frame []byte) {
	log := utilities.NewLoggerWithFields("Gateway.HandleEvent", map[string]interface{}{
		"user": conn.User,
		"conn": conn.ID,
	})

	event := entities.SocketEvent{}
	if err := json.Unmarshal(frame, &event); err != nil {
		g.respond(conn, "", nil, entities.NewValidationError("malformed frame"))
		return
	}
	log.Debugf("event %s", event.Event)

	switch event.Event {
	case consts.EventJoinChat:
		g.joinChat(ctx, conn, event)
	case consts.EventLeaveChat:
		g.leaveChat(conn, event)
	case consts.EventSendMessage:
		g.sendMessage(ctx, conn, event)
	case consts.EventTyping, consts.EventStopTyping:
		g.typing(ctx, conn, event)
	case consts.EventMarkAsRead:
		g.markAsRead(ctx, conn, event)
	default:
		g.respond(conn, event.AckID, nil, entities.NewValidationError("unknown event %q", event.Event))
	}
}

func (g *GatewayUseCases) write(conn *medium.ConnObject, envelope entities.SocketEnvelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		utilities.NewLogger("Gateway.write").WithError(err).Error("failed to encode frame")
		return
	}
	if err := conn.Write(data); err != nil {
		utilities.NewLogger("Gateway.write").WithError(err).Debugf("write to %s failed", conn.ID)
	}
}

// respond acknowledges an event that carried an ack id. Without one only
// failures are reported, as an error event.
func (g *GatewayUseCases) respond(conn *medium.ConnObject, ackID string, data interface{}, err error) {
	if ackID == "" {
		if err != nil {
			g.write(conn, entities.SocketEnvelope{
				Event: consts.EventError,
				Data:  entities.SocketAck{Success: false, Message: entities.PublicMessage(err)},
			})
		}
		return
	}

	ack := entities.SocketAck{Success: err == nil, Data: data}
	if err != nil {
		ack.Message = entities.PublicMessage(err)
		ack.Data = nil
	}
	g.write(conn, entities.SocketEnvelope{Event: consts.EventAck, AckID: ackID, Data: ack})
}

func (g *GatewayUseCases) broadcast(ctx context.Context, room string, envelope entities.SocketEnvelope, exclude string) {
	data, err := json.Marshal(envelope)
	if err != nil {
		utilities.NewLogger("Gateway.broadcast").WithError(err).Error("failed to encode frame")
		return
	}
	if err := g.ws.BroadcastToRoom(ctx, room, data, exclude); err != nil {
		utilities.NewLogger("Gateway.broadcast").WithError(err).Warnf("broadcast to %s incomplete", room)
	}
}

func decode(event entities.SocketEvent, v interface{}) error {
	if len(event.Data) == 0 {
		return entities.NewValidationError("event data is required")
	}
	if err := json.Unmarshal(event.Data, v); err != nil {
		return entities.NewValidationError("malformed event data")
	}
	return nil
}

func (g *GatewayUseCases) joinChat(ctx context.Context, conn *medium.ConnObject, event entities.SocketEvent) {
	req := entities.SocketRoomRequest{}
	if err := decode(event, &req); err != nil {
		g.respond(conn, event.AckID, nil, err)
		return
	}

	if _, err := g.chat.GetConversation(ctx, conn.User, req.ConversationID); err != nil {
		g.respond(conn, event.AckID, nil, err)
		return
	}

	g.ws.Join(ConversationRoom(req.ConversationID), conn)
	g.write(conn, entities.SocketEnvelope{Event: consts.EventJoinedChat, Data: req})
	g.respond(conn, event.AckID, req, nil)
}

func (g *GatewayUseCases) leaveChat(conn *medium.ConnObject, event entities.SocketEvent) {
	req := entities.SocketRoomRequest{}
	if err := decode(event, &req); err != nil {
		g.respond(conn, event.AckID, nil, err)
		return
	}

	g.ws.Leave(ConversationRoom(req.ConversationID), conn)
	g.respond(conn, event.AckID, req, nil)
}

// sendMessage stores the message through the regular send path and fans the
// stored copy out to the room, the sender's connections included.
func (g *GatewayUseCases) sendMessage(ctx context.Context, conn *medium.ConnObject, event entities.SocketEvent) {
	req := entities.SocketSendMessage{}
	if err := decode(event, &req); err != nil {
		g.respond(conn, event.AckID, nil, err)
		return
	}

	msg, err := g.chat.SendMessage(ctx, conn.User, req.ConversationID, req.SendMessageRequest)
	if err != nil {
		g.respond(conn, event.AckID, nil, err)
		return
	}

	g.broadcast(ctx, ConversationRoom(msg.ConversationID), entities.SocketEnvelope{
		Event: consts.EventNewMessage,
		Data:  msg,
	}, "")
	g.respond(conn, event.AckID, msg, nil)
}

// typing relays typing indicators to the other connections of the room.
// Nothing is stored.
func (g *GatewayUseCases) typing(ctx context.Context, conn *medium.ConnObject, event entities.SocketEvent) {
	req := entities.SocketRoomRequest{}
	if err := decode(event, &req); err != nil {
		g.respond(conn, event.AckID, nil, err)
		return
	}

	room := ConversationRoom(req.ConversationID)
	if !g.ws.InRoom(room, conn) {
		g.respond(conn, event.AckID, nil, entities.NewInvalidOperationError("join the conversation first"))
		return
	}

	// membership can end while the connection sits in the room
	if _, err := g.chat.GetConversation(ctx, conn.User, req.ConversationID); err != nil {
		g.ws.Leave(room, conn)
		g.respond(conn, event.AckID, nil, err)
		return
	}

	g.broadcast(ctx, room, entities.SocketEnvelope{
		Event: event.Event,
		Data:  entities.SocketTyping{ConversationID: req.ConversationID, UserID: conn.User},
	}, conn.ID)
	g.respond(conn, event.AckID, nil, nil)
}

func (g *GatewayUseCases) markAsRead(ctx context.Context, conn *medium.ConnObject, event entities.SocketEvent) {
	req := entities.SocketRoomRequest{}
	if err := decode(event, &req); err != nil {
		g.respond(conn, event.AckID, nil, err)
		return
	}

	count, err := g.chat.MarkAsRead(ctx, conn.User, req.ConversationID)
	if err != nil {
		g.respond(conn, event.AckID, nil, err)
		return
	}

	read := entities.SocketMessagesRead{ConversationID: req.ConversationID, UserID: conn.User, Count: count}
	g.broadcast(ctx, ConversationRoom(req.ConversationID), entities.SocketEnvelope{
		Event: consts.EventMessagesRead,
		Data:  read,
	}, conn.ID)
	g.respond(conn, event.AckID, read, nil)
}
