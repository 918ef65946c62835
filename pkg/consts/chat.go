package consts

const (
	ConversationDirect = "direct"
	ConversationGroup  = "group"
)

const (
	MessageText      = "text"
	MessageImage     = "image"
	MessageScripture = "scripture"
	MessagePrayer    = "prayer"
)

var MessageTypes = map[string]bool{
	MessageText:      true,
	MessageImage:     true,
	MessageScripture: true,
	MessagePrayer:    true,
}

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

const (
	ReactionAdded   = "added"
	ReactionRemoved = "removed"
)

const (
	UserStatusActive  = "active"
	UserStatusBlocked = "blocked"
	UserStatusBanned  = "banned"
)

// notification kinds
const (
	NotificationMessage      = "message"
	NotificationGroupMessage = "group_message"
	NotificationGroupAdded   = "group_added"
	NotificationGroupAdmin   = "group_admin"
	NotificationGroupRemoved = "group_removed"
)

// socket events
const (
	EventJoinChat     = "joinChat"
	EventJoinedChat   = "joinedChat"
	EventLeaveChat    = "leaveChat"
	EventSendMessage  = "sendMessage"
	EventNewMessage   = "newMessage"
	EventTyping       = "typing"
	EventStopTyping   = "stopTyping"
	EventMarkAsRead   = "markAsRead"
	EventMessagesRead = "messagesRead"
	EventAck          = "ack"
	EventError        = "error"
	EventNotification = "notification"
)
