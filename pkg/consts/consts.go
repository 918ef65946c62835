package consts

const (
	AppName = "wisdomwalk"
)

// gin context keys
const (
	UserID     = "USER_ID"
	UserToken  = "USER_TOKEN"
	UserAccess = "USER_ACCESS"
)

const (
	ModeLocal      = "local"
	ModeStage      = "stage"
	ModeProduction = "production"
)

const (
	DriverCassandra = "cassandra"
	DriverMemory    = "memory"
)

// DB tables
const (
	UserTable                    = "user_info"
	UserDeviceTable              = "user_device"
	ConversationTable            = "conversation"
	ConversationParticipantTable = "conversation_participant"
	UserConversationTable        = "user_conversation"
	DirectConversationTable      = "direct_conversation"
	MessageTable                 = "message"
	MessageLookupTable           = "message_lookup"
	GroupTable                   = "group_info"
	GroupMemberTable             = "group_member"
	GroupInviteTable             = "group_invite"
	UserGroupTable               = "user_group"
	NotificationTable            = "notification"
)

const (
	DefaultPageSize = "50"
	MaxPageSize     = 200
)
