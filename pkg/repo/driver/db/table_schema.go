package db

import "wisdomwalk/pkg/consts"

var dbTableSchemas = map[string]string{
	consts.UserTable:                    userInfoSchema,
	consts.UserDeviceTable:              userDeviceSchema,
	consts.ConversationTable:            conversationSchema,
	consts.ConversationParticipantTable: conversationParticipantSchema,
	consts.UserConversationTable:        userConversationSchema,
	consts.DirectConversationTable:      directConversationSchema,
	consts.MessageTable:                 messageSchema,
	consts.MessageLookupTable:           messageLookupSchema,
	consts.GroupTable:                   groupInfoSchema,
	consts.GroupMemberTable:             groupMemberSchema,
	consts.GroupInviteTable:             groupInviteSchema,
	consts.UserGroupTable:               userGroupSchema,
	consts.NotificationTable:            notificationSchema,
}

var userInfoSchema = `
CREATE TABLE IF NOT EXISTS %s.user_info (
id text,
name text,
email text,
email_verified boolean,
admin_verified boolean,
status text,
blocked_users set<text>,
PRIMARY KEY (id)
)
`

var userDeviceSchema = `
CREATE TABLE IF NOT EXISTS %s.user_device (
user_id text,
device_id text,
updated timestamp,
PRIMARY KEY (user_id, device_id)
)
`

var conversationSchema = `
CREATE TABLE IF NOT EXISTS %s.conversation (
id text,
type text,
participants list<text>,
last_message_id timeuuid,
last_activity_at timestamp,
pinned_message_ids set<text>,
is_active boolean,
group_id text,
created_at timestamp,
PRIMARY KEY (id)
)
`

var conversationParticipantSchema = `
CREATE TABLE IF NOT EXISTS %s.conversation_participant (
conversation_id text,
user_id text,
is_muted boolean,
joined_at timestamp,
left_at timestamp,
last_read_message_id timeuuid,
PRIMARY KEY (conversation_id, user_id)
)
`

var userConversationSchema = `
CREATE TABLE IF NOT EXISTS %s.user_conversation (
user_id text,
conversation_id text,
type text,
PRIMARY KEY (user_id, conversation_id)
)
`

var directConversationSchema = `
CREATE TABLE IF NOT EXISTS %s.direct_conversation (
pair_key text,
conversation_id text,
PRIMARY KEY (pair_key)
)
`

var messageSchema = `
CREATE TABLE IF NOT EXISTS %s.message (
conversation_id text,
id timeuuid,
sender_id text,
content text,
type text,
attachments text,
reply_to_id timeuuid,
forwarded_from_id timeuuid,
reactions map<text, timestamp>,
read_by map<text, timestamp>,
is_edited boolean,
edited_at timestamp,
is_deleted boolean,
deleted_at timestamp,
is_pinned boolean,
created_at timestamp,
PRIMARY KEY (conversation_id, id)
) WITH CLUSTERING ORDER BY (id DESC)
`

var messageLookupSchema = `
CREATE TABLE IF NOT EXISTS %s.message_lookup (
id timeuuid,
conversation_id text,
PRIMARY KEY (id)
)
`

var groupInfoSchema = `
CREATE TABLE IF NOT EXISTS %s.group_info (
id text,
name text,
description text,
avatar text,
creator text,
invite_link text,
is_private boolean,
only_admins_can_message boolean,
conversation_id text,
pinned_posts set<text>,
is_active boolean,
created_at timestamp,
updated_at timestamp,
PRIMARY KEY (id)
)
`

var groupMemberSchema = `
CREATE TABLE IF NOT EXISTS %s.group_member (
group_id text,
user_id text,
role text,
is_muted boolean,
joined_at timestamp,
PRIMARY KEY (group_id, user_id)
)
`

var groupInviteSchema = `
CREATE TABLE IF NOT EXISTS %s.group_invite (
invite_link text,
group_id text,
PRIMARY KEY (invite_link)
)
`

var userGroupSchema = `
CREATE TABLE IF NOT EXISTS %s.user_group (
user_id text,
group_id text,
PRIMARY KEY (user_id, group_id)
)
`

var notificationSchema = `
CREATE TABLE IF NOT EXISTS %s.notification (
recipient text,
id timeuuid,
sender text,
type text,
title text,
message text,
related_conversation text,
related_group text,
is_read boolean,
read_at timestamp,
created_at timestamp,
PRIMARY KEY (recipient, id)
) WITH CLUSTERING ORDER BY (id DESC)
`
