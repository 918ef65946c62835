package entities

import "time"

type ParticipantSettings struct {
	UserID            string     `json:"user_id"`
	IsMuted           bool       `json:"is_muted"`
	JoinedAt          time.Time  `json:"joined_at"`
	LeftAt            *time.Time `json:"left_at,omitempty"`
	LastReadMessageID string     `json:"last_read_message_id,omitempty"`
}

type Conversation struct {
	ID                  string                          `json:"id"`
	Type                string                          `json:"type"`
	Participants        []string                        `json:"participants"`
	ParticipantSettings map[string]*ParticipantSettings `json:"participant_settings,omitempty"`
	LastMessageID       string                          `json:"last_message_id,omitempty"`
	LastActivityAt      time.Time                       `json:"last_activity_at"`
	PinnedMessageIDs    []string                        `json:"pinned_message_ids,omitempty"`
	IsActive            bool                            `json:"is_active"`
	GroupID             string                          `json:"group_id,omitempty"`
	CreatedAt           time.Time                       `json:"created_at"`
}

// IsActiveParticipant is true for a listed participant that has not left.
func (c *Conversation) IsActiveParticipant(user string) bool {
	found := false
	for _, p := range c.Participants {
		if p == user {
			found = true
			break
		}
	}
	if !found {
		return false
	}

	if settings, ok := c.ParticipantSettings[user]; ok && settings.LeftAt != nil {
		return false
	}

	return true
}

// OtherParticipants returns the active participants except user.
func (c *Conversation) OtherParticipants(user string) []string {
	others := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p == user || !c.IsActiveParticipant(p) {
			continue
		}
		others = append(others, p)
	}
	return others
}

func (c *Conversation) IsMuted(user string) bool {
	settings, ok := c.ParticipantSettings[user]
	return ok && settings.IsMuted
}

func (c *Conversation) IsPinned(messageID string) bool {
	for _, id := range c.PinnedMessageIDs {
		if id == messageID {
			return true
		}
	}
	return false
}

// ConversationSummary is a conversation as listed for one user.
type ConversationSummary struct {
	*Conversation
	UnreadCount int      `json:"unread_count"`
	LastMessage *Message `json:"last_message,omitempty"`
}

type Attachment struct {
	URL      string `json:"url" binding:"required,max=2048"`
	FileType string `json:"file_type,omitempty" binding:"max=128"`
	FileName string `json:"file_name,omitempty" binding:"max=256"`
}

type Reaction struct {
	User      string    `json:"user"`
	Emoji     string    `json:"emoji"`
	ReactedAt time.Time `json:"reacted_at"`
}

type ReadReceipt struct {
	User   string    `json:"user"`
	ReadAt time.Time `json:"read_at"`
}

type Message struct {
	ID              string        `json:"id"`
	ConversationID  string        `json:"conversation_id"`
	SenderID        string        `json:"sender_id"`
	Content         string        `json:"content"`
	Type            string        `json:"type"`
	Attachments     []Attachment  `json:"attachments,omitempty"`
	ReplyToID       string        `json:"reply_to_id,omitempty"`
	ForwardedFromID string        `json:"forwarded_from_id,omitempty"`
	Reactions       []Reaction    `json:"reactions,omitempty"`
	ReadBy          []ReadReceipt `json:"read_by,omitempty"`
	IsEdited        bool          `json:"is_edited"`
	EditedAt        *time.Time    `json:"edited_at,omitempty"`
	IsDeleted       bool          `json:"is_deleted"`
	DeletedAt       *time.Time    `json:"deleted_at,omitempty"`
	IsPinned        bool          `json:"is_pinned"`
	CreatedAt       time.Time     `json:"created_at"`
}

func (m *Message) HasReaction(user, emoji string) bool {
	for _, r := range m.Reactions {
		if r.User == user && r.Emoji == emoji {
			return true
		}
	}
	return false
}

func (m *Message) IsReadBy(user string) bool {
	for _, r := range m.ReadBy {
		if r.User == user {
			return true
		}
	}
	return false
}

// request bodies

type DirectConversationRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type SendMessageRequest struct {
	Content     string       `json:"content" binding:"max=2000"`
	Type        string       `json:"type,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty" binding:"max=10,dive"`
	ReplyToID   string       `json:"reply_to_id,omitempty"`
}

type EditMessageRequest struct {
	Content string `json:"content" binding:"required,max=2000"`
}

type ReactionRequest struct {
	Emoji string `json:"emoji" binding:"required,max=32"`
}

type ForwardRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

type ReactionResult struct {
	Action  string   `json:"action"`
	Message *Message `json:"message"`
}

type UnreadCount struct {
	ConversationID string `json:"conversation_id"`
	Count          int    `json:"count"`
}
