package usecases

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	uuidLib "github.com/google/uuid"
	"github.com/spf13/cast"

	"wisdomwalk/config"
	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/repo"
	"wisdomwalk/utilities"
)

const (
	maxPageSize    = 100
	maxAttachments = 10
	maxEmojiLength = 32
	previewLength  = 100
	searchLimit    = 50
)

// ChatSettings are the tunables of the conversation and group flows.
type ChatSettings struct {
	EditWindow       time.Duration
	MaxContentLength int
	PageSize         int
	ProtectCreator   bool
	InviteLinkLength int
}

func ChatSettingsFromConfig(conf config.Chat) ChatSettings {
	return ChatSettings{
		EditWindow:       cast.ToDuration(conf.EditWindow),
		MaxContentLength: conf.MaxContentLength,
		PageSize:         conf.PageSize,
		ProtectCreator:   conf.Group.ProtectCreator,
		InviteLinkLength: conf.Group.InviteLinkLength,
	}
}

type ChatUseCases struct {
	convRepo  repo.ConversationRepoImply
	msgRepo   repo.MessageRepoImply
	groupRepo repo.GroupRepoImply
	userRepo  repo.UserRepoImply
	notifier  Notifier
	settings  ChatSettings
	now       func() time.Time
}

type ChatUseCaseImply interface {
	FindOrCreateDirectConversation(ctx context.Context, user, other string) (*entities.Conversation, error)
	ListConversations(ctx context.Context, user string) ([]*entities.ConversationSummary, error)
	GetConversation(ctx context.Context, user, id string) (*entities.Conversation, error)
	DeleteConversation(ctx context.Context, user, id string) error
	GetMessages(ctx context.Context, user, id, before string, limit int) ([]*entities.Message, error)
	SendMessage(ctx context.Context, user, id string, req entities.SendMessageRequest) (*entities.Message, error)
	EditMessage(ctx context.Context, user, messageID, content string) (*entities.Message, error)
	DeleteMessage(ctx context.Context, user, messageID string) error
	ReactToMessage(ctx context.Context, user, messageID, emoji string) (*entities.ReactionResult, error)
	PinMessage(ctx context.Context, user, id, messageID string, pinned bool) (*entities.Message, error)
	ForwardMessage(ctx context.Context, user, messageID, target string) (*entities.Message, error)
	MarkAsRead(ctx context.Context, user, id string) (int, error)
	UnreadCount(ctx context.Context, user, id string) (int, error)
	SearchMessages(ctx context.Context, user, id, query string) ([]*entities.Message, error)
	MuteConversation(ctx context.Context, user, id string, muted bool) error
}

func NewChatUseCases(
	convRepo repo.ConversationRepoImply, msgRepo repo.MessageRepoImply, groupRepo repo.GroupRepoImply,
	userRepo repo.UserRepoImply, notifier Notifier, settings ChatSettings,
) ChatUseCaseImply {
	if settings.PageSize <= 0 {
		settings.PageSize = 50
	}

	return &ChatUseCases{
		convRepo:  convRepo,
		msgRepo:   msgRepo,
		groupRepo: groupRepo,
		userRepo:  userRepo,
		notifier:  notifier,
		settings:  settings,
		now:       utilities.TimeNow,
	}
}

// FindOrCreateDirectConversation returns the single direct conversation of
// the pair, creating it on first use and reactivating it when soft deleted.
func (c *ChatUseCases) FindOrCreateDirectConversation(
	ctx context.Context, user, other string,
) (*entities.Conversation, error) {
	if user == other {
		return nil, entities.NewInvalidOperationError("you cannot start a conversation with yourself")
	}

	users, err := c.userRepo.GetUsers(ctx, []string{user, other})
	if err != nil {
		return nil, entities.NewUnexpectedError("failed to load users", err)
	}
	me, them := users[user], users[other]
	if them == nil {
		return nil, entities.NewNotFoundError("user not found")
	}
	if (me != nil && me.HasBlocked(other)) || them.HasBlocked(user) {
		return nil, entities.NewAccessDeniedError("you cannot start a conversation with this user")
	}

	conv, err := c.convRepo.FindDirectConversation(ctx, user, other)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, entities.NewUnexpectedError("failed to look up conversation", err)
	}

	if conv == nil {
		now := c.now()
		conv, _, err = c.convRepo.CreateDirectConversation(ctx, &entities.Conversation{
			ID:           uuidLib.NewString(),
			Type:         consts.ConversationDirect,
			Participants: []string{user, other},
			ParticipantSettings: map[string]*entities.ParticipantSettings{
				user:  {UserID: user, JoinedAt: now},
				other: {UserID: other, JoinedAt: now},
			},
			LastActivityAt: now,
			IsActive:       true,
			CreatedAt:      now,
		})
		if err != nil {
			return nil, entities.NewUnexpectedError("failed to create conversation", err)
		}
	}

	if !conv.IsActive {
		if err := c.convRepo.SetActive(ctx, conv.ID, true); err != nil {
			return nil, entities.NewUnexpectedError("failed to restore conversation", err)
		}
		conv.IsActive = true
	}

	return conv, nil
}

// loadConversation returns the conversation when user is an active
// participant of an active conversation and NotFound otherwise.
func (c *ChatUseCases) loadConversation(ctx context.Context, user, id string) (*entities.Conversation, error) {
	conv, err := c.convRepo.GetConversation(ctx, id)
	if err != nil {
		return nil, storeError(err, "conversation")
	}

	if !conv.IsActive || !conv.IsActiveParticipant(user) {
		return nil, entities.NewNotFoundError("conversation not found")
	}

	return conv, nil
}

func (c *ChatUseCases) GetConversation(ctx context.Context, user, id string) (*entities.Conversation, error) {
	return c.loadConversation(ctx, user, id)
}

// ListConversations returns the caller's active conversations, most recent
// activity first.
func (c *ChatUseCases) ListConversations(ctx context.Context, user string) ([]*entities.ConversationSummary, error) {
	log := utilities.NewLoggerWithFields("ListConversations", map[string]interface{}{"user": user})

	conversations, err := c.convRepo.ListUserConversations(ctx, user)
	if err != nil {
		return nil, entities.NewUnexpectedError("failed to list conversations", err)
	}

	summaries := make([]*entities.ConversationSummary, 0, len(conversations))
	for _, conv := range conversations {
		if !conv.IsActive || !conv.IsActiveParticipant(user) {
			continue
		}

		summary := &entities.ConversationSummary{Conversation: conv}

		summary.UnreadCount, err = c.unreadCount(ctx, conv, user)
		if err != nil {
			return nil, err
		}

		if conv.LastMessageID != "" {
			last, err := c.msgRepo.GetMessage(ctx, conv.LastMessageID)
			if err != nil {
				log.WithError(err).Warnf("failed to load last message of %s", conv.ID)
			} else if !last.IsDeleted {
				summary.LastMessage = last
			}
		}

		summaries = append(summaries, summary)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].LastActivityAt.After(summaries[j].LastActivityAt)
	})

	return summaries, nil
}

// DeleteConversation soft deletes a direct conversation.
func (c *ChatUseCases) DeleteConversation(ctx context.Context, user, id string) error {
	conv, err := c.loadConversation(ctx, user, id)
	if err != nil {
		return err
	}

	if conv.Type != consts.ConversationDirect {
		return entities.NewInvalidOperationError("group conversations are removed with their group")
	}

	if err := c.convRepo.SetActive(ctx, conv.ID, false); err != nil {
		return entities.NewUnexpectedError("failed to delete conversation", err)
	}
	return nil
}

func (c *ChatUseCases) GetMessages(ctx context.Context, user, id, before string, limit int) ([]*entities.Message, error) {
	if before != "" && !repo.IsTimeID(before) {
		return nil, entities.NewValidationError("invalid before cursor")
	}
	if limit <= 0 {
		limit = c.settings.PageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	conv, err := c.loadConversation(ctx, user, id)
	if err != nil {
		return nil, err
	}

	messages, err := c.msgRepo.ListMessages(ctx, conv.ID, before, limit)
	if err != nil {
		return nil, entities.NewUnexpectedError("failed to list messages", err)
	}
	return messages, nil
}

func (c *ChatUseCases) validateContent(content string, required bool) error {
	if required && strings.TrimSpace(content) == "" {
		return entities.NewValidationError("message content is required")
	}
	if c.settings.MaxContentLength > 0 && utilities.RuneLen(content) > c.settings.MaxContentLength {
		return entities.NewValidationError("message content exceeds %d characters", c.settings.MaxContentLength)
	}
	return nil
}

func (c *ChatUseCases) validatePayload(req *entities.SendMessageRequest) error {
	if req.Type == "" {
		req.Type = consts.MessageText
	}
	if !consts.MessageTypes[req.Type] {
		return entities.NewValidationError("unknown message type %q", req.Type)
	}

	if len(req.Attachments) > maxAttachments {
		return entities.NewValidationError("at most %d attachments are allowed", maxAttachments)
	}
	for _, a := range req.Attachments {
		if strings.TrimSpace(a.URL) == "" {
			return entities.NewValidationError("attachment url is required")
		}
	}

	return c.validateContent(req.Content, len(req.Attachments) == 0)
}

// authorizeSend checks that sender may post into conv and returns the sender
// and, for group conversations, the group.
func (c *ChatUseCases) authorizeSend(
	ctx context.Context, sender string, conv *entities.Conversation,
) (*entities.User, *entities.Group, error) {
	if !conv.IsActive || !conv.IsActiveParticipant(sender) {
		return nil, nil, entities.NewNotFoundError("conversation not found")
	}

	others := conv.OtherParticipants(sender)
	users, err := c.userRepo.GetUsers(ctx, append([]string{sender}, others...))
	if err != nil {
		return nil, nil, entities.NewUnexpectedError("failed to load participants", err)
	}

	me, ok := users[sender]
	if !ok {
		return nil, nil, entities.NewNotFoundError("user not found")
	}

	for _, other := range others {
		if me.HasBlocked(other) {
			return nil, nil, entities.ErrBlockedRecipient
		}
		// in a direct conversation a block by the recipient withholds delivery too
		if conv.Type == consts.ConversationDirect && users[other] != nil && users[other].HasBlocked(sender) {
			return nil, nil, entities.ErrBlockedRecipient
		}
	}

	if conv.Type != consts.ConversationGroup {
		return me, nil, nil
	}

	group, err := c.groupRepo.GetGroup(ctx, conv.GroupID)
	if err != nil {
		return nil, nil, storeError(err, "group")
	}
	if !group.IsActive {
		return nil, nil, entities.NewNotFoundError("group not found")
	}

	member := group.Member(sender)
	if member == nil {
		return nil, nil, entities.NewNotFoundError("conversation not found")
	}
	if member.IsMuted {
		return nil, nil, entities.ErrMutedInGroup
	}
	if group.Settings.OnlyAdminsCanMessage && !group.IsAdmin(sender) {
		return nil, nil, entities.NewForbiddenError("only admins can message this group")
	}

	return me, group, nil
}

// deliver persists msg, moves the conversation activity forward and notifies
// the other participants.
func (c *ChatUseCases) deliver(
	ctx context.Context, sender *entities.User, conv *entities.Conversation, group *entities.Group, msg *entities.Message,
) (*entities.Message, error) {
	log := utilities.NewLoggerWithFields("ChatUseCases.deliver", map[string]interface{}{
		"conversation": conv.ID,
		"sender":       sender.ID,
	})

	msg.ConversationID = conv.ID
	msg.SenderID = sender.ID
	msg.CreatedAt = c.now()

	if err := c.msgRepo.CreateMessage(ctx, msg); err != nil {
		return nil, entities.NewUnexpectedError("failed to store message", err)
	}

	if err := c.convRepo.UpdateLastMessage(ctx, conv.ID, msg.ID, msg.CreatedAt); err != nil {
		log.WithError(err).Error("failed to update last message")
	}

	if c.notifier != nil {
		targets := make([]entities.FanOutTarget, 0, len(conv.Participants))
		for _, p := range conv.OtherParticipants(sender.ID) {
			targets = append(targets, entities.FanOutTarget{UserID: p, IsMuted: conv.IsMuted(p)})
		}
		c.notifier.Dispatch(ctx, messageEvent(sender, conv, group, msg), targets)
	}

	return msg, nil
}

func displayName(u *entities.User) string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

func preview(msg *entities.Message) string {
	if strings.TrimSpace(msg.Content) == "" {
		return "sent an attachment"
	}

	runes := []rune(msg.Content)
	if len(runes) <= previewLength {
		return msg.Content
	}
	return string(runes[:previewLength]) + "..."
}

func messageEvent(
	sender *entities.User, conv *entities.Conversation, group *entities.Group, msg *entities.Message,
) entities.NotificationEvent {
	event := entities.NotificationEvent{
		Type:           consts.NotificationMessage,
		Actor:          sender.ID,
		Title:          displayName(sender),
		Message:        preview(msg),
		ConversationID: conv.ID,
	}

	if group != nil {
		event.Type = consts.NotificationGroupMessage
		event.Title = group.Name
		event.Message = fmt.Sprintf("%s: %s", displayName(sender), preview(msg))
		event.GroupID = group.ID
	}

	return event
}

func (c *ChatUseCases) SendMessage(
	ctx context.Context, user, id string, req entities.SendMessageRequest,
) (*entities.Message, error) {
	if err := c.validatePayload(&req); err != nil {
		return nil, err
	}

	conv, err := c.convRepo.GetConversation(ctx, id)
	if err != nil {
		return nil, storeError(err, "conversation")
	}

	sender, group, err := c.authorizeSend(ctx, user, conv)
	if err != nil {
		return nil, err
	}

	msg := &entities.Message{
		Content:     req.Content,
		Type:        req.Type,
		Attachments: req.Attachments,
	}

	if req.ReplyToID != "" {
		parent, err := c.msgRepo.GetMessage(ctx, req.ReplyToID)
		if err == nil && parent.ConversationID == conv.ID {
			msg.ReplyToID = parent.ID
		} else if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, entities.NewUnexpectedError("failed to load replied message", err)
		}
	}

	return c.deliver(ctx, sender, conv, group, msg)
}

func (c *ChatUseCases) EditMessage(ctx context.Context, user, messageID, content string) (*entities.Message, error) {
	msg, err := c.msgRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeError(err, "message")
	}

	if msg.SenderID != user {
		return nil, entities.ErrNotMessageSender
	}
	if msg.IsDeleted {
		return nil, entities.NewInvalidOperationError("message has been deleted")
	}

	now := c.now()
	if now.Sub(msg.CreatedAt) > c.settings.EditWindow {
		return nil, entities.ErrEditWindowExpired
	}

	if err := c.validateContent(content, len(msg.Attachments) == 0); err != nil {
		return nil, err
	}

	msg.Content = content
	msg.IsEdited = true
	msg.EditedAt = &now

	if err := c.msgRepo.UpdateContent(ctx, msg); err != nil {
		return nil, storeError(err, "message")
	}
	return msg, nil
}

// DeleteMessage soft deletes a message. The pinned flag is left as it is.
func (c *ChatUseCases) DeleteMessage(ctx context.Context, user, messageID string) error {
	msg, err := c.msgRepo.GetMessage(ctx, messageID)
	if err != nil {
		return storeError(err, "message")
	}

	if msg.SenderID != user {
		return entities.ErrNotMessageSender
	}
	if msg.IsDeleted {
		return nil
	}

	if err := c.msgRepo.SoftDelete(ctx, msg.ConversationID, msg.ID, c.now()); err != nil {
		return storeError(err, "message")
	}
	return nil
}

// ReactToMessage toggles the (user, emoji) reaction.
func (c *ChatUseCases) ReactToMessage(
	ctx context.Context, user, messageID, emoji string,
) (*entities.ReactionResult, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || utilities.RuneLen(emoji) > maxEmojiLength {
		return nil, entities.NewValidationError("invalid emoji")
	}

	msg, err := c.msgRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeError(err, "message")
	}
	if _, err := c.loadConversation(ctx, user, msg.ConversationID); err != nil {
		return nil, err
	}
	if msg.IsDeleted {
		return nil, entities.NewInvalidOperationError("message has been deleted")
	}

	reaction := entities.Reaction{User: user, Emoji: emoji, ReactedAt: c.now()}
	action := consts.ReactionAdded

	if msg.HasReaction(user, emoji) {
		action = consts.ReactionRemoved
		err = c.msgRepo.RemoveReaction(ctx, msg.ConversationID, msg.ID, reaction)
	} else {
		err = c.msgRepo.AddReaction(ctx, msg.ConversationID, msg.ID, reaction)
	}
	if err != nil {
		return nil, storeError(err, "message")
	}

	updated, err := c.msgRepo.GetMessage(ctx, msg.ID)
	if err != nil {
		return nil, storeError(err, "message")
	}

	return &entities.ReactionResult{Action: action, Message: updated}, nil
}

func (c *ChatUseCases) PinMessage(
	ctx context.Context, user, id, messageID string, pinned bool,
) (*entities.Message, error) {
	conv, err := c.loadConversation(ctx, user, id)
	if err != nil {
		return nil, err
	}

	msg, err := c.msgRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeError(err, "message")
	}
	if msg.ConversationID != conv.ID {
		return nil, entities.NewInvalidOperationError("message does not belong to this conversation")
	}
	if msg.IsDeleted {
		return nil, entities.NewInvalidOperationError("message has been deleted")
	}

	if err := c.convRepo.SetPinned(ctx, conv.ID, msg.ID, pinned); err != nil {
		return nil, storeError(err, "message")
	}

	msg.IsPinned = pinned
	return msg, nil
}

// ForwardMessage copies a message into target. The caller's membership of
// the original conversation is not checked.
func (c *ChatUseCases) ForwardMessage(
	ctx context.Context, user, messageID, target string,
) (*entities.Message, error) {
	original, err := c.msgRepo.GetMessage(ctx, messageID)
	if err != nil {
		return nil, storeError(err, "message")
	}
	if original.IsDeleted {
		return nil, entities.NewNotFoundError("message not found")
	}

	conv, err := c.convRepo.GetConversation(ctx, target)
	if err != nil {
		return nil, storeError(err, "conversation")
	}

	sender, group, err := c.authorizeSend(ctx, user, conv)
	if err != nil {
		return nil, err
	}

	return c.deliver(ctx, sender, conv, group, &entities.Message{
		Content:         original.Content,
		Type:            original.Type,
		Attachments:     append([]entities.Attachment(nil), original.Attachments...),
		ForwardedFromID: original.ID,
	})
}

// MarkAsRead adds a read receipt to every unread message from other senders
// and moves the caller's read marker to the newest message. It returns the
// number of receipts added.
func (c *ChatUseCases) MarkAsRead(ctx context.Context, user, id string) (int, error) {
	conv, err := c.loadConversation(ctx, user, id)
	if err != nil {
		return 0, err
	}

	var lastRead string
	if settings, ok := conv.ParticipantSettings[user]; ok {
		lastRead = settings.LastReadMessageID
	}

	messages, err := c.msgRepo.ListMessagesAfter(ctx, conv.ID, lastRead)
	if err != nil {
		return 0, entities.NewUnexpectedError("failed to list messages", err)
	}
	if len(messages) == 0 {
		return 0, nil
	}

	unread := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.SenderID != user && !msg.IsReadBy(user) {
			unread = append(unread, msg.ID)
		}
	}

	if len(unread) != 0 {
		receipt := entities.ReadReceipt{User: user, ReadAt: c.now()}
		if err := c.msgRepo.AddReadReceipts(ctx, conv.ID, unread, receipt); err != nil {
			return 0, entities.NewUnexpectedError("failed to store read receipts", err)
		}
	}

	if err := c.convRepo.SetLastRead(ctx, conv.ID, user, messages[len(messages)-1].ID); err != nil {
		return 0, storeError(err, "conversation")
	}

	return len(unread), nil
}

func (c *ChatUseCases) unreadCount(ctx context.Context, conv *entities.Conversation, user string) (int, error) {
	var lastRead string
	if settings, ok := conv.ParticipantSettings[user]; ok {
		lastRead = settings.LastReadMessageID
	}

	messages, err := c.msgRepo.ListMessagesAfter(ctx, conv.ID, lastRead)
	if err != nil {
		return 0, entities.NewUnexpectedError("failed to count unread messages", err)
	}

	count := 0
	for _, msg := range messages {
		if msg.SenderID != user {
			count++
		}
	}
	return count, nil
}

func (c *ChatUseCases) UnreadCount(ctx context.Context, user, id string) (int, error) {
	conv, err := c.loadConversation(ctx, user, id)
	if err != nil {
		return 0, err
	}
	return c.unreadCount(ctx, conv, user)
}

func (c *ChatUseCases) SearchMessages(ctx context.Context, user, id, query string) ([]*entities.Message, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, entities.NewValidationError("search query is required")
	}

	conv, err := c.loadConversation(ctx, user, id)
	if err != nil {
		return nil, err
	}

	messages, err := c.msgRepo.SearchMessages(ctx, conv.ID, query, searchLimit)
	if err != nil {
		return nil, entities.NewUnexpectedError("failed to search messages", err)
	}
	return messages, nil
}

func (c *ChatUseCases) MuteConversation(ctx context.Context, user, id string, muted bool) error {
	conv, err := c.loadConversation(ctx, user, id)
	if err != nil {
		return err
	}

	if err := c.convRepo.SetParticipantMuted(ctx, conv.ID, user, muted); err != nil {
		return storeError(err, "conversation")
	}
	return nil
}
