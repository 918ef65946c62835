// Package memory is a process local driver implementing every repository
// interface. It backs local mode and the use case tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/repo"
	"wisdomwalk/utilities"
)

// Store keeps every table behind a single lock, which gives each method the
// atomicity Cassandra gives the equivalent write.
type Store struct {
	mu sync.RWMutex

	users         map[string]*entities.User
	devices       map[string]map[string]time.Time
	conversations map[string]*entities.Conversation
	directPairs   map[string]string
	userConvs     map[string]map[string]bool
	messages      map[string][]*entities.Message
	messageIndex  map[string]*entities.Message
	groups        map[string]*entities.Group
	invites       map[string]string
	userGroups    map[string]map[string]bool
	notifications map[string][]*entities.Notification
}

func NewStore() *Store {
	return &Store{
		users:         make(map[string]*entities.User),
		devices:       make(map[string]map[string]time.Time),
		conversations: make(map[string]*entities.Conversation),
		directPairs:   make(map[string]string),
		userConvs:     make(map[string]map[string]bool),
		messages:      make(map[string][]*entities.Message),
		messageIndex:  make(map[string]*entities.Message),
		groups:        make(map[string]*entities.Group),
		invites:       make(map[string]string),
		userGroups:    make(map[string]map[string]bool),
		notifications: make(map[string][]*entities.Notification),
	}
}

var (
	_ repo.Imply                 = (*Store)(nil)
	_ repo.UserRepoImply         = (*Store)(nil)
	_ repo.ConversationRepoImply = (*Store)(nil)
	_ repo.MessageRepoImply      = (*Store)(nil)
	_ repo.GroupRepoImply        = (*Store)(nil)
	_ repo.NotificationRepoImply = (*Store)(nil)
)

func (s *Store) DBHealthCheck(_ context.Context) error {
	return nil
}

// users

func copyUser(u *entities.User) *entities.User {
	c := *u
	c.BlockedUsers = append([]string(nil), u.BlockedUsers...)
	return &c
}

func (s *Store) GetUser(_ context.Context, id string) (*entities.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *Store) GetUsers(_ context.Context, ids []string) (map[string]*entities.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make(map[string]*entities.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			users[id] = copyUser(u)
		}
	}
	return users, nil
}

func (s *Store) UpsertUser(_ context.Context, u *entities.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[u.ID] = copyUser(u)
	return nil
}

func (s *Store) BlockUser(_ context.Context, id, blocked string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	if !u.HasBlocked(blocked) {
		u.BlockedUsers = append(u.BlockedUsers, blocked)
	}
	return nil
}

func (s *Store) UnblockUser(_ context.Context, id, blocked string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return repo.ErrNotFound
	}
	u.BlockedUsers = utilities.RemoveString(u.BlockedUsers, blocked)
	return nil
}

func (s *Store) AddDevice(_ context.Context, id, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.devices[id] == nil {
		s.devices[id] = make(map[string]time.Time)
	}
	s.devices[id][deviceID] = utilities.TimeNow()
	return nil
}

func (s *Store) GetDevices(_ context.Context, ids []string) (map[string][]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	devices := make(map[string][]string)
	for _, id := range ids {
		for deviceID := range s.devices[id] {
			devices[id] = append(devices[id], deviceID)
		}
		sort.Strings(devices[id])
	}
	return devices, nil
}

// conversations

func copyConversation(c *entities.Conversation) *entities.Conversation {
	conv := *c
	conv.Participants = append([]string(nil), c.Participants...)
	conv.PinnedMessageIDs = append([]string(nil), c.PinnedMessageIDs...)
	conv.ParticipantSettings = make(map[string]*entities.ParticipantSettings, len(c.ParticipantSettings))
	for user, settings := range c.ParticipantSettings {
		cs := *settings
		if settings.LeftAt != nil {
			leftAt := *settings.LeftAt
			cs.LeftAt = &leftAt
		}
		conv.ParticipantSettings[user] = &cs
	}
	return &conv
}

func (s *Store) insertConversation(conv *entities.Conversation) {
	stored := copyConversation(conv)
	for _, user := range stored.Participants {
		if _, ok := stored.ParticipantSettings[user]; !ok {
			stored.ParticipantSettings[user] = &entities.ParticipantSettings{UserID: user, JoinedAt: stored.CreatedAt}
		}
		s.indexUserConversation(user, stored.ID)
	}
	s.conversations[stored.ID] = stored
}

func (s *Store) indexUserConversation(user, id string) {
	if s.userConvs[user] == nil {
		s.userConvs[user] = make(map[string]bool)
	}
	s.userConvs[user][id] = true
}

func (s *Store) CreateDirectConversation(
	_ context.Context, conv *entities.Conversation,
) (*entities.Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := repo.DirectPairKey(conv.Participants[0], conv.Participants[1])
	if id, ok := s.directPairs[key]; ok {
		return copyConversation(s.conversations[id]), false, nil
	}

	s.directPairs[key] = conv.ID
	s.insertConversation(conv)
	return copyConversation(s.conversations[conv.ID]), true, nil
}

func (s *Store) FindDirectConversation(_ context.Context, userA, userB string) (*entities.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.directPairs[repo.DirectPairKey(userA, userB)]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return copyConversation(s.conversations[id]), nil
}

func (s *Store) GetConversation(_ context.Context, id string) (*entities.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return copyConversation(conv), nil
}

func (s *Store) ListUserConversations(_ context.Context, user string) ([]*entities.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var conversations []*entities.Conversation
	for id := range s.userConvs[user] {
		if conv, ok := s.conversations[id]; ok {
			conversations = append(conversations, copyConversation(conv))
		}
	}
	sort.Slice(conversations, func(i, j int) bool { return conversations[i].ID < conversations[j].ID })
	return conversations, nil
}

func (s *Store) UpdateLastMessage(_ context.Context, id, messageID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return repo.ErrNotFound
	}
	if at.Before(conv.LastActivityAt) {
		return nil
	}
	conv.LastMessageID = messageID
	conv.LastActivityAt = at
	return nil
}

func (s *Store) participant(id, user string) (*entities.ParticipantSettings, error) {
	conv, ok := s.conversations[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	settings, ok := conv.ParticipantSettings[user]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return settings, nil
}

func (s *Store) SetParticipantMuted(_ context.Context, id, user string, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.participant(id, user)
	if err != nil {
		return err
	}
	settings.IsMuted = muted
	return nil
}

func (s *Store) SetLastRead(_ context.Context, id, user, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.participant(id, user)
	if err != nil {
		return err
	}
	settings.LastReadMessageID = messageID
	return nil
}

func (s *Store) SetPinned(_ context.Context, id, messageID string, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return repo.ErrNotFound
	}
	msg, ok := s.messageIndex[messageID]
	if !ok || msg.ConversationID != id {
		return repo.ErrNotFound
	}

	conv.PinnedMessageIDs = utilities.RemoveString(conv.PinnedMessageIDs, messageID)
	if pinned {
		conv.PinnedMessageIDs = append(conv.PinnedMessageIDs, messageID)
	}
	msg.IsPinned = pinned
	return nil
}

func (s *Store) SetActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return repo.ErrNotFound
	}
	conv.IsActive = active
	return nil
}

// messages

func copyMessage(m *entities.Message) *entities.Message {
	msg := *m
	msg.Attachments = append([]entities.Attachment(nil), m.Attachments...)
	msg.Reactions = append([]entities.Reaction(nil), m.Reactions...)
	msg.ReadBy = append([]entities.ReadReceipt(nil), m.ReadBy...)
	return &msg
}

func (s *Store) CreateMessage(_ context.Context, msg *entities.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = repo.NewTimeID()
	}

	stored := copyMessage(msg)
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], stored)
	s.messageIndex[msg.ID] = stored
	return nil
}

func (s *Store) GetMessage(_ context.Context, id string) (*entities.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messageIndex[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return copyMessage(msg), nil
}

// listMessages returns visible messages in id order.
func (s *Store) listMessages(conversationID string, keep func(*entities.Message) bool) []*entities.Message {
	var out []*entities.Message
	for _, msg := range s.messages[conversationID] {
		if msg.IsDeleted || (keep != nil && !keep(msg)) {
			continue
		}
		out = append(out, copyMessage(msg))
	}
	sort.SliceStable(out, func(i, j int) bool { return repo.CompareTimeIDs(out[i].ID, out[j].ID) < 0 })
	return out
}

func (s *Store) ListMessages(_ context.Context, conversationID, before string, limit int) ([]*entities.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.listMessages(conversationID, func(msg *entities.Message) bool {
		return before == "" || repo.CompareTimeIDs(msg.ID, before) < 0
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (s *Store) ListMessagesAfter(_ context.Context, conversationID, after string) ([]*entities.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.listMessages(conversationID, func(msg *entities.Message) bool {
		return after == "" || repo.CompareTimeIDs(msg.ID, after) > 0
	}), nil
}

func (s *Store) SearchMessages(_ context.Context, conversationID, query string, limit int) ([]*entities.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	messages := s.listMessages(conversationID, func(msg *entities.Message) bool {
		return strings.Contains(strings.ToLower(msg.Content), needle)
	})
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (s *Store) storedMessage(conversationID, id string) (*entities.Message, error) {
	msg, ok := s.messageIndex[id]
	if !ok || msg.ConversationID != conversationID {
		return nil, repo.ErrNotFound
	}
	return msg, nil
}

func (s *Store) UpdateContent(_ context.Context, msg *entities.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.storedMessage(msg.ConversationID, msg.ID)
	if err != nil {
		return err
	}
	stored.Content = msg.Content
	stored.IsEdited = true
	stored.EditedAt = msg.EditedAt
	return nil
}

func (s *Store) SoftDelete(_ context.Context, conversationID, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.storedMessage(conversationID, id)
	if err != nil {
		return err
	}
	stored.IsDeleted = true
	stored.DeletedAt = &at
	return nil
}

func (s *Store) AddReaction(_ context.Context, conversationID, id string, reaction entities.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.storedMessage(conversationID, id)
	if err != nil {
		return err
	}
	if !stored.HasReaction(reaction.User, reaction.Emoji) {
		stored.Reactions = append(stored.Reactions, reaction)
	}
	return nil
}

func (s *Store) RemoveReaction(_ context.Context, conversationID, id string, reaction entities.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.storedMessage(conversationID, id)
	if err != nil {
		return err
	}
	kept := stored.Reactions[:0]
	for _, r := range stored.Reactions {
		if r.User == reaction.User && r.Emoji == reaction.Emoji {
			continue
		}
		kept = append(kept, r)
	}
	stored.Reactions = kept
	return nil
}

func (s *Store) AddReadReceipts(_ context.Context, conversationID string, ids []string, receipt entities.ReadReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		stored, err := s.storedMessage(conversationID, id)
		if err != nil {
			continue
		}
		if !stored.IsReadBy(receipt.User) {
			stored.ReadBy = append(stored.ReadBy, receipt)
		}
	}
	return nil
}

// groups

func copyGroup(g *entities.Group) *entities.Group {
	group := *g
	group.Members = append([]entities.GroupMember(nil), g.Members...)
	group.PinnedPosts = append([]string(nil), g.PinnedPosts...)
	group.DeriveAdmins()
	return &group
}

func (s *Store) CreateGroup(_ context.Context, group *entities.Group, conv *entities.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyGroup(group)
	s.groups[stored.ID] = stored
	s.invites[stored.InviteLink] = stored.ID
	for _, m := range stored.Members {
		s.indexUserGroup(m.UserID, stored.ID)
	}
	s.insertConversation(conv)
	return nil
}

func (s *Store) indexUserGroup(user, id string) {
	if s.userGroups[user] == nil {
		s.userGroups[user] = make(map[string]bool)
	}
	s.userGroups[user][id] = true
}

func (s *Store) GetGroup(_ context.Context, id string) (*entities.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, ok := s.groups[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return copyGroup(group), nil
}

func (s *Store) GetGroupByInvite(_ context.Context, inviteLink string) (*entities.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.invites[inviteLink]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return copyGroup(s.groups[id]), nil
}

func (s *Store) ListUserGroups(_ context.Context, user string) ([]*entities.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var groups []*entities.Group
	for id := range s.userGroups[user] {
		if group, ok := s.groups[id]; ok {
			groups = append(groups, copyGroup(group))
		}
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].CreatedAt.Before(groups[j].CreatedAt) })
	return groups, nil
}

func (s *Store) UpdateGroupInfo(_ context.Context, group *entities.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.groups[group.ID]
	if !ok {
		return repo.ErrNotFound
	}
	stored.Name = group.Name
	stored.Description = group.Description
	stored.Avatar = group.Avatar
	stored.Settings = group.Settings
	stored.UpdatedAt = group.UpdatedAt
	return nil
}

func (s *Store) DeactivateGroup(_ context.Context, group *entities.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.groups[group.ID]
	if !ok {
		return repo.ErrNotFound
	}
	stored.IsActive = false
	delete(s.invites, stored.InviteLink)
	if conv, ok := s.conversations[stored.ConversationID]; ok {
		conv.IsActive = false
	}
	return nil
}

func (s *Store) AddMember(_ context.Context, group *entities.Group, member entities.GroupMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.groups[group.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if stored.IsMember(member.UserID) {
		return repo.ErrConflict
	}
	stored.Members = append(stored.Members, member)
	s.indexUserGroup(member.UserID, stored.ID)

	if conv, ok := s.conversations[stored.ConversationID]; ok {
		if !utilities.ContainsString(conv.Participants, member.UserID) {
			conv.Participants = append(conv.Participants, member.UserID)
		}
		conv.ParticipantSettings[member.UserID] = &entities.ParticipantSettings{
			UserID:   member.UserID,
			JoinedAt: member.JoinedAt,
		}
		s.indexUserConversation(member.UserID, conv.ID)
	}
	return nil
}

func (s *Store) RemoveMember(_ context.Context, group *entities.Group, user string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.groups[group.ID]
	if !ok {
		return repo.ErrNotFound
	}
	kept := stored.Members[:0]
	for _, m := range stored.Members {
		if m.UserID != user {
			kept = append(kept, m)
		}
	}
	stored.Members = kept
	delete(s.userGroups[user], stored.ID)

	if conv, ok := s.conversations[stored.ConversationID]; ok {
		conv.Participants = utilities.RemoveString(conv.Participants, user)
		if settings, ok := conv.ParticipantSettings[user]; ok {
			leftAt := at
			settings.LeftAt = &leftAt
		}
		delete(s.userConvs[user], conv.ID)
	}
	return nil
}

func (s *Store) SetMemberRole(_ context.Context, groupID, user, from, to string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.groups[groupID]
	if !ok {
		return repo.ErrNotFound
	}
	member := stored.Member(user)
	if member == nil {
		return repo.ErrNotFound
	}
	if member.Role != from {
		return repo.ErrConflict
	}
	member.Role = to
	return nil
}

func (s *Store) SetMemberMuted(_ context.Context, groupID, user string, muted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.groups[groupID]
	if !ok {
		return repo.ErrNotFound
	}
	member := stored.Member(user)
	if member == nil {
		return repo.ErrNotFound
	}
	member.IsMuted = muted
	return nil
}

func (s *Store) SetInviteLink(_ context.Context, group *entities.Group, inviteLink string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.groups[group.ID]
	if !ok {
		return repo.ErrNotFound
	}
	delete(s.invites, stored.InviteLink)
	stored.InviteLink = inviteLink
	stored.UpdatedAt = utilities.TimeNow()
	s.invites[inviteLink] = stored.ID
	return nil
}

func (s *Store) SetPinnedPost(_ context.Context, groupID, postID string, pinned bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.groups[groupID]
	if !ok {
		return repo.ErrNotFound
	}
	stored.PinnedPosts = utilities.RemoveString(stored.PinnedPosts, postID)
	if pinned {
		stored.PinnedPosts = append(stored.PinnedPosts, postID)
	}
	return nil
}

// notifications

func (s *Store) InsertNotifications(_ context.Context, notifications []*entities.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range notifications {
		if n.ID == "" {
			n.ID = repo.NewTimeID()
		}
		stored := *n
		s.notifications[n.Recipient] = append(s.notifications[n.Recipient], &stored)
	}
	return nil
}

// newestFirst returns the recipient's notifications newest first.
func (s *Store) newestFirst(user string) []*entities.Notification {
	list := append([]*entities.Notification(nil), s.notifications[user]...)
	sort.SliceStable(list, func(i, j int) bool { return repo.CompareTimeIDs(list[i].ID, list[j].ID) > 0 })
	return list
}

func (s *Store) ListNotifications(
	_ context.Context, user string, pageSize int, pageState []byte,
) ([]*entities.Notification, []byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.newestFirst(user)

	// page state is the id of the last notification of the previous page
	start := 0
	if len(pageState) != 0 {
		last := string(pageState)
		start = len(list)
		for i, n := range list {
			if repo.CompareTimeIDs(n.ID, last) < 0 {
				start = i
				break
			}
		}
	}

	end := len(list)
	if pageSize > 0 && start+pageSize < end {
		end = start + pageSize
	}

	page := make([]*entities.Notification, 0, end-start)
	for _, n := range list[start:end] {
		c := *n
		page = append(page, &c)
	}

	var next []byte
	if end < len(list) && len(page) != 0 {
		next = []byte(page[len(page)-1].ID)
	}
	return page, next, nil
}

func (s *Store) CountUnread(_ context.Context, user string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.notifications[user] {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (s *Store) MarkRead(_ context.Context, user, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, n := range s.notifications[user] {
		if n.ID == id {
			n.IsRead = true
			readAt := at
			n.ReadAt = &readAt
			return nil
		}
	}
	return repo.ErrNotFound
}

func (s *Store) MarkAllRead(_ context.Context, user string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, n := range s.notifications[user] {
		if n.IsRead {
			continue
		}
		n.IsRead = true
		readAt := at
		n.ReadAt = &readAt
		count++
	}
	return count, nil
}

func (s *Store) DeleteNotification(_ context.Context, user, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.notifications[user]
	for i, n := range list {
		if n.ID == id {
			s.notifications[user] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return repo.ErrNotFound
}
