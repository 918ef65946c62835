package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuidLib "github.com/google/uuid"

	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/repo"
	"wisdomwalk/utilities"
)

// RoomEvictor drops a user's live gateway connections from a room.
type RoomEvictor interface {
	EvictFromRoom(ctx context.Context, room, user string) error
}

type GroupUseCases struct {
	repo     repo.GroupRepoImply
	userRepo repo.UserRepoImply
	chat     ChatUseCaseImply
	notifier Notifier
	rooms    RoomEvictor
	settings ChatSettings
	now      func() time.Time
}

type GroupUseCaseImply interface {
	CreateGroup(ctx context.Context, creator string, req entities.CreateGroupRequest) (*entities.Group, error)
	GetGroup(ctx context.Context, user, id string) (*entities.Group, error)
	ListGroups(ctx context.Context, user string) ([]*entities.Group, error)
	UpdateGroup(ctx context.Context, user, id string, req entities.UpdateGroupRequest) (*entities.Group, error)
	DeleteGroup(ctx context.Context, user, id string) error
	JoinGroup(ctx context.Context, user, id string) (*entities.Group, error)
	JoinByInvite(ctx context.Context, user, inviteLink string) (*entities.Group, error)
	LeaveGroup(ctx context.Context, user, id string) error
	ListMembers(ctx context.Context, user, id string) ([]entities.GroupMember, error)
	AddMembers(ctx context.Context, user, id string, users []string) (*entities.Group, error)
	RemoveMember(ctx context.Context, user, id, target string) error
	MuteMember(ctx context.Context, user, id, target string, muted bool) error
	PromoteAdmin(ctx context.Context, user, id, target string) error
	DemoteAdmin(ctx context.Context, user, id, target string) error
	RegenerateInviteLink(ctx context.Context, user, id string) (string, error)
	SendGroupMessage(ctx context.Context, user, id string, req entities.SendMessageRequest) (*entities.Message, error)
	GetGroupMessages(ctx context.Context, user, id, before string, limit int) ([]*entities.Message, error)
	TogglePinnedPost(ctx context.Context, user, id, postID string) (*entities.PinnedPostResult, error)
}

// NewGroupUseCases creates the group use cases. rooms may be nil when no
// gateway runs.
func NewGroupUseCases(
	groupRepo repo.GroupRepoImply, userRepo repo.UserRepoImply, chat ChatUseCaseImply,
	notifier Notifier, rooms RoomEvictor, settings ChatSettings,
) GroupUseCaseImply {
	return &GroupUseCases{
		repo:     groupRepo,
		userRepo: userRepo,
		chat:     chat,
		notifier: notifier,
		rooms:    rooms,
		settings: settings,
		now:      utilities.TimeNow,
	}
}

func (g *GroupUseCases) notify(ctx context.Context, kind, actor string, group *entities.Group, message string, users ...string) {
	if g.notifier == nil || len(users) == 0 {
		return
	}

	targets := make([]entities.FanOutTarget, 0, len(users))
	for _, u := range users {
		targets = append(targets, entities.FanOutTarget{UserID: u})
	}

	g.notifier.Dispatch(ctx, entities.NotificationEvent{
		Type:           kind,
		Actor:          actor,
		Title:          group.Name,
		Message:        message,
		ConversationID: group.ConversationID,
		GroupID:        group.ID,
	}, targets)
}

// loadGroup returns an active group. Private groups are invisible to
// non-members.
// evict takes users out of the group's conversation room so they stop
// receiving its live events.
func (g *GroupUseCases) evict(ctx context.Context, group *entities.Group, users ...string) {
	if g.rooms == nil {
		return
	}

	room := ConversationRoom(group.ConversationID)
	for _, u := range users {
		if err := g.rooms.EvictFromRoom(ctx, room, u); err != nil {
			utilities.NewLogger("Group.evict").WithError(err).Warnf("failed to evict %s from %s", u, room)
		}
	}
}

func (g *GroupUseCases) loadGroup(ctx context.Context, user, id string) (*entities.Group, error) {
	group, err := g.repo.GetGroup(ctx, id)
	if err != nil {
		return nil, storeError(err, "group")
	}

	if !group.IsActive || (group.Settings.IsPrivate && !group.IsMember(user)) {
		return nil, entities.NewNotFoundError("group not found")
	}

	return group, nil
}

func requireAdmin(group *entities.Group, user string) error {
	if !group.IsAdmin(user) {
		return entities.NewForbiddenError("only group admins can do this")
	}
	return nil
}

func requireMember(group *entities.Group, user string) error {
	if !group.IsMember(user) {
		return entities.NewForbiddenError("you are not a member of this group")
	}
	return nil
}

// redact hides the invite link from non-admins.
func redact(group *entities.Group, user string) *entities.Group {
	if !group.IsAdmin(user) {
		group.InviteLink = ""
	}
	return group
}

func (g *GroupUseCases) newInviteLink() (string, error) {
	link, err := utilities.GenerateRandomToken(g.settings.InviteLinkLength)
	if err != nil {
		return "", entities.NewUnexpectedError("failed to generate invite link", err)
	}
	return link, nil
}

// knownUsers fails with a validation error when any id is not a registered
// user.
func (g *GroupUseCases) knownUsers(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	users, err := g.userRepo.GetUsers(ctx, ids)
	if err != nil {
		return entities.NewUnexpectedError("failed to load users", err)
	}
	for _, id := range ids {
		if _, ok := users[id]; !ok {
			return entities.NewValidationError("unknown user %s", id)
		}
	}
	return nil
}

// CreateGroup stores the group, its conversation and its roster with the
// creator as the first admin.
func (g *GroupUseCases) CreateGroup(
	ctx context.Context, creator string, req entities.CreateGroupRequest,
) (*entities.Group, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, entities.NewValidationError("group name is required")
	}

	invited := utilities.RemoveString(utilities.UniqueStrings(req.Members), creator)
	if err := g.knownUsers(ctx, invited); err != nil {
		return nil, err
	}

	link, err := g.newInviteLink()
	if err != nil {
		return nil, err
	}

	now := g.now()
	group := &entities.Group{
		ID:             uuidLib.NewString(),
		Name:           name,
		Description:    req.Description,
		Avatar:         req.Avatar,
		Creator:        creator,
		Members:        []entities.GroupMember{{UserID: creator, Role: consts.RoleAdmin, JoinedAt: now}},
		InviteLink:     link,
		ConversationID: uuidLib.NewString(),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Settings != nil {
		group.Settings = *req.Settings
	}

	conv := &entities.Conversation{
		ID:                  group.ConversationID,
		Type:                consts.ConversationGroup,
		Participants:        []string{creator},
		ParticipantSettings: map[string]*entities.ParticipantSettings{creator: {UserID: creator, JoinedAt: now}},
		LastActivityAt:      now,
		IsActive:            true,
		GroupID:             group.ID,
		CreatedAt:           now,
	}

	for _, u := range invited {
		group.Members = append(group.Members, entities.GroupMember{UserID: u, Role: consts.RoleMember, JoinedAt: now})
		conv.Participants = append(conv.Participants, u)
		conv.ParticipantSettings[u] = &entities.ParticipantSettings{UserID: u, JoinedAt: now}
	}
	group.DeriveAdmins()

	if err := g.repo.CreateGroup(ctx, group, conv); err != nil {
		return nil, entities.NewUnexpectedError("failed to create group", err)
	}

	g.notify(ctx, consts.NotificationGroupAdded, creator, group,
		fmt.Sprintf("You were added to %s", group.Name), invited...)

	return group, nil
}

func (g *GroupUseCases) GetGroup(ctx context.Context, user, id string) (*entities.Group, error) {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return nil, err
	}
	return redact(group, user), nil
}

func (g *GroupUseCases) ListGroups(ctx context.Context, user string) ([]*entities.Group, error) {
	groups, err := g.repo.ListUserGroups(ctx, user)
	if err != nil {
		return nil, entities.NewUnexpectedError("failed to list groups", err)
	}

	active := make([]*entities.Group, 0, len(groups))
	for _, group := range groups {
		if group.IsActive && group.IsMember(user) {
			active = append(active, redact(group, user))
		}
	}
	return active, nil
}

func (g *GroupUseCases) UpdateGroup(
	ctx context.Context, user, id string, req entities.UpdateGroupRequest,
) (*entities.Group, error) {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(group, user); err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, entities.NewValidationError("group name is required")
		}
		group.Name = name
	}
	if req.Description != nil {
		group.Description = *req.Description
	}
	if req.Avatar != nil {
		group.Avatar = *req.Avatar
	}
	if req.Settings != nil {
		group.Settings = *req.Settings
	}
	group.UpdatedAt = g.now()

	if err := g.repo.UpdateGroupInfo(ctx, group); err != nil {
		return nil, storeError(err, "group")
	}
	return group, nil
}

// DeleteGroup deactivates the group and its conversation. Only the creator
// may delete.
func (g *GroupUseCases) DeleteGroup(ctx context.Context, user, id string) error {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return err
	}
	if group.Creator != user {
		return entities.NewForbiddenError("only the creator can delete the group")
	}

	if err := g.repo.DeactivateGroup(ctx, group); err != nil {
		return storeError(err, "group")
	}

	members := make([]string, 0, len(group.Members))
	for _, m := range group.Members {
		members = append(members, m.UserID)
	}
	g.evict(ctx, group, members...)
	return nil
}

func (g *GroupUseCases) addMember(ctx context.Context, group *entities.Group, user string) error {
	err := g.repo.AddMember(ctx, group, entities.GroupMember{
		UserID:   user,
		Role:     consts.RoleMember,
		JoinedAt: g.now(),
	})
	if errors.Is(err, repo.ErrConflict) {
		return entities.NewInvalidOperationError("already a member of this group")
	}
	if err != nil {
		return storeError(err, "group")
	}
	return nil
}

// JoinGroup adds the caller to a public group.
func (g *GroupUseCases) JoinGroup(ctx context.Context, user, id string) (*entities.Group, error) {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if group.IsMember(user) {
		return nil, entities.NewInvalidOperationError("already a member of this group")
	}

	if err := g.addMember(ctx, group, user); err != nil {
		return nil, err
	}
	return g.GetGroup(ctx, user, id)
}

func (g *GroupUseCases) JoinByInvite(ctx context.Context, user, inviteLink string) (*entities.Group, error) {
	group, err := g.repo.GetGroupByInvite(ctx, inviteLink)
	if err != nil {
		return nil, storeError(err, "invite link")
	}
	if !group.IsActive {
		return nil, entities.NewNotFoundError("invite link not found")
	}
	if group.IsMember(user) {
		return nil, entities.NewInvalidOperationError("already a member of this group")
	}

	if err := g.addMember(ctx, group, user); err != nil {
		return nil, err
	}
	return g.GetGroup(ctx, user, group.ID)
}

// LeaveGroup removes the caller. The creator has to delete the group instead.
func (g *GroupUseCases) LeaveGroup(ctx context.Context, user, id string) error {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return err
	}
	if !group.IsMember(user) {
		return entities.NewInvalidOperationError("you are not a member of this group")
	}
	if group.Creator == user {
		return entities.NewInvalidOperationError("the creator cannot leave the group, delete it instead")
	}

	if err := g.repo.RemoveMember(ctx, group, user, g.now()); err != nil {
		return storeError(err, "group")
	}
	g.evict(ctx, group, user)
	return nil
}

func (g *GroupUseCases) ListMembers(ctx context.Context, user, id string) ([]entities.GroupMember, error) {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if err := requireMember(group, user); err != nil {
		return nil, err
	}
	return group.Members, nil
}

func (g *GroupUseCases) AddMembers(ctx context.Context, user, id string, users []string) (*entities.Group, error) {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(group, user); err != nil {
		return nil, err
	}

	var fresh []string
	for _, u := range utilities.UniqueStrings(users) {
		if !group.IsMember(u) {
			fresh = append(fresh, u)
		}
	}
	if err := g.knownUsers(ctx, fresh); err != nil {
		return nil, err
	}

	added := make([]string, 0, len(fresh))
	for _, u := range fresh {
		err := g.addMember(ctx, group, u)
		if entities.KindOf(err) == entities.KindInvalidOperation {
			continue
		}
		if err != nil {
			return nil, err
		}
		added = append(added, u)
	}

	g.notify(ctx, consts.NotificationGroupAdded, user, group,
		fmt.Sprintf("You were added to %s", group.Name), added...)

	return g.GetGroup(ctx, user, id)
}

// RemoveMember removes target from the roster. The creator is never removed.
func (g *GroupUseCases) RemoveMember(ctx context.Context, user, id, target string) error {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return err
	}
	if err := requireAdmin(group, user); err != nil {
		return err
	}
	if !group.IsMember(target) {
		return entities.NewInvalidOperationError("user is not a member of this group")
	}
	if target == group.Creator {
		return entities.NewInvalidOperationError("the group creator cannot be removed")
	}

	if err := g.repo.RemoveMember(ctx, group, target, g.now()); err != nil {
		return storeError(err, "group")
	}
	g.evict(ctx, group, target)

	g.notify(ctx, consts.NotificationGroupRemoved, user, group,
		fmt.Sprintf("You were removed from %s", group.Name), target)
	return nil
}

func (g *GroupUseCases) MuteMember(ctx context.Context, user, id, target string, muted bool) error {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return err
	}
	if err := requireAdmin(group, user); err != nil {
		return err
	}
	if !group.IsMember(target) {
		return entities.NewInvalidOperationError("user is not a member of this group")
	}
	if target == user {
		return entities.NewInvalidOperationError("you cannot mute yourself")
	}

	if err := g.repo.SetMemberMuted(ctx, group.ID, target, muted); err != nil {
		return storeError(err, "group member")
	}
	return nil
}

func (g *GroupUseCases) PromoteAdmin(ctx context.Context, user, id, target string) error {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return err
	}
	if err := requireAdmin(group, user); err != nil {
		return err
	}

	err = g.repo.SetMemberRole(ctx, group.ID, target, consts.RoleMember, consts.RoleAdmin)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return entities.NewInvalidOperationError("user is not a member of this group")
	case errors.Is(err, repo.ErrConflict):
		return entities.NewInvalidOperationError("user is already an admin")
	case err != nil:
		return entities.NewUnexpectedError("failed to promote member", err)
	}

	g.notify(ctx, consts.NotificationGroupAdmin, user, group,
		fmt.Sprintf("You are now an admin of %s", group.Name), target)
	return nil
}

// DemoteAdmin turns an admin back into a member. Any admin may demote any
// other admin, the creator included unless protect_creator is set.
func (g *GroupUseCases) DemoteAdmin(ctx context.Context, user, id, target string) error {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return err
	}
	if err := requireAdmin(group, user); err != nil {
		return err
	}
	if target == group.Creator && g.settings.ProtectCreator {
		return entities.NewInvalidOperationError("the group creator cannot be demoted")
	}

	err = g.repo.SetMemberRole(ctx, group.ID, target, consts.RoleAdmin, consts.RoleMember)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return entities.NewInvalidOperationError("user is not a member of this group")
	case errors.Is(err, repo.ErrConflict):
		return entities.NewInvalidOperationError("user is not an admin")
	case err != nil:
		return entities.NewUnexpectedError("failed to demote admin", err)
	}
	return nil
}

func (g *GroupUseCases) RegenerateInviteLink(ctx context.Context, user, id string) (string, error) {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return "", err
	}
	if err := requireAdmin(group, user); err != nil {
		return "", err
	}

	link, err := g.newInviteLink()
	if err != nil {
		return "", err
	}
	if err := g.repo.SetInviteLink(ctx, group, link); err != nil {
		return "", storeError(err, "group")
	}
	return link, nil
}

// SendGroupMessage posts into the group's conversation through the regular
// send path.
func (g *GroupUseCases) SendGroupMessage(
	ctx context.Context, user, id string, req entities.SendMessageRequest,
) (*entities.Message, error) {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return nil, err
	}
	member := group.Member(user)
	if member == nil {
		return nil, entities.NewForbiddenError("you are not a member of this group")
	}
	if member.IsMuted {
		return nil, entities.ErrMutedInGroup
	}

	return g.chat.SendMessage(ctx, user, group.ConversationID, req)
}

func (g *GroupUseCases) GetGroupMessages(
	ctx context.Context, user, id, before string, limit int,
) ([]*entities.Message, error) {
	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if err := requireMember(group, user); err != nil {
		return nil, err
	}

	return g.chat.GetMessages(ctx, user, group.ConversationID, before, limit)
}

// TogglePinnedPost flips the membership of postID in the group's pinned
// posts.
func (g *GroupUseCases) TogglePinnedPost(
	ctx context.Context, user, id, postID string,
) (*entities.PinnedPostResult, error) {
	postID = strings.TrimSpace(postID)
	if postID == "" {
		return nil, entities.NewValidationError("post id is required")
	}

	group, err := g.loadGroup(ctx, user, id)
	if err != nil {
		return nil, err
	}
	if err := requireAdmin(group, user); err != nil {
		return nil, err
	}

	pinned := !group.HasPinnedPost(postID)
	if err := g.repo.SetPinnedPost(ctx, group.ID, postID, pinned); err != nil {
		return nil, storeError(err, "group")
	}

	return &entities.PinnedPostResult{PostID: postID, Pinned: pinned}, nil
}
