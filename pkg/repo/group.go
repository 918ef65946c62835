package repo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gocql/gocql"

	"wisdomwalk/config"
	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/utilities"
)

type GroupRepo struct {
	db   *gocql.Session
	conf *config.WisdomWalkConfModel
}

// GroupRepoImply holds group metadata and the member roster. Member roles are
// the single source of truth, Group.Admins is derived from them on read.
type GroupRepoImply interface {
	// CreateGroup stores the group, its roster and its linked conversation
	// in one write.
	CreateGroup(ctx context.Context, group *entities.Group, conv *entities.Conversation) error
	GetGroup(ctx context.Context, id string) (*entities.Group, error)
	GetGroupByInvite(ctx context.Context, inviteLink string) (*entities.Group, error)
	ListUserGroups(ctx context.Context, user string) ([]*entities.Group, error)
	UpdateGroupInfo(ctx context.Context, group *entities.Group) error
	DeactivateGroup(ctx context.Context, group *entities.Group) error
	// AddMember adds the member to the roster and the linked conversation.
	// ErrConflict is returned when the user is already a member.
	AddMember(ctx context.Context, group *entities.Group, member entities.GroupMember) error
	RemoveMember(ctx context.Context, group *entities.Group, user string, at time.Time) error
	// SetMemberRole changes role from one value to another. ErrConflict is
	// returned when the current role is not from, ErrNotFound when the user
	// is not a member.
	SetMemberRole(ctx context.Context, groupID, user, from, to string) error
	SetMemberMuted(ctx context.Context, groupID, user string, muted bool) error
	SetInviteLink(ctx context.Context, group *entities.Group, inviteLink string) error
	SetPinnedPost(ctx context.Context, groupID, postID string, pinned bool) error
}

func NewGroupRepo(db *gocql.Session, conf *config.WisdomWalkConfModel) GroupRepoImply {
	return &GroupRepo{db: db, conf: conf}
}

func (repo *GroupRepo) table(name string) string {
	return table(repo.conf.DB.Keyspace, name)
}

func (repo *GroupRepo) memberInsertStatements(groupID string, member entities.GroupMember) []statement {
	return []statement{
		{
			query: fmt.Sprintf(
				`INSERT INTO %s (group_id, user_id, role, is_muted, joined_at) VALUES (?, ?, ?, ?, ?)`,
				repo.table(consts.GroupMemberTable),
			),
			args: []interface{}{groupID, member.UserID, member.Role, member.IsMuted, member.JoinedAt},
		},
		{
			query: fmt.Sprintf(`INSERT INTO %s (user_id, group_id) VALUES (?, ?)`, repo.table(consts.UserGroupTable)),
			args:  []interface{}{member.UserID, groupID},
		},
	}
}

func (repo *GroupRepo) CreateGroup(ctx context.Context, group *entities.Group, conv *entities.Conversation) error {
	stmts := []statement{
		{
			query: fmt.Sprintf(
				`INSERT INTO %s (id, name, description, avatar, creator, invite_link, is_private,
only_admins_can_message, conversation_id, is_active, created_at, updated_at) VALUES %s`,
				repo.table(consts.GroupTable), utilities.DBMultiValuePlaceholders(12),
			),
			args: []interface{}{
				group.ID, group.Name, group.Description, group.Avatar, group.Creator, group.InviteLink,
				group.Settings.IsPrivate, group.Settings.OnlyAdminsCanMessage, group.ConversationID,
				group.IsActive, group.CreatedAt, group.UpdatedAt,
			},
		},
		{
			query: fmt.Sprintf(`INSERT INTO %s (invite_link, group_id) VALUES (?, ?)`, repo.table(consts.GroupInviteTable)),
			args:  []interface{}{group.InviteLink, group.ID},
		},
	}

	for _, member := range group.Members {
		stmts = append(stmts, repo.memberInsertStatements(group.ID, member)...)
	}
	stmts = append(stmts, conversationInsertStatements(repo.conf.DB.Keyspace, conv)...)

	if err := executeBatch(ctx, repo.db, gocql.LoggedBatch, stmts); err != nil {
		return fmt.Errorf("failed to create group %s: %w", group.ID, err)
	}

	return nil
}

func (repo *GroupRepo) GetGroup(ctx context.Context, id string) (*entities.Group, error) {
	query := fmt.Sprintf(
		`SELECT id, name, description, avatar, creator, invite_link, is_private, only_admins_can_message,
conversation_id, pinned_posts, is_active, created_at, updated_at FROM %s WHERE id = ?`,
		repo.table(consts.GroupTable),
	)

	group := &entities.Group{}
	err := repo.db.Query(query, id).WithContext(ctx).Scan(
		&group.ID, &group.Name, &group.Description, &group.Avatar, &group.Creator, &group.InviteLink,
		&group.Settings.IsPrivate, &group.Settings.OnlyAdminsCanMessage, &group.ConversationID,
		&group.PinnedPosts, &group.IsActive, &group.CreatedAt, &group.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get group %s: %w", id, err)
	}

	memberQuery := fmt.Sprintf(
		`SELECT user_id, role, is_muted, joined_at FROM %s WHERE group_id = ?`, repo.table(consts.GroupMemberTable),
	)

	var member entities.GroupMember
	iter := repo.db.Query(memberQuery, id).WithContext(ctx).Iter()
	for iter.Scan(&member.UserID, &member.Role, &member.IsMuted, &member.JoinedAt) {
		group.Members = append(group.Members, member)
	}
	if err := iter.Close(); err != nil {
		if !errors.Is(err, gocql.ErrNotFound) {
			return nil, fmt.Errorf("failed to get members of %s: %w", id, err)
		}
	}

	sort.SliceStable(group.Members, func(i, j int) bool {
		return group.Members[i].JoinedAt.Before(group.Members[j].JoinedAt)
	})
	group.DeriveAdmins()

	return group, nil
}

func (repo *GroupRepo) GetGroupByInvite(ctx context.Context, inviteLink string) (*entities.Group, error) {
	query := fmt.Sprintf(`SELECT group_id FROM %s WHERE invite_link = ?`, repo.table(consts.GroupInviteTable))

	var id string
	if err := repo.db.Query(query, inviteLink).WithContext(ctx).Scan(&id); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve invite link: %w", err)
	}

	group, err := repo.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if group.InviteLink != inviteLink {
		return nil, ErrNotFound
	}

	return group, nil
}

func (repo *GroupRepo) ListUserGroups(ctx context.Context, user string) ([]*entities.Group, error) {
	query := fmt.Sprintf(`SELECT group_id FROM %s WHERE user_id = ?`, repo.table(consts.UserGroupTable))

	var (
		ids []string
		id  string
	)
	iter := repo.db.Query(query, user).WithContext(ctx).Iter()
	for iter.Scan(&id) {
		ids = append(ids, id)
	}
	if err := iter.Close(); err != nil {
		if !errors.Is(err, gocql.ErrNotFound) {
			return nil, fmt.Errorf("failed to list groups of %s: %w", user, err)
		}
	}

	groups := make([]*entities.Group, 0, len(ids))
	for _, id := range ids {
		group, err := repo.GetGroup(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		groups = append(groups, group)
	}

	return groups, nil
}

func (repo *GroupRepo) UpdateGroupInfo(ctx context.Context, group *entities.Group) error {
	query := fmt.Sprintf(
		`UPDATE %s SET name = ?, description = ?, avatar = ?, is_private = ?, only_admins_can_message = ?,
updated_at = ? WHERE id = ? IF EXISTS`,
		repo.table(consts.GroupTable),
	)

	applied, err := repo.db.Query(
		query, group.Name, group.Description, group.Avatar, group.Settings.IsPrivate,
		group.Settings.OnlyAdminsCanMessage, group.UpdatedAt, group.ID,
	).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to update group %s: %w", group.ID, err)
	}
	if !applied {
		return ErrNotFound
	}

	return nil
}

func (repo *GroupRepo) DeactivateGroup(ctx context.Context, group *entities.Group) error {
	stmts := []statement{
		{
			query: fmt.Sprintf(`UPDATE %s SET is_active = false WHERE id = ?`, repo.table(consts.GroupTable)),
			args:  []interface{}{group.ID},
		},
		{
			query: fmt.Sprintf(`UPDATE %s SET is_active = false WHERE id = ?`, repo.table(consts.ConversationTable)),
			args:  []interface{}{group.ConversationID},
		},
		{
			query: fmt.Sprintf(`DELETE FROM %s WHERE invite_link = ?`, repo.table(consts.GroupInviteTable)),
			args:  []interface{}{group.InviteLink},
		},
	}

	if err := executeBatch(ctx, repo.db, gocql.LoggedBatch, stmts); err != nil {
		return fmt.Errorf("failed to deactivate group %s: %w", group.ID, err)
	}

	return nil
}

func (repo *GroupRepo) AddMember(ctx context.Context, group *entities.Group, member entities.GroupMember) error {
	reserve := fmt.Sprintf(
		`INSERT INTO %s (group_id, user_id, role, is_muted, joined_at) VALUES (?, ?, ?, ?, ?) IF NOT EXISTS`,
		repo.table(consts.GroupMemberTable),
	)

	existing := map[string]interface{}{}
	applied, err := repo.db.Query(
		reserve, group.ID, member.UserID, member.Role, member.IsMuted, member.JoinedAt,
	).WithContext(ctx).MapScanCAS(existing)
	if err != nil {
		return fmt.Errorf("failed to add member %s to %s: %w", member.UserID, group.ID, err)
	}
	if !applied {
		return ErrConflict
	}

	keyspace := repo.conf.DB.Keyspace
	conv := &entities.Conversation{ID: group.ConversationID, Type: consts.ConversationGroup}
	stmts := []statement{
		{
			query: fmt.Sprintf(`INSERT INTO %s (user_id, group_id) VALUES (?, ?)`, repo.table(consts.UserGroupTable)),
			args:  []interface{}{member.UserID, group.ID},
		},
		{
			query: fmt.Sprintf(
				`UPDATE %s SET participants = participants + ? WHERE id = ?`, table(keyspace, consts.ConversationTable),
			),
			args: []interface{}{[]string{member.UserID}, group.ConversationID},
		},
	}
	stmts = append(stmts, participantInsertStatements(keyspace, conv, member.UserID, member.JoinedAt)...)

	if err := executeBatch(ctx, repo.db, gocql.LoggedBatch, stmts); err != nil {
		return fmt.Errorf("failed to add member %s to %s: %w", member.UserID, group.ID, err)
	}

	return nil
}

func (repo *GroupRepo) RemoveMember(ctx context.Context, group *entities.Group, user string, at time.Time) error {
	keyspace := repo.conf.DB.Keyspace
	stmts := []statement{
		{
			query: fmt.Sprintf(`DELETE FROM %s WHERE group_id = ? AND user_id = ?`, repo.table(consts.GroupMemberTable)),
			args:  []interface{}{group.ID, user},
		},
		{
			query: fmt.Sprintf(`DELETE FROM %s WHERE user_id = ? AND group_id = ?`, repo.table(consts.UserGroupTable)),
			args:  []interface{}{user, group.ID},
		},
		{
			query: fmt.Sprintf(
				`UPDATE %s SET participants = participants - ? WHERE id = ?`, table(keyspace, consts.ConversationTable),
			),
			args: []interface{}{[]string{user}, group.ConversationID},
		},
		{
			query: fmt.Sprintf(
				`UPDATE %s SET left_at = ? WHERE conversation_id = ? AND user_id = ?`,
				table(keyspace, consts.ConversationParticipantTable),
			),
			args: []interface{}{at, group.ConversationID, user},
		},
		{
			query: fmt.Sprintf(
				`DELETE FROM %s WHERE user_id = ? AND conversation_id = ?`, table(keyspace, consts.UserConversationTable),
			),
			args: []interface{}{user, group.ConversationID},
		},
	}

	if err := executeBatch(ctx, repo.db, gocql.LoggedBatch, stmts); err != nil {
		return fmt.Errorf("failed to remove member %s from %s: %w", user, group.ID, err)
	}

	return nil
}

func (repo *GroupRepo) SetMemberRole(ctx context.Context, groupID, user, from, to string) error {
	query := fmt.Sprintf(
		`UPDATE %s SET role = ? WHERE group_id = ? AND user_id = ? IF role = ?`, repo.table(consts.GroupMemberTable),
	)

	current := map[string]interface{}{}
	applied, err := repo.db.Query(query, to, groupID, user, from).WithContext(ctx).MapScanCAS(current)
	if err != nil {
		return fmt.Errorf("failed to change role of %s in %s: %w", user, groupID, err)
	}
	if !applied {
		// a missing row reports no current role
		if role, ok := current["role"].(string); !ok || role == "" {
			return ErrNotFound
		}
		return ErrConflict
	}

	return nil
}

func (repo *GroupRepo) SetMemberMuted(ctx context.Context, groupID, user string, muted bool) error {
	query := fmt.Sprintf(
		`UPDATE %s SET is_muted = ? WHERE group_id = ? AND user_id = ? IF EXISTS`, repo.table(consts.GroupMemberTable),
	)

	applied, err := repo.db.Query(query, muted, groupID, user).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to change mute of %s in %s: %w", user, groupID, err)
	}
	if !applied {
		return ErrNotFound
	}

	return nil
}

func (repo *GroupRepo) SetInviteLink(ctx context.Context, group *entities.Group, inviteLink string) error {
	stmts := []statement{
		{
			query: fmt.Sprintf(`UPDATE %s SET invite_link = ?, updated_at = ? WHERE id = ?`, repo.table(consts.GroupTable)),
			args:  []interface{}{inviteLink, utilities.TimeNow(), group.ID},
		},
		{
			query: fmt.Sprintf(`DELETE FROM %s WHERE invite_link = ?`, repo.table(consts.GroupInviteTable)),
			args:  []interface{}{group.InviteLink},
		},
		{
			query: fmt.Sprintf(`INSERT INTO %s (invite_link, group_id) VALUES (?, ?)`, repo.table(consts.GroupInviteTable)),
			args:  []interface{}{inviteLink, group.ID},
		},
	}

	if err := executeBatch(ctx, repo.db, gocql.LoggedBatch, stmts); err != nil {
		return fmt.Errorf("failed to regenerate invite link of %s: %w", group.ID, err)
	}

	return nil
}

func (repo *GroupRepo) SetPinnedPost(ctx context.Context, groupID, postID string, pinned bool) error {
	op := "+"
	if !pinned {
		op = "-"
	}

	query := fmt.Sprintf(
		`UPDATE %s SET pinned_posts = pinned_posts %s ? WHERE id = ?`, repo.table(consts.GroupTable), op,
	)

	if err := repo.db.Query(query, []string{postID}, groupID).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to toggle pinned post %s of %s: %w", postID, groupID, err)
	}

	return nil
}
