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

type ConversationRepo struct {
	db   *gocql.Session
	conf *config.WisdomWalkConfModel
}

// ConversationRepoImply holds conversations and per participant settings.
type ConversationRepoImply interface {
	// CreateDirectConversation stores conv unless a direct conversation
	// between the same pair exists, in which case the existing one is
	// returned with created false.
	CreateDirectConversation(ctx context.Context, conv *entities.Conversation) (*entities.Conversation, bool, error)
	FindDirectConversation(ctx context.Context, userA, userB string) (*entities.Conversation, error)
	GetConversation(ctx context.Context, id string) (*entities.Conversation, error)
	ListUserConversations(ctx context.Context, user string) ([]*entities.Conversation, error)
	UpdateLastMessage(ctx context.Context, id, messageID string, at time.Time) error
	SetParticipantMuted(ctx context.Context, id, user string, muted bool) error
	SetLastRead(ctx context.Context, id, user, messageID string) error
	// SetPinned updates the conversation pin set and the message flag together.
	SetPinned(ctx context.Context, id, messageID string, pinned bool) error
	SetActive(ctx context.Context, id string, active bool) error
}

func NewConversationRepo(db *gocql.Session, conf *config.WisdomWalkConfModel) ConversationRepoImply {
	return &ConversationRepo{db: db, conf: conf}
}

// DirectPairKey is the uniqueness key of a direct conversation, independent
// of participant order.
func DirectPairKey(userA, userB string) string {
	pair := []string{userA, userB}
	sort.Strings(pair)
	return joinKey(pair...)
}

type statement struct {
	query string
	args  []interface{}
}

func table(keyspace, name string) string {
	return fmt.Sprintf("%s.%s", keyspace, name)
}

// nullableID binds an empty id as null.
func nullableID(id string) interface{} {
	if id == "" {
		return nil
	}
	return id
}

func executeBatch(ctx context.Context, db *gocql.Session, kind gocql.BatchType, stmts []statement) error {
	batch := db.NewBatch(kind).WithContext(ctx)
	for _, stmt := range stmts {
		batch.Query(stmt.query, stmt.args...)
	}
	return db.ExecuteBatch(batch)
}

// conversationInsertStatements writes the conversation row, one settings row
// per participant and the per user index rows.
func conversationInsertStatements(keyspace string, conv *entities.Conversation) []statement {
	stmts := []statement{
		{
			query: fmt.Sprintf(
				`INSERT INTO %s (id, type, participants, last_activity_at, is_active, group_id, created_at) VALUES %s`,
				table(keyspace, consts.ConversationTable), utilities.DBMultiValuePlaceholders(7),
			),
			args: []interface{}{
				conv.ID, conv.Type, conv.Participants, conv.LastActivityAt, conv.IsActive, conv.GroupID, conv.CreatedAt,
			},
		},
	}

	for _, user := range conv.Participants {
		joinedAt := conv.CreatedAt
		if settings, ok := conv.ParticipantSettings[user]; ok {
			joinedAt = settings.JoinedAt
		}
		stmts = append(stmts, participantInsertStatements(keyspace, conv, user, joinedAt)...)
	}

	return stmts
}

func participantInsertStatements(keyspace string, conv *entities.Conversation, user string, joinedAt time.Time) []statement {
	return []statement{
		{
			query: fmt.Sprintf(
				`INSERT INTO %s (conversation_id, user_id, is_muted, joined_at, left_at) VALUES (?, ?, false, ?, null)`,
				table(keyspace, consts.ConversationParticipantTable),
			),
			args: []interface{}{conv.ID, user, joinedAt},
		},
		{
			query: fmt.Sprintf(
				`INSERT INTO %s (user_id, conversation_id, type) VALUES (?, ?, ?)`,
				table(keyspace, consts.UserConversationTable),
			),
			args: []interface{}{user, conv.ID, conv.Type},
		},
	}
}

func (repo *ConversationRepo) CreateDirectConversation(
	ctx context.Context, conv *entities.Conversation,
) (*entities.Conversation, bool, error) {
	log := utilities.NewLoggerWithFields("CreateDirectConversation", map[string]interface{}{
		"participants": conv.Participants,
	})

	if len(conv.Participants) != 2 {
		return nil, false, fmt.Errorf("direct conversation needs 2 participants, got %d", len(conv.Participants))
	}

	keyspace := repo.conf.DB.Keyspace
	query := fmt.Sprintf(
		`INSERT INTO %s (pair_key, conversation_id) VALUES (?, ?) IF NOT EXISTS`,
		table(keyspace, consts.DirectConversationTable),
	)

	existing := map[string]interface{}{}
	applied, err := repo.db.Query(
		query, DirectPairKey(conv.Participants[0], conv.Participants[1]), conv.ID,
	).WithContext(ctx).MapScanCAS(existing)
	if err != nil {
		return nil, false, fmt.Errorf("failed to reserve direct conversation: %w", err)
	}

	if !applied {
		existingID, _ := existing["conversation_id"].(string)
		found, err := repo.GetConversation(ctx, existingID)
		if err == nil {
			return found, false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, false, err
		}

		// the pair was reserved but its rows never landed, finish the write
		log.Warnf("repairing direct conversation %s", existingID)
		conv.ID = existingID
	}

	if err := executeBatch(ctx, repo.db, gocql.LoggedBatch, conversationInsertStatements(keyspace, conv)); err != nil {
		return nil, false, fmt.Errorf("failed to store direct conversation: %w", err)
	}

	return conv, true, nil
}

func (repo *ConversationRepo) FindDirectConversation(ctx context.Context, userA, userB string) (*entities.Conversation, error) {
	query := fmt.Sprintf(
		`SELECT conversation_id FROM %s WHERE pair_key = ?`,
		table(repo.conf.DB.Keyspace, consts.DirectConversationTable),
	)

	var id string
	if err := repo.db.Query(query, DirectPairKey(userA, userB)).WithContext(ctx).Scan(&id); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find direct conversation: %w", err)
	}

	return repo.GetConversation(ctx, id)
}

func (repo *ConversationRepo) GetConversation(ctx context.Context, id string) (*entities.Conversation, error) {
	keyspace := repo.conf.DB.Keyspace
	query := fmt.Sprintf(
		`SELECT id, type, participants, last_message_id, last_activity_at, pinned_message_ids, is_active, group_id, created_at
FROM %s WHERE id = ?`,
		table(keyspace, consts.ConversationTable),
	)

	conv := &entities.Conversation{}
	err := repo.db.Query(query, id).WithContext(ctx).Scan(
		&conv.ID, &conv.Type, &conv.Participants, &conv.LastMessageID, &conv.LastActivityAt,
		&conv.PinnedMessageIDs, &conv.IsActive, &conv.GroupID, &conv.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get conversation %s: %w", id, err)
	}

	participantQuery := fmt.Sprintf(
		`SELECT user_id, is_muted, joined_at, left_at, last_read_message_id FROM %s WHERE conversation_id = ?`,
		table(keyspace, consts.ConversationParticipantTable),
	)

	conv.ParticipantSettings = make(map[string]*entities.ParticipantSettings)
	iter := repo.db.Query(participantQuery, id).WithContext(ctx).Iter()
	for {
		settings := &entities.ParticipantSettings{}
		if !iter.Scan(&settings.UserID, &settings.IsMuted, &settings.JoinedAt, &settings.LeftAt, &settings.LastReadMessageID) {
			break
		}
		conv.ParticipantSettings[settings.UserID] = settings
	}

	if err := iter.Close(); err != nil {
		if !errors.Is(err, gocql.ErrNotFound) {
			return nil, fmt.Errorf("failed to get participants of %s: %w", id, err)
		}
	}

	return conv, nil
}

func (repo *ConversationRepo) ListUserConversations(ctx context.Context, user string) ([]*entities.Conversation, error) {
	query := fmt.Sprintf(
		`SELECT conversation_id FROM %s WHERE user_id = ?`,
		table(repo.conf.DB.Keyspace, consts.UserConversationTable),
	)

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
			return nil, fmt.Errorf("failed to list conversations of %s: %w", user, err)
		}
	}

	conversations := make([]*entities.Conversation, 0, len(ids))
	for _, id := range ids {
		conv, err := repo.GetConversation(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		conversations = append(conversations, conv)
	}

	return conversations, nil
}

// UpdateLastMessage writes with the activity time as cell timestamp so that a
// late write of an older message never overrides a newer one.
func (repo *ConversationRepo) UpdateLastMessage(ctx context.Context, id, messageID string, at time.Time) error {
	query := fmt.Sprintf(
		`UPDATE %s USING TIMESTAMP ? SET last_message_id = ?, last_activity_at = ? WHERE id = ?`,
		table(repo.conf.DB.Keyspace, consts.ConversationTable),
	)

	if err := repo.db.Query(query, at.UnixMicro(), messageID, at, id).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to update last message of %s: %w", id, err)
	}

	return nil
}

func (repo *ConversationRepo) SetParticipantMuted(ctx context.Context, id, user string, muted bool) error {
	query := fmt.Sprintf(
		`UPDATE %s SET is_muted = ? WHERE conversation_id = ? AND user_id = ? IF EXISTS`,
		table(repo.conf.DB.Keyspace, consts.ConversationParticipantTable),
	)

	applied, err := repo.db.Query(query, muted, id, user).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to set mute of %s in %s: %w", user, id, err)
	}
	if !applied {
		return ErrNotFound
	}

	return nil
}

func (repo *ConversationRepo) SetLastRead(ctx context.Context, id, user, messageID string) error {
	query := fmt.Sprintf(
		`UPDATE %s SET last_read_message_id = ? WHERE conversation_id = ? AND user_id = ?`,
		table(repo.conf.DB.Keyspace, consts.ConversationParticipantTable),
	)

	if err := repo.db.Query(query, nullableID(messageID), id, user).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to set last read of %s in %s: %w", user, id, err)
	}

	return nil
}

func (repo *ConversationRepo) SetPinned(ctx context.Context, id, messageID string, pinned bool) error {
	keyspace := repo.conf.DB.Keyspace

	op := "+"
	if !pinned {
		op = "-"
	}

	stmts := []statement{
		{
			query: fmt.Sprintf(
				`UPDATE %s SET pinned_message_ids = pinned_message_ids %s ? WHERE id = ?`,
				table(keyspace, consts.ConversationTable), op,
			),
			args: []interface{}{[]string{messageID}, id},
		},
		{
			query: fmt.Sprintf(
				`UPDATE %s SET is_pinned = ? WHERE conversation_id = ? AND id = ?`,
				table(keyspace, consts.MessageTable),
			),
			args: []interface{}{pinned, id, messageID},
		},
	}

	if err := executeBatch(ctx, repo.db, gocql.LoggedBatch, stmts); err != nil {
		return fmt.Errorf("failed to set pin of %s in %s: %w", messageID, id, err)
	}

	return nil
}

func (repo *ConversationRepo) SetActive(ctx context.Context, id string, active bool) error {
	query := fmt.Sprintf(
		`UPDATE %s SET is_active = ? WHERE id = ? IF EXISTS`,
		table(repo.conf.DB.Keyspace, consts.ConversationTable),
	)

	applied, err := repo.db.Query(query, active, id).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to set active flag of %s: %w", id, err)
	}
	if !applied {
		return ErrNotFound
	}

	return nil
}
