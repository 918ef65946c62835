package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gocql/gocql"
	"github.com/sirupsen/logrus"

	"wisdomwalk/config"
	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/utilities"
)

const messageColumns = `conversation_id, id, sender_id, content, type, attachments, reply_to_id, forwarded_from_id,
reactions, read_by, is_edited, edited_at, is_deleted, deleted_at, is_pinned, created_at`

type MessageRepo struct {
	db   *gocql.Session
	conf *config.WisdomWalkConfModel
}

// MessageRepoImply is the ordered message history of every conversation.
// Listings never include soft deleted messages and are oldest first.
type MessageRepoImply interface {
	// CreateMessage assigns a time based id when msg.ID is empty.
	CreateMessage(ctx context.Context, msg *entities.Message) error
	GetMessage(ctx context.Context, id string) (*entities.Message, error)
	ListMessages(ctx context.Context, conversationID, before string, limit int) ([]*entities.Message, error)
	ListMessagesAfter(ctx context.Context, conversationID, after string) ([]*entities.Message, error)
	SearchMessages(ctx context.Context, conversationID, query string, limit int) ([]*entities.Message, error)
	UpdateContent(ctx context.Context, msg *entities.Message) error
	SoftDelete(ctx context.Context, conversationID, id string, at time.Time) error
	AddReaction(ctx context.Context, conversationID, id string, reaction entities.Reaction) error
	RemoveReaction(ctx context.Context, conversationID, id string, reaction entities.Reaction) error
	AddReadReceipts(ctx context.Context, conversationID string, ids []string, receipt entities.ReadReceipt) error
}

func NewMessageRepo(db *gocql.Session, conf *config.WisdomWalkConfModel) MessageRepoImply {
	return &MessageRepo{db: db, conf: conf}
}

func (repo *MessageRepo) table(name string) string {
	return table(repo.conf.DB.Keyspace, name)
}

func reactionKey(r entities.Reaction) string {
	return joinKey(r.User, r.Emoji)
}

type messageRow struct {
	msg         entities.Message
	attachments string
	reactions   map[string]time.Time
	readBy      map[string]time.Time
}

func (row *messageRow) dest() []interface{} {
	m := &row.msg
	return []interface{}{
		&m.ConversationID, &m.ID, &m.SenderID, &m.Content, &m.Type, &row.attachments, &m.ReplyToID,
		&m.ForwardedFromID, &row.reactions, &row.readBy, &m.IsEdited, &m.EditedAt, &m.IsDeleted,
		&m.DeletedAt, &m.IsPinned, &m.CreatedAt,
	}
}

func (row *messageRow) toEntity() *entities.Message {
	msg := row.msg

	if row.attachments != "" {
		if err := json.Unmarshal([]byte(row.attachments), &msg.Attachments); err != nil {
			logrus.WithError(err).Errorf("failed to decode attachments of message %s", msg.ID)
		}
	}

	for key, at := range row.reactions {
		parts, ok := splitKey(key)
		if !ok || len(parts) != 2 {
			logrus.Warnf("skipping malformed reaction key %q of message %s", key, msg.ID)
			continue
		}
		msg.Reactions = append(msg.Reactions, entities.Reaction{User: parts[0], Emoji: parts[1], ReactedAt: at})
	}
	sort.SliceStable(msg.Reactions, func(i, j int) bool {
		return msg.Reactions[i].ReactedAt.Before(msg.Reactions[j].ReactedAt)
	})

	for user, at := range row.readBy {
		msg.ReadBy = append(msg.ReadBy, entities.ReadReceipt{User: user, ReadAt: at})
	}
	sort.SliceStable(msg.ReadBy, func(i, j int) bool {
		return msg.ReadBy[i].ReadAt.Before(msg.ReadBy[j].ReadAt)
	})

	return &msg
}

// scanMessages walks iter newest first and keeps non deleted messages that
// match keep, stopping at limit when limit is positive.
func scanMessages(iter *gocql.Iter, limit int, keep func(*entities.Message) bool) ([]*entities.Message, error) {
	var messages []*entities.Message
	for {
		row := &messageRow{}
		if !iter.Scan(row.dest()...) {
			break
		}
		msg := row.toEntity()
		if msg.IsDeleted || (keep != nil && !keep(msg)) {
			continue
		}
		messages = append(messages, msg)
		if limit > 0 && len(messages) >= limit {
			break
		}
	}

	if err := iter.Close(); err != nil {
		if !errors.Is(err, gocql.ErrNotFound) {
			return nil, err
		}
	}

	// oldest first
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

func (repo *MessageRepo) CreateMessage(ctx context.Context, msg *entities.Message) error {
	if msg.ID == "" {
		msg.ID = NewTimeID()
	}

	attachments := ""
	if len(msg.Attachments) != 0 {
		raw, err := json.Marshal(msg.Attachments)
		if err != nil {
			return fmt.Errorf("failed to encode attachments: %w", err)
		}
		attachments = string(raw)
	}

	stmts := []statement{
		{
			query: fmt.Sprintf(
				`INSERT INTO %s (conversation_id, id, sender_id, content, type, attachments, reply_to_id,
forwarded_from_id, is_edited, is_deleted, is_pinned, created_at) VALUES %s`,
				repo.table(consts.MessageTable), utilities.DBMultiValuePlaceholders(12),
			),
			args: []interface{}{
				msg.ConversationID, msg.ID, msg.SenderID, msg.Content, msg.Type, attachments,
				nullableID(msg.ReplyToID), nullableID(msg.ForwardedFromID), false, false, false, msg.CreatedAt,
			},
		},
		{
			query: fmt.Sprintf(
				`INSERT INTO %s (id, conversation_id) VALUES (?, ?)`, repo.table(consts.MessageLookupTable),
			),
			args: []interface{}{msg.ID, msg.ConversationID},
		},
	}

	if err := executeBatch(ctx, repo.db, gocql.LoggedBatch, stmts); err != nil {
		return fmt.Errorf("failed to store message: %w", err)
	}

	return nil
}

func (repo *MessageRepo) GetMessage(ctx context.Context, id string) (*entities.Message, error) {
	if !IsTimeID(id) {
		return nil, ErrNotFound
	}

	var conversationID string
	lookup := fmt.Sprintf(`SELECT conversation_id FROM %s WHERE id = ?`, repo.table(consts.MessageLookupTable))
	if err := repo.db.Query(lookup, id).WithContext(ctx).Scan(&conversationID); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to look up message %s: %w", id, err)
	}

	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE conversation_id = ? AND id = ?`, messageColumns, repo.table(consts.MessageTable),
	)

	row := &messageRow{}
	if err := repo.db.Query(query, conversationID, id).WithContext(ctx).Scan(row.dest()...); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}

	return row.toEntity(), nil
}

func (repo *MessageRepo) ListMessages(
	ctx context.Context, conversationID, before string, limit int,
) ([]*entities.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE conversation_id = ?`, messageColumns, repo.table(consts.MessageTable))
	args := []interface{}{conversationID}
	if before != "" {
		query += " AND id < ?"
		args = append(args, before)
	}

	iter := repo.db.Query(query, args...).WithContext(ctx).PageSize(limit).Iter()
	messages, err := scanMessages(iter, limit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of %s: %w", conversationID, err)
	}

	return messages, nil
}

func (repo *MessageRepo) ListMessagesAfter(
	ctx context.Context, conversationID, after string,
) ([]*entities.Message, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE conversation_id = ?`, messageColumns, repo.table(consts.MessageTable))
	args := []interface{}{conversationID}
	if after != "" {
		query += " AND id > ?"
		args = append(args, after)
	}

	messages, err := scanMessages(repo.db.Query(query, args...).WithContext(ctx).Iter(), 0, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages of %s: %w", conversationID, err)
	}

	return messages, nil
}

// SearchMessages is a case insensitive substring match over the partition.
func (repo *MessageRepo) SearchMessages(
	ctx context.Context, conversationID, text string, limit int,
) ([]*entities.Message, error) {
	needle := strings.ToLower(text)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE conversation_id = ?`, messageColumns, repo.table(consts.MessageTable))

	messages, err := scanMessages(
		repo.db.Query(query, conversationID).WithContext(ctx).Iter(), limit,
		func(msg *entities.Message) bool {
			return strings.Contains(strings.ToLower(msg.Content), needle)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search messages of %s: %w", conversationID, err)
	}

	return messages, nil
}

func (repo *MessageRepo) UpdateContent(ctx context.Context, msg *entities.Message) error {
	query := fmt.Sprintf(
		`UPDATE %s SET content = ?, is_edited = true, edited_at = ? WHERE conversation_id = ? AND id = ?`,
		repo.table(consts.MessageTable),
	)

	if err := repo.db.Query(query, msg.Content, msg.EditedAt, msg.ConversationID, msg.ID).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to edit message %s: %w", msg.ID, err)
	}

	return nil
}

func (repo *MessageRepo) SoftDelete(ctx context.Context, conversationID, id string, at time.Time) error {
	query := fmt.Sprintf(
		`UPDATE %s SET is_deleted = true, deleted_at = ? WHERE conversation_id = ? AND id = ?`,
		repo.table(consts.MessageTable),
	)

	if err := repo.db.Query(query, at, conversationID, id).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", id, err)
	}

	return nil
}

func (repo *MessageRepo) AddReaction(ctx context.Context, conversationID, id string, reaction entities.Reaction) error {
	query := fmt.Sprintf(
		`UPDATE %s SET reactions = reactions + ? WHERE conversation_id = ? AND id = ?`,
		repo.table(consts.MessageTable),
	)

	value := map[string]time.Time{reactionKey(reaction): reaction.ReactedAt}
	if err := repo.db.Query(query, value, conversationID, id).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to add reaction to %s: %w", id, err)
	}

	return nil
}

func (repo *MessageRepo) RemoveReaction(ctx context.Context, conversationID, id string, reaction entities.Reaction) error {
	query := fmt.Sprintf(
		`UPDATE %s SET reactions = reactions - ? WHERE conversation_id = ? AND id = ?`,
		repo.table(consts.MessageTable),
	)

	if err := repo.db.Query(query, []string{reactionKey(reaction)}, conversationID, id).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to remove reaction from %s: %w", id, err)
	}

	return nil
}

func (repo *MessageRepo) AddReadReceipts(
	ctx context.Context, conversationID string, ids []string, receipt entities.ReadReceipt,
) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		`UPDATE %s SET read_by = read_by + ? WHERE conversation_id = ? AND id = ?`,
		repo.table(consts.MessageTable),
	)

	value := map[string]time.Time{receipt.User: receipt.ReadAt}
	stmts := make([]statement, 0, len(ids))
	for _, id := range ids {
		stmts = append(stmts, statement{query: query, args: []interface{}{value, conversationID, id}})
	}

	// single partition, no batch log needed
	if err := executeBatch(ctx, repo.db, gocql.UnloggedBatch, stmts); err != nil {
		return fmt.Errorf("failed to store read receipts in %s: %w", conversationID, err)
	}

	return nil
}
