package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"wisdomwalk/config"
	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/utilities"
)

type NotificationRepo struct {
	db   *gocql.Session
	conf *config.WisdomWalkConfModel
}

// NotificationRepoImply is an interface that defines the contract for a notification repository implementation.
type NotificationRepoImply interface {
	InsertNotifications(context.Context, []*entities.Notification) error
	// ListNotifications returns one page, newest first, and the state of the
	// next page which is empty on the last one.
	ListNotifications(ctx context.Context, user string, pageSize int, pageState []byte) (
		[]*entities.Notification, []byte, error,
	)
	CountUnread(ctx context.Context, user string) (int, error)
	MarkRead(ctx context.Context, user, id string, at time.Time) error
	MarkAllRead(ctx context.Context, user string, at time.Time) (int, error)
	DeleteNotification(ctx context.Context, user, id string) error
}

func NewNotificationRepo(db *gocql.Session, conf *config.WisdomWalkConfModel) NotificationRepoImply {
	return &NotificationRepo{db: db, conf: conf}
}

func (repo *NotificationRepo) table() string {
	return table(repo.conf.DB.Keyspace, consts.NotificationTable)
}

func (repo *NotificationRepo) InsertNotifications(ctx context.Context, notifications []*entities.Notification) error {
	if len(notifications) == 0 {
		return nil
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (recipient, id, sender, type, title, message, related_conversation, related_group,
is_read, created_at) VALUES %s`,
		repo.table(), utilities.DBMultiValuePlaceholders(10),
	)

	stmts := make([]statement, 0, len(notifications))
	for _, n := range notifications {
		if n.ID == "" {
			n.ID = NewTimeID()
		}
		stmts = append(stmts, statement{
			query: query,
			args: []interface{}{
				n.Recipient, n.ID, n.Sender, n.Type, n.Title, n.Message, n.RelatedConversation, n.RelatedGroup,
				n.IsRead, n.CreatedAt,
			},
		})
	}

	if err := executeBatch(ctx, repo.db, gocql.UnloggedBatch, stmts); err != nil {
		return fmt.Errorf("failed to insert notifications: %w", err)
	}

	return nil
}

func (repo *NotificationRepo) ListNotifications(
	ctx context.Context, user string, pageSize int, pageState []byte,
) ([]*entities.Notification, []byte, error) {
	query := fmt.Sprintf(
		`SELECT recipient, id, sender, type, title, message, related_conversation, related_group, is_read,
read_at, created_at FROM %s WHERE recipient = ?`,
		repo.table(),
	)

	iter := repo.db.Query(query, user).WithContext(ctx).PageSize(pageSize).PageState(pageState).Iter()
	nextPageState := iter.PageState()

	var notifications []*entities.Notification
	scanner := iter.Scanner()
	for scanner.Next() {
		n := &entities.Notification{}
		if err := scanner.Scan(
			&n.Recipient, &n.ID, &n.Sender, &n.Type, &n.Title, &n.Message, &n.RelatedConversation,
			&n.RelatedGroup, &n.IsRead, &n.ReadAt, &n.CreatedAt,
		); err != nil {
			return nil, nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}

	if err := scanner.Err(); err != nil {
		if !errors.Is(err, gocql.ErrNotFound) {
			return nil, nil, fmt.Errorf("failed to list notifications of %s: %w", user, err)
		}
	}

	return notifications, nextPageState, nil
}

func (repo *NotificationRepo) CountUnread(ctx context.Context, user string) (int, error) {
	query := fmt.Sprintf(`SELECT is_read FROM %s WHERE recipient = ?`, repo.table())

	var (
		isRead bool
		count  int
	)
	iter := repo.db.Query(query, user).WithContext(ctx).Iter()
	for iter.Scan(&isRead) {
		if !isRead {
			count++
		}
	}

	if err := iter.Close(); err != nil {
		if !errors.Is(err, gocql.ErrNotFound) {
			return 0, fmt.Errorf("failed to count notifications of %s: %w", user, err)
		}
	}

	return count, nil
}

// exists reads the row first. The notification rows are written without
// lightweight transactions everywhere, so conditional updates are avoided.
func (repo *NotificationRepo) exists(ctx context.Context, user, id string) error {
	if !IsTimeID(id) {
		return ErrNotFound
	}

	query := fmt.Sprintf(`SELECT id FROM %s WHERE recipient = ? AND id = ?`, repo.table())

	var found string
	if err := repo.db.Query(query, user, id).WithContext(ctx).Scan(&found); err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read notification %s: %w", id, err)
	}

	return nil
}

func (repo *NotificationRepo) MarkRead(ctx context.Context, user, id string, at time.Time) error {
	if err := repo.exists(ctx, user, id); err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE %s SET is_read = true, read_at = ? WHERE recipient = ? AND id = ?`, repo.table())
	if err := repo.db.Query(query, at, user, id).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to mark notification %s read: %w", id, err)
	}

	return nil
}

func (repo *NotificationRepo) MarkAllRead(ctx context.Context, user string, at time.Time) (int, error) {
	query := fmt.Sprintf(`SELECT id, is_read FROM %s WHERE recipient = ?`, repo.table())

	var (
		id     string
		isRead bool
		unread []string
	)
	iter := repo.db.Query(query, user).WithContext(ctx).Iter()
	for iter.Scan(&id, &isRead) {
		if !isRead {
			unread = append(unread, id)
		}
	}
	if err := iter.Close(); err != nil {
		if !errors.Is(err, gocql.ErrNotFound) {
			return 0, fmt.Errorf("failed to read notifications of %s: %w", user, err)
		}
	}

	if len(unread) == 0 {
		return 0, nil
	}

	update := fmt.Sprintf(`UPDATE %s SET is_read = true, read_at = ? WHERE recipient = ? AND id IN ?`, repo.table())
	if err := repo.db.Query(update, at, user, unread).WithContext(ctx).Exec(); err != nil {
		return 0, fmt.Errorf("failed to mark notifications of %s read: %w", user, err)
	}

	return len(unread), nil
}

func (repo *NotificationRepo) DeleteNotification(ctx context.Context, user, id string) error {
	if err := repo.exists(ctx, user, id); err != nil {
		return err
	}

	query := fmt.Sprintf(`DELETE FROM %s WHERE recipient = ? AND id = ?`, repo.table())
	if err := repo.db.Query(query, user, id).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to delete notification %s: %w", id, err)
	}

	return nil
}
