package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/gocql/gocql"
	"github.com/sirupsen/logrus"

	"wisdomwalk/config"
	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/utilities"
)

// device tokens expire unless the client registers them again
const deviceTokenTTL = 60 * 24 * 60 * 60

type UserRepo struct {
	db   *gocql.Session
	conf *config.WisdomWalkConfModel
}

// UserRepoImply is the identity store. Users are written by the auth and
// admin flows, the chat logic only reads them and edits the block list.
type UserRepoImply interface {
	GetUser(context.Context, string) (*entities.User, error)
	GetUsers(context.Context, []string) (map[string]*entities.User, error)
	UpsertUser(context.Context, *entities.User) error
	BlockUser(ctx context.Context, user, blocked string) error
	UnblockUser(ctx context.Context, user, blocked string) error
	AddDevice(ctx context.Context, user, deviceID string) error
	GetDevices(context.Context, []string) (map[string][]string, error)
}

// NewUserRepo
func NewUserRepo(db *gocql.Session, conf *config.WisdomWalkConfModel) UserRepoImply {
	return &UserRepo{db: db, conf: conf}
}

func (user *UserRepo) table(name string) string {
	return fmt.Sprintf("%s.%s", user.conf.DB.Keyspace, name)
}

func (user *UserRepo) GetUser(ctx context.Context, id string) (*entities.User, error) {
	query := fmt.Sprintf(
		`SELECT id, name, email, email_verified, admin_verified, status, blocked_users FROM %s WHERE id = ?`,
		user.table(consts.UserTable),
	)

	u := &entities.User{}
	err := user.db.Query(query, id).WithContext(ctx).Scan(
		&u.ID, &u.Name, &u.Email, &u.EmailVerified, &u.AdminVerified, &u.Status, &u.BlockedUsers,
	)
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user %s: %w", id, err)
	}

	return u, nil
}

func (user *UserRepo) GetUsers(ctx context.Context, ids []string) (map[string]*entities.User, error) {
	users := make(map[string]*entities.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	query := fmt.Sprintf(
		`SELECT id, name, email, email_verified, admin_verified, status, blocked_users FROM %s WHERE id IN ?`,
		user.table(consts.UserTable),
	)

	iter := user.db.Query(query, ids).WithContext(ctx).Iter()
	for {
		u := &entities.User{}
		if !iter.Scan(&u.ID, &u.Name, &u.Email, &u.EmailVerified, &u.AdminVerified, &u.Status, &u.BlockedUsers) {
			break
		}
		users[u.ID] = u
	}

	if err := iter.Close(); err != nil {
		if !errors.Is(err, gocql.ErrNotFound) {
			return users, fmt.Errorf("failed to get users: %w", err)
		}
	}

	return users, nil
}

func (user *UserRepo) UpsertUser(ctx context.Context, u *entities.User) error {
	query := fmt.Sprintf(
		`INSERT INTO %s (id, name, email, email_verified, admin_verified, status, blocked_users) VALUES %s`,
		user.table(consts.UserTable), utilities.DBMultiValuePlaceholders(7),
	)

	err := user.db.Query(
		query, u.ID, u.Name, u.Email, u.EmailVerified, u.AdminVerified, u.Status, u.BlockedUsers,
	).WithContext(ctx).Exec()
	if err != nil {
		return fmt.Errorf("failed to upsert user %s: %w", u.ID, err)
	}

	return nil
}

func (user *UserRepo) BlockUser(ctx context.Context, id, blocked string) error {
	query := fmt.Sprintf(
		`UPDATE %s SET blocked_users = blocked_users + ? WHERE id = ? IF EXISTS`, user.table(consts.UserTable),
	)

	applied, err := user.db.Query(query, []string{blocked}, id).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to block user %s for %s: %w", blocked, id, err)
	}
	if !applied {
		return ErrNotFound
	}

	return nil
}

func (user *UserRepo) UnblockUser(ctx context.Context, id, blocked string) error {
	query := fmt.Sprintf(
		`UPDATE %s SET blocked_users = blocked_users - ? WHERE id = ? IF EXISTS`, user.table(consts.UserTable),
	)

	applied, err := user.db.Query(query, []string{blocked}, id).WithContext(ctx).ScanCAS()
	if err != nil {
		return fmt.Errorf("failed to unblock user %s for %s: %w", blocked, id, err)
	}
	if !applied {
		return ErrNotFound
	}

	return nil
}

func (user *UserRepo) AddDevice(ctx context.Context, id, deviceID string) error {
	log := utilities.NewLogger("AddDevice").WithFields(logrus.Fields{"user": id})

	query := fmt.Sprintf(
		"INSERT INTO %s (user_id, device_id, updated) VALUES (?, ?, ?) USING TTL %d",
		user.table(consts.UserDeviceTable), deviceTokenTTL,
	)

	if err := user.db.Query(query, id, deviceID, utilities.TimeNow()).WithContext(ctx).Exec(); err != nil {
		log.WithError(err).Error("failed to insert device id")
		return fmt.Errorf("failed to insert device id: %w", err)
	}

	return nil
}

func (user *UserRepo) GetDevices(ctx context.Context, ids []string) (map[string][]string, error) {
	devices := make(map[string][]string)
	if len(ids) == 0 {
		return devices, nil
	}

	query := fmt.Sprintf(`SELECT user_id, device_id FROM %s WHERE user_id IN ?`, user.table(consts.UserDeviceTable))
	iter := user.db.Query(query, ids).WithContext(ctx).Iter()

	var userID, deviceID string
	for iter.Scan(&userID, &deviceID) {
		devices[userID] = append(devices[userID], deviceID)
	}

	if err := iter.Close(); err != nil {
		if !errors.Is(err, gocql.ErrNotFound) {
			return devices, fmt.Errorf("failed to read device ids: %w", err)
		}
	}

	return devices, nil
}
