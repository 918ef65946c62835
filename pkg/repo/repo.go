package repo

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gocql/gocql"

	"wisdomwalk/config"
)

var (
	// ErrNotFound is returned by every driver when the addressed record does
	// not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional write was not applied.
	ErrConflict = errors.New("conditional write not applied")
)

type Repo struct {
	db   *gocql.Session
	conf *config.WisdomWalkConfModel
}

type Imply interface {
	DBHealthCheck(context.Context) error
}

// NewRepo
func NewRepo(db *gocql.Session, conf *config.WisdomWalkConfModel) Imply {
	return &Repo{db: db, conf: conf}
}

// HealthHandler
func (repo *Repo) DBHealthCheck(ctx context.Context) error {
	if err := repo.db.Query("SELECT now() FROM system.local").WithContext(ctx).Exec(); err != nil {
		return err
	}
	return nil
}

var (
	idMu     sync.Mutex
	lastIDAt time.Time
)

// NewTimeID returns a time based uuid that sorts after every id previously
// returned by this process.
func NewTimeID() string {
	idMu.Lock()
	defer idMu.Unlock()

	now := time.Now().UTC().Truncate(100 * time.Nanosecond)
	if !now.After(lastIDAt) {
		now = lastIDAt.Add(100 * time.Nanosecond)
	}
	lastIDAt = now

	return gocql.UUIDFromTime(now).String()
}

// CompareTimeIDs orders two time based uuids the way Cassandra orders a
// timeuuid column. Unparseable ids sort first.
func CompareTimeIDs(a, b string) int {
	ua, errA := gocql.ParseUUID(a)
	ub, errB := gocql.ParseUUID(b)
	switch {
	case errA != nil && errB != nil:
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}

	ta, tb := ua.Time(), ub.Time()
	if ta.Before(tb) {
		return -1
	}
	if ta.After(tb) {
		return 1
	}
	return bytes.Compare(ua.Bytes(), ub.Bytes())
}

// IsTimeID reports whether id parses as a version 1 uuid.
func IsTimeID(id string) bool {
	u, err := gocql.ParseUUID(id)
	return err == nil && u.Version() == 1
}

// joinKey encodes parts as "<len>:<part>" runs, so no part value can shift
// the boundary between parts.
func joinKey(parts ...string) string {
	var b strings.Builder
	for _, part := range parts {
		b.WriteString(strconv.Itoa(len(part)))
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

// splitKey decodes a key built by joinKey.
func splitKey(key string) ([]string, bool) {
	var parts []string
	for key != "" {
		size, rest, ok := strings.Cut(key, ":")
		if !ok {
			return nil, false
		}
		n, err := strconv.Atoi(size)
		if err != nil || n < 0 || n > len(rest) {
			return nil, false
		}
		parts = append(parts, rest[:n])
		key = rest[n:]
	}
	return parts, true
}
