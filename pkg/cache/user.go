package cache

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/repo"
	"wisdomwalk/utilities"
)

// UserCache is a read through cache in front of the identity store. Block
// list checks run on every send, so user records are kept for a short TTL
// and dropped whenever this process changes them.
type UserCache struct {
	repo.UserRepoImply
	store *cache.Cache
}

func NewUserCache(users repo.UserRepoImply, ttl time.Duration) *UserCache {
	return &UserCache{UserRepoImply: users, store: newStore(ttl)}
}

func copyUser(u *entities.User) *entities.User {
	c := *u
	c.BlockedUsers = append([]string(nil), u.BlockedUsers...)
	return &c
}

func (c *UserCache) GetUser(ctx context.Context, id string) (*entities.User, error) {
	if cached, ok := c.store.Get(id); ok {
		return copyUser(cached.(*entities.User)), nil
	}

	u, err := c.UserRepoImply.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	c.store.SetDefault(id, copyUser(u))
	return u, nil
}

func (c *UserCache) GetUsers(ctx context.Context, ids []string) (map[string]*entities.User, error) {
	users := make(map[string]*entities.User, len(ids))

	var missing []string
	for _, id := range ids {
		if cached, ok := c.store.Get(id); ok {
			users[id] = copyUser(cached.(*entities.User))
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) == 0 {
		return users, nil
	}

	fetched, err := c.UserRepoImply.GetUsers(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, u := range fetched {
		c.store.SetDefault(id, copyUser(u))
		users[id] = u
	}

	return users, nil
}

func (c *UserCache) UpsertUser(ctx context.Context, u *entities.User) error {
	defer c.Invalidate(u.ID)
	return c.UserRepoImply.UpsertUser(ctx, u)
}

func (c *UserCache) BlockUser(ctx context.Context, id, blocked string) error {
	defer c.Invalidate(id)
	return c.UserRepoImply.BlockUser(ctx, id, blocked)
}

func (c *UserCache) UnblockUser(ctx context.Context, id, blocked string) error {
	defer c.Invalidate(id)
	return c.UserRepoImply.UnblockUser(ctx, id, blocked)
}

func (c *UserCache) Invalidate(id string) {
	log := utilities.NewLogger("UserCache.Invalidate")
	c.store.Delete(id)
	log.Debugf("dropped cached user %s", id)
}
