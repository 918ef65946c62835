package cache

import (
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	DefaultExpiration = 5 * time.Minute
	cleanupInterval   = 10 * time.Minute
)

func newStore(ttl time.Duration) *cache.Cache {
	if ttl <= 0 {
		ttl = DefaultExpiration
	}
	return cache.New(ttl, cleanupInterval)
}
