package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/frahmantamala/tenant-auth/internal/token"
	"github.com/redis/go-redis/v9"
)

// minTTL keeps entries for tokens that are already at the edge of expiry.
const minTTL = time.Second

// Blacklist stores one key per revoked jti with a TTL equal to the token's remaining lifetime.
type Blacklist struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewBlacklist(client *redis.Client, prefix string) token.Blacklist {
	return &Blacklist{client: client, prefix: prefix, now: time.Now}
}

func (b *Blacklist) key(jti string) string {
	return b.prefix + "bl:" + jti
}

func (b *Blacklist) Add(ctx context.Context, jti string, userID int64, tokenType token.Type, expiresAt time.Time) (bool, error) {
	ttl := expiresAt.Sub(b.now())
	if ttl < minTTL {
		ttl = minTTL
	}
	value := string(tokenType) + ":" + strconv.FormatInt(userID, 10)
	return b.client.SetNX(ctx, b.key(jti), value, ttl).Result()
}

// Purge is a no-op: redis expires the keys itself.
func (b *Blacklist) Purge(context.Context, time.Time) (int64, error) {
	return 0, nil
}
