package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sandeepkv93/account-auth-service/internal/observability"
)

type RedisTokenBlocklist struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisTokenBlocklist(client redis.UniversalClient, prefix string) *RedisTokenBlocklist {
	if prefix == "" {
		prefix = "auth"
	}
	return &RedisTokenBlocklist{client: client, prefix: prefix}
}

// Block uses SET NX so only the first caller for a jti wins. A token already
// past until cannot be presented, so it is reported as newly blocked without
// touching Redis.
func (b *RedisTokenBlocklist) Block(ctx context.Context, tokenID string, userID uint, until time.Time) (bool, error) {
	ttl := time.Until(until)
	if ttl <= 0 {
		observability.RecordTokenBlocklistEvent(ctx, "redis", "block", "expired")
		return true, nil
	}
	inserted, err := b.client.SetNX(ctx, b.key(tokenID), strconv.FormatUint(uint64(userID), 10), ttl).Result()
	observability.RecordTokenBlocklistEvent(ctx, "redis", "block", blockOutcome(inserted, err))
	return inserted, err
}

func (b *RedisTokenBlocklist) IsBlocked(ctx context.Context, tokenID string) (bool, error) {
	_, err := b.client.Get(ctx, b.key(tokenID)).Result()
	if errors.Is(err, redis.Nil) {
		observability.RecordTokenBlocklistEvent(ctx, "redis", "check", "success")
		return false, nil
	}
	observability.RecordTokenBlocklistEvent(ctx, "redis", "check", outcomeOf(err))
	if err != nil {
		return false, err
	}
	return true, nil
}

func (b *RedisTokenBlocklist) key(tokenID string) string {
	return b.prefix + ":revoked_jwt:" + tokenID
}
