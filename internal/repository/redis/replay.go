package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReplayGuard implements twofactor.ReplayGuard with SET NX so a consumed
// time step is visible to every instance.
type ReplayGuard struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewReplayGuard(client redis.UniversalClient, ttl time.Duration) *ReplayGuard {
	return &ReplayGuard{client: client, ttl: ttl}
}

func (g *ReplayGuard) MarkUsed(ctx context.Context, userID string, step int64) (bool, error) {
	key := fmt.Sprintf("twofa:used:%s:%d", userID, step)
	ok, err := g.client.SetNX(ctx, key, 1, g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}
