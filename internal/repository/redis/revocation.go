package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedSessionPrefix = "session:revoked:"

// RevocationStore implements repository.RevocationStore. Keys live for the
// access token lifetime, after which the JWT expiry takes over.
type RevocationStore struct {
	client redis.UniversalClient
}

func NewRevocationStore(client redis.UniversalClient) *RevocationStore {
	return &RevocationStore{client: client}
}

func (s *RevocationStore) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, revokedSessionPrefix+sessionID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis set revoked session: %w", err)
	}
	return nil
}

func (s *RevocationStore) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.Exists(ctx, revokedSessionPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists revoked session: %w", err)
	}
	return n > 0, nil
}
