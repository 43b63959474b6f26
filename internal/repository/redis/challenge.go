package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Bulldog-Master/xxvpn-sub001/internal/domain"
	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
)

const challengePrefix = "twofa:challenge:"

// ChallengeStore implements repository.ChallengeStore. Entries expire with
// the challenge.
type ChallengeStore struct {
	client redis.UniversalClient
	now    func() time.Time
}

func NewChallengeStore(client redis.UniversalClient) *ChallengeStore {
	return &ChallengeStore{client: client, now: time.Now}
}

func (s *ChallengeStore) Save(ctx context.Context, c *domain.PendingChallenge) error {
	ttl := c.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return apperrors.InvalidInput("challenge already expired")
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal challenge: %w", err)
	}
	if err := s.client.Set(ctx, challengePrefix+c.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set challenge: %w", err)
	}
	return nil
}

// Take reads and deletes atomically with GETDEL.
func (s *ChallengeStore) Take(ctx context.Context, id string) (*domain.PendingChallenge, error) {
	data, err := s.client.GetDel(ctx, challengePrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("challenge", id)
		}
		return nil, fmt.Errorf("redis getdel challenge: %w", err)
	}
	var c domain.PendingChallenge
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshal challenge: %w", err)
	}
	return &c, nil
}
