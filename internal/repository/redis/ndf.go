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

const ndfKey = "ndf:latest"

// NDFCache implements repository.NDFCache.
type NDFCache struct {
	client redis.UniversalClient
}

func NewNDFCache(client redis.UniversalClient) *NDFCache {
	return &NDFCache{client: client}
}

func (c *NDFCache) Get(ctx context.Context) (*domain.SignedNDF, error) {
	data, err := c.client.Get(ctx, ndfKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("ndf", "latest")
		}
		return nil, fmt.Errorf("redis get ndf: %w", err)
	}
	var ndf domain.SignedNDF
	if err := json.Unmarshal(data, &ndf); err != nil {
		return nil, fmt.Errorf("unmarshal ndf: %w", err)
	}
	return &ndf, nil
}

func (c *NDFCache) Set(ctx context.Context, ndf *domain.SignedNDF, ttl time.Duration) error {
	data, err := json.Marshal(ndf)
	if err != nil {
		return fmt.Errorf("marshal ndf: %w", err)
	}
	if err := c.client.Set(ctx, ndfKey, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set ndf: %w", err)
	}
	return nil
}
