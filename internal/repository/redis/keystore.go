package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/Bulldog-Master/xxvpn-sub001/pkg/errors"
)

const keystorePrefix = "xxvpn_keystore_"

// KeystoreRepository implements repository.KeystoreRepository. Records do
// not expire.
type KeystoreRepository struct {
	client redis.UniversalClient
}

func NewKeystoreRepository(client redis.UniversalClient) *KeystoreRepository {
	return &KeystoreRepository{client: client}
}

func (r *KeystoreRepository) Load(ctx context.Context, userID string) ([]byte, error) {
	data, err := r.client.Get(ctx, keystorePrefix+userID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("keystore", userID)
		}
		return nil, fmt.Errorf("redis get keystore: %w", err)
	}
	return data, nil
}

func (r *KeystoreRepository) Create(ctx context.Context, userID string, record []byte) error {
	ok, err := r.client.SetNX(ctx, keystorePrefix+userID, record, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx keystore: %w", err)
	}
	if !ok {
		return apperrors.AlreadyExists("keystore", "user_id", userID)
	}
	return nil
}
