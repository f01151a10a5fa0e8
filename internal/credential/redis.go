package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists credentials as JSON text under "<prefix><identity>" with no expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a store on an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "biometric:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(identity string) string {
	return s.prefix + identity
}

// Has reports whether a credential exists for identity.
func (s *RedisStore) Has(ctx context.Context, identity string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(identity)).Result()
	if err != nil {
		return false, fmt.Errorf("credential: exists %s: %w", identity, err)
	}
	return n > 0, nil
}

// Save overwrites the credential for identity.
func (s *RedisStore) Save(ctx context.Context, identity string, cred Credential) error {
	body, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("credential: encode: %w", err)
	}
	if err := s.client.Set(ctx, s.key(identity), body, 0).Err(); err != nil {
		return fmt.Errorf("credential: save %s: %w", identity, err)
	}
	return nil
}

// Load returns the credential for identity or ErrNotFound.
func (s *RedisStore) Load(ctx context.Context, identity string) (Credential, error) {
	body, err := s.client.Get(ctx, s.key(identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credential{}, ErrNotFound
		}
		return Credential{}, fmt.Errorf("credential: load %s: %w", identity, err)
	}
	var cred Credential
	if err := json.Unmarshal(body, &cred); err != nil {
		return Credential{}, fmt.Errorf("credential: decode %s: %w", identity, err)
	}
	return cred, nil
}
