package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/authflow/internal/oauth"
)

// DefaultKeyPrefix namespaces vault keys in a shared Redis.
const DefaultKeyPrefix = "authflow"

// RedisVault stores credentials as JSON under one key per client ID.
type RedisVault struct {
	client   redis.UniversalClient
	key      string
	clientID string
	now      func() time.Time
}

// RedisOption configures a RedisVault.
type RedisOption func(*RedisVault)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) RedisOption {
	return func(v *RedisVault) {
		if prefix != "" {
			v.key = prefix + ":" + v.clientID + ":credentials"
		}
	}
}

// WithRedisClock replaces time.Now when computing key expiry.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(v *RedisVault) {
		if now != nil {
			v.now = now
		}
	}
}

// NewRedisVault stores credentials for clientID in client.
func NewRedisVault(client redis.UniversalClient, clientID string, opts ...RedisOption) (*RedisVault, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if clientID == "" {
		return nil, errors.New("client ID is required")
	}

	v := &RedisVault{
		client:   client,
		clientID: clientID,
		key:      DefaultKeyPrefix + ":" + clientID + ":credentials",
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Key returns the Redis key credentials are stored under.
func (v *RedisVault) Key() string {
	return v.key
}

// Store writes creds. Credentials without a refresh token expire from Redis
// together with their access token.
func (v *RedisVault) Store(ctx context.Context, creds oauth.StoredCredentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	var ttl time.Duration
	if creds.RefreshToken == "" && !creds.ExpiresAt.IsZero() {
		ttl = creds.ExpiresAt.Sub(v.now())
		if ttl <= 0 {
			return v.Clear(ctx)
		}
	}

	if err := v.client.Set(ctx, v.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store credentials in redis: %w", err)
	}
	return nil
}

// Get reads the stored credentials.
func (v *RedisVault) Get(ctx context.Context) (*oauth.StoredCredentials, error) {
	data, err := v.client.Get(ctx, v.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oauth.ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from redis: %w", err)
	}

	var creds oauth.StoredCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("failed to decode stored credentials: %w", err)
	}
	return &creds, nil
}

// Clear deletes the stored credentials.
func (v *RedisVault) Clear(ctx context.Context) error {
	if err := v.client.Del(ctx, v.key).Err(); err != nil {
		return fmt.Errorf("failed to clear credentials in redis: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (v *RedisVault) Ping(ctx context.Context) error {
	return v.client.Ping(ctx).Err()
}
