package vault

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/authflow/internal/oauth"
)

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Vault is a CredentialVault that can report its own health.
type Vault interface {
	oauth.CredentialVault
	Ping(ctx context.Context) error
}

// Options selects and configures a backend.
type Options struct {
	Backend   string
	ClientID  string
	RedisAddr string
	Password  string
	DB        int
	KeyPrefix string
}

// New creates the vault named by opts.Backend. The returned close function
// releases backend connections.
func New(opts Options) (Vault, func() error, error) {
	switch opts.Backend {
	case "", BackendMemory:
		return NewMemoryVault(), func() error { return nil }, nil
	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, nil, fmt.Errorf("redis address is required for the %s vault backend", BackendRedis)
		}
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.Password,
			DB:       opts.DB,
		})
		v, err := NewRedisVault(client, opts.ClientID, WithKeyPrefix(opts.KeyPrefix))
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return v, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown vault backend %q", opts.Backend)
	}
}
