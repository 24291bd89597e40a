// Package redis keeps OAuth states in Redis so several server instances can share one ledger.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	pa "github.com/panyam/projauth"
)

// DefaultKeyPrefix namespaces state keys
const DefaultKeyPrefix = "projauth:oauth-state:"

// StateClient is the subset of *redis.Client the store needs
type StateClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

// StateStore implements pa.OAuthStateStore. Entries carry a Redis TTL matching their
// expiry, and TakeState uses GETDEL so removal and lookup are one atomic command.
type StateStore struct {
	client StateClient
	prefix string

	// Clock used to compute TTLs, defaults to time.Now
	Now func() time.Time
}

func NewStateStore(client StateClient) *StateStore {
	return &StateStore{
		client: client,
		prefix: DefaultKeyPrefix,
		Now:    time.Now,
	}
}

// WithPrefix returns the store using prefix for its keys
func (s *StateStore) WithPrefix(prefix string) *StateStore {
	s.prefix = prefix
	return s
}

func (s *StateStore) PutState(ctx context.Context, state string, entry pa.OAuthStateEntry) error {
	ttl := entry.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		// Already expired; nothing a later TakeState could accept
		return nil
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, s.prefix+state, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return fmt.Errorf("oauth state collision")
	}
	return nil
}

func (s *StateStore) TakeState(ctx context.Context, state string) (*pa.OAuthStateEntry, error) {
	payload, err := s.client.GetDel(ctx, s.prefix+state).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, pa.ErrStateNotFound
		}
		return nil, fmt.Errorf("redis getdel: %w", err)
	}
	var entry pa.OAuthStateEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return nil, fmt.Errorf("corrupt oauth state entry: %w", err)
	}
	return &entry, nil
}

func (s *StateStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
