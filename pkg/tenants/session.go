package tenants

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// SessionStore keeps the per-session tenant pin in Redis. The pin is a
// hint, not an authority: resolution re-validates it against current
// memberships on every request.
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore creates a session store around an existing Redis client.
// A zero ttl means pins do not expire on their own.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// NewSessionStoreFromURL connects to Redis and returns a session store.
func NewSessionStoreFromURL(redisURL string, ttl time.Duration) (*SessionStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewSessionStore(client, ttl), nil
}

func pinKey(sessionID string) string {
	return fmt.Sprintf("session:%s:tenant", sessionID)
}

// PinnedTenant returns the tenant id pinned to a session, if any.
func (s *SessionStore) PinnedTenant(ctx context.Context, sessionID string) (int64, bool, error) {
	val, err := s.client.Get(ctx, pinKey(sessionID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read session pin: %w", err)
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		// Corrupt pin; drop it and report a miss.
		s.client.Del(ctx, pinKey(sessionID))
		return 0, false, nil
	}
	return id, true, nil
}

// PinTenant records the session's active tenant.
func (s *SessionStore) PinTenant(ctx context.Context, sessionID string, tenantID int64) error {
	if err := s.client.Set(ctx, pinKey(sessionID), strconv.FormatInt(tenantID, 10), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to pin tenant: %w", err)
	}
	return nil
}

// ClearPin removes the session's tenant pin.
func (s *SessionStore) ClearPin(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, pinKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear session pin: %w", err)
	}
	return nil
}

// Ping checks Redis connectivity.
func (s *SessionStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (s *SessionStore) Close() error {
	return s.client.Close()
}
