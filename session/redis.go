package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by go-redis, grounded on
// store/redis/redis.go's key-prefix/TTL shape; unlike the checkpoint
// store it refreshes the TTL on every Touch instead of writing it once,
// since "idle TTL" means the horizon resets on activity.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ Store = (*Redis)(nil)

// RedisOptions configures the Redis-backed session store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // default "session:"
	TTL      time.Duration // default DefaultTTL
}

// NewRedis returns a Redis-backed Store.
func NewRedis(opts RedisOptions) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "session:"
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}

	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

// NewRedisWithClient wires an already-constructed *redis.Client, useful
// for tests against alicebob/miniredis/v2.
func NewRedisWithClient(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "session:"
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) key(id string) string { return fmt.Sprintf("%s%s", r.prefix, id) }

// Create implements Store.
func (r *Redis) Create(ctx context.Context, canvasID string) (*Session, error) {
	now := time.Now()
	s := &Session{ID: newID(), CanvasID: canvasID, CreatedAt: now, LastActivity: now}
	if err := r.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, id string) (*Session, bool, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("session: redis get: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &s, true, nil
}

// Touch implements Store.
func (r *Redis) Touch(ctx context.Context, id string, canvasID string, msg *Message) (*Session, error) {
	s, ok, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		now := time.Now()
		s = &Session{ID: id, CanvasID: canvasID, CreatedAt: now, LastActivity: now}
	}

	if canvasID != "" && s.CanvasID == "" {
		s.CanvasID = canvasID
	}
	if msg != nil {
		s.Messages = append(s.Messages, *msg)
	}
	s.LastActivity = time.Now()

	if err := r.save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *Redis) save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := r.client.Set(ctx, r.key(s.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

// GC is a no-op for Redis: expiry is enforced by the key TTL set on every
// save, so there is nothing for a periodic sweep to reclaim beyond what
// Redis already reclaims itself.
func (r *Redis) GC(_ context.Context, _ time.Duration) (int, error) {
	return 0, nil
}
