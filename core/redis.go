package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionKeyPrefix namespaces session keys in Redis.
const SessionKeyPrefix = "formgate:session:"

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	return client, nil
}

// RedisSessionRegistry stores sessions as JSON values. When ttl is set,
// Redis expires the keys itself and no sweep is needed.
type RedisSessionRegistry struct {
	client *redis.Client
	ids    *SessionIDs
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisSessionRegistry(client *redis.Client, ids *SessionIDs, ttl time.Duration) *RedisSessionRegistry {
	return &RedisSessionRegistry{client: client, ids: ids, ttl: ttl, now: time.Now}
}

func sessionKey(id SessionID) string {
	return SessionKeyPrefix + string(id)
}

// Create uses SET NX so an ID already held by a live session is never
// overwritten.
func (r *RedisSessionRegistry) Create(ctx context.Context, p Principal) (Session, error) {
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id, err := r.ids.New()
		if err != nil {
			return Session{}, err
		}
		s := Session{ID: id, Principal: p, CreatedAt: r.now().UTC()}
		data, err := json.Marshal(s)
		if err != nil {
			return Session{}, err
		}
		ok, err := r.client.SetNX(ctx, sessionKey(id), data, r.ttl).Result()
		if err != nil {
			return Session{}, fmt.Errorf("store session: %w", err)
		}
		if ok {
			return s, nil
		}
	}
	return Session{}, fmt.Errorf("create session: %d id collisions", maxCreateAttempts)
}

func (r *RedisSessionRegistry) Lookup(ctx context.Context, id SessionID) (Session, error) {
	if !r.ids.Check(id) {
		return Session{}, ErrSessionNotFound
	}
	val, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, fmt.Errorf("load session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(val, &s); err != nil {
		return Session{}, fmt.Errorf("decode session: %w", err)
	}
	return s, nil
}

func (r *RedisSessionRegistry) Destroy(ctx context.Context, id SessionID) error {
	return r.client.Del(ctx, sessionKey(id)).Err()
}

// Count scans the session keyspace; it is meant for status pages, not hot paths.
func (r *RedisSessionRegistry) Count(ctx context.Context) (int, error) {
	iter := r.client.Scan(ctx, 0, SessionKeyPrefix+"*", 100).Iterator()
	n := 0
	for iter.Next(ctx) {
		n++
	}
	if err := iter.Err(); err != nil {
		return 0, err
	}
	return n, nil
}
