package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "govchat:session:"

// RedisStore implements Store using Redis. Optimistic locking rides on
// WATCH/MULTI/EXEC; key TTLs give a second line of expiry behind the
// lazy idle-timeout check.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis and returns a session store whose
// key TTL matches the given session lifetime.
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (r *RedisStore) key(userID string) string {
	return sessionKeyPrefix + userID
}

func (r *RedisStore) GetOrCreate(ctx context.Context, userID string, now time.Time, idleTimeout time.Duration) (*Session, bool, error) {
	key := r.key(userID)

	var (
		sess    *Session
		created bool
	)

	// WATCH the key so two concurrent first messages from the same user
	// cannot both create a session; the loser's EXEC fails and retries.
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		created = false
		val, err := tx.Get(ctx, key).Result()
		if err != nil && err != redis.Nil {
			return err
		}

		if err == nil {
			var existing Session
			if uerr := json.Unmarshal([]byte(val), &existing); uerr != nil {
				return fmt.Errorf("failed to parse session data: %w", uerr)
			}
			if !existing.ExpiredAt(now, idleTimeout) {
				sess = &existing
				return nil
			}
		}

		fresh := newSession(userID, now)
		data, merr := json.Marshal(fresh)
		if merr != nil {
			return fmt.Errorf("failed to marshal session: %w", merr)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		if err != nil {
			return err
		}
		sess = fresh
		created = true
		return nil
	}, key)
	if err == redis.TxFailedErr {
		// Lost the race; the winner's session is now in place.
		return r.GetOrCreate(ctx, userID, now, idleTimeout)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session from Redis: %w", err)
	}
	return sess, created, nil
}

func (r *RedisStore) Get(ctx context.Context, userID string, now time.Time, idleTimeout time.Duration) (*Session, error) {
	val, err := r.client.Get(ctx, r.key(userID)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session from Redis: %w", err)
	}

	var sess Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, fmt.Errorf("failed to parse session data: %w", err)
	}
	if sess.ExpiredAt(now, idleTimeout) {
		return nil, ErrNotFound
	}
	return &sess, nil
}

func (r *RedisStore) Update(ctx context.Context, sess *Session) error {
	key := r.key(sess.UserID)

	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		val, err := tx.Get(ctx, key).Result()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		var stored Session
		if uerr := json.Unmarshal([]byte(val), &stored); uerr != nil {
			return fmt.Errorf("failed to parse session data: %w", uerr)
		}
		if stored.SessionID != sess.SessionID {
			return ErrNotFound
		}
		if stored.Version != sess.Version {
			return ErrConflict
		}

		sess.Version++
		data, merr := json.Marshal(sess)
		if merr != nil {
			return fmt.Errorf("failed to marshal session: %w", merr)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}, key)
	if err == redis.TxFailedErr {
		return ErrConflict
	}
	return err
}

func (r *RedisStore) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ExpireIdle scans for sessions past the max-age bound. Idle expiry is
// already covered by key TTLs; this sweep enforces the absolute cap.
func (r *RedisStore) ExpireIdle(ctx context.Context, now time.Time, idleTimeout, maxAge time.Duration) (int, error) {
	removed := 0
	iter := r.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		val, err := r.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		var sess Session
		if err := json.Unmarshal([]byte(val), &sess); err != nil {
			continue
		}
		if sess.ExpiredAt(now, idleTimeout) || now.Sub(sess.CreatedAt) > maxAge {
			if err := r.client.Del(ctx, key).Err(); err == nil {
				removed++
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("session sweep scan failed: %w", err)
	}
	return removed, nil
}

func (r *RedisStore) ActiveCount(ctx context.Context) (int, error) {
	count := 0
	iter := r.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("session count scan failed: %w", err)
	}
	return count, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Ping verifies the Redis connection is alive.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
