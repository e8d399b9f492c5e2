package lb

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// redisSessionStore backs SessionStore with Redis, letting session
// affinity survive a gateway restart and be shared across multiple
// fabric-gateway processes. Expiry is delegated to Redis key TTLs, so
// Purge is a no-op.
type redisSessionStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSessionStore returns a SessionStore backed by the given Redis
// client. keyPrefix namespaces session keys, e.g. "fabric:session:".
func NewRedisSessionStore(client *redis.Client, keyPrefix string) SessionStore {
	if keyPrefix == "" {
		keyPrefix = "fabric:session:"
	}
	return &redisSessionStore{client: client, prefix: keyPrefix}
}

func (r *redisSessionStore) key(k string) string { return r.prefix + k }

func (r *redisSessionStore) instanceSetKey(instanceID string) string {
	return r.prefix + "by-instance:" + instanceID
}

func (r *redisSessionStore) Get(ctx context.Context, key string) (Session, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, err
	}
	var sess Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return Session{}, false, err
	}
	return sess, true, nil
}

func (r *redisSessionStore) Put(ctx context.Context, sess Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.key(sess.Key), raw, ttl)
	pipe.SAdd(ctx, r.instanceSetKey(sess.InstanceID), sess.Key)
	pipe.Expire(ctx, r.instanceSetKey(sess.InstanceID), ttl+time.Minute)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *redisSessionStore) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key)).Err()
}

// Purge is a no-op: Redis expires keys on its own via the TTL set in Put.
func (r *redisSessionStore) Purge(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

// DeleteByInstance removes every session key recorded in the per-instance
// membership set, then the set itself.
func (r *redisSessionStore) DeleteByInstance(ctx context.Context, instanceID string) (int, error) {
	setKey := r.instanceSetKey(instanceID)
	keys, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return 0, err
	}
	_ = r.client.Del(ctx, setKey).Err()
	return len(keys), nil
}
