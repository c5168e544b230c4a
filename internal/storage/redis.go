package storage

import (
	"context"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const preferencesKeyTempl = "%slora:prefs:%s" // key prefix | namespace

// RedisPreferences implements a Redis backed Preferences store. Each
// namespace is stored as a hash.
type RedisPreferences struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisPreferences returns a new RedisPreferences.
func NewRedisPreferences(client redis.UniversalClient, keyPrefix string) *RedisPreferences {
	return &RedisPreferences{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Get returns the fields of the given namespace.
func (p *RedisPreferences) Get(ctx context.Context, namespace string) (map[string][]byte, error) {
	key := GetRedisKey(preferencesKeyTempl, p.keyPrefix, namespace)

	val, err := p.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errors.Wrap(err, "hgetall error")
	}

	out := make(map[string][]byte, len(val))
	for k, v := range val {
		out[k] = []byte(v)
	}

	return out, nil
}

// Put replaces the namespace with the given fields in a single transaction.
func (p *RedisPreferences) Put(ctx context.Context, namespace string, fields map[string][]byte) error {
	key := GetRedisKey(preferencesKeyTempl, p.keyPrefix, namespace)

	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	pipe := p.client.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) != 0 {
		pipe.HSet(ctx, key, values)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "exec error")
	}

	preferencesOperationCounter("redis", "put").Inc()
	log.WithFields(log.Fields{
		"namespace": namespace,
		"fields":    len(fields),
	}).Debug("storage: preferences saved in redis")

	return nil
}

// Clear removes the given namespace.
func (p *RedisPreferences) Clear(ctx context.Context, namespace string) error {
	key := GetRedisKey(preferencesKeyTempl, p.keyPrefix, namespace)

	if err := p.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrap(err, "del error")
	}

	preferencesOperationCounter("redis", "clear").Inc()
	log.WithField("namespace", namespace).Debug("storage: preferences cleared in redis")

	return nil
}
