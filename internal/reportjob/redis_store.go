package reportjob

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares the marker between every client pointed at the same
// Redis database. SetIfAbsent runs as one script, so two clients racing to
// start a job cannot both win.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore scopes every key under prefix (usually the viewer's email).
// A zero ttl keeps values until they are deleted.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return "session:" + k
	}
	return "session:" + s.prefix + ":" + k
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string) error {
	return s.client.Set(ctx, s.key(key), value, s.ttl).Err()
}

// luaSetIfEmpty is SETNX that also overwrites an empty string.
var luaSetIfEmpty = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if v and v ~= "" then
	return 0
end
if tonumber(ARGV[2]) > 0 then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
else
	redis.call("SET", KEYS[1], ARGV[1])
end
return 1`)

func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string) (bool, error) {
	n, err := luaSetIfEmpty.Run(ctx, s.client, []string{s.key(key)}, value, s.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
