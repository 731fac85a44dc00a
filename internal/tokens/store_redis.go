package tokens

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "magicstream:auth:refresh:"

const (
	swapStatusNotFound int64 = 0
	swapStatusMismatch int64 = 1
	swapStatusSwapped  int64 = 2
)

// KEYS[1] = refresh key
// ARGV[1] = expected hash, ARGV[2] = next hash
// ARGV[3] = updated_at (unix), ARGV[4] = ttl milliseconds
const swapRefreshScript = `
local current = redis.call("HGET", KEYS[1], "hash")
if not current then
  return 0
end
if current ~= ARGV[1] then
  return 1
end
redis.call("HSET", KEYS[1], "hash", ARGV[2], "updated_at", ARGV[3])
redis.call("PEXPIRE", KEYS[1], tonumber(ARGV[4]))
return 2
`

var swapRefreshLua = redis.NewScript(swapRefreshScript)

// RedisStore keeps one hash per user that expires together with the refresh
// token it represents. Redis has no view of user rows, so SaveRefreshHash
// never reports ErrNotFound.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// ttlMillis never returns 0, which would delete the key right after a swap.
func (s *RedisStore) ttlMillis() int64 {
	ms := s.ttl.Milliseconds()
	if ms < 1 {
		return 1
	}
	return ms
}

func (s *RedisStore) key(identity string) string {
	return redisKeyPrefix + identity
}

func (s *RedisStore) SaveRefreshHash(ctx context.Context, identity, hash string) error {
	key := s.key(identity)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "hash", hash, "updated_at", strconv.FormatInt(time.Now().Unix(), 10))
		pipe.PExpire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return wrapUnavailable(err)
	}
	return nil
}

func (s *RedisStore) LoadRefreshHash(ctx context.Context, identity string) (string, error) {
	hash, err := s.client.HGet(ctx, s.key(identity), "hash").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", wrapUnavailable(err)
	}
	if hash == "" {
		return "", ErrNotFound
	}
	return hash, nil
}

func (s *RedisStore) SwapRefreshHash(ctx context.Context, identity, expected, next string) error {
	status, err := swapRefreshLua.Run(ctx, s.client,
		[]string{s.key(identity)},
		expected,
		next,
		time.Now().Unix(),
		s.ttlMillis(),
	).Int64()
	if err != nil {
		return wrapUnavailable(err)
	}

	switch status {
	case swapStatusSwapped:
		return nil
	case swapStatusMismatch:
		return ErrHashMismatch
	case swapStatusNotFound:
		return ErrNotFound
	default:
		return wrapUnavailable(errors.New("unknown swap script status"))
	}
}

func (s *RedisStore) ClearRefreshHash(ctx context.Context, identity string) error {
	if err := s.client.Del(ctx, s.key(identity)).Err(); err != nil {
		return wrapUnavailable(err)
	}
	return nil
}
