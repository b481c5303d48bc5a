package otp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKeyPrefix = "otp:register"

	fieldCode     = "code"
	fieldIssuedAt = "issued_at"
)

// takeScript compares and deletes in one step so concurrent verifications
// of the same code cannot both succeed.
var takeScript = redis.NewScript(`
local code = redis.call('HGET', KEYS[1], 'code')
if not code then
  return false
end
if code ~= ARGV[1] then
  return 0
end
local issued = redis.call('HGET', KEYS[1], 'issued_at')
redis.call('DEL', KEYS[1])
return issued
`)

// RedisStore keeps entries in Redis hashes that expire with their retention.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed Store.
func NewRedisStore(client *redis.Client, keyPrefix string) *RedisStore {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, entry Entry, retention time.Duration) error {
	if retention <= 0 {
		return errors.New("retention must be positive")
	}
	key := s.key(entry.Email)

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]any{
		fieldCode:     entry.Code,
		fieldIssuedAt: strconv.FormatInt(entry.IssuedAt.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store otp: %w", err)
	}
	return nil
}

// Take implements Store.
func (s *RedisStore) Take(ctx context.Context, email, code string) (Entry, error) {
	res, err := takeScript.Run(ctx, s.client, []string{s.key(email)}, code).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("redis take otp: %w", err)
	}

	switch v := res.(type) {
	case int64:
		return Entry{}, ErrMismatch
	case string:
		nanos, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Entry{}, fmt.Errorf("parse issued_at: %w", err)
		}
		return Entry{Email: email, Code: code, IssuedAt: time.Unix(0, nanos).UTC()}, nil
	default:
		return Entry{}, fmt.Errorf("redis take otp: unexpected reply %T", res)
	}
}

func (s *RedisStore) key(email string) string {
	return fmt.Sprintf("%s:%s", s.prefix, strings.TrimSpace(email))
}
