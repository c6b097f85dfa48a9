package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "fes:session:"

// RedisStore keeps the session map in Redis; the cookie only carries the
// signed session id.
type RedisStore struct {
	rdb   *redis.Client
	codec *Codec
	opts  CookieOptions
}

func NewRedisStore(rdb *redis.Client, codec *Codec, opts CookieOptions) *RedisStore {
	return &RedisStore{rdb: rdb, codec: codec, opts: opts.withDefaults()}
}

// NewRedisClient parses a redis:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) Get(ctx context.Context, r *http.Request) (*Session, error) {
	raw := readCookie(r, s.opts.Name)
	if raw == "" {
		return New(), nil
	}
	id, err := s.codec.Unsign(raw)
	if err != nil {
		return New(), nil
	}
	b, err := s.rdb.Get(ctx, redisKeyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return New(), nil
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return New(), nil
	}
	rec.ID = id
	return fromRecord(rec), nil
}

func (s *RedisStore) Commit(ctx context.Context, sess *Session) (*http.Cookie, error) {
	b, err := json.Marshal(sess.record())
	if err != nil {
		return nil, err
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+sess.ID, b, s.opts.MaxAge).Err(); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	sess.dirty, sess.isNew = false, false
	return s.opts.cookie(s.codec.Sign(sess.ID)), nil
}

func (s *RedisStore) Destroy(ctx context.Context, sess *Session) (*http.Cookie, error) {
	if err := s.rdb.Del(ctx, redisKeyPrefix+sess.ID).Err(); err != nil {
		return nil, fmt.Errorf("destroy session: %w", err)
	}
	sess.values = map[string]string{}
	sess.flash = map[string]string{}
	sess.dirty = false
	return s.opts.expired(), nil
}
