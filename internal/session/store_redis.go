package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisTTL = 24 * time.Hour

// RedisStore keeps sessions as JSON under live:room:<id>, with an index set
// of known rooms. Every save refreshes the key TTL.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore connects to REDIS_URL-style addresses (redis:// or rediss://).
func NewRedisStore(ctx context.Context, redisURL string, ttl time.Duration) (*RedisStore, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis session store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStoreWithClient(rdb, ttl), nil
}

func NewRedisStoreWithClient(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func roomKey(room string) string { return "live:room:" + strings.TrimSpace(room) }
func indexKey() string           { return "live:rooms" }

func (r *RedisStore) Load(ctx context.Context, room string) (*Session, error) {
	raw, err := r.rdb.Get(ctx, roomKey(room)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", room, err)
	}
	return &s, nil
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	if s == nil || strings.TrimSpace(s.Room) == "" {
		return ErrInvalidRoom
	}
	key := roomKey(s.Room)
	expected := s.Rev

	// WATCH로 다른 인스턴스의 동시 갱신 감지
	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		var cur int64
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case err == redis.Nil:
		case err != nil:
			return err
		default:
			var stored Session
			if jerr := json.Unmarshal(raw, &stored); jerr != nil {
				return jerr
			}
			cur = stored.Rev
		}
		if cur != expected {
			return ErrConflict
		}

		next := s.Clone()
		next.Rev = expected + 1
		payload, err := json.Marshal(next)
		if err != nil {
			return err
		}
		pipe := tx.TxPipeline()
		pipe.Set(ctx, key, payload, r.ttl)
		pipe.SAdd(ctx, indexKey(), s.Room)
		pipe.Expire(ctx, indexKey(), r.ttl)
		_, err = pipe.Exec(ctx)
		return err
	}, key)
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return ErrConflict
		}
		return err
	}
	s.Rev = expected + 1
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, room string) error {
	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, roomKey(room))
	pipe.SRem(ctx, indexKey(), strings.TrimSpace(room))
	_, err := pipe.Exec(ctx)
	return err
}

// Rooms lists indexed rooms and prunes index entries whose record expired.
func (r *RedisStore) Rooms(ctx context.Context) ([]string, error) {
	ids, err := r.rdb.SMembers(ctx, indexKey()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := r.rdb.Exists(ctx, roomKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			_ = r.rdb.SRem(ctx, indexKey(), id).Err()
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (r *RedisStore) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
