package cachestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "freshshell"

// RedisStore implements Store on Redis. Each cache keeps a sorted set of keys
// scored by store time plus one hash per entry.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to addr and verifies the connection.
func NewRedisStore(ctx context.Context, addr string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache store: ping %s: %w", addr, err)
	}
	return NewRedisStoreFromClient(client, defaultRedisPrefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) cachesKey() string { return s.prefix + ":caches" }

func (s *RedisStore) indexKey(cache string) string { return s.prefix + ":cache:" + cache + ":index" }

func (s *RedisStore) entryKey(cache, key string) string {
	return s.prefix + ":cache:" + cache + ":entry:" + key
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Put stores or replaces an entry.
func (s *RedisStore) Put(ctx context.Context, e Entry) error {
	if e.Cache == "" || e.Key == "" {
		return fmt.Errorf("redis cache store: cache and key are required")
	}
	header, err := encodeHeader(e.Header)
	if err != nil {
		return err
	}
	body, err := encodeBody(e.Body)
	if err != nil {
		return err
	}
	storedAt := e.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now()
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.entryKey(e.Cache, e.Key), map[string]interface{}{
			"status":    e.Status,
			"header":    header,
			"body":      string(body),
			"stored_at": storedAt.UnixNano(),
		})
		pipe.ZAdd(ctx, s.indexKey(e.Cache), redis.Z{Score: float64(storedAt.UnixNano()), Member: e.Key})
		pipe.SAdd(ctx, s.cachesKey(), e.Cache)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis cache store: put %s: %w", e.Key, err)
	}
	return nil
}

// Get returns the entry for key in cache.
func (s *RedisStore) Get(ctx context.Context, cache, key string) (Entry, error) {
	fields, err := s.client.HGetAll(ctx, s.entryKey(cache, key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, ErrNotFound
		}
		return Entry{}, fmt.Errorf("redis cache store: get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return Entry{}, ErrNotFound
	}

	status, _ := strconv.Atoi(fields["status"])
	storedAt, _ := strconv.ParseInt(fields["stored_at"], 10, 64)
	h, err := decodeHeader(fields["header"])
	if err != nil {
		return Entry{}, err
	}
	b, err := decodeBody([]byte(fields["body"]))
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Cache:    cache,
		Key:      key,
		Status:   status,
		Header:   h,
		Body:     b,
		StoredAt: time.Unix(0, storedAt),
	}, nil
}

// Keys lists the keys in cache, newest first.
func (s *RedisStore) Keys(ctx context.Context, cache string) ([]string, error) {
	keys, err := s.client.ZRevRange(ctx, s.indexKey(cache), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis cache store: list keys: %w", err)
	}
	return keys, nil
}

// Trim removes expired entries and enforces maxEntries.
func (s *RedisStore) Trim(ctx context.Context, cache string, maxEntries int, cutoff time.Time) (int, error) {
	var victims []string
	if !cutoff.IsZero() {
		expired, err := s.client.ZRangeByScore(ctx, s.indexKey(cache), &redis.ZRangeBy{
			Min: "-inf",
			Max: "(" + strconv.FormatInt(cutoff.UnixNano(), 10),
		}).Result()
		if err != nil {
			return 0, fmt.Errorf("redis cache store: expire entries: %w", err)
		}
		victims = append(victims, expired...)
	}
	if maxEntries > 0 {
		overflow, err := s.client.ZRevRange(ctx, s.indexKey(cache), int64(maxEntries), -1).Result()
		if err != nil {
			return 0, fmt.Errorf("redis cache store: trim entries: %w", err)
		}
		victims = append(victims, overflow...)
	}
	victims = uniqueStrings(victims)
	if len(victims) == 0 {
		return 0, nil
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range victims {
			pipe.Del(ctx, s.entryKey(cache, k))
			pipe.ZRem(ctx, s.indexKey(cache), k)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis cache store: remove trimmed entries: %w", err)
	}
	return len(victims), nil
}

// CacheNames lists caches holding entries.
func (s *RedisStore) CacheNames(ctx context.Context) ([]string, error) {
	names, err := s.client.SMembers(ctx, s.cachesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis cache store: list caches: %w", err)
	}
	out := names[:0]
	for _, n := range names {
		count, err := s.client.ZCard(ctx, s.indexKey(n)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis cache store: count %s: %w", n, err)
		}
		if count > 0 {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}

// DeleteCache removes a cache and its entries.
func (s *RedisStore) DeleteCache(ctx context.Context, cache string) error {
	keys, err := s.Keys(ctx, cache)
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Del(ctx, s.entryKey(cache, k))
		}
		pipe.Del(ctx, s.indexKey(cache))
		pipe.SRem(ctx, s.cachesKey(), cache)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis cache store: delete cache %s: %w", cache, err)
	}
	return nil
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
