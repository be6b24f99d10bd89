package cachestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache", "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newMiniRedisStore(t *testing.T) Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, "freshshell-test")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// stores returns every backend under test. The redis backend runs against an
// in-process server, and also against a real one when FRESHSHELL_TEST_REDIS_ADDR
// points to a disposable instance.
func stores(t *testing.T) map[string]func(t *testing.T) Store {
	out := map[string]func(t *testing.T) Store{
		"sqlite": newSQLiteStore,
		"redis":  newMiniRedisStore,
	}
	if addr := os.Getenv("FRESHSHELL_TEST_REDIS_ADDR"); addr != "" {
		out["redis-server"] = func(t *testing.T) Store {
			client := redis.NewClient(&redis.Options{Addr: addr})
			prefix := fmt.Sprintf("freshshell-test-%d", time.Now().UnixNano())
			s := NewRedisStoreFromClient(client, prefix)
			t.Cleanup(func() {
				ctx := context.Background()
				keys, _ := client.Keys(ctx, prefix+":*").Result()
				if len(keys) > 0 {
					client.Del(ctx, keys...)
				}
				_ = s.Close()
			})
			return s
		}
	}
	return out
}

func put(t *testing.T, s Store, cache, key string, at time.Time) {
	t.Helper()
	require.NoError(t, s.Put(context.Background(), Entry{
		Cache:    cache,
		Key:      key,
		Status:   200,
		Header:   http.Header{"Content-Type": {"text/html"}},
		Body:     []byte("body of " + key),
		StoredAt: at,
	}))
}

func TestStorePutGetRoundTrip(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			body := []byte(strings.Repeat("<p>hello</p>", 200))
			require.NoError(t, s.Put(ctx, Entry{
				Cache:    "pages",
				Key:      "https://app.example.com/",
				Status:   200,
				Header:   http.Header{"Content-Type": {"text/html"}, "Vary": {"Accept", "Cookie"}},
				Body:     body,
				StoredAt: base,
			}))

			got, err := s.Get(ctx, "pages", "https://app.example.com/")
			require.NoError(t, err)
			assert.Equal(t, 200, got.Status)
			assert.Equal(t, body, got.Body)
			assert.Equal(t, "text/html", got.Header.Get("Content-Type"))
			assert.Equal(t, []string{"Accept", "Cookie"}, got.Header.Values("Vary"))
			assert.True(t, base.Equal(got.StoredAt))
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := open(t).Get(context.Background(), "pages", "nope")
			assert.True(t, errors.Is(err, ErrNotFound))
		})
	}
}

func TestStorePutReplacesExistingKey(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			put(t, s, "pages", "/a", base)
			require.NoError(t, s.Put(context.Background(), Entry{Cache: "pages", Key: "/a", Status: 203, StoredAt: base.Add(time.Minute)}))

			got, err := s.Get(context.Background(), "pages", "/a")
			require.NoError(t, err)
			assert.Equal(t, 203, got.Status)
			assert.Empty(t, got.Body)

			keys, err := s.Keys(context.Background(), "pages")
			require.NoError(t, err)
			assert.Equal(t, []string{"/a"}, keys)
		})
	}
}

func TestExpireKeepsNewestEntries(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			for i := 0; i < 12; i++ {
				put(t, s, "pages", fmt.Sprintf("/p%02d", i), base.Add(time.Duration(i)*time.Second))
			}

			removed, err := Expire(ctx, s, "pages", 10, time.Hour, base.Add(time.Minute))
			require.NoError(t, err)
			assert.Equal(t, 2, removed)

			keys, err := s.Keys(ctx, "pages")
			require.NoError(t, err)
			require.Len(t, keys, 10)
			assert.Equal(t, "/p11", keys[0])
			assert.NotContains(t, keys, "/p00")
			assert.NotContains(t, keys, "/p01")
		})
	}
}

func TestExpireDropsEntriesOlderThanMaxAge(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			put(t, s, "database", "/old", base)
			put(t, s, "database", "/new", base.Add(50*time.Minute))

			removed, err := Expire(ctx, s, "database", 50, time.Hour, base.Add(70*time.Minute))
			require.NoError(t, err)
			assert.Equal(t, 1, removed)

			_, err = s.Get(ctx, "database", "/old")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = s.Get(ctx, "database", "/new")
			assert.NoError(t, err)
		})
	}
}

func TestCleanupOutdatedDeletesUnknownCaches(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			ctx := context.Background()
			put(t, s, "pages", "/", base)
			put(t, s, "precache-v1", "/app.js", base)
			put(t, s, "precache-v2", "/app.js", base)
			put(t, s, "legacy-images", "/logo.png", base)

			deleted, err := CleanupOutdated(ctx, s, []string{"pages", "precache-v2"})
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"precache-v1", "legacy-images"}, deleted)

			names, err := s.CacheNames(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"pages", "precache-v2"}, names)
		})
	}
}

func TestFresh(t *testing.T) {
	e := Entry{StoredAt: base}
	assert.True(t, Fresh(e, time.Hour, base.Add(59*time.Minute)))
	assert.False(t, Fresh(e, time.Hour, base.Add(time.Hour)))
	assert.True(t, Fresh(e, 0, base.Add(1000*time.Hour)))
}

func TestNewSQLiteStoreRejectsEmptyPath(t *testing.T) {
	_, err := NewSQLiteStore("  ")
	assert.Error(t, err)
}

func TestBodyCodecRoundTrip(t *testing.T) {
	body := []byte(strings.Repeat("cache me ", 100))
	enc, err := encodeBody(body)
	require.NoError(t, err)
	assert.Less(t, len(enc), len(body))

	dec, err := decodeBody(enc)
	require.NoError(t, err)
	assert.Equal(t, body, dec)

	empty, err := encodeBody(nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestDecodeHeaderAcceptsSingleValueEncoding(t *testing.T) {
	h, err := decodeHeader(`{"Content-Type":"text/css"}`)
	require.NoError(t, err)
	assert.Equal(t, "text/css", h.Get("Content-Type"))

	h, err = decodeHeader(`{"Set-Cookie":["a=1","b=2"]}`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a=1", "b=2"}, h.Values("Set-Cookie"))
}
