// Package cachestore provides the persistent named-cache store written by the update agent.
package cachestore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"
)

// ErrNotFound is returned when an entry is not cached.
var ErrNotFound = errors.New("cache entry not found")

// Entry is one cached response.
type Entry struct {
	Cache    string
	Key      string
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

// Store persists named caches of responses keyed by URL.
type Store interface {
	// Put stores or replaces an entry.
	Put(ctx context.Context, e Entry) error
	// Get returns the entry for key in cache, or ErrNotFound.
	Get(ctx context.Context, cache, key string) (Entry, error)
	// Keys lists the keys in cache, most recently stored first.
	Keys(ctx context.Context, cache string) ([]string, error)
	// Trim drops entries stored before cutoff and then all but the newest
	// maxEntries entries. A zero cutoff or maxEntries disables that step.
	// It returns the number of removed entries.
	Trim(ctx context.Context, cache string, maxEntries int, cutoff time.Time) (int, error)
	// CacheNames lists every cache holding at least one entry.
	CacheNames(ctx context.Context) ([]string, error)
	// DeleteCache removes a cache and all its entries.
	DeleteCache(ctx context.Context, cache string) error
	// Close releases the store.
	Close() error
}

// CleanupOutdated deletes every cache whose name is not in keep and returns
// the deleted names.
func CleanupOutdated(ctx context.Context, s Store, keep []string) ([]string, error) {
	names, err := s.CacheNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("cleanup outdated caches: %w", err)
	}
	var deleted []string
	for _, name := range names {
		if slices.Contains(keep, name) {
			continue
		}
		if err := s.DeleteCache(ctx, name); err != nil {
			return deleted, fmt.Errorf("cleanup outdated caches: delete %s: %w", name, err)
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// Expire trims cache to maxEntries and drops entries older than maxAge relative to now.
func Expire(ctx context.Context, s Store, cache string, maxEntries int, maxAge time.Duration, now time.Time) (int, error) {
	var cutoff time.Time
	if maxAge > 0 {
		cutoff = now.Add(-maxAge)
	}
	return s.Trim(ctx, cache, maxEntries, cutoff)
}

// Fresh reports whether e is younger than maxAge at now. A non-positive maxAge never expires.
func Fresh(e Entry, maxAge time.Duration, now time.Time) bool {
	if maxAge <= 0 {
		return true
	}
	return now.Sub(e.StoredAt) < maxAge
}
