package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldcrew/go-push-service/pkg/dispatch"
	"github.com/fieldcrew/go-push-service/pkg/push"
)

// CacheClient is the subset of cache commands the decorator needs.
type CacheClient interface {
	// Get fills dest or returns dispatch.ErrCacheMiss.
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// CachedRegistryStore decorates a RegistryStore with read-aside caching.
// Two key families: an alias key per user reference resolving to the user id,
// and one record key per user id holding the registry entry. A user cached
// under either handle (document id or external uid) is invalidated by a
// single delete of the record key; the alias mapping is stable and kept.
type CachedRegistryStore struct {
	realStore dispatch.RegistryStore
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedRegistryStore(realStore dispatch.RegistryStore, cache CacheClient, ttl time.Duration) *CachedRegistryStore {
	return &CachedRegistryStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH (read-aside) ---

func (s *CachedRegistryStore) Lookup(ctx context.Context, ref string) (*push.Recipient, error) {
	var userID string
	if err := s.cache.Get(ctx, aliasKey(ref), &userID); err == nil && userID != "" {
		var cached push.Recipient
		if err := s.cache.Get(ctx, recordKey(userID), &cached); err == nil {
			return &cached, nil
		}
	}

	fresh, err := s.realStore.Lookup(ctx, ref)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization, not a transaction: if the cache is down we
	// still serve from the registry.
	_ = s.cache.Set(ctx, aliasKey(ref), fresh.ID, s.ttl)
	_ = s.cache.Set(ctx, recordKey(fresh.ID), fresh, s.ttl)

	return fresh, nil
}

// --- WRITE PATHS (invalidate-on-write) ---

// AddToken writes to the source of truth first, then drops the cached record
// so the next lookup sees the new token immediately.
func (s *CachedRegistryStore) AddToken(ctx context.Context, userID, scope, token string) error {
	if err := s.realStore.AddToken(ctx, userID, scope, token); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

// RemoveTokens must clear the cache even though pruning only shrinks the
// entry: a stale cached record would keep dead tokens in play for the TTL.
func (s *CachedRegistryStore) RemoveTokens(ctx context.Context, userID string, tokensByScope map[string][]string) error {
	if err := s.realStore.RemoveTokens(ctx, userID, tokensByScope); err != nil {
		return err
	}
	return s.invalidate(ctx, userID)
}

func (s *CachedRegistryStore) invalidate(ctx context.Context, userID string) error {
	err := s.cache.Del(ctx, recordKey(userID))
	if err != nil && !errors.Is(err, dispatch.ErrCacheMiss) {
		return err
	}
	return nil
}

func aliasKey(ref string) string {
	return fmt.Sprintf("push:reg:ref:%s", ref)
}

func recordKey(userID string) string {
	return fmt.Sprintf("push:reg:user:%s", userID)
}
