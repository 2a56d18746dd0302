package portal

import (
	"context"
	"strings"

	"github.com/waveport/go-portal/storage"
)

// MatchesAuthKey reports whether a storage key belongs to the identity
// provider. Patterns match as prefix or substring since the provider's key
// naming is versioned and implementation defined.
func MatchesAuthKey(key string, patterns []string) bool {
	if key == "" {
		return false
	}

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}
		if strings.HasPrefix(key, pattern) || strings.Contains(key, pattern) {
			return true
		}
	}

	return false
}

// ClearAuthKeys removes every matching key from the given store and returns
// the removed key names.
func ClearAuthKeys(store storage.Store, patterns []string) []string {
	if store == nil {
		return nil
	}

	var removed []string
	for _, key := range store.Keys() {
		if MatchesAuthKey(key, patterns) {
			store.Remove(key)
			removed = append(removed, key)
		}
	}
	return removed
}

// cleanup invalidates stale provider artifacts: it clears matching keys from
// durable and session-scoped storage, then attempts a best-effort global
// revocation. Only the local clearing must succeed.
func (s *SessionStore) cleanup(ctx context.Context) {
	patterns := s.cfg.GetStorageKeyPatterns()

	for _, store := range []storage.Store{s.durable, s.scoped} {
		if store == nil {
			continue
		}
		if removed := ClearAuthKeys(store, patterns); len(removed) > 0 {
			s.logger.Debug("cleanup removed %d provider keys", len(removed))
		}
	}

	if err := s.identity.SignOut(ctx, SignOutGlobal); err != nil {
		// revocation is best-effort, local storage clearing is the
		// operation that must succeed
		s.logger.Debug("cleanup global sign-out failed: %v", err)
	}
}
