package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-consent/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const sessionCacheKeyPrefix = "go-consent::session_latest::v1"

type CachedSessionStore struct {
	base  core.SessionStore
	cache repositorycache.CacheService
	key   string
}

type cachedSession struct {
	Found   bool
	Session core.Session
}

func NewCachedSessionStore(
	base core.SessionStore,
	cacheService repositorycache.CacheService,
	scope string,
) (*CachedSessionStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base session store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: session cache service is required")
	}
	return &CachedSessionStore{base: base, cache: cacheService, key: SessionCacheKey(scope)}, nil
}

// SessionCacheKey returns go-consent::session_latest::v1::<scope>, the scope
// URL-path escaped and defaulting to "default".
func SessionCacheKey(scope string) string {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		scope = "default"
	}
	return sessionCacheKeyPrefix + "::" + url.PathEscape(scope)
}

func (s *CachedSessionStore) Latest(ctx context.Context) (*core.Session, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached session store is not configured")
	}
	entry, err := repositorycache.GetOrFetch(ctx, s.cache, s.key, func(ctx context.Context) (cachedSession, error) {
		latest, fetchErr := s.base.Latest(ctx)
		if fetchErr != nil {
			return cachedSession{}, fetchErr
		}
		if latest == nil {
			return cachedSession{}, nil
		}
		return cachedSession{Found: true, Session: *latest}, nil
	})
	if err != nil {
		return nil, err
	}
	if !entry.Found {
		return nil, nil
	}
	session := entry.Session
	return &session, nil
}

func (s *CachedSessionStore) Save(ctx context.Context, session core.Session) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached session store is not configured")
	}
	if err := s.base.Save(ctx, session); err != nil {
		return err
	}
	return s.cache.Delete(ctx, s.key)
}

func (s *CachedSessionStore) Invalidate(ctx context.Context, sessionKey string, reason core.SessionDestroyedReason) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached session store is not configured")
	}
	if err := s.base.Invalidate(ctx, sessionKey, reason); err != nil {
		return err
	}
	return s.cache.Delete(ctx, s.key)
}
