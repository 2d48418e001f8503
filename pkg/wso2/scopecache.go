package wso2

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ScopeCache remembers the last successfully granted scope list per client so
// a flaky token endpoint does not blank out the admin UI. Entries live for 24
// hours; after that a failed mint is surfaced as-is.
type ScopeCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.SugaredLogger
}

func NewScopeCache(rdb *redis.Client, log *zap.SugaredLogger) *ScopeCache {
	return &ScopeCache{rdb: rdb, ttl: 24 * time.Hour, log: log}
}

func scopeKey(clientID string) string { return "idgate:authorized-scopes:" + clientID }

func (s *ScopeCache) Put(ctx context.Context, clientID string, scopes []string) {
	if s == nil || s.rdb == nil {
		return
	}
	if err := s.rdb.Set(ctx, scopeKey(clientID), strings.Join(scopes, " "), s.ttl).Err(); err != nil {
		s.log.Warnw("scope cache write failed", "err", err)
	}
}

func (s *ScopeCache) Get(ctx context.Context, clientID string) ([]string, bool) {
	if s == nil || s.rdb == nil {
		return nil, false
	}
	v, err := s.rdb.Get(ctx, scopeKey(clientID)).Result()
	if err != nil {
		return nil, false
	}
	return strings.Fields(v), true
}
