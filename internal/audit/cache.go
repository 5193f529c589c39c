package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"audit-platform/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// TrailCache caches per-subject trails. Implementations are best-effort:
// a failing cache must behave like a miss, never like a storage failure.
type TrailCache interface {
	GetTrail(ctx context.Context, subjectID string) ([]Record, bool)
	SetTrail(ctx context.Context, subjectID string, recs []Record)
	InvalidateTrail(ctx context.Context, subjectID string)
}

// CachedRepository is a read-through decorator around a Repository.
// FindBySubject is served from the cache when possible; Append invalidates
// the written subject's entry. FindByParent and FindByID are not cached —
// keeping invalidation a single-key operation per append.
type CachedRepository struct {
	repo  Repository
	cache TrailCache
}

func NewCachedRepository(repo Repository, cache TrailCache) *CachedRepository {
	return &CachedRepository{repo: repo, cache: cache}
}

func (c *CachedRepository) Append(ctx context.Context, rec Record) (Record, error) {
	stored, err := c.repo.Append(ctx, rec)
	if err != nil {
		return Record{}, err
	}
	c.cache.InvalidateTrail(ctx, stored.SubjectID)
	return stored, nil
}

func (c *CachedRepository) FindBySubject(ctx context.Context, subjectID string) ([]Record, error) {
	if recs, ok := c.cache.GetTrail(ctx, subjectID); ok {
		return recs, nil
	}
	recs, err := c.repo.FindBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	c.cache.SetTrail(ctx, subjectID, recs)
	return recs, nil
}

func (c *CachedRepository) FindByParent(ctx context.Context, parentID string) ([]Record, error) {
	return c.repo.FindByParent(ctx, parentID)
}

func (c *CachedRepository) FindByID(ctx context.Context, id string) (Record, error) {
	return c.repo.FindByID(ctx, id)
}

// RedisTrailCache stores JSON-encoded trails under audit:trail:<subject_id>
// with a TTL. Redis errors are logged at debug and treated as misses.
type RedisTrailCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisTrailCache(rdb *redis.Client, ttl time.Duration) *RedisTrailCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisTrailCache{rdb: rdb, ttl: ttl}
}

func trailKey(subjectID string) string { return "audit:trail:" + subjectID }

func (c *RedisTrailCache) GetTrail(ctx context.Context, subjectID string) ([]Record, bool) {
	raw, err := c.rdb.Get(ctx, trailKey(subjectID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.From(ctx).Debug("trail cache get failed", "subject_id", subjectID, "err", err)
		}
		return nil, false
	}
	var recs []Record
	if err := json.Unmarshal(raw, &recs); err != nil {
		logger.From(ctx).Debug("trail cache decode failed", "subject_id", subjectID, "err", err)
		return nil, false
	}
	return recs, true
}

func (c *RedisTrailCache) SetTrail(ctx context.Context, subjectID string, recs []Record) {
	raw, err := json.Marshal(recs)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, trailKey(subjectID), raw, c.ttl).Err(); err != nil {
		logger.From(ctx).Debug("trail cache set failed", "subject_id", subjectID, "err", err)
	}
}

func (c *RedisTrailCache) InvalidateTrail(ctx context.Context, subjectID string) {
	if err := c.rdb.Del(ctx, trailKey(subjectID)).Err(); err != nil {
		logger.From(ctx).Debug("trail cache invalidate failed", "subject_id", subjectID, "err", err)
	}
}

// MemoryTrailCache is a map-backed TrailCache for tests.
type MemoryTrailCache struct {
	mu     sync.Mutex
	trails map[string][]Record
}

func NewMemoryTrailCache() *MemoryTrailCache {
	return &MemoryTrailCache{trails: make(map[string][]Record)}
}

func (c *MemoryTrailCache) GetTrail(ctx context.Context, subjectID string) ([]Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	recs, ok := c.trails[subjectID]
	if !ok {
		return nil, false
	}
	out := make([]Record, len(recs))
	copy(out, recs)
	return out, true
}

func (c *MemoryTrailCache) SetTrail(ctx context.Context, subjectID string, recs []Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]Record, len(recs))
	copy(stored, recs)
	c.trails[subjectID] = stored
}

func (c *MemoryTrailCache) InvalidateTrail(ctx context.Context, subjectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.trails, subjectID)
}
