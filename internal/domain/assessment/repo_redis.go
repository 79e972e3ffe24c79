package assessment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ehr/onboarding/internal/platform/db"
)

const snapshotKeyPrefix = "assessment:snapshot:"

// SnapshotCache is the subset of the Redis client the snapshot cache uses.
type SnapshotCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// cachedSnapshotRepo keeps hot snapshots in Redis in front of a durable
// repository. The durable copy is the source of truth: a cache entry is
// evicted before every durable write, and any cache write that fails is
// followed by an eviction. An error is returned only when an entry that may
// be stale cannot be evicted.
type cachedSnapshotRepo struct {
	client  SnapshotCache
	durable SnapshotRepository
	sealer  Sealer
	ttl     time.Duration
}

func NewCachedSnapshotRepo(client SnapshotCache, durable SnapshotRepository, sealer Sealer, ttl time.Duration) SnapshotRepository {
	return &cachedSnapshotRepo{client: client, durable: durable, sealer: sealer, ttl: ttl}
}

// snapshotKey scopes cache entries by tenant, since user ids are only unique
// within a tenant schema.
func snapshotKey(ctx context.Context, userID string) string {
	tenant := db.TenantFromContext(ctx)
	if tenant == "" {
		tenant = "default"
	}
	return snapshotKeyPrefix + tenant + ":" + userID
}

func (r *cachedSnapshotRepo) Put(ctx context.Context, userID, sessionID string, snapshot []byte) error {
	if err := r.evict(ctx, userID); err != nil {
		return err
	}
	if err := r.durable.Put(ctx, userID, sessionID, snapshot); err != nil {
		return err
	}
	return r.cache(ctx, userID, snapshot)
}

func (r *cachedSnapshotRepo) Get(ctx context.Context, userID string) ([]byte, error) {
	sealed, err := r.client.Get(ctx, snapshotKey(ctx, userID)).Bytes()
	if err == nil {
		if data, err := r.sealer.Open(sealed, []byte(userID)); err == nil {
			return data, nil
		}
	}
	data, err := r.durable.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	// The read already succeeded; a refill that cannot be evicted is retried
	// on the next write.
	_ = r.cache(ctx, userID, data)
	return data, nil
}

func (r *cachedSnapshotRepo) Delete(ctx context.Context, userID string) error {
	if err := r.durable.Delete(ctx, userID); err != nil {
		return err
	}
	return r.evict(ctx, userID)
}

// cache stores the sealed snapshot, evicting the key when that fails.
func (r *cachedSnapshotRepo) cache(ctx context.Context, userID string, snapshot []byte) error {
	sealed, err := r.sealer.Seal(snapshot, []byte(userID))
	if err == nil {
		err = r.client.Set(ctx, snapshotKey(ctx, userID), sealed, r.ttl).Err()
	}
	if err == nil {
		return nil
	}
	return r.evict(ctx, userID)
}

func (r *cachedSnapshotRepo) evict(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, snapshotKey(ctx, userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("evict cached snapshot: %w", err)
	}
	return nil
}
