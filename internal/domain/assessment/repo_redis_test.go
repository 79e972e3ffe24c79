package assessment

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ehr/onboarding/internal/platform/db"
)

// -- Fake Redis --

var (
	_ SnapshotCache = (*redis.Client)(nil)
	_ SnapshotCache = (*fakeCache)(nil)
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	setErr  error
	delErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (f *fakeCache) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.entries[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(string(v), nil)
}

func (f *fakeCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return redis.NewStatusResult("", f.setErr)
	}
	f.entries[key] = append([]byte(nil), value.([]byte)...)
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCache) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.delErr != nil {
		return redis.NewIntResult(0, f.delErr)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.entries[k]; ok {
			delete(f.entries, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

// prefixSealer binds a snapshot to its user without encrypting it.
type prefixSealer struct{}

func (prefixSealer) Seal(plaintext, aad []byte) ([]byte, error) {
	return append(append(append([]byte(nil), aad...), '|'), plaintext...), nil
}

func (prefixSealer) Open(ciphertext, aad []byte) ([]byte, error) {
	prefix := append(append([]byte(nil), aad...), '|')
	if !bytes.HasPrefix(ciphertext, prefix) {
		return nil, errors.New("authentication failed")
	}
	return ciphertext[len(prefix):], nil
}

func newCachedRepo() (*cachedSnapshotRepo, *fakeCache, *mockSnapshotRepo) {
	cache := newFakeCache()
	durable := newMockSnapshotRepo()
	repo := NewCachedSnapshotRepo(cache, durable, prefixSealer{}, time.Hour).(*cachedSnapshotRepo)
	return repo, cache, durable
}

func TestCachedSnapshotRepo_Hit(t *testing.T) {
	repo, cache, _ := newCachedRepo()
	ctx := context.Background()
	cache.entries[snapshotKey(ctx, "user-1")] = []byte("user-1|cached")

	got, err := repo.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "cached" {
		t.Errorf("expected cached snapshot, got %q", got)
	}
}

func TestCachedSnapshotRepo_MissRefills(t *testing.T) {
	repo, cache, durable := newCachedRepo()
	ctx := context.Background()
	durable.snapshots["user-1"] = []byte("durable")

	got, err := repo.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "durable" {
		t.Errorf("expected durable snapshot, got %q", got)
	}
	if string(cache.entries[snapshotKey(ctx, "user-1")]) != "user-1|durable" {
		t.Errorf("expected cache refilled, got %q", cache.entries[snapshotKey(ctx, "user-1")])
	}
}

func TestCachedSnapshotRepo_UnreadableEntryFallsBack(t *testing.T) {
	repo, cache, durable := newCachedRepo()
	ctx := context.Background()
	cache.entries[snapshotKey(ctx, "user-1")] = []byte("user-2|other")
	durable.snapshots["user-1"] = []byte("durable")

	got, err := repo.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "durable" {
		t.Errorf("expected durable snapshot, got %q", got)
	}
}

func TestCachedSnapshotRepo_FailedSetEvictsStaleEntry(t *testing.T) {
	repo, cache, durable := newCachedRepo()
	ctx := context.Background()
	if err := repo.Put(ctx, "user-1", "sess-1", []byte("old")); err != nil {
		t.Fatalf("put: %v", err)
	}

	cache.setErr = errors.New("OOM command not allowed")
	if err := repo.Put(ctx, "user-1", "sess-1", []byte("new")); err != nil {
		t.Fatalf("put with failing cache write: %v", err)
	}
	if _, ok := cache.entries[snapshotKey(ctx, "user-1")]; ok {
		t.Error("expected stale cache entry evicted")
	}
	if string(durable.snapshots["user-1"]) != "new" {
		t.Errorf("expected durable copy updated, got %q", durable.snapshots["user-1"])
	}

	got, err := repo.Get(ctx, "user-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "new" {
		t.Errorf("expected latest snapshot, got %q", got)
	}
}

func TestCachedSnapshotRepo_FailedEviction(t *testing.T) {
	repo, cache, durable := newCachedRepo()
	ctx := context.Background()
	if err := repo.Put(ctx, "user-1", "sess-1", []byte("old")); err != nil {
		t.Fatalf("put: %v", err)
	}
	cache.delErr = errors.New("connection refused")

	if err := repo.Put(ctx, "user-1", "sess-1", []byte("new")); err == nil {
		t.Error("expected put to fail when the cached entry cannot be evicted")
	}
	if string(durable.snapshots["user-1"]) != "old" {
		t.Errorf("expected durable copy untouched, got %q", durable.snapshots["user-1"])
	}

	if err := repo.Delete(ctx, "user-1"); err == nil {
		t.Error("expected delete to report the failed eviction")
	}
	if _, ok := durable.snapshots["user-1"]; ok {
		t.Error("expected durable copy removed")
	}
}

func TestSnapshotKey_ScopedByTenant(t *testing.T) {
	ctx := context.Background()
	acme := context.WithValue(ctx, db.TenantIDKey, "acme")

	if snapshotKey(ctx, "user-1") != snapshotKeyPrefix+"default:user-1" {
		t.Errorf("unexpected default key %q", snapshotKey(ctx, "user-1"))
	}
	if snapshotKey(acme, "user-1") == snapshotKey(ctx, "user-1") {
		t.Error("expected tenant to change the key")
	}
}
