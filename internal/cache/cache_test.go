package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFingerprintIsStableUnderParamPermutation(t *testing.T) {
	p1 := map[string]any{"temperature": 0.6, "max_tokens": 100}
	p2 := map[string]any{"max_tokens": 100, "temperature": 0.6}

	require.Equal(t, Fingerprint("What is AI?", "gemma:2b", p1), Fingerprint("What is AI?", "gemma:2b", p2))
}

func TestFingerprintDiffersOnPromptOrModel(t *testing.T) {
	base := Fingerprint("hello", "model-a", nil)
	require.NotEqual(t, base, Fingerprint("world", "model-a", nil))
	require.NotEqual(t, base, Fingerprint("hello", "model-b", nil))
}

func TestCacheMemoryRoundTrip(t *testing.T) {
	c := New(nil, 10, time.Hour, nil, nil)
	fp := Fingerprint("hi", "m", nil)

	c.Put(context.Background(), fp, "hi", "m", nil, "hello there")
	v, ok := c.Get(context.Background(), fp)
	require.True(t, ok)
	require.Equal(t, "hello there", v.Response)

	c.Put(context.Background(), fp, "hi", "m", nil, "updated")
	v, ok = c.Get(context.Background(), fp)
	require.True(t, ok)
	require.Equal(t, "updated", v.Response)
}

func TestCacheMissAfterTTLExpires(t *testing.T) {
	c := New(nil, 10, 10*time.Millisecond, nil, nil)
	fp := Fingerprint("hi", "m", nil)
	c.Put(context.Background(), fp, "hi", "m", nil, "hello")

	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get(context.Background(), fp)
	require.False(t, ok)
}

func TestCacheEvictsLRUAtCapacityPlusOne(t *testing.T) {
	c := New(nil, 2, time.Hour, nil, nil)
	ctx := context.Background()

	c.Put(ctx, "k1", "p1", "m", nil, "r1")
	c.Put(ctx, "k2", "p2", "m", nil, "r2")
	c.Put(ctx, "k3", "p3", "m", nil, "r3") // evicts k1, the least recently used

	_, ok := c.Get(ctx, "k1")
	require.False(t, ok)
	_, ok = c.Get(ctx, "k2")
	require.True(t, ok)
	_, ok = c.Get(ctx, "k3")
	require.True(t, ok)
}

type memBlobStore struct {
	data map[string][]byte
}

func newMemBlobStore() *memBlobStore { return &memBlobStore{data: make(map[string][]byte)} }

func (m *memBlobStore) Read(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}
func (m *memBlobStore) Write(ctx context.Context, key string, data []byte) error {
	m.data[key] = data
	return nil
}
func (m *memBlobStore) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}
func (m *memBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for k := range m.data {
		out = append(out, k)
	}
	return out, nil
}

func TestCachePromotesDiskHitToMemory(t *testing.T) {
	store := newMemBlobStore()
	c := New(store, 10, time.Hour, nil, nil)
	fp := Fingerprint("hi", "m", nil)

	c.Put(context.Background(), fp, "hi", "m", nil, "hello")
	require.Eventually(t, func() bool {
		_, found, _ := store.Read(context.Background(), blobKeyPrefix+fp)
		return found
	}, time.Second, 5*time.Millisecond)

	c.mem.clear() // force a memory miss so the next Get must come from disk
	v, ok := c.Get(context.Background(), fp)
	require.True(t, ok)
	require.Equal(t, "hello", v.Response)

	stats := c.Stats()
	require.Equal(t, int64(1), stats.DiskHits)
}

func TestCacheCorruptDiskEntryTreatedAsMiss(t *testing.T) {
	store := newMemBlobStore()
	store.data[blobKeyPrefix+"bad"] = []byte("not json")

	c := New(store, 10, time.Hour, nil, nil)
	_, ok := c.Get(context.Background(), "bad")
	require.False(t, ok)
	_, found, _ := store.Read(context.Background(), blobKeyPrefix+"bad")
	require.False(t, found, "corrupt entry must be deleted")
}

func TestCacheStartSweepReclaimsExpiredEntries(t *testing.T) {
	c := New(nil, 10, 10*time.Millisecond, nil, nil)
	ctx := context.Background()
	c.Put(ctx, "k1", "p1", "m", nil, "r1")

	c.StartSweep(10 * time.Millisecond)
	defer c.StopSweep()

	require.Eventually(t, func() bool {
		return c.mem.size() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestStatsHitRate(t *testing.T) {
	s := Stats{MemoryHits: 3, DiskHits: 1, Misses: 1}
	require.InDelta(t, 0.8, s.HitRate(), 0.0001)

	require.Zero(t, Stats{}.HitRate())
}

func TestCacheClearResetsStats(t *testing.T) {
	c := New(nil, 10, time.Hour, nil, nil)
	c.Put(context.Background(), "k", "p", "m", nil, "r")
	_, _ = c.Get(context.Background(), "k")
	_, _ = c.Get(context.Background(), "missing")

	c.Clear()
	stats := c.Stats()
	require.Zero(t, stats.MemoryHits)
	require.Zero(t, stats.Misses)
	require.Zero(t, stats.MemorySize)
}
