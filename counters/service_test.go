package counters

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plumehq/plume/internal/cache"
)

// stubSource answers fixed counts and records how often it was asked.
type stubSource struct {
	mu     sync.Mutex
	counts map[Key]int64
	calls  int
}

func (s *stubSource) Count(ctx context.Context, key Key) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.counts[key], nil
}

func newTestService(t *testing.T, counts map[Key]int64) (*Service, *stubSource) {
	t.Helper()
	if counts == nil {
		counts = map[Key]int64{}
	}
	source := &stubSource{counts: counts}
	return NewService(cache.NewMemoryCache(cache.DefaultCacheConfig()), source), source
}

func TestService_CountSeedsOnMiss(t *testing.T) {
	svc, source := newTestService(t, map[Key]int64{GlobalKey: 7})
	ctx := context.Background()

	count, err := svc.Count(ctx, GlobalKey)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.Equal(t, 1, source.calls)

	// Second read hits the cache, no re-seed.
	count, err = svc.Count(ctx, GlobalKey)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.Equal(t, 1, source.calls)
}

func TestService_ApplySeedsThenIncrements(t *testing.T) {
	svc, _ := newTestService(t, map[Key]int64{UserKey(7): 3})
	ctx := context.Background()

	require.NoError(t, svc.Apply(ctx, Delta{Key: UserKey(7), Amount: 1}))

	count, err := svc.Count(ctx, UserKey(7))
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	require.NoError(t, svc.Apply(ctx, Delta{Key: UserKey(7), Amount: -2}))
	count, err = svc.Count(ctx, UserKey(7))
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestService_Reseed(t *testing.T) {
	source := &stubSource{counts: map[Key]int64{GlobalKey: 10}}
	svc := NewService(cache.NewMemoryCache(cache.DefaultCacheConfig()), source)
	ctx := context.Background()

	require.NoError(t, svc.Apply(ctx, Delta{Key: GlobalKey, Amount: 5}))

	// Drift the canonical value; Reseed must overwrite the cached one.
	source.mu.Lock()
	source.counts[GlobalKey] = 42
	source.mu.Unlock()

	count, err := svc.Reseed(ctx, GlobalKey)
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)

	count, err = svc.Count(ctx, GlobalKey)
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
}

func TestService_ConcurrentDeltasConverge(t *testing.T) {
	svc, _ := newTestService(t, map[Key]int64{TagKey("landscape"): 100})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = svc.Apply(ctx, Delta{Key: TagKey("landscape"), Amount: 1})
		}()
		go func() {
			defer wg.Done()
			_ = svc.Apply(ctx, Delta{Key: TagKey("landscape"), Amount: -1})
		}()
	}
	wg.Wait()

	count, err := svc.Count(ctx, TagKey("landscape"))
	require.NoError(t, err)
	assert.Equal(t, int64(100), count)
}

func TestSeedQuery_KeyClassification(t *testing.T) {
	q, args := seedQuery(GlobalKey)
	assert.NotContains(t, q, "JOIN")
	assert.Len(t, args, 1)

	q, args = seedQuery(UserKey(7))
	assert.Contains(t, q, "uploader_user_id")
	assert.Equal(t, int64(7), args[1])

	q, args = seedQuery(RatingKey("mature"))
	assert.Contains(t, q, "ratings")
	assert.Equal(t, "mature", args[1])

	// Anything that is not "_", "@..." or a rating name is a tag, even if
	// it looks unusual.
	q, args = seedQuery(TagKey("sunset"))
	assert.Contains(t, q, "tag_post")
	assert.Equal(t, "sunset", args[1])
}

func TestPool_DrainsOnShutdown(t *testing.T) {
	svc, _ := newTestService(t, nil)
	pool := NewPool(svc, 2, 8)

	for i := 0; i < 20; i++ {
		pool.Enqueue(Delta{Key: GlobalKey, Amount: 1})
	}

	require.NoError(t, pool.Shutdown(context.Background()))

	count, err := svc.Count(context.Background(), GlobalKey)
	require.NoError(t, err)
	assert.Equal(t, int64(20), count)
}

func TestPool_EnqueueAfterShutdownIsDropped(t *testing.T) {
	svc, _ := newTestService(t, nil)
	pool := NewPool(svc, 1, 4)
	require.NoError(t, pool.Shutdown(context.Background()))

	// Must not panic on the closed channel.
	pool.Enqueue(Delta{Key: GlobalKey, Amount: 1})
}

func TestPool_EnqueueRacingShutdownDoesNotPanic(t *testing.T) {
	for i := 0; i < 50; i++ {
		svc, _ := newTestService(t, nil)
		pool := NewPool(svc, 2, 1)

		var wg sync.WaitGroup
		for j := 0; j < 8; j++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pool.Enqueue(Delta{Key: GlobalKey, Amount: 1})
			}()
		}
		require.NoError(t, pool.Shutdown(context.Background()))
		wg.Wait()
	}
}
