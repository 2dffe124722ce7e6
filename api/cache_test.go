package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*ReportCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewReportCache(client, time.Minute), mr
}

func TestReportCache_FetchHitAfterMiss(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	var builds int32
	loader := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&builds, 1)
		return []byte(`{"ok":true}`), nil
	}

	key, err := cache.BuildKey(ctx, "cashbook", "to=2024-04-30")
	require.NoError(t, err)

	body, hit, err := cache.Fetch(ctx, key, loader)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, `{"ok":true}`, string(body))

	body, hit, err = cache.Fetch(ctx, key, loader)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
}

func TestReportCache_ErrorsAreNotCached(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	key, err := cache.BuildKey(ctx, "x")
	require.NoError(t, err)

	_, _, err = cache.Fetch(ctx, key, func(context.Context) ([]byte, error) {
		return nil, errors.New("boom")
	})
	require.Error(t, err)
	assert.False(t, mr.Exists(key))
}

func TestReportCache_DisconnectDoesNotFailWaiters(t *testing.T) {
	// GIVEN: A slow build started by a caller who then goes away
	cache, _ := newTestCache(t)
	key, err := cache.BuildKey(context.Background(), "cashbook")
	require.NoError(t, err)

	var builds int32
	started := make(chan struct{})
	release := make(chan struct{})
	loader := func(ctx context.Context) ([]byte, error) {
		if atomic.AddInt32(&builds, 1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return []byte("report"), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	type result struct {
		body []byte
		err  error
	}
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan result, 1)
	go func() {
		body, _, err := cache.Fetch(firstCtx, key, loader)
		firstDone <- result{body, err}
	}()
	<-started

	secondDone := make(chan result, 1)
	go func() {
		body, _, err := cache.Fetch(context.Background(), key, loader)
		secondDone <- result{body, err}
	}()
	time.Sleep(50 * time.Millisecond)

	// WHEN: The first caller disconnects before the build finishes
	cancelFirst()
	first := <-firstDone
	assert.ErrorIs(t, first.err, context.Canceled)
	close(release)

	// THEN: The second caller still gets the report from the same build
	second := <-secondDone
	require.NoError(t, second.err)
	assert.Equal(t, "report", string(second.body))
	assert.Equal(t, int32(1), atomic.LoadInt32(&builds))
}

func TestReportCache_BumpChangesKeys(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	before, err := cache.BuildKey(ctx, "cashbook")
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))
	after, err := cache.BuildKey(ctx, "cashbook")
	require.NoError(t, err)

	assert.NotEqual(t, before, after)
	assert.True(t, strings.HasSuffix(after, ":2"))
}

func TestReportCache_NilIsDisabled(t *testing.T) {
	var cache *ReportCache
	ctx := context.Background()

	assert.False(t, cache.Enabled())
	assert.NoError(t, cache.Bump(ctx))

	key, err := cache.BuildKey(ctx, "a", "b")
	require.NoError(t, err)
	body, hit, err := cache.Fetch(ctx, key, func(context.Context) ([]byte, error) {
		return []byte("built"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "built", string(body))
}

func TestReportCache_RedisDownStillComputes(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()
	key, err := cache.BuildKey(ctx, "cashbook")
	require.NoError(t, err)
	mr.Close()

	body, hit, err := cache.Fetch(ctx, key, func(context.Context) ([]byte, error) {
		return []byte("fresh"), nil
	})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", string(body))
}

func TestHandler_CachedReportsInvalidatedByAppend(t *testing.T) {
	// GIVEN: A handler with a Redis cache and metrics
	h, router := newTestHandler(t, seededMemory())
	h.Cache, _ = newTestCache(t)
	h.Metrics = NewMetrics()

	// WHEN: The same report is requested twice
	first := decodeReport(t, get(t, router, "/api/cashbook?to=2024-04-30"))
	second := decodeReport(t, get(t, router, "/api/cashbook?to=2024-04-30"))

	// THEN: The second comes from the cache
	assert.Equal(t, first, second)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Metrics.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.Metrics.cacheLookups.WithLabelValues("hit")))

	// WHEN: A record is appended
	req := httptest.NewRequest(http.MethodPost, "/api/books/cashbook/records",
		strings.NewReader(`[{"DATE":"2024-04-10","CR":"50","SERIES":"A"}]`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	// THEN: The next report is rebuilt with the new record
	third := decodeReport(t, get(t, router, "/api/cashbook?to=2024-04-30"))
	assert.Equal(t, 650.0, third.Totals.Closing)
	assert.Equal(t, 2.0, testutil.ToFloat64(h.Metrics.cacheLookups.WithLabelValues("miss")))
}
