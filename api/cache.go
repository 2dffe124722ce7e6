/*
cache.go - Versioned report cache

PURPOSE:
  Reports are pure functions of (definition, query, book contents), so a
  rendered report body can be reused until a book changes. Keys carry a
  global version; bumping the version orphans every cached report at once
  and Redis expires the leftovers by TTL.

BEHAVIOR:
  - A nil cache, or one without a Redis client, always computes
  - Identical concurrent builds are collapsed into one (singleflight)
  - Redis failures degrade to computing; they never fail a request
  - Errors are never cached

SEE ALSO:
  - watcher.go: Bumps the version when a book file changes
  - handlers.go: Bumps the version after appends
*/
package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const (
	cacheVersionKey = "ledger:version"
	bumpChannel     = "ledger.bump"
)

// ReportCache wraps Redis based caching with versioning controls.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewReportCache instantiates the cache. client may be nil.
func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

// Enabled reports whether results are stored.
func (c *ReportCache) Enabled() bool {
	return c != nil && c.client != nil
}

// Version returns the current cache version, initialising when missing.
func (c *ReportCache) Version(ctx context.Context) (int64, error) {
	if !c.Enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey hashes parts into a fixed-length key stamped with the version.
func (c *ReportCache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	digest := hex.EncodeToString(sum[:])
	if !c.Enabled() {
		return "ledger:report:" + digest, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ledger:report:%s:%d", digest, ver), nil
}

// Fetch returns the cached body for key or builds it with loader. hit is
// true when the body came from Redis.
func (c *ReportCache) Fetch(ctx context.Context, key string, loader func(context.Context) ([]byte, error)) (body []byte, hit bool, err error) {
	if c.Enabled() {
		if payload, err := c.client.Get(ctx, key).Bytes(); err == nil {
			return payload, true, nil
		}
	}

	build := func(ctx context.Context) ([]byte, error) {
		payload, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if c.Enabled() {
			_ = c.client.Set(ctx, key, payload, c.ttl).Err()
		}
		return payload, nil
	}

	if c == nil {
		payload, err := build(ctx)
		if err != nil {
			return nil, false, err
		}
		return payload, false, nil
	}

	// The shared build outlives any one caller; it keeps the caller's
	// deadline but not its cancellation.
	resultChan := c.group.DoChan(key, func() (interface{}, error) {
		buildCtx := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			buildCtx, cancel = context.WithDeadline(buildCtx, deadline)
			defer cancel()
		}
		return build(buildCtx)
	})
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, false, res.Err
		}
		return res.Val.([]byte), false, nil
	}
}

// Bump invalidates every cached report by incrementing the version and
// publishing it to other instances.
func (c *ReportCache) Bump(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// ListenForInvalidation follows version bumps published by other instances
// until ctx is done.
func (c *ReportCache) ListenForInvalidation(ctx context.Context) {
	if !c.Enabled() {
		return
	}
	pubsub := c.client.Subscribe(ctx, bumpChannel)
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				ver, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					continue
				}
				current, err := c.Version(ctx)
				if err == nil && ver > current {
					_ = c.client.Set(ctx, cacheVersionKey, ver, 0).Err()
				}
			}
		}
	}()
}
