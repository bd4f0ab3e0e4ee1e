package market

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"backviz/internal/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Coordinator deduplicates candle retrieval against a shared SeriesCache.
// Each call partitions the requested symbols into cached and missing, issues
// at most one batched fetch for the missing subset and commits the fresh
// series to the cache before returning the merged result.
//
// Concurrent calls that miss on the same key may each issue their own fetch;
// the cache's first-write-wins semantics keep the outcome consistent. The
// coalescing option collapses such duplicate in-flight fetches instead.
type Coordinator struct {
	cache    *SeriesCache
	source   CandleSource
	coalesce bool
	flight   singleflight.Group
}

type CoordinatorOption func(*Coordinator)

// WithCoalescing collapses concurrent identical fetches for the same missing
// key set into a single network call shared by all waiters.
func WithCoalescing() CoordinatorOption {
	return func(c *Coordinator) { c.coalesce = true }
}

func NewCoordinator(cache *SeriesCache, source CandleSource, opts ...CoordinatorOption) *Coordinator {
	if cache == nil {
		cache = NewSeriesCache()
	}
	c := &Coordinator{cache: cache, source: source}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Cache exposes the underlying store for diagnostics endpoints and tests.
func (c *Coordinator) Cache() *SeriesCache { return c.cache }

// FetchSeries returns one candle series per requested symbol. Cache hits are
// served directly; the remainder comes from a single batched source fetch.
// A cancelled context aborts the call without committing partial results.
func (c *Coordinator) FetchSeries(ctx context.Context, req BatchRequest) (map[string][]Candle, error) {
	if len(req.Symbols) == 0 {
		return map[string][]Candle{}, nil
	}
	callID := uuid.NewString()[:8]

	result := make(map[string][]Candle, len(req.Symbols))
	var missing []string
	for _, symbol := range req.Symbols {
		key := CacheKey(req.Exchange, req.Interval, symbol, req.Start, req.End)
		if series, ok := c.cache.Get(key); ok {
			result[symbol] = series
			continue
		}
		missing = append(missing, symbol)
	}
	if len(missing) == 0 {
		logger.Debugf("[market] %s all %d symbols served from cache", callID, len(req.Symbols))
		return result, nil
	}

	logger.Debugf("[market] %s fetching %d of %d symbols via %s",
		callID, len(missing), len(req.Symbols), c.source.Name())
	fetched, err := c.fetchMissing(ctx, req.WithSymbols(missing))
	if err != nil {
		if ctxErr(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFetchFailed, c.source.Name(), err)
	}
	// The source may have returned data even though the caller is gone;
	// a superseded call must not commit anything.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for symbol, series := range fetched {
		key := CacheKey(req.Exchange, req.Interval, symbol, req.Start, req.End)
		c.cache.Put(key, series)
		result[symbol] = series
	}
	return result, nil
}

func (c *Coordinator) fetchMissing(ctx context.Context, req BatchRequest) (map[string][]Candle, error) {
	if !c.coalesce {
		return c.source.FetchBatch(ctx, req)
	}
	keys := make([]string, len(req.Symbols))
	for i, symbol := range req.Symbols {
		keys[i] = CacheKey(req.Exchange, req.Interval, symbol, req.Start, req.End)
	}
	sort.Strings(keys)
	v, err, shared := c.flight.Do(strings.Join(keys, "\n"), func() (any, error) {
		return c.source.FetchBatch(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logger.Debugf("[market] coalesced duplicate in-flight fetch for %d symbols", len(req.Symbols))
	}
	return v.(map[string][]Candle), nil
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
