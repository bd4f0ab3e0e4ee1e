package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu      sync.Mutex
	calls   [][]string
	data    map[string][]Candle
	err     error
	started chan struct{}
	release chan struct{}
	onFetch func()
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) FetchBatch(ctx context.Context, req BatchRequest) (map[string][]Candle, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{}, req.Symbols...))
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string][]Candle, len(req.Symbols))
	for _, symbol := range req.Symbols {
		out[symbol] = f.data[symbol]
	}
	return out, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testRequest(symbols ...string) BatchRequest {
	return BatchRequest{
		Exchange: "binance",
		Interval: "1h",
		Start:    1_600_000_000_000,
		End:      1_600_100_000_000,
		Symbols:  symbols,
	}
}

func TestCoordinator_CacheIdempotence(t *testing.T) {
	source := &fakeSource{data: map[string][]Candle{
		"eth-btc": {{Time: 1, Close: 2, Volume: 3}},
	}}
	coord := NewCoordinator(NewSeriesCache(), source)

	first, err := coord.FetchSeries(context.Background(), testRequest("eth-btc"))
	require.NoError(t, err)
	second, err := coord.FetchSeries(context.Background(), testRequest("eth-btc"))
	require.NoError(t, err)

	assert.Equal(t, 1, source.callCount())
	assert.Equal(t, first, second)
}

func TestCoordinator_PartialHitMerge(t *testing.T) {
	cached := []Candle{{Time: 10, Close: 5}}
	source := &fakeSource{data: map[string][]Candle{
		"ltc-btc": {{Time: 10, Close: 7}},
	}}
	coord := NewCoordinator(NewSeriesCache(), source)
	req := testRequest("eth-btc", "ltc-btc")
	coord.Cache().Put(CacheKey(req.Exchange, req.Interval, "eth-btc", req.Start, req.End), cached)

	result, err := coord.FetchSeries(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, 1, source.callCount())
	assert.Equal(t, []string{"ltc-btc"}, source.calls[0])
	assert.Equal(t, cached, result["eth-btc"])
	assert.Equal(t, source.data["ltc-btc"], result["ltc-btc"])
	assert.Equal(t, 2, coord.Cache().Len())
}

func TestCoordinator_AllCachedSkipsFetch(t *testing.T) {
	source := &fakeSource{}
	coord := NewCoordinator(NewSeriesCache(), source)
	req := testRequest("eth-btc")
	coord.Cache().Put(CacheKey(req.Exchange, req.Interval, "eth-btc", req.Start, req.End), []Candle{{Time: 1}})

	result, err := coord.FetchSeries(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, source.callCount())
	assert.Len(t, result, 1)
}

func TestCoordinator_FetchFailureWritesNothing(t *testing.T) {
	source := &fakeSource{err: errors.New("boom")}
	coord := NewCoordinator(NewSeriesCache(), source)

	result, err := coord.FetchSeries(context.Background(), testRequest("eth-btc"))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, 0, coord.Cache().Len())
}

func TestCoordinator_CancellationSuppressesWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	source := &fakeSource{
		data:    map[string][]Candle{"eth-btc": {{Time: 1}}},
		onFetch: cancel,
	}
	coord := NewCoordinator(NewSeriesCache(), source)

	result, err := coord.FetchSeries(ctx, testRequest("eth-btc"))
	assert.Nil(t, result)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, 0, coord.Cache().Len())
}

func TestCoordinator_CoalescingSharesOneFetch(t *testing.T) {
	source := &fakeSource{
		data:    map[string][]Candle{"eth-btc": {{Time: 1}}},
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	coord := NewCoordinator(NewSeriesCache(), source, WithCoalescing())

	var wg sync.WaitGroup
	results := make([]map[string][]Candle, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := coord.FetchSeries(context.Background(), testRequest("eth-btc"))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}

	<-source.started
	// Give the second caller time to join the in-flight call.
	time.Sleep(100 * time.Millisecond)
	close(source.release)
	wg.Wait()

	assert.Equal(t, 1, source.callCount())
	assert.Equal(t, results[0], results[1])
}
