package market

import (
	"context"
	"errors"
)

// ErrFetchFailed marks a batched candle fetch that returned an error or a
// non-success response. The coordinator never commits cache entries when a
// fetch fails.
var ErrFetchFailed = errors.New("candle fetch failed")

// BatchRequest describes one batched candle retrieval: the same exchange,
// interval and time range across a set of market symbols.
type BatchRequest struct {
	Exchange string   `json:"exchange"`
	Interval string   `json:"interval"`
	Start    int64    `json:"start"` // Unix ms, inclusive
	End      int64    `json:"end"`   // Unix ms, exclusive
	Symbols  []string `json:"symbols"`
}

// WithSymbols returns a copy of the request narrowed to the given symbols.
func (r BatchRequest) WithSymbols(symbols []string) BatchRequest {
	out := r
	out.Symbols = symbols
	return out
}

// CandleSource fetches candle series for a batch of symbols in one call.
type CandleSource interface {
	FetchBatch(ctx context.Context, req BatchRequest) (map[string][]Candle, error)
	Name() string
}
