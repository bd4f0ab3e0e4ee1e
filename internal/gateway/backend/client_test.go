package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"backviz/internal/config"
	"backviz/internal/market"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(config.BackendConfig{BaseURL: srv.URL})
	require.NoError(t, err)
	return client
}

func TestFetchBatch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/candles", r.URL.Path)

		var req market.BatchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"eth-btc", "ltc-btc"}, req.Symbols)

		out := map[string][]market.Candle{
			"eth-btc": {{Time: 1, Close: 2}},
			"ltc-btc": {{Time: 1, Close: 3}, {Time: 2, Close: 4}},
		}
		json.NewEncoder(w).Encode(out)
	})

	series, err := client.FetchBatch(context.Background(), market.BatchRequest{
		Exchange: "binance",
		Interval: "1h",
		Start:    0,
		End:      10,
		Symbols:  []string{"eth-btc", "ltc-btc"},
	})
	require.NoError(t, err)
	assert.Len(t, series, 2)
	assert.Len(t, series["ltc-btc"], 2)
}

func TestFetchBatch_RejectsUnsortedSeries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]market.Candle{
			"eth-btc": {{Time: 5}, {Time: 5}},
		})
	})
	_, err := client.FetchBatch(context.Background(), market.BatchRequest{Symbols: []string{"eth-btc"}})
	assert.Error(t, err)
}

func TestRunBacktest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/backtest/triple-ma/0.1/0.25", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "macd", body["tactic"])
		w.Write([]byte(`{"symbol_stats": {}}`))
	})

	raw, err := client.RunBacktest(context.Background(), BacktestRequest{
		Strategy:   "triple-ma",
		StopLoss:   0.1,
		TakeProfit: 0.25,
		Params:     json.RawMessage(`{"tactic": "macd"}`),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"symbol_stats": {}}`, string(raw))
}

func TestRunBacktest_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "engine exploded", http.StatusInternalServerError)
	})
	_, err := client.RunBacktest(context.Background(), BacktestRequest{Strategy: "x"})
	assert.ErrorIs(t, err, market.ErrFetchFailed)
}
