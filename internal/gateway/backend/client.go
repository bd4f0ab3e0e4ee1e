package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"backviz/internal/config"
	"backviz/internal/market"
)

// Client talks to the backtest engine: batched candle retrieval and backtest
// runs. Implements market.CandleSource for the candle side.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

func NewClient(cfg config.BackendConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, fmt.Errorf("backend.base_url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing backend.base_url: %w", err)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) Name() string { return "backend" }

// FetchBatch posts one /candles request carrying the full symbol list and
// returns the per-symbol series.
func (c *Client) FetchBatch(ctx context.Context, req market.BatchRequest) (map[string][]market.Candle, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.post(ctx, "/candles", body)
	if err != nil {
		return nil, err
	}
	var series map[string][]market.Candle
	if err := json.Unmarshal(resp, &series); err != nil {
		return nil, fmt.Errorf("decoding candles response: %w", err)
	}
	for symbol, candles := range series {
		if err := market.ValidateSeries(candles); err != nil {
			return nil, fmt.Errorf("series for %s: %w", symbol, err)
		}
	}
	return series, nil
}

// BacktestRequest addresses one engine run. Params carries the
// strategy/risk/training parameter body untouched; its shape belongs to the
// engine, not to us.
type BacktestRequest struct {
	Strategy   string          `json:"strategy"`
	StopLoss   float64         `json:"stop_loss"`
	TakeProfit float64         `json:"take_profit"`
	Params     json.RawMessage `json:"params"`
}

// RunBacktest posts /backtest/{strategy}/{stopLoss}/{takeProfit} and returns
// the raw result payload for backtest.ParseResult to pick apart.
func (c *Client) RunBacktest(ctx context.Context, req BacktestRequest) ([]byte, error) {
	if strings.TrimSpace(req.Strategy) == "" {
		return nil, fmt.Errorf("strategy is required")
	}
	path := fmt.Sprintf("/backtest/%s/%s/%s",
		url.PathEscape(req.Strategy),
		strconv.FormatFloat(req.StopLoss, 'f', -1, 64),
		strconv.FormatFloat(req.TakeProfit, 'f', -1, 64),
	)
	params := req.Params
	if len(params) == 0 {
		params = json.RawMessage(`{}`)
	}
	resp, err := c.post(ctx, path, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", market.ErrFetchFailed, err)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	target := *c.baseURL
	target.Path = strings.TrimRight(target.Path, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, truncate(data, 200))
	}
	return data, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
