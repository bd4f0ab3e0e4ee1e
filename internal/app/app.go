package app

import (
	"context"
	"fmt"

	"backviz/internal/chart"
	"backviz/internal/config"
	"backviz/internal/gateway/backend"
	"backviz/internal/gateway/binance"
	"backviz/internal/logger"
	"backviz/internal/market"
	"backviz/internal/transport/http/dashboard"
)

// App wires the dashboard together: candle source, coordinator, derived
// chart machinery and the HTTP surface.
type App struct {
	cfg     *config.Config
	server  *dashboard.Server
	feed    *chart.HoverFeed
	tooltip *chart.Controller
}

func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	var (
		source market.CandleSource
		engine dashboard.BacktestRunner
	)
	if cfg.Backend.BaseURL != "" {
		client, err := backend.NewClient(cfg.Backend)
		if err != nil {
			return nil, fmt.Errorf("building backend client: %w", err)
		}
		source = client
		engine = client
	} else {
		source = binance.New(cfg.Binance)
	}

	var opts []market.CoordinatorOption
	if cfg.Market.CoalesceFetches {
		opts = append(opts, market.WithCoalescing())
	}
	coordinator := market.NewCoordinator(market.NewSeriesCache(), source, opts...)

	feed := chart.NewHoverFeed()
	tooltip := chart.NewController()
	server, err := dashboard.NewServer(dashboard.ServerConfig{
		Addr:            cfg.HTTP.Addr,
		Coordinator:     coordinator,
		Engine:          engine,
		Renderer:        chart.NewRenderer(cfg.Chart.WidthPx, cfg.Chart.EMAPeriod),
		Feed:            feed,
		Tooltip:         tooltip,
		DefaultExchange: cfg.Market.DefaultExchange,
	})
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		server:  server,
		feed:    feed,
		tooltip: tooltip,
	}, nil
}

// Run binds the tooltip controller to the hover feed for the server's
// lifetime and blocks on the HTTP server.
func (a *App) Run(ctx context.Context) error {
	a.tooltip.Bind(a.feed)
	defer a.tooltip.Unbind()

	logger.Infof("[app] dashboard listening on %s (candles via %s)",
		a.cfg.HTTP.Addr, sourceLabel(a.cfg))
	return a.server.Start(ctx)
}

func sourceLabel(cfg *config.Config) string {
	if cfg.Backend.BaseURL != "" {
		return "backend " + cfg.Backend.BaseURL
	}
	return "binance"
}
