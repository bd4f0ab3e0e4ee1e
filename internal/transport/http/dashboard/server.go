package dashboard

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"backviz/internal/backtest"
	"backviz/internal/chart"
	"backviz/internal/gateway/backend"
	"backviz/internal/market"

	"github.com/gin-gonic/gin"
)

// BacktestRunner is the engine-facing slice of the backend client.
type BacktestRunner interface {
	RunBacktest(ctx context.Context, req backend.BacktestRequest) ([]byte, error)
}

// Server exposes the dashboard API: candle retrieval, backtest runs, derived
// chart series, hover events and rendered chart pages.
type Server struct {
	addr            string
	coordinator     *market.Coordinator
	engine          BacktestRunner
	renderer        *chart.Renderer
	feed            *chart.HoverFeed
	tooltip         *chart.Controller
	defaultExchange string
	router          *gin.Engine

	mu      sync.RWMutex
	session *session
}

// session is the currently visualized backtest: its summary plus every
// series derived from it.
type session struct {
	Symbol  string              `json:"symbol"`
	Summary backtest.Summary    `json:"summary"`
	Stats   backtest.Stats      `json:"stats"`
	Candles []market.Candle     `json:"candles"`
	Volume  []chart.VolumePoint `json:"volume"`
	Markers []chart.Marker      `json:"markers"`
	Equity  []chart.EquityPoint `json:"equity"`

	interval string
}

type ServerConfig struct {
	Addr            string
	Coordinator     *market.Coordinator
	Engine          BacktestRunner
	Renderer        *chart.Renderer
	Feed            *chart.HoverFeed
	Tooltip         *chart.Controller
	DefaultExchange string
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Coordinator == nil {
		return nil, errors.New("coordinator is required")
	}
	if cfg.Addr == "" {
		cfg.Addr = ":9980"
	}
	if cfg.Feed == nil {
		cfg.Feed = chart.NewHoverFeed()
	}
	if cfg.Tooltip == nil {
		cfg.Tooltip = chart.NewController()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		addr:            cfg.Addr,
		coordinator:     cfg.Coordinator,
		engine:          cfg.Engine,
		renderer:        cfg.Renderer,
		feed:            cfg.Feed,
		tooltip:         cfg.Tooltip,
		defaultExchange: cfg.DefaultExchange,
		router:          router,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	api := s.router.Group("/api")
	api.POST("/candles", s.handleCandles)
	api.POST("/backtest", s.handleBacktest)
	api.GET("/series", s.handleSeries)
	api.POST("/hover", s.handleHover)
	api.GET("/tooltip", s.handleTooltip)
	api.GET("/chart", s.handleChartHTML)
	api.GET("/chart.png", s.handleChartPNG)
	api.GET("/cache", s.handleCacheInfo)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) currentSession() *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *Server) setSession(sess *session) {
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	s.tooltip.SetPositions(sess.Summary.Positions)
}

// Start runs the HTTP server, blocking until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
