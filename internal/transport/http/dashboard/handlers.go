package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"backviz/internal/backtest"
	"backviz/internal/chart"
	"backviz/internal/gateway/backend"
	"backviz/internal/logger"
	"backviz/internal/market"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleCandles(c *gin.Context) {
	var req market.BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Exchange == "" {
		req.Exchange = s.defaultExchange
	}
	if req.Interval == "" || len(req.Symbols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "interval and symbols are required"})
		return
	}
	series, err := s.coordinator.FetchSeries(c.Request.Context(), req)
	if err != nil {
		s.writeFetchError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

func (s *Server) handleBacktest(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validateRunRequest(body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var req runRequest
	if err := json.Unmarshal(body, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if s.engine == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backtest engine not configured"})
		return
	}
	if req.Exchange == "" {
		req.Exchange = s.defaultExchange
	}
	chartSymbol := req.ChartSymbol
	if chartSymbol == "" {
		chartSymbol = req.Symbols[0]
	}

	ctx := c.Request.Context()
	raw, err := s.engine.RunBacktest(ctx, backend.BacktestRequest{
		Strategy:   req.Strategy,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Params:     req.Params,
	})
	if err != nil {
		s.writeFetchError(c, err)
		return
	}
	summary, err := backtest.ParseResult(raw, chartSymbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	series, err := s.coordinator.FetchSeries(ctx, market.BatchRequest{
		Exchange: req.Exchange,
		Interval: req.Interval,
		Start:    req.Start,
		End:      req.End,
		Symbols:  req.Symbols,
	})
	if err != nil {
		s.writeFetchError(c, err)
		return
	}

	candles := series[chartSymbol]
	sess := &session{
		Symbol:   chartSymbol,
		Summary:  summary,
		Stats:    backtest.Aggregate(summary),
		Candles:  candles,
		Volume:   chart.VolumeSeries(candles),
		Markers:  chart.Markers(summary.Positions),
		Equity:   chart.EquityCurve(summary),
		interval: req.Interval,
	}
	s.setSession(sess)
	logger.Infof("[dashboard] backtest session %s: %d candles, %d positions",
		chartSymbol, len(sess.Candles), len(summary.Positions))
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleSeries(c *gin.Context) {
	sess := s.currentSession()
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no backtest session"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// handleHover feeds one pointer event into the hover stream. The tooltip
// controller consumes it through its subscription, so the response only
// acknowledges delivery; /api/tooltip reflects the resulting state.
func (s *Server) handleHover(c *gin.Context) {
	var ev chart.HoverEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.feed.Publish(ev)
	c.JSON(http.StatusAccepted, gin.H{"accepted": true})
}

func (s *Server) handleTooltip(c *gin.Context) {
	c.JSON(http.StatusOK, s.tooltip.State())
}

func (s *Server) handleChartHTML(c *gin.Context) {
	input, ok := s.renderInput(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := s.renderer.RenderHTML(c.Writer, input); err != nil {
		logger.Errorf("[dashboard] chart render failed: %v", err)
	}
}

func (s *Server) handleChartPNG(c *gin.Context) {
	input, ok := s.renderInput(c)
	if !ok {
		return
	}
	png, err := s.renderer.RenderPNG(c.Request.Context(), input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *Server) renderInput(c *gin.Context) (chart.RenderInput, bool) {
	if s.renderer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "renderer not configured"})
		return chart.RenderInput{}, false
	}
	sess := s.currentSession()
	if sess == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no backtest session"})
		return chart.RenderInput{}, false
	}
	return chart.RenderInput{
		Symbol:   sess.Symbol,
		Interval: sess.interval,
		Candles:  sess.Candles,
		Volume:   sess.Volume,
		Markers:  sess.Markers,
		Equity:   sess.Equity,
		Stats:    sess.Stats,
	}, true
}

func (s *Server) handleCacheInfo(c *gin.Context) {
	cache := s.coordinator.Cache()
	c.JSON(http.StatusOK, gin.H{
		"entries": cache.Len(),
		"keys":    cache.Keys(),
	})
}

// writeFetchError maps retrieval failures: a cancelled request gets no body
// at all (the caller is gone and a newer request supersedes it), everything
// else surfaces as an upstream failure.
func (s *Server) writeFetchError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		c.Abort()
		return
	}
	status := http.StatusBadGateway
	if !errors.Is(err, market.ErrFetchFailed) {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
