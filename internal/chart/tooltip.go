package chart

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"backviz/internal/backtest"

	"github.com/shopspring/decimal"
)

// tooltipOffsetY lifts the tip above the pointer so it does not occlude the
// hovered marker.
const tooltipOffsetY = 12

// HoverEvent carries one pointer update from the chart. MarkerID is nil when
// no marker is under the pointer.
type HoverEvent struct {
	MarkerID *int    `json:"marker_id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// TooltipState is what the dashboard draws. The zero value is the hidden
// state.
type TooltipState struct {
	Visible     bool    `json:"visible"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	BorderColor string  `json:"border_color"`
	Text        string  `json:"text"`
}

// Transition computes the next tooltip state for a hover event. It is pure:
// the second return reports whether the state changed, letting callers skip
// redundant redraws (in particular repeated hides).
func Transition(prev TooltipState, ev HoverEvent, positions []backtest.Position) (TooltipState, bool) {
	if ev.MarkerID == nil {
		if !prev.Visible {
			return prev, false
		}
		return TooltipState{}, true
	}
	id := *ev.MarkerID
	pos, ok := PositionForMarker(positions, id)
	if !ok {
		if !prev.Visible {
			return prev, false
		}
		return TooltipState{}, true
	}

	next := TooltipState{
		Visible: true,
		X:       ev.X,
		Y:       ev.Y - tooltipOffsetY,
	}
	if id < 0 {
		next.BorderColor = colorInfo
		next.Text = fmt.Sprintf("Cost: %s", formatQuote(pos.Cost))
	} else {
		next.BorderColor = colorUp
		if pos.ROI < 0 {
			next.BorderColor = colorDown
		}
		next.Text = strings.Join([]string{
			fmt.Sprintf("Gain: %s", formatQuote(pos.Gain)),
			fmt.Sprintf("Profit: %s", formatQuote(pos.Profit)),
			fmt.Sprintf("Duration: %s", formatDuration(pos.Duration)),
			fmt.Sprintf("ROI: %s", formatPercent(pos.ROI)),
			fmt.Sprintf("Annualized ROI: %s", formatPercent(pos.AnnualizedROI)),
		}, "\n")
	}
	return next, next != prev
}

func formatQuote(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(8)
}

// formatPercent renders a fractional value with exactly two fractional
// digits, e.g. 0.0532 -> "5.32%".
func formatPercent(v float64) string {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return d.Truncate(time.Second).String()
}

// Controller owns the live tooltip state for the current backtest session
// and applies hover events as they arrive from the feed.
type Controller struct {
	mu          sync.Mutex
	positions   []backtest.Position
	state       TooltipState
	unsubscribe func()
}

func NewController() *Controller {
	return &Controller{}
}

// SetPositions swaps in a new backtest's positions and hides any tooltip
// left over from the previous one.
func (c *Controller) SetPositions(positions []backtest.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.positions = positions
	c.state = TooltipState{}
}

// Apply runs one transition and returns the resulting state.
func (c *Controller) Apply(ev HoverEvent) (TooltipState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next, changed := Transition(c.state, ev, c.positions)
	c.state = next
	return next, changed
}

func (c *Controller) State() TooltipState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Bind subscribes the controller to a hover feed. Rebinding releases the
// previous subscription first.
func (c *Controller) Bind(feed *HoverFeed) {
	c.Unbind()
	ch, cancel := feed.Subscribe()
	c.mu.Lock()
	c.unsubscribe = cancel
	c.mu.Unlock()
	go func() {
		for ev := range ch {
			c.Apply(ev)
		}
	}()
}

// Unbind releases the feed subscription, stopping the consuming goroutine.
func (c *Controller) Unbind() {
	c.mu.Lock()
	cancel := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
