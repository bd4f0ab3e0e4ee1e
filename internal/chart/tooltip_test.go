package chart

import (
	"strings"
	"testing"
	"time"

	"backviz/internal/backtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func markerID(id int) *int { return &id }

func tooltipPositions() []backtest.Position {
	return []backtest.Position{
		{
			Type:          backtest.PositionLong,
			Time:          100,
			CloseTime:     200,
			Cost:          1.5,
			Gain:          1.65,
			Profit:        0.15,
			ROI:           0.1,
			AnnualizedROI: 0.5,
			Duration:      int64(90 * time.Minute / time.Millisecond),
		},
		{
			Type:      backtest.PositionShort,
			Time:      300,
			CloseTime: 400,
			Cost:      2,
			Gain:      1.9,
			Profit:    -0.1,
			ROI:       -0.05,
		},
	}
}

func TestTransition_OpenMarker(t *testing.T) {
	next, changed := Transition(TooltipState{}, HoverEvent{MarkerID: markerID(-1), X: 40, Y: 60}, tooltipPositions())
	assert.True(t, changed)
	assert.True(t, next.Visible)
	assert.Equal(t, 40.0, next.X)
	assert.Equal(t, 60.0-tooltipOffsetY, next.Y)
	assert.Equal(t, colorInfo, next.BorderColor)
	assert.Equal(t, "Cost: 1.50000000", next.Text)
}

func TestTransition_CloseMarkerProfit(t *testing.T) {
	next, changed := Transition(TooltipState{}, HoverEvent{MarkerID: markerID(1), X: 10, Y: 20}, tooltipPositions())
	assert.True(t, changed)
	assert.Equal(t, colorUp, next.BorderColor)

	lines := strings.Split(next.Text, "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "Gain: 1.65000000", lines[0])
	assert.Equal(t, "Profit: 0.15000000", lines[1])
	assert.Equal(t, "Duration: 1h30m0s", lines[2])
	assert.Equal(t, "ROI: 10.00%", lines[3])
	assert.Equal(t, "Annualized ROI: 50.00%", lines[4])
}

func TestTransition_CloseMarkerLossBorder(t *testing.T) {
	next, _ := Transition(TooltipState{}, HoverEvent{MarkerID: markerID(2)}, tooltipPositions())
	assert.Equal(t, colorDown, next.BorderColor)
	assert.Contains(t, next.Text, "ROI: -5.00%")
}

func TestTransition_HideOnlyOnce(t *testing.T) {
	visible := TooltipState{Visible: true, Text: "x"}

	hidden, changed := Transition(visible, HoverEvent{}, tooltipPositions())
	assert.True(t, changed)
	assert.False(t, hidden.Visible)

	again, changed := Transition(hidden, HoverEvent{}, tooltipPositions())
	assert.False(t, changed, "hiding an already hidden tooltip is a no-op")
	assert.Equal(t, hidden, again)
}

func TestTransition_UnknownMarkerHides(t *testing.T) {
	visible := TooltipState{Visible: true}
	next, changed := Transition(visible, HoverEvent{MarkerID: markerID(99)}, tooltipPositions())
	assert.True(t, changed)
	assert.False(t, next.Visible)
}

func TestFormatPercent(t *testing.T) {
	assert.Equal(t, "5.32%", formatPercent(0.0532))
	assert.Equal(t, "0.00%", formatPercent(0))
	assert.Equal(t, "-12.50%", formatPercent(-0.125))
	assert.Equal(t, "100.00%", formatPercent(1))
}

func TestController_ApplyAndReset(t *testing.T) {
	ctrl := NewController()
	ctrl.SetPositions(tooltipPositions())

	state, changed := ctrl.Apply(HoverEvent{MarkerID: markerID(-2), X: 5, Y: 30})
	assert.True(t, changed)
	assert.True(t, state.Visible)
	assert.Equal(t, state, ctrl.State())

	ctrl.SetPositions(nil)
	assert.False(t, ctrl.State().Visible, "new session hides stale tooltip")
}

func TestController_FeedBinding(t *testing.T) {
	feed := NewHoverFeed()
	ctrl := NewController()
	ctrl.SetPositions(tooltipPositions())
	ctrl.Bind(feed)
	require.Equal(t, 1, feed.Subscribers())

	feed.Publish(HoverEvent{MarkerID: markerID(-1), X: 1, Y: 2})
	assert.Eventually(t, func() bool {
		return ctrl.State().Visible
	}, time.Second, 5*time.Millisecond)

	ctrl.Unbind()
	assert.Equal(t, 0, feed.Subscribers())
}
