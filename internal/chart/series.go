package chart

import (
	"backviz/internal/backtest"
	"backviz/internal/market"
)

const (
	colorUp   = "#34d399"
	colorDown = "#f87171"

	// Volume bars use semi-transparent variants of the candle palette.
	colorUpSoft   = "rgba(52,211,153,0.55)"
	colorDownSoft = "rgba(248,113,113,0.55)"

	colorOpenMarker  = "#3b82f6"
	colorCloseMarker = "#fbbf24"
	colorEquity      = "#a78bfa"
	colorInfo        = "#3b82f6"
)

const (
	shapeArrowUp   = "arrowUp"
	shapeArrowDown = "arrowDown"
	placeAboveBar  = "aboveBar"
)

type VolumePoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// Marker annotates the chart at one bar. IDs are signed and nonzero: the
// position at index i gets an open marker with id -(i+1) and a close marker
// with id +(i+1), so the sign alone distinguishes open from close.
type Marker struct {
	ID       int    `json:"id"`
	Time     int64  `json:"time"`
	Shape    string `json:"shape"`
	Color    string `json:"color"`
	Position string `json:"position"`
}

type EquityPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// VolumeSeries colors each bar by tick direction against the previous close.
// The first candle compares against 0 and therefore always counts as up;
// ties break toward up as well.
func VolumeSeries(candles []market.Candle) []VolumePoint {
	points := make([]VolumePoint, len(candles))
	prevClose := 0.0
	for i, c := range candles {
		color := colorDownSoft
		if c.Close >= prevClose {
			color = colorUpSoft
		}
		points[i] = VolumePoint{Time: c.Time, Value: c.Volume, Color: color}
		prevClose = c.Close
	}
	return points
}

// Markers derives exactly two markers per position. Open and close markers
// share the position's direction shape but use distinct color roles,
// independent of profit or loss.
func Markers(positions []backtest.Position) []Marker {
	markers := make([]Marker, 0, 2*len(positions))
	for i, pos := range positions {
		shape := shapeArrowUp
		if pos.Type == backtest.PositionShort {
			shape = shapeArrowDown
		}
		markers = append(markers,
			Marker{
				ID:       -(i + 1),
				Time:     pos.Time,
				Shape:    shape,
				Color:    colorOpenMarker,
				Position: placeAboveBar,
			},
			Marker{
				ID:       i + 1,
				Time:     pos.CloseTime,
				Shape:    shape,
				Color:    colorCloseMarker,
				Position: placeAboveBar,
			},
		)
	}
	return markers
}

// EquityCurve folds position profits into a running balance, anchored at the
// backtest start with the starting quote. One point per closed position.
func EquityCurve(summary backtest.Summary) []EquityPoint {
	points := make([]EquityPoint, 0, len(summary.Positions)+1)
	points = append(points, EquityPoint{Time: summary.Start, Value: summary.Quote})
	running := summary.Quote
	for _, pos := range summary.Positions {
		running += pos.Profit
		points = append(points, EquityPoint{Time: pos.CloseTime, Value: running})
	}
	return points
}

// PositionForMarker inverts the marker id formula. Id 0 is never assigned
// and resolves to nothing.
func PositionForMarker(positions []backtest.Position, id int) (backtest.Position, bool) {
	var idx int
	switch {
	case id < 0:
		idx = -id - 1
	case id > 0:
		idx = id - 1
	default:
		return backtest.Position{}, false
	}
	if idx >= len(positions) {
		return backtest.Position{}, false
	}
	return positions[idx], true
}
