package backtest

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	PositionLong  = "long"
	PositionShort = "short"
)

// Position is one completed trade taken by the backtested strategy.
// Times are Unix milliseconds; ROI values are fractional (0.05 = 5%).
type Position struct {
	Type          string  `json:"type"`
	Time          int64   `json:"time"`
	CloseTime     int64   `json:"close_time"`
	Cost          float64 `json:"cost"`
	Gain          float64 `json:"gain"`
	Profit        float64 `json:"profit"`
	ROI           float64 `json:"roi"`
	AnnualizedROI float64 `json:"annualized_roi"`
	Duration      int64   `json:"duration"`
}

// Summary holds one symbol's backtest outcome: the starting point, the
// starting quote balance and the positions in open-time order (order is
// preserved as received, never re-sorted).
type Summary struct {
	Symbol    string     `json:"symbol"`
	Start     int64      `json:"start"`
	Quote     float64    `json:"quote"`
	Positions []Position `json:"positions"`
}

// ParseResult extracts one symbol's summary from the engine's raw
// {"symbol_stats": {...}} payload. The payload is treated as opaque beyond
// the fields read here; missing fields default to zero values so malformed
// responses degrade instead of poisoning derived series with NaN.
func ParseResult(raw []byte, symbol string) (Summary, error) {
	stats := gjson.GetBytes(raw, "symbol_stats."+escapeKey(symbol))
	if !stats.Exists() {
		return Summary{}, fmt.Errorf("symbol %q missing from backtest result", symbol)
	}

	summary := Summary{
		Symbol: symbol,
		Start:  stats.Get("start").Int(),
		Quote:  stats.Get("quote").Float(),
	}
	positions := stats.Get("positions")
	if positions.IsArray() {
		arr := positions.Array()
		summary.Positions = make([]Position, 0, len(arr))
		for _, item := range arr {
			summary.Positions = append(summary.Positions, parsePosition(item))
		}
	}
	for i, pos := range summary.Positions {
		if pos.CloseTime < pos.Time {
			return Summary{}, fmt.Errorf("position %d closes before it opens (%d < %d)",
				i, pos.CloseTime, pos.Time)
		}
	}
	return summary, nil
}

func parsePosition(item gjson.Result) Position {
	pos := Position{
		Type:          PositionLong,
		Time:          item.Get("time").Int(),
		CloseTime:     item.Get("close_time").Int(),
		Cost:          item.Get("cost").Float(),
		Gain:          item.Get("gain").Float(),
		Profit:        item.Get("profit").Float(),
		ROI:           item.Get("roi").Float(),
		AnnualizedROI: item.Get("annualized_roi").Float(),
		Duration:      item.Get("duration").Int(),
	}
	if t := item.Get("type"); t.Exists() && strings.EqualFold(t.String(), PositionShort) {
		pos.Type = PositionShort
	}
	if pos.Duration == 0 && pos.CloseTime > pos.Time {
		pos.Duration = pos.CloseTime - pos.Time
	}
	return pos
}

func escapeKey(key string) string {
	replacer := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`)
	return replacer.Replace(key)
}
