package backtest

import "math"

const yearMillis = 365.0 * 24 * 60 * 60 * 1000

// Stats aggregates per-position results for display next to the chart.
type Stats struct {
	TotalProfit        float64 `json:"total_profit"`
	FinalQuote         float64 `json:"final_quote"`
	ROI                float64 `json:"roi"`
	AnnualizedROI      float64 `json:"annualized_roi"`
	Positions          int     `json:"positions"`
	Wins               int     `json:"wins"`
	Losses             int     `json:"losses"`
	MeanPositionProfit float64 `json:"mean_position_profit"`
}

// Aggregate folds the summary's positions into headline stats. ROI is
// profit over starting quote; the annualized figure compounds it over the
// span from start to the last close.
func Aggregate(summary Summary) Stats {
	stats := Stats{Positions: len(summary.Positions)}
	lastClose := summary.Start
	for _, pos := range summary.Positions {
		stats.TotalProfit += pos.Profit
		if pos.Profit >= 0 {
			stats.Wins++
		} else {
			stats.Losses++
		}
		if pos.CloseTime > lastClose {
			lastClose = pos.CloseTime
		}
	}
	stats.FinalQuote = summary.Quote + stats.TotalProfit
	if summary.Quote != 0 {
		stats.ROI = stats.TotalProfit / summary.Quote
	}
	if n := float64(lastClose-summary.Start) / yearMillis; n > 0 && 1+stats.ROI > 0 {
		stats.AnnualizedROI = math.Pow(1+stats.ROI, 1/n) - 1
	}
	if stats.Positions > 0 {
		stats.MeanPositionProfit = stats.TotalProfit / float64(stats.Positions)
	}
	return stats
}
