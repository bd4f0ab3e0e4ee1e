package market

import "fmt"

// Candle is one OHLCV bar. Time is the bar open in Unix milliseconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// ValidateSeries enforces strictly increasing timestamps within a series.
func ValidateSeries(candles []Candle) error {
	for i := 1; i < len(candles); i++ {
		if candles[i].Time <= candles[i-1].Time {
			return fmt.Errorf("candle series not strictly increasing at index %d (%d <= %d)",
				i, candles[i].Time, candles[i-1].Time)
		}
	}
	return nil
}
