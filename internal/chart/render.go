package chart

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	talib "github.com/markcheno/go-talib"

	"backviz/internal/backtest"
	"backviz/internal/market"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorEma           = "#22d3ee"
)

const (
	klineHeightPx  = 520
	volumeHeightPx = 220
	equityHeightPx = 260
)

// RenderInput bundles everything one dashboard page needs: the raw candles
// plus the series derived from the backtest summary.
type RenderInput struct {
	Symbol   string
	Interval string
	Candles  []market.Candle
	Volume   []VolumePoint
	Markers  []Marker
	Equity   []EquityPoint
	Stats    backtest.Stats
}

// Renderer builds the dashboard chart page out of go-echarts charts and can
// rasterize it through a headless browser.
type Renderer struct {
	widthPx   int
	emaPeriod int
}

func NewRenderer(widthPx, emaPeriod int) *Renderer {
	if widthPx <= 0 {
		widthPx = 1600
	}
	return &Renderer{widthPx: widthPx, emaPeriod: emaPeriod}
}

// RenderHTML writes the full dashboard page.
func (r *Renderer) RenderHTML(w io.Writer, input RenderInput) error {
	page, err := r.buildPage(input)
	if err != nil {
		return err
	}
	return page.Render(w)
}

// RenderPNG rasterizes the dashboard page with a headless browser.
func (r *Renderer) RenderPNG(ctx context.Context, input RenderInput) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.RenderHTML(&buf, input); err != nil {
		return nil, err
	}
	height := klineHeightPx + volumeHeightPx + equityHeightPx + 80
	return renderHTMLToPNG(ctx, buf.Bytes(), r.widthPx, height)
}

func (r *Renderer) buildPage(input RenderInput) (*components.Page, error) {
	if input.Symbol == "" {
		return nil, fmt.Errorf("symbol required for chart render")
	}
	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(
		r.buildKline(input),
		r.buildVolume(input),
		r.buildEquity(input),
	)
	return page, nil
}

func (r *Renderer) buildKline(input RenderInput) *charts.Kline {
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(r.initOpts(klineHeightPx)),
		charts.WithTitleOpts(opts.Title{
			Title:         fmt.Sprintf("%s %s", strings.ToUpper(input.Symbol), input.Interval),
			Subtitle:      statsSubtitle(input.Stats),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", XAxisIndex: []int{0}}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	kline.SetSeriesOptions(
		charts.WithItemStyleOpts(opts.ItemStyle{
			Color:        colorUp,
			Color0:       colorDown,
			BorderColor:  colorUp,
			BorderColor0: colorDown,
		}),
	)

	xAxis := buildXAxis(input.Candles)
	data := make([]opts.KlineData, 0, len(input.Candles))
	for _, c := range input.Candles {
		data = append(data, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(xAxis)
	kline.AddSeries("Price", data)

	if line := r.buildEMALine(input.Candles); line != nil {
		line.SetXAxis(xAxis)
		kline.Overlap(line)
	}
	if open, closed := buildMarkerScatters(input.Candles, input.Markers); open != nil {
		open.SetXAxis(xAxis)
		closed.SetXAxis(xAxis)
		kline.Overlap(open, closed)
	}
	return kline
}

func (r *Renderer) buildEMALine(candles []market.Candle) *charts.Line {
	if r.emaPeriod <= 0 || len(candles) < r.emaPeriod {
		return nil
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	ema := talib.Ema(closes, r.emaPeriod)
	line := charts.NewLine()
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	line.AddSeries(fmt.Sprintf("EMA%d", r.emaPeriod), toLineData(ema, len(candles)),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEma, Width: 2}))
	return line
}

// buildMarkerScatters splits markers into open/close scatter layers aligned
// to the candle category axis. Markers between bars snap to the bar whose
// time is closest at or before them.
func buildMarkerScatters(candles []market.Candle, markers []Marker) (*charts.Scatter, *charts.Scatter) {
	if len(candles) == 0 || len(markers) == 0 {
		return nil, nil
	}
	openData := emptyScatter(len(candles))
	closeData := emptyScatter(len(candles))
	for _, m := range markers {
		idx := barIndexFor(candles, m.Time)
		if idx < 0 {
			continue
		}
		point := opts.ScatterData{
			Value:      round(candles[idx].High*1.01, 6),
			Symbol:     "triangle",
			SymbolSize: 12,
		}
		if m.Shape == shapeArrowDown {
			point.SymbolRotate = 180
		}
		if m.ID < 0 {
			openData[idx] = point
		} else {
			closeData[idx] = point
		}
	}
	open := charts.NewScatter()
	open.AddSeries("Open", openData, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorOpenMarker}))
	closed := charts.NewScatter()
	closed.AddSeries("Close", closeData, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorCloseMarker}))
	return open, closed
}

func (r *Renderer) buildVolume(input RenderInput) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(r.initOpts(volumeHeightPx)),
		charts.WithTitleOpts(opts.Title{Title: "Volume", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Show: opts.Bool(false)}}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Show: opts.Bool(true), Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	bars := make([]opts.BarData, len(input.Volume))
	for i, p := range input.Volume {
		bars[i] = opts.BarData{
			Value:     p.Value,
			ItemStyle: &opts.ItemStyle{Color: p.Color},
		}
	}
	bar.SetXAxis(buildXAxis(input.Candles))
	bar.AddSeries("Volume", bars)
	return bar
}

func (r *Renderer) buildEquity(input RenderInput) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(r.initOpts(equityHeightPx)),
		charts.WithTitleOpts(opts.Title{Title: "Equity", Left: "left", TitleStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Color: colorTextSecondary}}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)
	x := make([]string, len(input.Equity))
	data := make([]opts.LineData, len(input.Equity))
	for i, p := range input.Equity {
		x[i] = formatAxisTime(p.Time)
		data[i] = opts.LineData{Value: round(p.Value, 8)}
	}
	line.SetXAxis(x)
	line.AddSeries("Balance", data,
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorEquity, Width: 2}),
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	return line
}

func (r *Renderer) initOpts(height int) opts.Initialization {
	return opts.Initialization{
		Theme:           types.ThemeWesteros,
		Width:           fmt.Sprintf("%dpx", r.widthPx),
		Height:          fmt.Sprintf("%dpx", height),
		BackgroundColor: colorBackground,
	}
}

func statsSubtitle(stats backtest.Stats) string {
	if stats.Positions == 0 {
		return "no positions"
	}
	return fmt.Sprintf("positions %d | profit %.8f | ROI %s | AROI %s",
		stats.Positions, stats.TotalProfit, formatPercent(stats.ROI), formatPercent(stats.AnnualizedROI))
}

func buildXAxis(candles []market.Candle) []string {
	x := make([]string, len(candles))
	for i, c := range candles {
		x[i] = formatAxisTime(c.Time)
	}
	return x
}

func formatAxisTime(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("01-02 15:04")
}

func emptyScatter(n int) []opts.ScatterData {
	data := make([]opts.ScatterData, n)
	for i := range data {
		data[i] = opts.ScatterData{Value: nil}
	}
	return data
}

// barIndexFor returns the last bar opening at or before ts, -1 when ts is
// before the first bar.
func barIndexFor(candles []market.Candle, ts int64) int {
	idx := -1
	for i, c := range candles {
		if c.Time > ts {
			break
		}
		idx = i
	}
	return idx
}

func toLineData(series []float64, length int) []opts.LineData {
	line := make([]opts.LineData, length)
	offset := length - len(series)
	if offset < 0 {
		offset = 0
	}
	for i := 0; i < offset; i++ {
		line[i] = opts.LineData{Value: nil}
	}
	for i := 0; i < len(series) && offset+i < length; i++ {
		val := series[i]
		if math.IsNaN(val) || val == 0 {
			line[offset+i] = opts.LineData{Value: nil}
		} else {
			line[offset+i] = opts.LineData{Value: round(val, 6)}
		}
	}
	return line
}

func round(val float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Round(val)
	}
	scale := math.Pow10(decimals)
	return math.Round(val*scale) / scale
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}
