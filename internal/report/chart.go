package report

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
	"github.com/markcheno/go-talib"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
)

const (
	chartWidthPx  = 1180
	chartHeightPx = 520
)

const (
	colorBackground    = "#0f1419"
	colorTextPrimary   = "#e6edf3"
	colorTextSecondary = "#8b949e"
	colorSMALine       = "#d29922"
)

// 目的地曲线轮换配色。
var destinationColors = []string{
	"#58a6ff",
	"#3fb950",
	"#f85149",
	"#bc8cff",
	"#39c5cf",
	"#d2a8ff",
}

// SeriesPoint 是单个目的地一次观测到的票价。
type SeriesPoint struct {
	ObservedAt  time.Time
	AmountMinor int64
}

// DestinationSeries 按观测时间升序携带一个目的地的票价历史。
type DestinationSeries struct {
	Destination string
	Points      []SeriesPoint
}

// ChartInput 描述一次图表渲染需要的全部数据。
type ChartInput struct {
	Title        string
	CurrencyCode string
	Series       []DestinationSeries
	GeneratedAt  time.Time
}

// ChartRenderer 把票价历史画成 echarts 折线图并落盘。
// PNG 截图依赖本机 headless Chrome，探测失败时只产出 HTML。
type ChartRenderer struct {
	htmlPath  string
	pngPath   string
	smaWindow int
}

func NewChartRenderer(htmlPath, pngPath string, smaWindow int) *ChartRenderer {
	if smaWindow < 2 {
		smaWindow = 2
	}
	return &ChartRenderer{htmlPath: htmlPath, pngPath: pngPath, smaWindow: smaWindow}
}

func (c *ChartRenderer) HTMLPath() string { return c.htmlPath }

// Render 生成 HTML 图表；pngPath 非空且本机 Chrome 可用时追加 PNG 截图。
func (c *ChartRenderer) Render(ctx context.Context, input ChartInput) error {
	html, err := c.BuildHTML(input)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(c.htmlPath, html); err != nil {
		return fmt.Errorf("write chart html failed: %w", err)
	}
	logger.Infof("票价图表已更新: %s (series=%d)", c.htmlPath, len(input.Series))

	if c.pngPath == "" {
		return nil
	}
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		logger.Warnf("headless Chrome 不可用，跳过 PNG 截图: %v", err)
		return nil
	}
	png, err := renderHTMLToPNG(ctx, html)
	if err != nil {
		logger.Warnf("图表 PNG 截图失败: %v", err)
		return nil
	}
	if err := writeFileAtomic(c.pngPath, png); err != nil {
		logger.Warnf("write chart png failed: %v", err)
		return nil
	}
	logger.Infof("票价图表快照已更新: %s", c.pngPath)
	return nil
}

// BuildHTML 只负责把序列变成页面字节，不做任何 IO。
func (c *ChartRenderer) BuildHTML(input ChartInput) ([]byte, error) {
	if len(input.Series) == 0 {
		return nil, fmt.Errorf("chart input has no series")
	}
	axis := collectAxis(input.Series)
	if len(axis) == 0 {
		return nil, fmt.Errorf("chart input has no observations")
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", chartHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         input.Title,
			Subtitle:      fmt.Sprintf("currency %s | generated %s", input.CurrencyCode, input.GeneratedAt.Format("2006-01-02 15:04 MST")),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "40", TextStyle: &opts.TextStyle{Color: colorTextPrimary}}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(false)},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)
	line.SetXAxis(buildXAxis(axis))

	for i, series := range input.Series {
		color := destinationColors[i%len(destinationColors)]
		line.AddSeries(series.Destination, alignSeries(series.Points, axis),
			charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 2}),
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}),
		)
		if len(series.Points) >= c.smaWindow {
			label := fmt.Sprintf("%s SMA%d", series.Destination, c.smaWindow)
			line.AddSeries(label, smaSeries(series.Points, axis, c.smaWindow),
				charts.WithLineStyleOpts(opts.LineStyle{Color: colorSMALine, Width: 1, Type: "dashed"}),
				charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			)
		}
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("render chart page failed: %w", err)
	}
	return buf.Bytes(), nil
}

// collectAxis 合并所有目的地的观测时间，升序去重。
func collectAxis(series []DestinationSeries) []time.Time {
	seen := make(map[int64]struct{})
	var axis []time.Time
	for _, s := range series {
		for _, p := range s.Points {
			key := p.ObservedAt.Unix()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			axis = append(axis, p.ObservedAt)
		}
	}
	for i := 1; i < len(axis); i++ {
		for j := i; j > 0 && axis[j].Before(axis[j-1]); j-- {
			axis[j], axis[j-1] = axis[j-1], axis[j]
		}
	}
	return axis
}

func buildXAxis(axis []time.Time) []string {
	x := make([]string, len(axis))
	for i, ts := range axis {
		x[i] = ts.UTC().Format("01-02 15:04")
	}
	return x
}

// alignSeries 把单目的地的观测对齐到全局时间轴，缺口处填 nil 断线。
func alignSeries(points []SeriesPoint, axis []time.Time) []opts.LineData {
	byTime := make(map[int64]int64, len(points))
	for _, p := range points {
		byTime[p.ObservedAt.Unix()] = p.AmountMinor
	}
	data := make([]opts.LineData, len(axis))
	for i, ts := range axis {
		if amount, ok := byTime[ts.Unix()]; ok {
			data[i] = opts.LineData{Value: amount}
		} else {
			data[i] = opts.LineData{Value: nil}
		}
	}
	return data
}

// smaSeries 对单目的地序列求简单均线再对齐时间轴；窗口未满的点留空。
func smaSeries(points []SeriesPoint, axis []time.Time, window int) []opts.LineData {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = float64(p.AmountMinor)
	}
	sma := talib.Sma(values, window)

	byTime := make(map[int64]float64, len(points))
	for i, p := range points {
		if i < window-1 || math.IsNaN(sma[i]) {
			continue
		}
		byTime[p.ObservedAt.Unix()] = round(sma[i], 0)
	}
	data := make([]opts.LineData, len(axis))
	for i, ts := range axis {
		if v, ok := byTime[ts.Unix()]; ok {
			data[i] = opts.LineData{Value: v}
		} else {
			data[i] = opts.LineData{Value: nil}
		}
	}
	return data
}

func round(val float64, decimals int) float64 {
	factor := math.Pow10(decimals)
	return math.Round(val*factor) / factor
}

var (
	headlessOnce sync.Once
	headlessErr  error
)

// EnsureHeadlessAvailable 探测本机 headless Chrome，进程内只探测一次。
func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		if cancel != nil {
			defer cancel()
		}
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

// renderHTMLToPNG 在 headless Chrome 里打开 data URI 并整页截图。
func renderHTMLToPNG(ctx context.Context, html []byte) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	browserCtx, browserCancel := chromedp.NewContext(runCtx)
	defer browserCancel()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	err := chromedp.Run(browserCtx, chromedp.Tasks{
		chromedp.EmulateViewport(int64(chartWidthPx+40), int64(chartHeightPx+160)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot chart failed: %w", err)
	}
	return screenshot, nil
}
