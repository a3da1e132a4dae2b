package app

import (
	"fmt"
	"path/filepath"
	"strings"

	ftcfg "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/gateway/notifier"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/report"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/store/farelog"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/store/runlog"
	statushttp "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/transport/http/status"
)

// buildReportStack 组装报表渲染器和可选的走势图渲染器。启用图表时
// README 里追加指向图表文件的相对链接。
func buildReportStack(cfg ftcfg.ReportConfig) (*report.Renderer, *report.ChartRenderer, error) {
	chartLink := ""
	var chart *report.ChartRenderer
	if cfg.ChartEnabled {
		if strings.TrimSpace(cfg.ChartPath) == "" {
			return nil, nil, fmt.Errorf("report.chart_path 未配置，无法启用图表")
		}
		pngPath := ""
		if cfg.ChartPNG {
			pngPath = chartPNGPath(cfg.ChartPath)
		}
		chart = report.NewChartRenderer(cfg.ChartPath, pngPath, cfg.SMAWindow)
		chartLink = relativeChartLink(cfg.OutputPath, cfg.ChartPath)
	}
	renderer, err := report.NewRenderer(cfg.OutputPath, cfg.Timezone, chartLink)
	if err != nil {
		return nil, nil, fmt.Errorf("初始化报表渲染失败: %w", err)
	}
	logger.Infof("✓ 报表输出 %s (chart=%v)", cfg.OutputPath, cfg.ChartEnabled)
	return renderer, chart, nil
}

func chartPNGPath(htmlPath string) string {
	ext := filepath.Ext(htmlPath)
	if ext == "" {
		return htmlPath + ".png"
	}
	return strings.TrimSuffix(htmlPath, ext) + ".png"
}

// relativeChartLink 计算 README 里引用图表用的相对路径，算不出来就退回原始路径。
func relativeChartLink(reportPath, chartPath string) string {
	rel, err := filepath.Rel(filepath.Dir(reportPath), chartPath)
	if err != nil {
		return chartPath
	}
	return filepath.ToSlash(rel)
}

func buildStatusServer(cfg *ftcfg.Config, stores *StoreStack, chart *report.ChartRenderer) (*statushttp.Server, error) {
	if !strings.EqualFold(strings.TrimSpace(cfg.App.Mode), ftcfg.ModeServe) {
		return nil, nil
	}
	var (
		archive *farelog.Store
		runLog  *runlog.Store
	)
	if stores != nil {
		archive = stores.Archive
		runLog = stores.RunLog
	}
	chartPath := ""
	if chart != nil {
		chartPath = chart.HTMLPath()
	}
	server, err := statushttp.NewServer(statushttp.ServerConfig{
		Addr:       cfg.App.HTTPAddr,
		Archive:    archive,
		RunLog:     runLog,
		ReportPath: cfg.Report.OutputPath,
		ChartPath:  chartPath,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化状态接口失败: %w", err)
	}
	logger.Infof("✓ 状态接口监听 %s", server.Addr())
	return server, nil
}

func newTelegram(cfg ftcfg.NotifyConfig) *notifier.Telegram {
	if !cfg.Telegram.Enabled {
		return nil
	}
	return notifier.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
}
