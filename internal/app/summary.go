package app

import (
	"fmt"
	"strings"

	ftcfg "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/gateway/provider"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/report"
	statushttp "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/transport/http/status"
)

type StartupSummary struct {
	Route    RouteSummary
	Agent    AgentSummary
	Schedule ScheduleSummary
	Outputs  OutputSummary
}

type RouteSummary struct {
	Origin       string
	Destinations []string
	TravelDates  string
	SiteURL      string
	HotReload    bool
}

type AgentSummary struct {
	Model          string
	BrowserMode    string
	MaxSteps       int
	TimeoutSeconds int
}

type ScheduleSummary struct {
	Mode           string
	Interval       string
	OffsetSeconds  int
	RunImmediately bool
}

type OutputSummary struct {
	ReportPath  string
	HistoryPath string
	ArchivePath string
	ChartPath   string
	TelegramOn  bool
	StatusAddr  string
}

func buildStartupSummary(cfg *ftcfg.Config, route ftcfg.RouteConfig, llm provider.ModelProvider,
	stores *StoreStack, chart *report.ChartRenderer, status *statushttp.Server, hotReload bool) *StartupSummary {
	s := &StartupSummary{
		Route: RouteSummary{
			Origin:       route.Origin,
			Destinations: route.DestinationList(),
			TravelDates:  route.TravelDates,
			SiteURL:      route.SiteURL,
			HotReload:    hotReload,
		},
		Agent: AgentSummary{
			BrowserMode:    cfg.Browser.Mode,
			MaxSteps:       cfg.Agent.MaxSteps,
			TimeoutSeconds: cfg.Agent.TimeoutSeconds,
		},
		Schedule: ScheduleSummary{
			Mode:           cfg.App.Mode,
			Interval:       cfg.Schedule.Interval,
			OffsetSeconds:  cfg.Schedule.OffsetSeconds,
			RunImmediately: cfg.Schedule.RunImmediately,
		},
		Outputs: OutputSummary{
			ReportPath:  cfg.Report.OutputPath,
			HistoryPath: cfg.History.Path,
			TelegramOn:  cfg.Notify.Telegram.Enabled,
		},
	}
	if llm != nil {
		s.Agent.Model = llm.ID()
	}
	if stores != nil && stores.Archive != nil {
		s.Outputs.ArchivePath = cfg.Archive.Path
	}
	if chart != nil {
		s.Outputs.ChartPath = chart.HTMLPath()
	}
	if status != nil {
		s.Outputs.StatusAddr = status.Addr()
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[航线 (ROUTE)]")
	fmt.Printf("  出发地: %s\n", orDash(s.Route.Origin))
	fmt.Printf("  目的地: %s\n", formatList(s.Route.Destinations))
	fmt.Printf("  出行日期: %s\n", orDash(s.Route.TravelDates))
	fmt.Printf("  查价站点: %s\n", orDash(s.Route.SiteURL))
	fmt.Printf("  热更新: %v\n", s.Route.HotReload)
	fmt.Println()

	fmt.Println("[AGENT]")
	fmt.Printf("  模型: %s\n", orDash(s.Agent.Model))
	fmt.Printf("  浏览器: %s\n", orDash(s.Agent.BrowserMode))
	fmt.Printf("  步数上限: %d\n", s.Agent.MaxSteps)
	fmt.Printf("  单轮超时: %ds\n", s.Agent.TimeoutSeconds)
	fmt.Println()

	fmt.Println("[调度 (SCHEDULE)]")
	fmt.Printf("  模式: %s\n", orDash(s.Schedule.Mode))
	if strings.EqualFold(s.Schedule.Mode, ftcfg.ModeServe) {
		fmt.Printf("  查价周期: %s (offset=%ds)\n", s.Schedule.Interval, s.Schedule.OffsetSeconds)
		fmt.Printf("  启动即查: %v\n", s.Schedule.RunImmediately)
	}
	fmt.Println()

	fmt.Println("[产物 (OUTPUTS)]")
	fmt.Printf("  报表: %s\n", orDash(s.Outputs.ReportPath))
	fmt.Printf("  历史: %s\n", orDash(s.Outputs.HistoryPath))
	fmt.Printf("  档案: %s\n", orDash(s.Outputs.ArchivePath))
	fmt.Printf("  图表: %s\n", orDash(s.Outputs.ChartPath))
	fmt.Printf("  Telegram 提醒: %v\n", s.Outputs.TelegramOn)
	if s.Outputs.StatusAddr != "" {
		fmt.Printf("  状态接口: %s\n", s.Outputs.StatusAddr)
	}
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
