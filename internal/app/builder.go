package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/agent"
	ftcfg "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	cfgloader "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config/loader"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/fare"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/gateway/provider"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/history"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/report"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/store/runlog"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/tracker"
	statushttp "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/transport/http/status"
)

type AppBuilder struct {
	cfg *ftcfg.Config

	routeLoaderFn    func(string, ftcfg.RouteConfig) (*cfgloader.RouteLoader, error)
	providerFn       func(ftcfg.LLMConfig) (provider.ModelProvider, error)
	sessionFactoryFn func(*ftcfg.Config) (tracker.SessionFactory, error)
	storeStackFn     func(*ftcfg.Config) (*StoreStack, error)
	reportStackFn    func(ftcfg.ReportConfig) (*report.Renderer, *report.ChartRenderer, error)
	statusHTTPFn     func(*ftcfg.Config, *StoreStack, *report.ChartRenderer) (*statushttp.Server, error)

	agentOverride    tracker.AgentRunner
	historyOverride  tracker.HistoryStore
	notifierOverride tracker.Notifier
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *ftcfg.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:              cfg,
		routeLoaderFn:    cfgloader.NewRouteLoader,
		providerFn:       buildLLMProvider,
		sessionFactoryFn: buildSessionFactory,
		storeStackFn:     buildStoreStack,
		reportStackFn:    buildReportStack,
		statusHTTPFn:     buildStatusServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	routes, route, err := b.loadRouteSetup(cfg)
	if err != nil {
		return nil, err
	}
	logger.Infof("✓ 追踪航线: %s → %s", route.Origin, strings.Join(route.DestinationList(), ", "))
	logger.Infof("[route]\n%s", formatRouteSummary(route))

	llm, err := b.providerFn(cfg.LLM)
	if err != nil {
		return nil, err
	}

	stores, err := b.storeStackFn(cfg)
	if err != nil {
		return nil, err
	}

	executor := b.resolveAgent(llm, stores)

	sessionFactory, err := b.sessionFactoryFn(cfg)
	if err != nil {
		stores.Close()
		return nil, err
	}

	hist := b.resolveHistory(cfg)

	renderer, chart, err := b.reportStackFn(cfg.Report)
	if err != nil {
		stores.Close()
		return nil, err
	}

	var notif tracker.Notifier
	if b.notifierOverride != nil {
		notif = b.notifierOverride
	} else if tg := newTelegram(cfg.Notify); tg != nil {
		notif = tg
		logger.Infof("✓ Telegram 降价提醒已启用")
	}

	var archive tracker.Archive
	if stores.Archive != nil {
		archive = stores.Archive
	}
	var chartBuilder tracker.ChartBuilder
	if chart != nil {
		chartBuilder = chart
	}
	var routeProvider tracker.RouteProvider
	if routes != nil {
		routeProvider = routes
	}

	runner := tracker.NewRunner(tracker.RunnerParams{
		Config:     cfg,
		Routes:     routeProvider,
		NewSession: sessionFactory,
		Agent:      executor,
		Parser:     fare.NewParser(cfg.Parser.DefaultCurrency, cfg.Parser.MinPlausible, cfg.Parser.MaxPlausible),
		History:    hist,
		Report:     renderer,
		Archive:    archive,
		Chart:      chartBuilder,
		Notifier:   notif,
	})
	service := tracker.NewService(cfg, runner)

	statusServer, err := b.statusHTTPFn(cfg, stores, chart)
	if err != nil {
		stores.Close()
		return nil, err
	}

	return &App{
		cfg:        cfg,
		tracker:    service,
		statusHTTP: statusServer,
		stores:     stores,
		Summary:    buildStartupSummary(cfg, route, llm, stores, chart, statusServer, routes != nil),
	}, nil
}

// loadRouteSetup 返回热更新 loader（未配置独立航线文件时为 nil）和当前生效航线。
func (b *AppBuilder) loadRouteSetup(cfg *ftcfg.Config) (*cfgloader.RouteLoader, ftcfg.RouteConfig, error) {
	path := strings.TrimSpace(cfg.Route.ProfilePath)
	if path == "" {
		if len(cfg.Route.DestinationList()) == 0 {
			return nil, ftcfg.RouteConfig{}, fmt.Errorf("route.destinations 未配置，无法启动查价")
		}
		return nil, cfg.Route, nil
	}
	loader, err := b.routeLoaderFn(path, cfg.Route)
	if err != nil {
		return nil, ftcfg.RouteConfig{}, fmt.Errorf("加载航线文件失败: %w", err)
	}
	logger.Infof("✓ 航线文件热更新已启用: %s", path)
	return loader, loader.Route(), nil
}

func (b *AppBuilder) resolveAgent(llm provider.ModelProvider, stores *StoreStack) tracker.AgentRunner {
	if b.agentOverride != nil {
		return b.agentOverride
	}
	var observer agent.StepObserver
	if stores != nil && stores.RunLog != nil {
		observer = runlog.NewObserver(stores.RunLog)
	}
	return agent.NewExecutor(llm, observer)
}

func (b *AppBuilder) resolveHistory(cfg *ftcfg.Config) tracker.HistoryStore {
	if b.historyOverride != nil {
		return b.historyOverride
	}
	return history.NewStore(cfg.History.Path)
}

func WithRouteLoader(fn func(string, ftcfg.RouteConfig) (*cfgloader.RouteLoader, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.routeLoaderFn = fn
		}
	}
}

func WithProvider(fn func(ftcfg.LLMConfig) (provider.ModelProvider, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.providerFn = fn
		}
	}
}

func WithSessionFactory(fn func(*ftcfg.Config) (tracker.SessionFactory, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.sessionFactoryFn = fn
		}
	}
}

func WithStoreStack(fn func(*ftcfg.Config) (*StoreStack, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.storeStackFn = fn
		}
	}
}

func WithStatusServer(fn func(*ftcfg.Config, *StoreStack, *report.ChartRenderer) (*statushttp.Server, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.statusHTTPFn = fn
		}
	}
}

func WithAgentRunner(runner tracker.AgentRunner) AppBuilderOption {
	return func(b *AppBuilder) {
		if runner != nil {
			b.agentOverride = runner
		}
	}
}

func WithHistoryStore(store tracker.HistoryStore) AppBuilderOption {
	return func(b *AppBuilder) {
		if store != nil {
			b.historyOverride = store
		}
	}
}

func WithNotifier(n tracker.Notifier) AppBuilderOption {
	return func(b *AppBuilder) {
		if n != nil {
			b.notifierOverride = n
		}
	}
}
