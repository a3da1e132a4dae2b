package app

import (
	"context"
	"fmt"
	"strings"

	ftcfg "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/tracker"
	statushttp "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/transport/http/status"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动查价服务与状态接口。
type App struct {
	cfg        *ftcfg.Config
	tracker    *tracker.Service
	statusHTTP *statushttp.Server
	stores     *StoreStack // 持有归档连接，进程退出时统一关闭
	Summary    *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *ftcfg.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动查价服务；serve 模式下状态接口并行运行。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}

	if a.Summary != nil {
		a.Summary.Print()
	}

	if a.tracker == nil {
		return fmt.Errorf("tracker service not initialized")
	}
	group, ctx := errgroup.WithContext(ctx)

	if a.statusHTTP != nil {
		group.Go(func() error {
			if err := a.statusHTTP.Start(ctx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
	}

	group.Go(func() error {
		defer a.closeStores()
		return a.tracker.Run(ctx)
	})

	return group.Wait()
}

// Tracker exposes the underlying tracker service (for testing/replay harnesses).
func (a *App) Tracker() *tracker.Service {
	if a == nil {
		return nil
	}
	return a.tracker
}

func (a *App) closeStores() {
	if a.stores == nil {
		return
	}
	if err := a.stores.Close(); err != nil {
		logger.Warnf("关闭档案存储失败: %v", err)
	}
}

func formatRouteSummary(route ftcfg.RouteConfig) string {
	toList := func(items []string) string {
		if len(items) == 0 {
			return "-"
		}
		return strings.Join(items, ", ")
	}
	return strings.Join([]string{
		fmt.Sprintf("出发地：%s", route.Origin),
		fmt.Sprintf("- 目的地：%s", toList(route.DestinationList())),
		fmt.Sprintf("- 出行日期：%s", route.TravelDates),
	}, "\n")
}
