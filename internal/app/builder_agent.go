package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/browser"
	ftcfg "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/gateway/browserbase"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/gateway/provider"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/tracker"
)

func buildLLMProvider(cfg ftcfg.LLMConfig) (provider.ModelProvider, error) {
	if strings.TrimSpace(cfg.APIURL) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("llm.api_url / llm.api_key 未配置，无法初始化 AI 模型")
	}
	p := provider.NewFromConfig(cfg)
	logger.Infof("✓ AI 模型就绪: %s", p.ID())
	return p, nil
}

// buildSessionFactory 按 browser.mode 决定会话来源。cloud 模式先初始化
// 会话 API client，local 模式直接起本机 headless。每轮查价各开一个
// 新会话，跑完即清理，不复用。
func buildSessionFactory(cfg *ftcfg.Config) (tracker.SessionFactory, error) {
	browserCfg := cfg.Browser
	var api *browserbase.Client
	switch strings.ToLower(strings.TrimSpace(browserCfg.Mode)) {
	case ftcfg.BrowserModeCloud:
		client, err := browserbase.NewClient(browserCfg)
		if err != nil {
			return nil, fmt.Errorf("初始化云端浏览器 API 失败: %w", err)
		}
		api = client
		logger.Infof("✓ 云端浏览器会话 API: %s", browserCfg.APIURL)
	case ftcfg.BrowserModeLocal:
		logger.Infof("✓ 使用本地 headless 浏览器 (headless=%v)", browserCfg.Headless)
	default:
		return nil, fmt.Errorf("未知的 browser.mode: %q", browserCfg.Mode)
	}
	return func(ctx context.Context) (tracker.BrowserSession, error) {
		return browser.NewSession(ctx, browserCfg, api)
	}, nil
}
