package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/gateway/browserbase"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/pkg/text"
)

const (
	viewportWidth  = 1440
	viewportHeight = 900

	// 单个浏览器动作的兜底超时，防止某次 Run 卡死整个 agent 循环。
	defaultOpTimeout = 45 * time.Second

	// 喂给模型的页面文本上限；机票结果页动辄几万字符，全量塞提示词纯属浪费。
	maxVisibleTextLen = 6000
)

// Session 是 agent 操作的那一个浏览器标签页。
// 云端模式通过 CDP 远程接入 Browserbase 风格的会话；本地模式起 headless Chrome。
type Session struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	opTimeout   time.Duration

	cloudID string
	release func(context.Context) error
}

// NewSession 按配置建立浏览器会话。mode=cloud 需要已初始化的会话 API client。
func NewSession(ctx context.Context, cfg config.BrowserConfig, api *browserbase.Client) (*Session, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Mode)) {
	case config.BrowserModeCloud:
		if api == nil {
			return nil, fmt.Errorf("cloud 模式需要会话 API client")
		}
		return newCloudSession(ctx, api)
	case config.BrowserModeLocal:
		return newLocalSession(ctx, cfg.Headless)
	default:
		return nil, fmt.Errorf("未知的 browser.mode: %q", cfg.Mode)
	}
}

func newCloudSession(ctx context.Context, api *browserbase.Client) (*Session, error) {
	cloud, err := api.CreateSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("创建云端会话失败: %w", err)
	}
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, cloud.ConnectURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s := &Session{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		opTimeout:   defaultOpTimeout,
		cloudID:     cloud.ID,
		release:     func(releaseCtx context.Context) error { return api.ReleaseSession(releaseCtx, cloud.ID) },
	}
	if err := s.prime(); err != nil {
		s.teardownBrowser()
		if relErr := s.releaseCloud(ctx); relErr != nil {
			logger.Warnf("接入失败后释放云端会话也失败: %v", relErr)
		}
		return nil, fmt.Errorf("接入云端浏览器失败: %w", err)
	}
	return s, nil
}

func newLocalSession(ctx context.Context, headless bool) (*Session, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", headless),
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	s := &Session{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		opTimeout:   defaultOpTimeout,
	}
	if err := s.prime(); err != nil {
		s.teardownBrowser()
		return nil, fmt.Errorf("启动本地浏览器失败: %w", err)
	}
	return s, nil
}

// prime 建立与浏览器的连接并固定视口。
func (s *Session) prime() error {
	return s.run(chromedp.Tasks{
		chromedp.EmulateViewport(int64(viewportWidth), int64(viewportHeight)),
	})
}

func (s *Session) run(actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.tabCtx, s.opTimeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// CloudSessionID 返回云端会话 ID（本地模式为空）。
func (s *Session) CloudSessionID() string { return s.cloudID }

func (s *Session) Navigate(rawURL string) error {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fmt.Errorf("navigate url 不能为空")
	}
	return s.run(
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

func (s *Session) Location() (string, error) {
	var loc string
	if err := s.run(chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (s *Session) Title() (string, error) {
	var title string
	if err := s.run(chromedp.Title(&title)); err != nil {
		return "", err
	}
	return title, nil
}

// VisibleText 抓取页面可见文本，折叠空白并截断，作为 agent 的"眼睛"。
func (s *Session) VisibleText() (string, error) {
	var raw string
	err := s.run(chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &raw))
	if err != nil {
		return "", err
	}
	return text.Excerpt(raw, maxVisibleTextLen), nil
}

func (s *Session) Click(selector string) error {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return fmt.Errorf("click selector 不能为空")
	}
	return s.run(chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

// Type 清空输入框后键入文本；submit 为 true 时补一个回车。
func (s *Session) Type(selector, value string, submit bool) error {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return fmt.Errorf("type selector 不能为空")
	}
	tasks := chromedp.Tasks{
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	}
	if submit {
		tasks = append(tasks, chromedp.SendKeys(selector, kb.Enter, chromedp.ByQuery))
	}
	return s.run(tasks)
}

func (s *Session) WaitVisible(selector string, timeout time.Duration) error {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return fmt.Errorf("wait selector 不能为空")
	}
	if timeout <= 0 || timeout > s.opTimeout {
		timeout = s.opTimeout
	}
	runCtx, cancel := context.WithTimeout(s.tabCtx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

// Sleep 给静态等待动作用；上限防止模型把整个步骤预算睡掉。
func (s *Session) Sleep(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if d > 15*time.Second {
		d = 15 * time.Second
	}
	return s.run(chromedp.Sleep(d))
}

func (s *Session) Screenshot() ([]byte, error) {
	var png []byte
	if err := s.run(chromedp.FullScreenshot(&png, 0)); err != nil {
		return nil, err
	}
	return png, nil
}

// Close 回收浏览器与云端会话。无论前面失败到哪一步都会把两边都尝试一遍。
func (s *Session) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.teardownBrowser()
	if err := s.releaseCloud(ctx); err != nil {
		return fmt.Errorf("释放云端会话失败: %w", err)
	}
	return nil
}

func (s *Session) teardownBrowser() {
	if s.tabCancel != nil {
		s.tabCancel()
		s.tabCancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
}

func (s *Session) releaseCloud(ctx context.Context) error {
	if s.release == nil {
		return nil
	}
	release := s.release
	s.release = nil
	// 主 ctx 可能已经超时/取消，释放动作换一个短超时的独立 ctx。
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	return release(releaseCtx)
}
