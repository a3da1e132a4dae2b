package browserbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	ftconfig "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
)

// Client wraps the cloud browser session API (Browserbase-style REST surface).
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	apiKey     string
	projectID  string
}

// Session 云端浏览器会话句柄；ConnectURL 是 chromedp 远程接入用的 CDP 地址。
type Session struct {
	ID         string
	ConnectURL string
	Status     string
}

// NewClient constructs a session API client from configuration.
func NewClient(cfg ftconfig.BrowserConfig) (*Client, error) {
	raw := strings.TrimSpace(cfg.APIURL)
	if raw == "" {
		return nil, fmt.Errorf("browser.api_url 不能为空")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("解析 browser.api_url 失败: %w", err)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("browser.api_key 不能为空（可用 BROWSERBASE_API_KEY 注入）")
	}
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("browser.project_id 不能为空（可用 BROWSERBASE_PROJECT_ID 注入）")
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: timeout},
		apiKey:     apiKey,
		projectID:  projectID,
	}, nil
}

// SetHTTPClient sets the HTTP client for testing.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// CreateSession 申请一个新的云端浏览器会话。
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	payload := map[string]any{"projectId": c.projectID}
	raw, err := c.doRequest(ctx, http.MethodPost, "/v1/sessions", payload)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(raw)
	sess := &Session{
		ID:         strings.TrimSpace(doc.Get("id").String()),
		ConnectURL: strings.TrimSpace(doc.Get("connectUrl").String()),
		Status:     strings.TrimSpace(doc.Get("status").String()),
	}
	if sess.ID == "" {
		return nil, fmt.Errorf("会话响应缺少 id: %s", excerpt(raw))
	}
	if sess.ConnectURL == "" {
		return nil, fmt.Errorf("会话响应缺少 connectUrl: %s", excerpt(raw))
	}
	logger.Infof("云端浏览器会话已创建: id=%s status=%s", sess.ID, sess.Status)
	return sess, nil
}

// ReleaseSession 主动归还会话，避免云端按分钟计费的实例悬挂。
func (c *Client) ReleaseSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("session id 不能为空")
	}
	payload := map[string]any{
		"projectId": c.projectID,
		"status":    "REQUEST_RELEASE",
	}
	if _, err := c.doRequest(ctx, http.MethodPost, "/v1/sessions/"+sessionID, payload); err != nil {
		return err
	}
	logger.Infof("云端浏览器会话已释放: id=%s", sessionID)
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c == nil || c.httpClient == nil {
		return nil, fmt.Errorf("browserbase client 未初始化")
	}
	endpoint, err := c.resolveEndpoint(path)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("序列化请求失败: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, fmt.Errorf("构造请求失败: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-BB-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用会话 API 失败: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode >= 300 {
		if len(data) == 0 {
			return nil, fmt.Errorf("会话 API 返回错误: %s", resp.Status)
		}
		return nil, fmt.Errorf("会话 API 返回错误(%s): %s", resp.Status, excerpt(data))
	}
	return data, nil
}

func (c *Client) resolveEndpoint(path string) (*url.URL, error) {
	if c.baseURL == nil {
		return nil, fmt.Errorf("会话 API 地址未设置")
	}
	trimmed := strings.TrimSpace(path)
	if !strings.HasPrefix(trimmed, "/") {
		trimmed = "/" + trimmed
	}
	base := *c.baseURL
	base.Path = strings.TrimSuffix(base.Path, "/") + trimmed
	base.RawPath = ""
	base.Fragment = ""
	return &base, nil
}

func excerpt(data []byte) string {
	s := strings.TrimSpace(string(data))
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}
