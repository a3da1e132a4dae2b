package config

import (
	"fmt"
	"strings"
	"time"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Route.validate(); err != nil {
		return err
	}
	if err := c.Agent.validate(); err != nil {
		return err
	}
	if err := c.Browser.validate(); err != nil {
		return err
	}
	if err := c.LLM.validate(); err != nil {
		return err
	}
	if err := c.Parser.validate(); err != nil {
		return err
	}
	if err := c.Report.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Schedule.validate(c.App.Mode); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	mode := strings.ToLower(strings.TrimSpace(a.Mode))
	if mode != ModeCheck && mode != ModeServe {
		return fmt.Errorf("app.mode only supports 'check' or 'serve', got %s", a.Mode)
	}
	a.Mode = mode
	return nil
}

func (r *RouteConfig) validate() error {
	if strings.TrimSpace(r.Origin) == "" {
		return fmt.Errorf("route.origin cannot be empty")
	}
	if len(r.DestinationList()) == 0 {
		return fmt.Errorf("route.destinations requires at least one destination")
	}
	if strings.TrimSpace(r.SiteURL) == "" {
		return fmt.Errorf("route.site_url cannot be empty")
	}
	return nil
}

func (a *AgentConfig) validate() error {
	if a.MaxSteps < 1 {
		return fmt.Errorf("agent.max_steps must be >= 1")
	}
	if a.TimeoutSeconds < 1 {
		return fmt.Errorf("agent.timeout_seconds must be >= 1")
	}
	return nil
}

func (b *BrowserConfig) validate() error {
	mode := strings.ToLower(strings.TrimSpace(b.Mode))
	if mode != BrowserModeCloud && mode != BrowserModeLocal {
		return fmt.Errorf("browser.mode only supports 'cloud' or 'local', got %s", b.Mode)
	}
	b.Mode = mode
	if mode == BrowserModeCloud {
		if strings.TrimSpace(b.APIURL) == "" {
			return fmt.Errorf("browser.api_url cannot be empty in cloud mode")
		}
		if strings.TrimSpace(b.APIKey) == "" {
			return fmt.Errorf("browser.api_key missing (set BROWSERBASE_API_KEY or config)")
		}
		if strings.TrimSpace(b.ProjectID) == "" {
			return fmt.Errorf("browser.project_id missing (set BROWSERBASE_PROJECT_ID or config)")
		}
	}
	return nil
}

func (l *LLMConfig) validate() error {
	if strings.TrimSpace(l.APIURL) == "" {
		return fmt.Errorf("llm.api_url cannot be empty")
	}
	if strings.TrimSpace(l.Model) == "" {
		return fmt.Errorf("llm.model cannot be empty")
	}
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key missing (set LLM_API_KEY or config)")
	}
	return nil
}

func (p *ParserConfig) validate() error {
	cur := strings.TrimSpace(p.DefaultCurrency)
	if len(cur) != 3 {
		return fmt.Errorf("parser.default_currency must be a 3-letter code, got %q", p.DefaultCurrency)
	}
	if p.MinPlausible < 0 {
		return fmt.Errorf("parser.min_plausible must be >= 0")
	}
	if p.MaxPlausible <= p.MinPlausible {
		return fmt.Errorf("parser plausibility bound inverted: min=%d max=%d", p.MinPlausible, p.MaxPlausible)
	}
	return nil
}

func (r *ReportConfig) validate() error {
	if strings.TrimSpace(r.OutputPath) == "" {
		return fmt.Errorf("report.output_path cannot be empty")
	}
	if _, err := time.LoadLocation(strings.TrimSpace(r.Timezone)); err != nil {
		return fmt.Errorf("report.timezone invalid: %w", err)
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

func (s *ScheduleConfig) validate(appMode string) error {
	if appMode != ModeServe {
		return nil
	}
	if !IsValidInterval(s.Interval) {
		return fmt.Errorf("schedule.interval invalid: %q (expects e.g. 30m/6h/1d)", s.Interval)
	}
	return nil
}

// IsValidInterval 简易校验：以数字开头，以 m/h/d/w 结尾
func IsValidInterval(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return false
	}
	suf := s[len(s)-1]
	if suf != 'm' && suf != 'h' && suf != 'd' && suf != 'w' {
		return false
	}
	for i := 0; i < len(s)-1; i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
