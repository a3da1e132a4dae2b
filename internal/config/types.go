package config

import "strings"

// app.mode 的两种跑法。
const (
	ModeCheck = "check" // 单次运行，适合 CI 定时触发
	ModeServe = "serve" // 常驻进程：调度器 + 状态 API
)

// browser.mode 的两种会话来源。
const (
	BrowserModeCloud = "cloud"
	BrowserModeLocal = "local"
)

// Config 是 flight-tracker 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Route    RouteConfig    `toml:"route"`
	Agent    AgentConfig    `toml:"agent"`
	Browser  BrowserConfig  `toml:"browser"`
	LLM      LLMConfig      `toml:"llm"`
	Parser   ParserConfig   `toml:"parser"`
	History  HistoryConfig  `toml:"history"`
	Report   ReportConfig   `toml:"report"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Schedule ScheduleConfig `toml:"schedule"`
}

type AppConfig struct {
	Mode      string `toml:"mode"` // "check"（单次）| "serve"（常驻）
	LogLevel  string `toml:"log_level"`
	LogPath   string `toml:"log_path"`
	HTTPAddr  string `toml:"http_addr"`
	AgentLog  string `toml:"agent_log_path"`
	AgentDump bool   `toml:"agent_dump_payload"`
}

// RouteConfig 描述要盯的航线：出发地、目的地列表、出行日期描述。
type RouteConfig struct {
	Origin       string   `toml:"origin"`
	Destinations []string `toml:"destinations"`
	TravelDates  string   `toml:"travel_dates"`
	SiteURL      string   `toml:"site_url"`
	ProfilePath  string   `toml:"profile_path"` // 可选：独立的航线 YAML，支持热更新
}

// DestinationList 返回去掉空白项后的目的地列表。
func (r RouteConfig) DestinationList() []string {
	out := make([]string, 0, len(r.Destinations))
	for _, d := range r.Destinations {
		d = strings.TrimSpace(d)
		if d != "" {
			out = append(out, d)
		}
	}
	return out
}

type AgentConfig struct {
	MaxSteps            int    `toml:"max_steps"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
	InstructionTemplate string `toml:"instruction_template"` // 可选：覆盖默认指令模板
}

// BrowserConfig 描述浏览器会话来源：云端（Browserbase 风格 API）或本地 headless。
type BrowserConfig struct {
	Mode           string `toml:"mode"` // "cloud" | "local"
	APIURL         string `toml:"api_url"`
	APIKey         string `toml:"api_key"`
	ProjectID      string `toml:"project_id"`
	Headless       bool   `toml:"headless"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

type LLMConfig struct {
	APIURL         string            `toml:"api_url"`
	APIKey         string            `toml:"api_key"`
	Model          string            `toml:"model"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
	MaxRetries     int               `toml:"max_retries"`
	Headers        map[string]string `toml:"headers"`
}

// ParserConfig 控制兜底解析：默认币种与可信价格区间。
type ParserConfig struct {
	DefaultCurrency string `toml:"default_currency"`
	MinPlausible    int64  `toml:"min_plausible"`
	MaxPlausible    int64  `toml:"max_plausible"`
}

type HistoryConfig struct {
	Path string `toml:"path"`
}

type ReportConfig struct {
	OutputPath   string `toml:"output_path"`
	Timezone     string `toml:"timezone"`
	ChartEnabled bool   `toml:"chart_enabled"`
	ChartPath    string `toml:"chart_path"`
	ChartPNG     bool   `toml:"chart_png"`
	SMAWindow    int    `toml:"sma_window"`
}

type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

type NotifyConfig struct {
	Telegram   TelegramConfig `toml:"telegram"`
	MinDropPct float64        `toml:"min_drop_pct"` // 跌幅达到该百分比才推送
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
}

type ScheduleConfig struct {
	Interval       string `toml:"interval"`
	OffsetSeconds  int    `toml:"offset_seconds"`
	RunImmediately bool   `toml:"run_immediately"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
