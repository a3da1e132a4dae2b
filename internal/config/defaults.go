package config

import "strings"

// 默认值常量
const (
	defaultAppMode          = ModeCheck
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":8700"
	defaultRouteOrigin      = "Cape Town"
	defaultRouteTravelDates = "1-14 December 2025"
	defaultRouteSiteURL     = "https://www.google.com/travel/flights"
	defaultAgentMaxSteps    = 25
	defaultAgentTimeout     = 600
	defaultBrowserMode      = BrowserModeCloud
	defaultBrowserAPI       = "https://api.browserbase.com"
	defaultBrowserTimeout   = 30
	defaultLLMAPI           = "https://api.openai.com/v1/chat/completions"
	defaultLLMModel         = "gpt-4o-mini"
	defaultLLMTimeout       = 120
	defaultLLMMaxRetries    = 3
	defaultCurrencyCode     = "ZAR"
	defaultMinPlausible     = 5000
	defaultMaxPlausible     = 50000
	defaultHistoryPath      = "data/price-history.json"
	defaultReportPath       = "README.md"
	defaultReportTimezone   = "Africa/Johannesburg"
	defaultChartPath        = "data/fare-chart.html"
	defaultSMAWindow        = 7
	defaultArchivePath      = "data/fare-archive.db"
	defaultMinDropPct       = 5.0
	defaultScheduleInterval = "1d"
)

// defaultDestinations 是未配置目的地时盯的那组希腊航线。
var defaultDestinations = []string{"Athens", "Santorini", "Mykonos", "Heraklion"}

// applyDefaults 为所有子配置应用默认值。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Route.applyDefaults(keys)
	c.Agent.applyDefaults(keys)
	c.Browser.applyDefaults(keys)
	c.LLM.applyDefaults(keys)
	c.Parser.applyDefaults(keys)
	c.History.applyDefaults(keys)
	c.Report.applyDefaults(keys)
	c.Archive.applyDefaults(keys)
	c.Notify.applyDefaults(keys)
	c.Schedule.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.mode", &a.Mode, defaultAppMode),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (r *RouteConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("route.origin", &r.Origin, defaultRouteOrigin),
		stringFieldDefault("route.travel_dates", &r.TravelDates, defaultRouteTravelDates),
		stringFieldDefault("route.site_url", &r.SiteURL, defaultRouteSiteURL),
	)
	if !keys.isSet("route.destinations") && len(r.DestinationList()) == 0 {
		r.Destinations = append([]string(nil), defaultDestinations...)
	}
}

func (a *AgentConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "agent.max_steps",
			need:  func() bool { return a.MaxSteps <= 0 },
			apply: func() { a.MaxSteps = defaultAgentMaxSteps },
		},
		fieldDefault{
			key:   "agent.timeout_seconds",
			need:  func() bool { return a.TimeoutSeconds <= 0 },
			apply: func() { a.TimeoutSeconds = defaultAgentTimeout },
		},
	)
}

func (b *BrowserConfig) applyDefaults(keys keySet) {
	if b == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("browser.mode", &b.Mode, defaultBrowserMode),
		stringFieldDefault("browser.api_url", &b.APIURL, defaultBrowserAPI),
		boolFieldDefault("browser.headless", &b.Headless, true),
		fieldDefault{
			key:   "browser.timeout_seconds",
			need:  func() bool { return b.TimeoutSeconds <= 0 },
			apply: func() { b.TimeoutSeconds = defaultBrowserTimeout },
		},
	)
}

func (l *LLMConfig) applyDefaults(keys keySet) {
	if l == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("llm.api_url", &l.APIURL, defaultLLMAPI),
		stringFieldDefault("llm.model", &l.Model, defaultLLMModel),
		fieldDefault{
			key:   "llm.timeout_seconds",
			need:  func() bool { return l.TimeoutSeconds <= 0 },
			apply: func() { l.TimeoutSeconds = defaultLLMTimeout },
		},
		fieldDefault{
			key:   "llm.max_retries",
			need:  func() bool { return l.MaxRetries <= 0 },
			apply: func() { l.MaxRetries = defaultLLMMaxRetries },
		},
	)
}

func (p *ParserConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("parser.default_currency", &p.DefaultCurrency, defaultCurrencyCode),
		fieldDefault{
			key:   "parser.min_plausible",
			need:  func() bool { return p.MinPlausible <= 0 },
			apply: func() { p.MinPlausible = defaultMinPlausible },
		},
		fieldDefault{
			key:   "parser.max_plausible",
			need:  func() bool { return p.MaxPlausible <= 0 },
			apply: func() { p.MaxPlausible = defaultMaxPlausible },
		},
	)
	p.DefaultCurrency = strings.ToUpper(strings.TrimSpace(p.DefaultCurrency))
}

func (h *HistoryConfig) applyDefaults(keys keySet) {
	if h == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("history.path", &h.Path, defaultHistoryPath),
	)
}

func (r *ReportConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("report.output_path", &r.OutputPath, defaultReportPath),
		stringFieldDefault("report.timezone", &r.Timezone, defaultReportTimezone),
		stringFieldDefault("report.chart_path", &r.ChartPath, defaultChartPath),
		boolFieldDefault("report.chart_enabled", &r.ChartEnabled, true),
		fieldDefault{
			key:   "report.sma_window",
			need:  func() bool { return r.SMAWindow <= 0 },
			apply: func() { r.SMAWindow = defaultSMAWindow },
		},
	)
}

func (a *ArchiveConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("archive.enabled", &a.Enabled, true),
		stringFieldDefault("archive.path", &a.Path, defaultArchivePath),
	)
}

func (n *NotifyConfig) applyDefaults(keys keySet) {
	if n == nil {
		return
	}
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "notify.min_drop_pct",
			need:  func() bool { return n.MinDropPct <= 0 },
			apply: func() { n.MinDropPct = defaultMinDropPct },
		},
	)
}

func (s *ScheduleConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("schedule.interval", &s.Interval, defaultScheduleInterval),
		boolFieldDefault("schedule.run_immediately", &s.RunImmediately, true),
	)
	if s.OffsetSeconds < 0 {
		s.OffsetSeconds = 0
	}
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
