package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ftcfg "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/gateway/provider"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/tracker"
)

type stubProvider struct{}

func (stubProvider) ID() string { return "stub-llm" }
func (stubProvider) Call(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return `{"action":"finish","message":"RESULTS:\nAthens: ZAR 9999"}`, nil
}

func appTestConfig(t *testing.T) *ftcfg.Config {
	t.Helper()
	dir := t.TempDir()
	return &ftcfg.Config{
		App: ftcfg.AppConfig{
			Mode:     ftcfg.ModeCheck,
			LogLevel: "error",
			HTTPAddr: ":0",
		},
		Route: ftcfg.RouteConfig{
			Origin:       "Cape Town",
			Destinations: []string{"Athens", "Mykonos"},
			TravelDates:  "Dec 1-14, 2025",
			SiteURL:      "https://flights.example.com",
		},
		Agent:   ftcfg.AgentConfig{MaxSteps: 5, TimeoutSeconds: 60},
		Browser: ftcfg.BrowserConfig{Mode: ftcfg.BrowserModeLocal, Headless: true},
		LLM: ftcfg.LLMConfig{
			APIURL: "https://llm.example.com/v1",
			APIKey: "test-key",
			Model:  "test-model",
		},
		Parser:  ftcfg.ParserConfig{DefaultCurrency: "ZAR", MinPlausible: 2000, MaxPlausible: 150000},
		History: ftcfg.HistoryConfig{Path: filepath.Join(dir, "price-history.json")},
		Report: ftcfg.ReportConfig{
			OutputPath:   filepath.Join(dir, "README.md"),
			Timezone:     "UTC",
			ChartEnabled: true,
			ChartPath:    filepath.Join(dir, "chart.html"),
			SMAWindow:    7,
		},
		Archive:  ftcfg.ArchiveConfig{Enabled: true, Path: filepath.Join(dir, "fare-archive.db")},
		Schedule: ftcfg.ScheduleConfig{Interval: "1d", RunImmediately: true},
	}
}

func TestAppBuilder_BuildCheckMode(t *testing.T) {
	cfg := appTestConfig(t)

	app, err := NewAppBuilder(cfg).Build(context.Background())
	require.NoError(t, err)
	require.NotNil(t, app)
	defer app.stores.Close()

	assert.NotNil(t, app.Tracker())
	assert.Nil(t, app.statusHTTP, "check 模式不应启动状态接口")
	require.NotNil(t, app.stores)
	assert.NotNil(t, app.stores.Archive)
	assert.NotNil(t, app.stores.RunLog)

	require.NotNil(t, app.Summary)
	assert.Equal(t, "Cape Town", app.Summary.Route.Origin)
	assert.Equal(t, []string{"Athens", "Mykonos"}, app.Summary.Route.Destinations)
	assert.Equal(t, "test-model", app.Summary.Agent.Model)
	assert.Equal(t, cfg.Archive.Path, app.Summary.Outputs.ArchivePath)
	assert.Equal(t, cfg.Report.ChartPath, app.Summary.Outputs.ChartPath)
	assert.False(t, app.Summary.Route.HotReload)
}

func TestAppBuilder_ServeModeStartsStatusServer(t *testing.T) {
	cfg := appTestConfig(t)
	cfg.App.Mode = ftcfg.ModeServe
	cfg.App.HTTPAddr = ":18787"

	app, err := NewAppBuilder(cfg).Build(context.Background())
	require.NoError(t, err)
	defer app.stores.Close()

	require.NotNil(t, app.statusHTTP)
	assert.Equal(t, ":18787", app.statusHTTP.Addr())
	assert.Equal(t, ":18787", app.Summary.Outputs.StatusAddr)
}

func TestAppBuilder_ArchiveDisabledSkipsStores(t *testing.T) {
	cfg := appTestConfig(t)
	cfg.Archive.Enabled = false

	app, err := NewAppBuilder(cfg).Build(context.Background())
	require.NoError(t, err)

	require.NotNil(t, app.stores)
	assert.Nil(t, app.stores.Archive)
	assert.Nil(t, app.stores.RunLog)
	assert.Empty(t, app.Summary.Outputs.ArchivePath)
}

func TestAppBuilder_RequiresDestinations(t *testing.T) {
	cfg := appTestConfig(t)
	cfg.Route.Destinations = nil

	_, err := NewAppBuilder(cfg).Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "route.destinations")
}

func TestAppBuilder_RequiresLLMCredentials(t *testing.T) {
	cfg := appTestConfig(t)
	cfg.LLM.APIKey = ""

	_, err := NewAppBuilder(cfg).Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.api_url / llm.api_key")
}

func TestAppBuilder_RejectsUnknownBrowserMode(t *testing.T) {
	cfg := appTestConfig(t)
	cfg.Browser.Mode = "teleport"

	_, err := NewAppBuilder(cfg).Build(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "browser.mode")
}

func TestAppBuilder_ProviderOverrideSkipsCredentialCheck(t *testing.T) {
	cfg := appTestConfig(t)
	cfg.LLM.APIKey = "" // 默认构建会拒绝，override 应绕开

	app, err := NewAppBuilder(cfg,
		WithProvider(func(ftcfg.LLMConfig) (provider.ModelProvider, error) {
			return stubProvider{}, nil
		}),
	).Build(context.Background())
	require.NoError(t, err)
	defer app.stores.Close()

	assert.Equal(t, "stub-llm", app.Summary.Agent.Model)
}

func TestAppBuilder_StoreStackOverride(t *testing.T) {
	cfg := appTestConfig(t)
	called := false

	app, err := NewAppBuilder(cfg,
		WithStoreStack(func(*ftcfg.Config) (*StoreStack, error) {
			called = true
			return &StoreStack{}, nil
		}),
		WithSessionFactory(func(*ftcfg.Config) (tracker.SessionFactory, error) {
			return func(ctx context.Context) (tracker.BrowserSession, error) { return nil, nil }, nil
		}),
	).Build(context.Background())
	require.NoError(t, err)

	assert.True(t, called)
	assert.Nil(t, app.stores.Archive)
}

func TestNewApp_NilConfig(t *testing.T) {
	_, err := NewApp(nil)
	require.Error(t, err)
}

func TestChartPNGPath(t *testing.T) {
	assert.Equal(t, "data/chart.png", chartPNGPath("data/chart.html"))
	assert.Equal(t, "chart.png", chartPNGPath("chart"))
}

func TestRelativeChartLink(t *testing.T) {
	assert.Equal(t, "data/chart.html", relativeChartLink("README.md", "data/chart.html"))
	assert.Equal(t, "chart.html", relativeChartLink("data/README.md", "data/chart.html"))
	assert.Equal(t, "../chart.html", relativeChartLink("data/README.md", "chart.html"))
}
