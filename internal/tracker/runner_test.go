package tracker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/agent"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/fare"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/gateway/notifier"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/history"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/report"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/store/farelog"
)

type MockSession struct {
	mock.Mock
}

func (m *MockSession) Navigate(string) error                   { return nil }
func (m *MockSession) Location() (string, error)               { return "https://flights.example.com", nil }
func (m *MockSession) Title() (string, error)                  { return "Flights", nil }
func (m *MockSession) VisibleText() (string, error)            { return "", nil }
func (m *MockSession) Click(string) error                      { return nil }
func (m *MockSession) Type(string, string, bool) error         { return nil }
func (m *MockSession) WaitVisible(string, time.Duration) error { return nil }
func (m *MockSession) Sleep(time.Duration) error               { return nil }
func (m *MockSession) CloudSessionID() string                  { return "" }
func (m *MockSession) Screenshot() ([]byte, error)             { return nil, nil }
func (m *MockSession) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockAgent struct {
	mock.Mock
}

func (m *MockAgent) Run(ctx context.Context, b agent.Browser, task agent.Task) (agent.Result, error) {
	args := m.Called(ctx, b, task)
	return args.Get(0).(agent.Result), args.Error(1)
}

type MockHistory struct {
	mock.Mock
}

func (m *MockHistory) Load() (fare.Snapshot, bool, error) {
	args := m.Called()
	return args.Get(0).(fare.Snapshot), args.Bool(1), args.Error(2)
}
func (m *MockHistory) Save(snap fare.Snapshot) error {
	args := m.Called(snap)
	return args.Error(0)
}

type MockReport struct {
	mock.Mock
}

func (m *MockReport) Render(snap fare.Snapshot, route config.RouteConfig) (string, error) {
	args := m.Called(snap, route)
	return args.String(0), args.Error(1)
}
func (m *MockReport) Write(content string) error {
	args := m.Called(content)
	return args.Error(0)
}

type MockArchive struct {
	mock.Mock
}

func (m *MockArchive) RecordRun(ctx context.Context, run farelog.RunRecord, records []fare.Record) error {
	args := m.Called(ctx, run, records)
	return args.Error(0)
}
func (m *MockArchive) Destinations(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}
func (m *MockArchive) SeriesByDestination(ctx context.Context, destination string, limit int) ([]farelog.Observation, error) {
	args := m.Called(ctx, destination, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]farelog.Observation), args.Error(1)
}

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) SendStructured(msg notifier.StructuredMessage) error {
	args := m.Called(msg)
	return args.Error(0)
}

type MockChart struct {
	mock.Mock
}

func (m *MockChart) Render(ctx context.Context, input report.ChartInput) error {
	args := m.Called(ctx, input)
	return args.Error(0)
}

func trackerTestConfig() *config.Config {
	return &config.Config{
		Route: config.RouteConfig{
			Origin:       "Cape Town",
			Destinations: []string{"Athens", "Mykonos"},
			TravelDates:  "Dec 1-14, 2025",
			SiteURL:      "https://flights.example.com",
		},
		Agent:  config.AgentConfig{MaxSteps: 5, TimeoutSeconds: 60},
		Notify: config.NotifyConfig{MinDropPct: 5},
	}
}

type runnerFixture struct {
	session  *MockSession
	agent    *MockAgent
	history  *MockHistory
	report   *MockReport
	archive  *MockArchive
	notifier *MockNotifier
	runner   *Runner
}

func newRunnerFixture() *runnerFixture {
	f := &runnerFixture{
		session:  new(MockSession),
		agent:    new(MockAgent),
		history:  new(MockHistory),
		report:   new(MockReport),
		archive:  new(MockArchive),
		notifier: new(MockNotifier),
	}
	f.runner = NewRunner(RunnerParams{
		Config:     trackerTestConfig(),
		NewSession: func(context.Context) (BrowserSession, error) { return f.session, nil },
		Agent:      f.agent,
		Parser:     fare.NewParser("ZAR", 5000, 50000),
		History:    f.history,
		Report:     f.report,
		Archive:    f.archive,
		Notifier:   f.notifier,
	})
	return f
}

const agentReport = "RESULTS:\nAthens: ZAR 10560\nMykonos: ZAR 9299"

func TestRunner_RunOnceHappyPath(t *testing.T) {
	f := newRunnerFixture()
	ctx := context.Background()

	f.session.On("Close", mock.Anything).Return(nil)
	f.agent.On("Run", mock.Anything, f.session, mock.Anything).
		Return(agent.Result{RunID: "run-1", Message: agentReport, StepsUsed: 3}, nil)
	f.history.On("Load").Return(fare.Snapshot{}, false, nil)
	f.report.On("Render", mock.Anything, mock.Anything).Return("# report", nil)
	f.report.On("Write", "# report").Return(nil)
	f.history.On("Save", mock.Anything).Return(nil)
	f.archive.On("RecordRun", mock.Anything, mock.MatchedBy(func(run farelog.RunRecord) bool {
		return run.RunID == "run-1" && run.Status == farelog.RunStatusOK && run.RecordCount == 2
	}), mock.Anything).Return(nil)

	err := f.runner.RunOnce(ctx)

	require.NoError(t, err)
	f.session.AssertExpectations(t)
	f.report.AssertExpectations(t)
	f.archive.AssertExpectations(t)

	saved := f.history.Calls[len(f.history.Calls)-1].Arguments.Get(0).(fare.Snapshot)
	require.Len(t, saved.Current, 2)
	assert.Equal(t, "Athens", saved.Current[0].Destination)
	assert.Equal(t, int64(10560), saved.Current[0].AmountMinor)
	assert.Empty(t, saved.Previous)
	// 首跑没有对比基准，不该有降价推送
	f.notifier.AssertNotCalled(t, "SendStructured", mock.Anything)
}

func TestRunner_SessionClosedOnAgentError(t *testing.T) {
	f := newRunnerFixture()

	sessErr := &agent.SessionError{RunID: "run-2", Stage: "llm", Err: errors.New("model overloaded")}
	f.session.On("Close", mock.Anything).Return(nil)
	f.agent.On("Run", mock.Anything, f.session, mock.Anything).
		Return(agent.Result{RunID: "run-2"}, sessErr)
	f.archive.On("RecordRun", mock.Anything, mock.MatchedBy(func(run farelog.RunRecord) bool {
		return run.Status == farelog.RunStatusAgentError
	}), mock.Anything).Return(nil)

	err := f.runner.RunOnce(context.Background())

	require.Error(t, err)
	var got *agent.SessionError
	require.True(t, errors.As(err, &got))
	f.session.AssertExpectations(t)
	f.history.AssertNotCalled(t, "Load")
	f.history.AssertNotCalled(t, "Save", mock.Anything)
	f.report.AssertNotCalled(t, "Write", mock.Anything)
}

func TestRunner_EmptyParseWritesNothing(t *testing.T) {
	f := newRunnerFixture()

	raw := "The page would not load and no fares were visible."
	f.session.On("Close", mock.Anything).Return(nil)
	f.agent.On("Run", mock.Anything, f.session, mock.Anything).
		Return(agent.Result{RunID: "run-3", Message: raw, StepsUsed: 5}, nil)
	f.archive.On("RecordRun", mock.Anything, mock.MatchedBy(func(run farelog.RunRecord) bool {
		return run.Status == farelog.RunStatusParseEmpty && run.RecordCount == 0 && run.RawMessage == raw
	}), mock.Anything).Return(nil)

	err := f.runner.RunOnce(context.Background())

	require.Error(t, err)
	var perr *ParseEmptyError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, raw, perr.RawMessage)
	assert.Equal(t, "run-3", perr.RunID)

	f.history.AssertNotCalled(t, "Load")
	f.history.AssertNotCalled(t, "Save", mock.Anything)
	f.report.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
	f.report.AssertNotCalled(t, "Write", mock.Anything)
	f.session.AssertExpectations(t)
	f.archive.AssertExpectations(t)
}

func TestRunner_CorruptHistoryAbortsBeforeWrite(t *testing.T) {
	f := newRunnerFixture()

	corrupt := &history.CorruptError{Path: "data/price-history.json", Err: errors.New("unexpected end of JSON input")}
	f.session.On("Close", mock.Anything).Return(nil)
	f.agent.On("Run", mock.Anything, f.session, mock.Anything).
		Return(agent.Result{RunID: "run-4", Message: agentReport, StepsUsed: 2}, nil)
	f.history.On("Load").Return(fare.Snapshot{}, false, corrupt)
	f.archive.On("RecordRun", mock.Anything, mock.MatchedBy(func(run farelog.RunRecord) bool {
		return run.Status == farelog.RunStatusWriteError
	}), mock.Anything).Return(nil)

	err := f.runner.RunOnce(context.Background())

	require.Error(t, err)
	var got *history.CorruptError
	require.True(t, errors.As(err, &got))
	f.report.AssertNotCalled(t, "Render", mock.Anything, mock.Anything)
	f.report.AssertNotCalled(t, "Write", mock.Anything)
	f.history.AssertNotCalled(t, "Save", mock.Anything)
	f.session.AssertExpectations(t)
}

func TestRunner_SaveFailurePropagates(t *testing.T) {
	f := newRunnerFixture()

	f.session.On("Close", mock.Anything).Return(nil)
	f.agent.On("Run", mock.Anything, f.session, mock.Anything).
		Return(agent.Result{RunID: "run-5", Message: agentReport, StepsUsed: 2}, nil)
	f.history.On("Load").Return(fare.Snapshot{}, false, nil)
	f.report.On("Render", mock.Anything, mock.Anything).Return("# report", nil)
	f.report.On("Write", "# report").Return(nil)
	f.history.On("Save", mock.Anything).Return(errors.New("disk full"))
	f.archive.On("RecordRun", mock.Anything, mock.MatchedBy(func(run farelog.RunRecord) bool {
		return run.Status == farelog.RunStatusWriteError
	}), mock.Anything).Return(nil)

	err := f.runner.RunOnce(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "写历史失败")
	f.session.AssertExpectations(t)
}

func TestRunner_SessionFactoryFailure(t *testing.T) {
	f := newRunnerFixture()
	f.runner.NewSession = func(context.Context) (BrowserSession, error) {
		return nil, errors.New("browserbase 503")
	}

	err := f.runner.RunOnce(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "创建浏览器会话失败")
	f.agent.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunner_DropTriggersNotification(t *testing.T) {
	f := newRunnerFixture()

	prevAt := time.Date(2025, 11, 30, 6, 0, 0, 0, time.UTC)
	prev := fare.Snapshot{
		CheckedAt: prevAt,
		Current: []fare.Record{
			{Destination: "Athens", AmountMinor: 12000, CurrencyCode: "ZAR", ObservedAt: prevAt},
			{Destination: "Mykonos", AmountMinor: 9299, CurrencyCode: "ZAR", ObservedAt: prevAt},
		},
	}
	f.session.On("Close", mock.Anything).Return(nil)
	f.agent.On("Run", mock.Anything, f.session, mock.Anything).
		Return(agent.Result{RunID: "run-6", Message: agentReport, StepsUsed: 2}, nil)
	f.history.On("Load").Return(prev, true, nil)
	f.report.On("Render", mock.Anything, mock.Anything).Return("# report", nil)
	f.report.On("Write", "# report").Return(nil)
	f.history.On("Save", mock.Anything).Return(nil)
	f.archive.On("RecordRun", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.notifier.On("SendStructured", mock.MatchedBy(func(msg notifier.StructuredMessage) bool {
		return msg.Title == "机票降价提醒"
	})).Return(nil)

	err := f.runner.RunOnce(context.Background())

	require.NoError(t, err)
	// Athens 12000 → 10560 跌 12%；Mykonos 持平不推
	f.notifier.AssertNumberOfCalls(t, "SendStructured", 1)
}

type stubRoutes struct {
	route config.RouteConfig
}

func (s stubRoutes) Route() config.RouteConfig { return s.route }

func TestRunner_RouteProviderOverridesConfig(t *testing.T) {
	f := newRunnerFixture()
	hot := config.RouteConfig{
		Origin:       "Cape Town",
		Destinations: []string{"Santorini"},
		TravelDates:  "Jan 10-24, 2026",
		SiteURL:      "https://flights.example.com/new",
	}
	f.runner.Routes = stubRoutes{route: hot}

	f.session.On("Close", mock.Anything).Return(nil)
	f.agent.On("Run", mock.Anything, f.session, mock.MatchedBy(func(task agent.Task) bool {
		return task.StartURL == hot.SiteURL && strings.Contains(task.Instruction, "Santorini")
	})).Return(agent.Result{RunID: "run-10", Message: "RESULTS:\nSantorini: ZAR 11200", StepsUsed: 2}, nil)
	f.history.On("Load").Return(fare.Snapshot{}, false, nil)
	f.report.On("Render", mock.Anything, mock.MatchedBy(func(route config.RouteConfig) bool {
		return route.SiteURL == hot.SiteURL && len(route.DestinationList()) == 1
	})).Return("# report", nil)
	f.report.On("Write", "# report").Return(nil)
	f.history.On("Save", mock.Anything).Return(nil)
	f.archive.On("RecordRun", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	err := f.runner.RunOnce(context.Background())

	require.NoError(t, err)
	f.agent.AssertExpectations(t)
	f.report.AssertExpectations(t)
}

func TestRunner_ArchiveFailureIsNotFatal(t *testing.T) {
	f := newRunnerFixture()

	f.session.On("Close", mock.Anything).Return(nil)
	f.agent.On("Run", mock.Anything, f.session, mock.Anything).
		Return(agent.Result{RunID: "run-7", Message: agentReport, StepsUsed: 2}, nil)
	f.history.On("Load").Return(fare.Snapshot{}, false, nil)
	f.report.On("Render", mock.Anything, mock.Anything).Return("# report", nil)
	f.report.On("Write", "# report").Return(nil)
	f.history.On("Save", mock.Anything).Return(nil)
	f.archive.On("RecordRun", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("database is locked"))

	err := f.runner.RunOnce(context.Background())

	require.NoError(t, err)
}

func TestRunner_ChartBuiltFromArchiveSeries(t *testing.T) {
	f := newRunnerFixture()
	chart := new(MockChart)
	f.runner.Chart = chart

	day1 := time.Date(2025, 11, 30, 6, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 12, 1, 6, 0, 0, 0, time.UTC)
	f.session.On("Close", mock.Anything).Return(nil)
	f.agent.On("Run", mock.Anything, f.session, mock.Anything).
		Return(agent.Result{RunID: "run-9", Message: agentReport, StepsUsed: 2}, nil)
	f.history.On("Load").Return(fare.Snapshot{}, false, nil)
	f.report.On("Render", mock.Anything, mock.Anything).Return("# report", nil)
	f.report.On("Write", "# report").Return(nil)
	f.history.On("Save", mock.Anything).Return(nil)
	f.archive.On("RecordRun", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.archive.On("Destinations", mock.Anything).Return([]string{"Athens"}, nil)
	f.archive.On("SeriesByDestination", mock.Anything, "Athens", 0).Return([]farelog.Observation{
		{Destination: "Athens", AmountMinor: 11000, CurrencyCode: "ZAR", ObservedAt: day1},
		{Destination: "Athens", AmountMinor: 10560, CurrencyCode: "ZAR", ObservedAt: day2},
	}, nil)
	chart.On("Render", mock.Anything, mock.MatchedBy(func(input report.ChartInput) bool {
		return len(input.Series) == 1 &&
			input.Series[0].Destination == "Athens" &&
			len(input.Series[0].Points) == 2 &&
			input.CurrencyCode == "ZAR"
	})).Return(nil)

	err := f.runner.RunOnce(context.Background())

	require.NoError(t, err)
	chart.AssertExpectations(t)
	f.archive.AssertExpectations(t)
}

func TestService_CheckModeRunsOnce(t *testing.T) {
	f := newRunnerFixture()
	cfg := trackerTestConfig()
	cfg.App.Mode = config.ModeCheck

	f.session.On("Close", mock.Anything).Return(nil)
	f.agent.On("Run", mock.Anything, f.session, mock.Anything).
		Return(agent.Result{RunID: "run-8", Message: agentReport, StepsUsed: 1}, nil)
	f.history.On("Load").Return(fare.Snapshot{}, false, nil)
	f.report.On("Render", mock.Anything, mock.Anything).Return("# report", nil)
	f.report.On("Write", "# report").Return(nil)
	f.history.On("Save", mock.Anything).Return(nil)
	f.archive.On("RecordRun", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := NewService(cfg, f.runner)
	err := svc.Run(context.Background())

	require.NoError(t, err)
	f.agent.AssertNumberOfCalls(t, "Run", 1)
}

func TestService_RejectsUnknownMode(t *testing.T) {
	cfg := trackerTestConfig()
	cfg.App.Mode = "daemonize"
	svc := NewService(cfg, newRunnerFixture().runner)

	err := svc.Run(context.Background())

	require.Error(t, err)
	assert.ErrorContains(t, err, "app.mode")
}
