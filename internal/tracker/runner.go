package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/agent"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/fare"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/report"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/store/farelog"
)

// 中文说明：
// Runner 串起一次完整的查价：开浏览器会话 → agent 跑任务 → 解析报告 →
// 读旧历史 → 生成 README 与历史文件 → 归档 → 降价提醒。
// README 和历史文件是本系统的契约产物；归档、图表、推送都是尽力而为，
// 失败只记日志，不影响运行结果。

// BrowserSession 是 Runner 需要的浏览器会话面：agent 动作 + 生命周期 + 截图。
type BrowserSession interface {
	agent.Browser
	CloudSessionID() string
	Screenshot() ([]byte, error)
	Close(ctx context.Context) error
}

// SessionFactory 新建一个浏览器会话（云端或本地，由配置决定）。
type SessionFactory func(ctx context.Context) (BrowserSession, error)

// AgentRunner 对 agent.Executor 的收窄，测试里好 mock。
type AgentRunner interface {
	Run(ctx context.Context, b agent.Browser, task agent.Task) (agent.Result, error)
}

type HistoryStore interface {
	Load() (fare.Snapshot, bool, error)
	Save(snap fare.Snapshot) error
}

type ReportWriter interface {
	Render(snap fare.Snapshot, route config.RouteConfig) (string, error)
	Write(content string) error
}

// Archive 运行档案面；nil 表示未启用归档。
type Archive interface {
	RecordRun(ctx context.Context, run farelog.RunRecord, records []fare.Record) error
	Destinations(ctx context.Context) ([]string, error)
	SeriesByDestination(ctx context.Context, destination string, limit int) ([]farelog.Observation, error)
}

// ChartBuilder 历史走势图渲染面；nil 表示未启用图表。
type ChartBuilder interface {
	Render(ctx context.Context, input report.ChartInput) error
}

// RouteProvider 提供当前生效的航线。配置了独立航线文件时由热更新
// loader 实现，否则回落到主配置里的静态航线。
type RouteProvider interface {
	Route() config.RouteConfig
}

type Runner struct {
	Config     *config.Config
	Routes     RouteProvider
	NewSession SessionFactory
	Agent      AgentRunner
	Parser     *fare.Parser
	History    HistoryStore
	Report     ReportWriter
	Archive    Archive
	Chart      ChartBuilder
	Notifier   Notifier

	nowFn func() time.Time
}

type RunnerParams struct {
	Config     *config.Config
	Routes     RouteProvider
	NewSession SessionFactory
	Agent      AgentRunner
	Parser     *fare.Parser
	History    HistoryStore
	Report     ReportWriter
	Archive    Archive
	Chart      ChartBuilder
	Notifier   Notifier
}

func NewRunner(p RunnerParams) *Runner {
	return &Runner{
		Config:     p.Config,
		Routes:     p.Routes,
		NewSession: p.NewSession,
		Agent:      p.Agent,
		Parser:     p.Parser,
		History:    p.History,
		Report:     p.Report,
		Archive:    p.Archive,
		Chart:      p.Chart,
		Notifier:   p.Notifier,
		nowFn:      time.Now,
	}
}

// activeRoute 返回本轮查价使用的航线。
func (r *Runner) activeRoute() config.RouteConfig {
	if r.Routes != nil {
		return r.Routes.Route()
	}
	return r.Config.Route
}

func (r *Runner) now() time.Time {
	if r.nowFn != nil {
		return r.nowFn()
	}
	return time.Now()
}

// RunOnce 执行一轮查价。会话清理无条件执行，清理失败只告警，
// 不会盖掉主流程的错误。
func (r *Runner) RunOnce(ctx context.Context) error {
	if r == nil || r.Config == nil {
		return fmt.Errorf("runner 未初始化")
	}
	if r.NewSession == nil || r.Agent == nil || r.Parser == nil || r.History == nil || r.Report == nil {
		return fmt.Errorf("runner 依赖不完整")
	}
	startedAt := r.now().UTC()
	route := r.activeRoute()

	task := agent.Task{
		Instruction: agent.BuildInstruction(route, r.Config.Agent.InstructionTemplate),
		StartURL:    route.SiteURL,
		MaxSteps:    r.Config.Agent.MaxSteps,
		Timeout:     time.Duration(r.Config.Agent.TimeoutSeconds) * time.Second,
	}

	session, err := r.NewSession(ctx)
	if err != nil {
		return fmt.Errorf("创建浏览器会话失败: %w", err)
	}
	defer func() {
		if cerr := session.Close(context.WithoutCancel(ctx)); cerr != nil {
			logger.Warnf("清理浏览器会话失败: %v", cerr)
		}
	}()
	if id := session.CloudSessionID(); id != "" {
		logger.Infof("本轮使用云端浏览器会话: %s", id)
	}

	result, err := r.Agent.Run(ctx, session, task)
	if err != nil {
		r.captureFailureShot(session)
		r.archiveRun(ctx, result, nil, farelog.RunStatusAgentError, err.Error(), startedAt)
		return err
	}

	records := r.Parser.Parse(result.Message)
	if len(records) == 0 {
		perr := &ParseEmptyError{RunID: result.RunID, RawMessage: result.Message}
		r.archiveRun(ctx, result, nil, farelog.RunStatusParseEmpty, perr.Error(), startedAt)
		return perr
	}

	// 历史损坏必须在任何写动作之前发现，坏文件留在原地等人工处置。
	prev, found, err := r.History.Load()
	if err != nil {
		r.archiveRun(ctx, result, records, farelog.RunStatusWriteError, err.Error(), startedAt)
		return err
	}
	var prevSnap *fare.Snapshot
	if found {
		prevSnap = &prev
	}
	snap := fare.NewSnapshot(r.now().UTC().Truncate(time.Second), records, prevSnap)

	content, err := r.Report.Render(snap, route)
	if err != nil {
		r.archiveRun(ctx, result, records, farelog.RunStatusWriteError, err.Error(), startedAt)
		return fmt.Errorf("渲染报表失败: %w", err)
	}
	if err := r.Report.Write(content); err != nil {
		r.archiveRun(ctx, result, records, farelog.RunStatusWriteError, err.Error(), startedAt)
		return fmt.Errorf("写报表失败: %w", err)
	}
	if err := r.History.Save(snap); err != nil {
		r.archiveRun(ctx, result, records, farelog.RunStatusWriteError, err.Error(), startedAt)
		return fmt.Errorf("写历史失败: %w", err)
	}

	r.archiveRun(ctx, result, records, farelog.RunStatusOK, "", startedAt)
	r.refreshChart(ctx, snap)
	r.notifyDrops(snap)

	logger.Infof("查价完成: run=%s steps=%d 目的地=%d 用时=%s",
		result.RunID, result.StepsUsed, len(records), r.now().UTC().Sub(startedAt).Truncate(time.Second))
	return nil
}

// captureFailureShot 在 agent 失败时截一张当前页面，落在历史文件旁边，
// 方便事后定位卡在哪个页面。纯诊断用途，任何失败都只告警。
func (r *Runner) captureFailureShot(session BrowserSession) {
	if r.Config.History.Path == "" {
		return
	}
	shot, err := session.Screenshot()
	if err != nil {
		logger.Warnf("失败现场截图失败: %v", err)
		return
	}
	if len(shot) == 0 {
		return
	}
	target := filepath.Join(filepath.Dir(r.Config.History.Path), "last-failure.png")
	if err := os.WriteFile(target, shot, 0o644); err != nil {
		logger.Warnf("写失败截图失败: %v", err)
		return
	}
	logger.Infof("失败现场截图已保存: %s", target)
}

// archiveRun 把本轮结果写进运行档案。档案是诊断用途，失败降级为告警。
func (r *Runner) archiveRun(ctx context.Context, result agent.Result, records []fare.Record, status, errText string, startedAt time.Time) {
	if r.Archive == nil || result.RunID == "" {
		return
	}
	var payload []byte
	if len(result.Steps) > 0 {
		if buf, err := json.Marshal(result.Steps); err == nil {
			payload = buf
		}
	}
	run := farelog.RunRecord{
		RunID:       result.RunID,
		Status:      status,
		Steps:       result.StepsUsed,
		RecordCount: len(records),
		ErrorText:   errText,
		RawMessage:  result.Message,
		Payload:     payload,
		StartedAt:   startedAt,
		FinishedAt:  r.now().UTC(),
	}
	if err := r.Archive.RecordRun(ctx, run, records); err != nil {
		logger.Warnf("写运行档案失败: run=%s err=%v", result.RunID, err)
	}
}

// refreshChart 用档案里的全量序列重建走势图。图表失败不影响本轮结果。
func (r *Runner) refreshChart(ctx context.Context, snap fare.Snapshot) {
	if r.Chart == nil || r.Archive == nil {
		return
	}
	destinations, err := r.Archive.Destinations(ctx)
	if err != nil {
		logger.Warnf("读取档案目的地失败, 跳过图表: %v", err)
		return
	}
	if len(destinations) == 0 {
		return
	}
	series := make([]report.DestinationSeries, 0, len(destinations))
	for _, dest := range destinations {
		obs, err := r.Archive.SeriesByDestination(ctx, dest, 0)
		if err != nil {
			logger.Warnf("读取档案序列失败: destination=%s err=%v", dest, err)
			continue
		}
		points := make([]report.SeriesPoint, 0, len(obs))
		for _, o := range obs {
			points = append(points, report.SeriesPoint{ObservedAt: o.ObservedAt, AmountMinor: o.AmountMinor})
		}
		if len(points) == 0 {
			continue
		}
		series = append(series, report.DestinationSeries{Destination: dest, Points: points})
	}
	if len(series) == 0 {
		return
	}
	currency := ""
	if len(snap.Current) > 0 {
		currency = snap.Current[0].CurrencyCode
	}
	input := report.ChartInput{
		Title:        fmt.Sprintf("Flight fares from %s", r.activeRoute().Origin),
		CurrencyCode: currency,
		Series:       series,
		GeneratedAt:  snap.CheckedAt,
	}
	if err := r.Chart.Render(ctx, input); err != nil {
		logger.Warnf("图表渲染失败: %v", err)
	}
}
