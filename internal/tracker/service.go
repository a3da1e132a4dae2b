package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/gateway/notifier"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/pkg/circuit"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/scheduler"
)

// Service 按 app.mode 决定跑法：check 跑一轮就退出（CI 用），
// serve 常驻，由对齐调度器驱动，一次只跑一个会话。
type Service struct {
	Config  *config.Config
	Runner  *Runner
	breaker *circuit.Breaker
}

func NewService(cfg *config.Config, runner *Runner) *Service {
	return &Service{
		Config:  cfg,
		Runner:  runner,
		breaker: circuit.NewBreaker("tracker", 3, 30*time.Minute),
	}
}

func (s *Service) Run(ctx context.Context) error {
	if s == nil || s.Config == nil || s.Runner == nil {
		return fmt.Errorf("tracker service 未初始化")
	}
	mode := strings.ToLower(strings.TrimSpace(s.Config.App.Mode))
	switch mode {
	case "", config.ModeCheck:
		return s.Runner.RunOnce(ctx)
	case config.ModeServe:
		return s.serve(ctx)
	default:
		return fmt.Errorf("未知的 app.mode: %q", mode)
	}
}

func (s *Service) serve(ctx context.Context) error {
	interval, ok := scheduler.ParseIntervalDuration(s.Config.Schedule.Interval)
	if !ok {
		return fmt.Errorf("schedule.interval 不合法: %q", s.Config.Schedule.Interval)
	}
	offset := time.Duration(s.Config.Schedule.OffsetSeconds) * time.Second

	sched := scheduler.NewAlignedScheduler(ctx, interval, offset)
	sched.RunImmediately = s.Config.Schedule.RunImmediately
	sched.Start(func() {
		if s.breaker != nil && !s.breaker.Allow() {
			logger.Warnf("熔断器打开，跳过本轮查价")
			return
		}
		if err := s.Runner.RunOnce(ctx); err != nil {
			logger.Errorf("本轮查价失败: %v", err)
			if s.breaker != nil {
				s.breaker.RecordFailure()
			}
			s.notifyFailure(err)
			return
		}
		if s.breaker != nil {
			s.breaker.RecordSuccess()
		}
	})
	return nil
}

// notifyFailure 常驻模式下把运行失败也推出去，避免静默趴窝。
func (s *Service) notifyFailure(runErr error) {
	if s.Runner == nil || s.Runner.Notifier == nil {
		return
	}
	msg := notifier.StructuredMessage{
		Icon:  "⚠️",
		Title: "查价运行失败",
		Sections: []notifier.MessageSection{{
			Lines: []string{runErr.Error()},
		}},
		Timestamp: time.Now().UTC(),
	}
	if err := s.Runner.Notifier.SendStructured(msg); err != nil {
		logger.Warnf("失败告警推送失败: %v", err)
	}
}
