package main

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/app"
	ftcfg "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
)

func main() {
	ctx := context.Background()
	cfgPath := os.Getenv("FLIGHT_TRACKER_CONFIG")
	if cfgPath == "" {
		cfgPath = "configs/config.yaml"
	}

	cfg, err := ftcfg.Load(cfgPath)
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	if mode, ok := modeFromArgs(os.Args[1:]); ok {
		cfg.App.Mode = mode
	}
	logFile, err := setupLogOutput(cfg.App.LogPath)
	if err != nil {
		log.Fatalf("初始化日志文件失败: %v", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	logger.SetAgentWriter(nil) // Default to no agent transcript
	if cfg.App.AgentLog != "" {
		f, err := setupAgentLogOutput(cfg.App.AgentLog)
		if err != nil {
			log.Fatalf("初始化 agent 转录日志失败: %v", err)
		}
		if f != nil {
			defer f.Close()
		}
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.EnableAgentPayloadDump(cfg.App.AgentDump)
	logger.Infof("✓ 配置加载成功（mode=%s，route=%s）", cfg.App.Mode, cfg.Route.Origin)

	app, err := app.NewApp(cfg)
	if err != nil {
		log.Fatalf("初始化应用失败: %v", err)
	}
	if err := app.Run(ctx); err != nil {
		log.Fatalf("运行失败: %v", err)
	}
}

// modeFromArgs 允许用位置参数覆盖 app.mode：`flight-tracker check` 或
// `flight-tracker serve`。CI 里不用改配置文件就能切跑法。
func modeFromArgs(args []string) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	mode := strings.ToLower(strings.TrimSpace(args[0]))
	switch mode {
	case ftcfg.ModeCheck, ftcfg.ModeServe:
		return mode, true
	default:
		log.Fatalf("未知的运行模式 %q（支持 check | serve）", args[0])
		return "", false
	}
}

func setupLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func setupAgentLogOutput(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	logger.SetAgentWriter(f)
	return f, nil
}
