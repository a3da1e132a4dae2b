package app

import (
	"fmt"
	"path/filepath"

	ftcfg "github.com/jamesdanielwhitford/flight-tracker-kernel/internal/config"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/store/farelog"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/store/runlog"
)

// StoreStack 汇总归档侧存储：票价档案与 agent 交互日志共用同一个
// SQLite 连接，避免两个写手互相锁库。未启用归档时两者都为 nil。
type StoreStack struct {
	Archive *farelog.Store
	RunLog  *runlog.Store
}

// Close 先解除共享引用，再关闭持有连接的档案库。
func (s *StoreStack) Close() error {
	if s == nil {
		return nil
	}
	if s.RunLog != nil {
		if err := s.RunLog.Close(); err != nil {
			logger.Warnf("关闭交互日志存储失败: %v", err)
		}
	}
	if s.Archive != nil {
		return s.Archive.Close()
	}
	return nil
}

func buildStoreStack(cfg *ftcfg.Config) (*StoreStack, error) {
	if !cfg.Archive.Enabled {
		logger.Infof("运行档案未启用，历史序列与交互日志不落库")
		return &StoreStack{}, nil
	}
	path := cfg.Archive.Path
	if path == "" {
		return nil, fmt.Errorf("archive.path 未配置，无法初始化档案存储")
	}

	archive, err := farelog.New(path)
	if err != nil {
		return nil, fmt.Errorf("初始化票价档案失败: %w", err)
	}
	runLog, err := runlog.New(path)
	if err != nil {
		archive.Close()
		return nil, fmt.Errorf("初始化交互日志存储失败: %w", err)
	}
	sqlDB, err := archive.SQLDB()
	if err != nil {
		runLog.Close()
		archive.Close()
		return nil, fmt.Errorf("获取 SQL DB 失败: %w", err)
	}
	if err := runLog.UseExternalDB(sqlDB); err != nil {
		runLog.Close()
		archive.Close()
		return nil, fmt.Errorf("绑定交互日志存储失败: %w", err)
	}

	logPath := path
	if abs, err := filepath.Abs(path); err == nil {
		logPath = abs
	}
	logger.Infof("✓ 运行档案写入 %s", logPath)
	return &StoreStack{Archive: archive, RunLog: runLog}, nil
}
