package farelog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/fare"
)

// 运行档案里 run 的终态。
const (
	RunStatusOK         = "ok"
	RunStatusAgentError = "agent_error"
	RunStatusParseEmpty = "parse_empty"
	RunStatusWriteError = "write_error"
)

// RunRecord 一次完整追踪运行的档案行。
type RunRecord struct {
	RunID       string
	Status      string
	Steps       int
	RecordCount int
	ErrorText   string
	RawMessage  string
	Payload     []byte // agent 原始结构（JSON），可为空
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Observation 某目的地一次观测到的票价，供序列查询返回。
type Observation struct {
	RunID        string
	Destination  string
	CurrencyCode string
	AmountMinor  int64
	ObservedAt   time.Time
}

// DestinationStats 单目的地的档案统计。
type DestinationStats struct {
	Destination string
	Count       int64
	MinMinor    int64
	MaxMinor    int64
	Mean        decimal.Decimal
}

// Store 落盘每次运行与每条票价观测，是报表/图表之外的长期档案。
// 档案写失败不阻断追踪主流程，由调用方降级成告警日志。
type Store struct {
	db *gorm.DB
}

func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("farelog: 档案路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runModel{}, &observationModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a small amount of parallelism for concurrent HTTP reads
	// while keeping lock contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SQLDB 暴露底层连接，供同库的 runlog 复用。
func (s *Store) SQLDB() (*sql.DB, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("farelog 未初始化")
	}
	return s.db.DB()
}

// RecordRun 在一个事务里写入运行档案与该次的全部观测。
func (s *Store) RecordRun(ctx context.Context, run RunRecord, records []fare.Record) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("farelog 未初始化")
	}
	if strings.TrimSpace(run.RunID) == "" {
		return fmt.Errorf("farelog: run_id 必填")
	}
	model := newRunModel(run)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		obs := make([]observationModel, 0, len(records))
		for _, rec := range records {
			obs = append(obs, observationModel{
				RunID:        run.RunID,
				Destination:  rec.Destination,
				Currency:     rec.CurrencyCode,
				AmountMinor:  rec.AmountMinor,
				ObservedUnix: rec.ObservedAt.Unix(),
				CreatedUnix:  time.Now().UnixMilli(),
			})
		}
		return tx.Create(&obs).Error
	})
}

// SeriesByDestination 按观测时间升序返回某目的地最近 limit 条票价。
func (s *Store) SeriesByDestination(ctx context.Context, destination string, limit int) ([]Observation, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("farelog 未初始化")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, fmt.Errorf("farelog: destination 必填")
	}
	if limit <= 0 || limit > 1000 {
		limit = 180
	}
	// 先按时间倒序取窗口，再翻转成升序，保证拿到的是“最近 N 条”。
	var models []observationModel
	if err := s.db.WithContext(ctx).
		Where("destination = ?", destination).
		Order("observed_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Observation, 0, len(models))
	for i := len(models) - 1; i >= 0; i-- {
		out = append(out, observationModelToRecord(models[i]))
	}
	return out, nil
}

// Destinations 返回档案里出现过的目的地，按名称升序。
func (s *Store) Destinations(ctx context.Context) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("farelog 未初始化")
	}
	var names []string
	if err := s.db.WithContext(ctx).
		Model(&observationModel{}).
		Distinct("destination").
		Order("destination ASC").
		Pluck("destination", &names).Error; err != nil {
		return nil, err
	}
	return names, nil
}

// RecentRuns 按完成时间倒序返回最近 limit 次运行。
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("farelog 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 20
	}
	var models []runModel
	if err := s.db.WithContext(ctx).
		Order("finished_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]RunRecord, 0, len(models))
	for _, m := range models {
		out = append(out, runModelToRecord(m))
	}
	return out, nil
}

// Stats 汇总单目的地的观测统计；无观测时返回 found=false。
func (s *Store) Stats(ctx context.Context, destination string) (DestinationStats, bool, error) {
	if s == nil || s.db == nil {
		return DestinationStats{}, false, fmt.Errorf("farelog 未初始化")
	}
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return DestinationStats{}, false, fmt.Errorf("farelog: destination 必填")
	}
	var agg struct {
		Count int64
		Min   sql.NullInt64
		Max   sql.NullInt64
		Sum   sql.NullInt64
	}
	err := s.db.WithContext(ctx).
		Model(&observationModel{}).
		Select("COUNT(*) AS count, MIN(amount_minor) AS min, MAX(amount_minor) AS max, SUM(amount_minor) AS sum").
		Where("destination = ?", destination).
		Scan(&agg).Error
	if err != nil {
		return DestinationStats{}, false, err
	}
	if agg.Count == 0 {
		return DestinationStats{}, false, nil
	}
	mean := decimal.NewFromInt(agg.Sum.Int64).
		Div(decimal.NewFromInt(agg.Count)).
		Round(2)
	return DestinationStats{
		Destination: destination,
		Count:       agg.Count,
		MinMinor:    agg.Min.Int64,
		MaxMinor:    agg.Max.Int64,
		Mean:        mean,
	}, true, nil
}

// LatestObservations 返回最后一次有观测的 run 的全部观测（解析序）。
func (s *Store) LatestObservations(ctx context.Context) ([]Observation, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("farelog 未初始化")
	}
	var last observationModel
	if err := s.db.WithContext(ctx).
		Order("observed_at DESC, id DESC").
		First(&last).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	var models []observationModel
	if err := s.db.WithContext(ctx).
		Where("run_id = ?", last.RunID).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]Observation, 0, len(models))
	for _, m := range models {
		out = append(out, observationModelToRecord(m))
	}
	return out, nil
}

// --------------------------- Models ------------------------------------

type runModel struct {
	ID          int64          `gorm:"column:id;primaryKey"`
	RunID       string         `gorm:"column:run_id;index"`
	Status      string         `gorm:"column:status;index"`
	Steps       int            `gorm:"column:steps"`
	RecordCount int            `gorm:"column:record_count"`
	ErrorText   string         `gorm:"column:error_text"`
	RawMessage  string         `gorm:"column:raw_message"`
	Payload     datatypes.JSON `gorm:"column:payload"`
	StartedAt   int64          `gorm:"column:started_at"`
	FinishedAt  int64          `gorm:"column:finished_at;index"`
	CreatedAt   int64          `gorm:"column:created_at"`
}

func (runModel) TableName() string { return "agent_runs" }

type observationModel struct {
	ID           int64  `gorm:"column:id;primaryKey"`
	RunID        string `gorm:"column:run_id;index"`
	Destination  string `gorm:"column:destination;index"`
	Currency     string `gorm:"column:currency"`
	AmountMinor  int64  `gorm:"column:amount_minor"`
	ObservedUnix int64  `gorm:"column:observed_at;index"`
	CreatedUnix  int64  `gorm:"column:created_at"`
}

func (observationModel) TableName() string { return "fare_observations" }

func newRunModel(run RunRecord) runModel {
	now := time.Now()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = now
	}
	var payload datatypes.JSON
	if len(run.Payload) > 0 {
		payload = datatypes.JSON(run.Payload)
	}
	return runModel{
		RunID:       strings.TrimSpace(run.RunID),
		Status:      strings.TrimSpace(run.Status),
		Steps:       run.Steps,
		RecordCount: run.RecordCount,
		ErrorText:   strings.TrimSpace(run.ErrorText),
		RawMessage:  run.RawMessage,
		Payload:     payload,
		StartedAt:   run.StartedAt.UnixMilli(),
		FinishedAt:  run.FinishedAt.UnixMilli(),
		CreatedAt:   now.UnixMilli(),
	}
}

func runModelToRecord(m runModel) RunRecord {
	return RunRecord{
		RunID:       m.RunID,
		Status:      m.Status,
		Steps:       m.Steps,
		RecordCount: m.RecordCount,
		ErrorText:   m.ErrorText,
		RawMessage:  m.RawMessage,
		Payload:     []byte(m.Payload),
		StartedAt:   millisToTime(m.StartedAt),
		FinishedAt:  millisToTime(m.FinishedAt),
	}
}

func observationModelToRecord(m observationModel) Observation {
	return Observation{
		RunID:        m.RunID,
		Destination:  m.Destination,
		CurrencyCode: m.Currency,
		AmountMinor:  m.AmountMinor,
		ObservedAt:   time.Unix(m.ObservedUnix, 0).UTC(),
	}
}

// --------------------------- Helpers ------------------------------------

func ensureDir(path string) error {
	dir := filepathDir(path)
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func filepathDir(path string) string {
	last := strings.LastIndex(path, "/")
	if last == -1 {
		last = strings.LastIndex(path, "\\")
	}
	if last == -1 {
		return ""
	}
	return path[:last]
}

func millisToTime(v int64) time.Time {
	if v <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
