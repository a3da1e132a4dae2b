package runlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/agent"
	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/logger"
)

// Store 管理 agent 逐步交互日志（提示词/回复/动作），方便事后排查跑偏的会话。
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	ownsDB bool
}

// ExchangeRecord 代表 agent 循环中的一步：喂给模型什么、模型回了什么、执行了什么。
type ExchangeRecord struct {
	ID         int64  `json:"id"`
	RunID      string `json:"run_id"`
	Step       int    `json:"step"`
	PageURL    string `json:"page_url"`
	PageTitle  string `json:"page_title"`
	Prompt     string `json:"prompt"`
	RawReply   string `json:"raw_reply"`
	ActionJSON string `json:"action_json"`
	Error      string `json:"error,omitempty"`
	Timestamp  int64  `json:"ts"`
}

// New 初始化 SQLite 存储。
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("run log path 不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureRunLogSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, ownsDB: true}, nil
}

// UseExternalDB 允许复用外部（例如 GORM 档案库）初始化的 SQLite 连接，避免多连接锁冲突。
func (s *Store) UseExternalDB(db *sql.DB) error {
	if s == nil {
		return fmt.Errorf("run log store 未初始化")
	}
	if db == nil {
		return fmt.Errorf("external db 不能为空")
	}
	if err := ensureRunLogSchema(db); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsDB && s.db != nil && s.db != db {
		_ = s.db.Close()
	}
	s.db = db
	s.ownsDB = false
	return nil
}

// Close 关闭底层 DB（共享连接时只解除引用）。
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if !s.ownsDB {
		s.db = nil
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureRunLogSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agent_exchanges (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			page_url TEXT,
			page_title TEXT,
			prompt TEXT,
			raw_reply TEXT,
			action_json TEXT,
			error TEXT,
			ts INTEGER NOT NULL
		);
		`,
		`CREATE INDEX IF NOT EXISTS idx_agent_exchanges_run_step ON agent_exchanges(run_id, step);`,
		`CREATE INDEX IF NOT EXISTS idx_agent_exchanges_ts_id ON agent_exchanges(ts DESC, id DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Append 写入一步交互。
func (s *Store) Append(ctx context.Context, rec ExchangeRecord) (int64, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return 0, fmt.Errorf("run log store 未初始化")
	}
	if strings.TrimSpace(rec.RunID) == "" {
		return 0, fmt.Errorf("run_id 不能为空")
	}
	ts := rec.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO agent_exchanges
			(run_id, step, page_url, page_title, prompt, raw_reply, action_json, error, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(rec.RunID),
		rec.Step,
		rec.PageURL,
		rec.PageTitle,
		rec.Prompt,
		rec.RawReply,
		rec.ActionJSON,
		rec.Error,
		ts,
	)
	if err != nil {
		return 0, err
	}
	id, _ := res.LastInsertId()
	return id, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExchangeRecord(scanner rowScanner) (ExchangeRecord, error) {
	var (
		rec        ExchangeRecord
		pageURL    sql.NullString
		pageTitle  sql.NullString
		prompt     sql.NullString
		rawReply   sql.NullString
		actionJSON sql.NullString
		errText    sql.NullString
	)
	if err := scanner.Scan(&rec.ID, &rec.RunID, &rec.Step, &pageURL, &pageTitle,
		&prompt, &rawReply, &actionJSON, &errText, &rec.Timestamp); err != nil {
		return rec, err
	}
	rec.PageURL = pageURL.String
	rec.PageTitle = pageTitle.String
	rec.Prompt = prompt.String
	rec.RawReply = rawReply.String
	rec.ActionJSON = actionJSON.String
	rec.Error = errText.String
	return rec, nil
}

// ListByRun 按步序返回一次运行的全部交互。
func (s *Store) ListByRun(ctx context.Context, runID string, limit int) ([]ExchangeRecord, error) {
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, fmt.Errorf("run_id 不能为空")
	}
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("run log store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	rows, err := db.QueryContext(ctx, `SELECT id, run_id, step, page_url, page_title,
		prompt, raw_reply, action_json, error, ts
		FROM agent_exchanges WHERE run_id = ?
		ORDER BY step ASC, id ASC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []ExchangeRecord
	for rows.Next() {
		rec, err := scanExchangeRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// Recent 返回最新的交互记录，跨运行按时间倒序。
func (s *Store) Recent(ctx context.Context, limit int) ([]ExchangeRecord, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("run log store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `SELECT id, run_id, step, page_url, page_title,
		prompt, raw_reply, action_json, error, ts
		FROM agent_exchanges
		ORDER BY ts DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []ExchangeRecord
	for rows.Next() {
		rec, err := scanExchangeRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

// Observer 实现 agent.StepObserver，把每步交互落进 runlog；写失败降级成告警。
type Observer struct {
	store *Store
}

func NewObserver(store *Store) *Observer {
	if store == nil {
		return nil
	}
	return &Observer{store: store}
}

// AfterStep 记录一步交互；nil observer 安全。
func (o *Observer) AfterStep(ctx context.Context, ex agent.StepExchange) {
	if o == nil || o.store == nil {
		return
	}
	rec := ExchangeRecord{
		RunID:      ex.RunID,
		Step:       ex.Step,
		PageURL:    ex.PageURL,
		PageTitle:  ex.PageTitle,
		Prompt:     ex.Prompt,
		RawReply:   ex.RawReply,
		ActionJSON: ex.ActionJSON,
		Error:      ex.Error,
		Timestamp:  ex.Timestamp,
	}
	if _, err := o.store.Append(ctx, rec); err != nil {
		logger.Warnf("写入 agent 交互日志失败(step=%d): %v", ex.Step, err)
	}
}
