package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jamesdanielwhitford/flight-tracker-kernel/internal/fare"
)

// CorruptError 历史文件存在但不合法（JSON 坏了或字段不符合契约）。
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("history document corrupt (%s): %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Store 单槽位历史持久化：一个 JSON 文件存最近一次 + 上一次的票价。
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// priceDoc / document 对应落盘 JSON 的字段名，外部契约，不能改。
type priceDoc struct {
	Destination  string `json:"destination"`
	Price        string `json:"price"`
	PriceNumeric int64  `json:"priceNumeric"`
	Currency     string `json:"currency"`
	Timestamp    string `json:"timestamp"`
}

type document struct {
	LastChecked    string     `json:"lastChecked"`
	Prices         []priceDoc `json:"prices"`
	PreviousPrices []priceDoc `json:"previousPrices,omitempty"`
}

// Load 读取持久化的快照。文件不存在返回 (zero, false, nil)（首跑）；
// 文件存在但解析/校验失败返回 *CorruptError。
func (s *Store) Load() (fare.Snapshot, bool, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return fare.Snapshot{}, false, nil
		}
		return fare.Snapshot{}, false, fmt.Errorf("read history failed: %w", err)
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return fare.Snapshot{}, false, &CorruptError{Path: s.path, Err: err}
	}
	if err := compiledSchema.Validate(generic); err != nil {
		return fare.Snapshot{}, false, &CorruptError{Path: s.path, Err: err}
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fare.Snapshot{}, false, &CorruptError{Path: s.path, Err: err}
	}
	snap, err := doc.toSnapshot()
	if err != nil {
		return fare.Snapshot{}, false, &CorruptError{Path: s.path, Err: err}
	}
	return snap, true, nil
}

// Save 以临时文件+rename 的方式原子覆盖历史文件；
// 任何时刻并发读者都看不到半截文档。
func (s *Store) Save(snap fare.Snapshot) error {
	doc := fromSnapshot(snap)
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history failed: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history dir failed: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write history temp file failed: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace history file failed: %w", err)
	}
	return nil
}

func fromSnapshot(snap fare.Snapshot) document {
	return document{
		LastChecked:    snap.CheckedAt.UTC().Format(time.RFC3339),
		Prices:         toPriceDocs(snap.Current),
		PreviousPrices: toPriceDocs(snap.Previous),
	}
}

func toPriceDocs(records []fare.Record) []priceDoc {
	if len(records) == 0 {
		return nil
	}
	out := make([]priceDoc, 0, len(records))
	for _, r := range records {
		out = append(out, priceDoc{
			Destination:  r.Destination,
			Price:        r.FormatPrice(),
			PriceNumeric: r.AmountMinor,
			Currency:     r.CurrencyCode,
			Timestamp:    r.ObservedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func (d document) toSnapshot() (fare.Snapshot, error) {
	checkedAt, err := time.Parse(time.RFC3339, d.LastChecked)
	if err != nil {
		return fare.Snapshot{}, fmt.Errorf("lastChecked invalid: %w", err)
	}
	current, err := toRecords(d.Prices)
	if err != nil {
		return fare.Snapshot{}, err
	}
	previous, err := toRecords(d.PreviousPrices)
	if err != nil {
		return fare.Snapshot{}, err
	}
	return fare.Snapshot{
		CheckedAt: checkedAt.UTC(),
		Current:   current,
		Previous:  previous,
	}, nil
}

func toRecords(docs []priceDoc) ([]fare.Record, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	out := make([]fare.Record, 0, len(docs))
	for _, p := range docs {
		observedAt, err := time.Parse(time.RFC3339, p.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("price timestamp invalid (%s): %w", p.Destination, err)
		}
		out = append(out, fare.Record{
			Destination:  p.Destination,
			AmountMinor:  p.PriceNumeric,
			CurrencyCode: p.Currency,
			ObservedAt:   observedAt.UTC(),
		})
	}
	return out, nil
}
